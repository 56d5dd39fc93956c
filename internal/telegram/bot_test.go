package telegram

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/Rrens/devin-relay/internal/config"
	"github.com/Rrens/devin-relay/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBot(t *testing.T, handler http.HandlerFunc) *Bot {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBot(config.TelegramConfig{BotToken: "123:abc", BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
}

func TestBot_SendMessage(t *testing.T) {
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(42), body["chat_id"])
		assert.Equal(t, "hello <b>", body["text"])

		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	require.NoError(t, bot.SendMessage(t.Context(), 42, "hello <b>"))
}

func TestBot_SendMessageSplitsLongText(t *testing.T) {
	var (
		mu     sync.Mutex
		chunks []string
	)
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		var body sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		chunks = append(chunks, body.Text)
		mu.Unlock()
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	text := strings.Repeat("a", MaxMessageLength-10) + "\n" + strings.Repeat("b", 20)
	require.NoError(t, bot.SendMessage(t.Context(), 42, text))

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", MaxMessageLength-10), chunks[0])
	assert.Equal(t, strings.Repeat("b", 20), chunks[1])
}

func TestBot_APIError(t *testing.T) {
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	})

	err := bot.SendMessage(t.Context(), 42, "hi")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "sendMessage", apiErr.Method)
	assert.Equal(t, 403, apiErr.StatusCode)
	assert.Contains(t, apiErr.Description, "blocked")
}

func TestBot_NonJSONError(t *testing.T) {
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	})

	_, err := bot.GetMe(t.Context())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestBot_GetMe(t *testing.T) {
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/bot123:abc/getMe", r.URL.Path)
		w.Write([]byte(`{"ok":true,"result":{"id":99,"is_bot":true,"first_name":"Relay","username":"devin_relay_bot"}}`))
	})

	me, err := bot.GetMe(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(99), me.ID)
	assert.Equal(t, "devin_relay_bot", me.Username)
}

func TestBot_TransportErrorHidesToken(t *testing.T) {
	bot := NewBot(config.TelegramConfig{BotToken: "123:secret", BaseURL: "http://127.0.0.1:1", Timeout: time.Second})

	err := bot.SendMessage(t.Context(), 42, "hi")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "123:secret")
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitText("short", 10))
	assert.Equal(t, []string{"abcde", "fghij", "k"}, SplitText("abcdefghijk", 5))
	assert.Equal(t, []string{"ab", "cdef"}, SplitText("ab\ncdef", 5))
	assert.Equal(t, []string{"ééé", "éé"}, SplitText("ééééé", 3))
	assert.Equal(t, []string{"😀😀", "😀"}, SplitText("😀😀😀", 4))
	assert.Equal(t, []string{"a😀", "😀b"}, SplitText("a😀😀b", 4))
}

func TestSplitText_CountsUTF16Units(t *testing.T) {
	text := strings.Repeat("🚀 build passed\n", 400)

	chunks := SplitText(text, MaxMessageLength)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(utf16.Encode([]rune(chunk))), MaxMessageLength)
	}
	assert.Equal(t, strings.Count(text, "🚀"), strings.Count(strings.Join(chunks, ""), "🚀"))
}

func TestUpdate_Inbound(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want service.Inbound
		ok   bool
	}{
		{
			name: "text message",
			raw:  `{"update_id":1,"message":{"message_id":5,"from":{"id":42,"is_bot":false,"first_name":"A"},"chat":{"id":-100,"type":"group"},"text":"/status@bot"}}`,
			want: service.Inbound{UserID: "42", ChatID: -100, Text: "/status@bot"},
			ok:   true,
		},
		{name: "no message", raw: `{"update_id":2,"edited_message":{"message_id":5,"chat":{"id":1},"text":"x"}}`},
		{name: "edited message", raw: `{"update_id":6,"edited_message":{"message_id":5,"from":{"id":42,"is_bot":false},"chat":{"id":1},"text":"/start fix it"}}`},
		{name: "no text", raw: `{"update_id":3,"message":{"message_id":5,"from":{"id":42},"chat":{"id":1}}}`},
		{name: "from a bot", raw: `{"update_id":4,"message":{"message_id":5,"from":{"id":7,"is_bot":true},"chat":{"id":1},"text":"hi"}}`},
		{name: "no sender", raw: `{"update_id":5,"message":{"message_id":5,"chat":{"id":1},"text":"hi"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u Update
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &u))

			got, ok := u.Inbound()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
