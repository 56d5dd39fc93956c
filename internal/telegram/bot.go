package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/Rrens/devin-relay/internal/config"
)

// MaxMessageLength is the Bot API limit for one text message, in UTF-16 code units
const MaxMessageLength = 4096

// APIError is an unsuccessful Bot API answer
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.StatusCode, e.Description)
}

// Bot is a minimal Bot API client
type Bot struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewBot creates a new Bot API client
func NewBot(cfg config.TelegramConfig) *Bot {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Bot{
		token:   cfg.BotToken,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// SendMessage delivers text to a chat, split into several messages when it
// exceeds MaxMessageLength.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range SplitText(text, MaxMessageLength) {
		req := sendMessageRequest{ChatID: chatID, Text: chunk}
		if err := b.call(ctx, "sendMessage", req, nil); err != nil {
			return err
		}
	}
	return nil
}

// GetMe returns the bot's own account
func (b *Bot) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := b.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (b *Bot) call(ctx context.Context, method string, in, out any) error {
	var body io.Reader
	httpMethod := http.MethodGet
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", method, err)
		}
		body = bytes.NewReader(data)
		httpMethod = http.MethodPost
	}

	url := fmt.Sprintf("%s/bot%s/%s", b.baseURL, b.token, method)
	req, err := http.NewRequestWithContext(ctx, httpMethod, url, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		// the URL carries the token, keep it out of the error
		return fmt.Errorf("telegram %s request failed: %w", method, redact(err, b.token))
	}
	defer resp.Body.Close()

	var envelope struct {
		apiResponse
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Method: method, StatusCode: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if !envelope.OK || resp.StatusCode != http.StatusOK {
		code := envelope.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, StatusCode: code, Description: envelope.Description}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), err: err}
}

// SplitText cuts text into chunks of at most limit UTF-16 code units, the
// unit Telegram measures message length in, breaking at the last newline
// inside a chunk when there is one.
func SplitText(text string, limit int) []string {
	if limit <= 0 || utf16Len([]rune(text)) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for utf16Len(runes) > limit {
		fit, units := 0, 0
		for fit < len(runes) {
			n := utf16.RuneLen(runes[fit])
			if n < 1 {
				n = 1
			}
			if units+n > limit {
				break
			}
			units += n
			fit++
		}
		if fit == 0 {
			fit = 1
		}
		cut := fit
		for i := fit - 1; i > 0; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
		if len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func utf16Len(runes []rune) int {
	n := 0
	for _, r := range runes {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
