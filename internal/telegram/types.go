package telegram

import (
	"strconv"

	"github.com/Rrens/devin-relay/internal/service"
)

// Update is an incoming webhook update. Only message updates are handled.
type Update struct {
	UpdateID int64    `json:"update_id" validate:"gte=0"`
	Message  *Message `json:"message,omitempty"`
}

// Message is a chat message
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// User is a Telegram user or bot
type User struct {
	ID        int64  `json:"id" validate:"required"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Chat is the conversation a message belongs to
type Chat struct {
	ID   int64  `json:"id" validate:"required"`
	Type string `json:"type"`
}

// Inbound converts a text message update into a service event. It reports
// false for updates the relay ignores.
func (u *Update) Inbound() (service.Inbound, bool) {
	m := u.Message
	if m == nil || m.From == nil || m.From.IsBot || m.Text == "" {
		return service.Inbound{}, false
	}
	return service.Inbound{
		UserID: strconv.FormatInt(m.From.ID, 10),
		ChatID: m.Chat.ID,
		Text:   m.Text,
	}, true
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}
