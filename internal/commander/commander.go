// Package commander abstracts the messaging transport the bot talks through.
package commander

import (
	"context"
	"errors"
)

// ErrNotModified is returned by EditMessageText when the new text is
// identical to what the message already shows.
var ErrNotModified = errors.New("message is not modified")

// Chat actions accepted by SendChatAction.
const (
	ActionTyping      = "typing"
	ActionUploadPhoto = "upload_photo"
)

// Commander is the transport abstraction used by the bot.
type Commander interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error)
	// SendMessage sends text and returns the id of the created message.
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string) error
}

// Update represents an incoming update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message represents an inbound message.
type Message struct {
	MessageID int64   `json:"message_id"`
	From      *User   `json:"from,omitempty"`
	Chat      Chat    `json:"chat"`
	Text      *string `json:"text,omitempty"`
	Date      int64   `json:"date"`
}

// User identifies the sender. Its ID keys the user's session.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// Chat identifies a conversation.
type Chat struct {
	ID int64 `json:"id"`
}

// UserID returns the sender id, falling back to the chat id for messages
// without a sender (channel posts).
func (m *Message) UserID() int64 {
	if m.From != nil {
		return m.From.ID
	}
	return m.Chat.ID
}
