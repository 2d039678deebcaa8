package models

import "time"

// Message types.
const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
)

// Message represents a chat message. When the room is encrypted the
// content column holds ciphertext the server never decrypts.
type Message struct {
	ID          int        `db:"id" json:"id"`
	RoomID      int        `db:"room_id" json:"room_id"`
	SenderID    int        `db:"sender_id" json:"sender_id"`
	Content     string     `db:"content" json:"content"`
	MessageType string     `db:"message_type" json:"message_type"`
	IsTemporary bool       `db:"is_temporary" json:"is_temporary"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	EditedAt    *time.Time `db:"edited_at" json:"edited_at,omitempty"`
	Deleted     bool       `db:"deleted" json:"deleted"`
	Metadata    []byte     `db:"metadata" json:"-"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`

	// Expired is computed at read time, never stored.
	Expired bool `db:"-" json:"expired,omitempty"`
}

// ExpiredAt reports whether the message's content must be withheld at
// the given instant. Non-temporary messages never expire.
func (m Message) ExpiredAt(now time.Time) bool {
	if !m.IsTemporary || m.ExpiresAt == nil {
		return false
	}
	return !now.Before(*m.ExpiresAt)
}

// Redacted returns a copy safe to return once the message has expired:
// the content is dropped entirely rather than blurred server-side.
func (m Message) Redacted() Message {
	m.Content = ""
	m.Metadata = nil
	m.Expired = true
	return m
}

// RoomEvent is broadcast through websockets and the pub/sub bridge.
// EventID is assigned once at publish time so the hub can deduplicate
// the local broadcast against the bridged replay of the same event.
type RoomEvent struct {
	EventID   string   `json:"event_id"`
	Type      string   `json:"type"`
	RoomID    int      `json:"room_id"`
	Message   *Message `json:"message,omitempty"`
	MessageID int      `json:"message_id,omitempty"`
}

// Room event types.
const (
	EventNewMessage     = "message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
)

// UserEvent is pushed on a user's personal notification channel.
type UserEvent struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	RoomID    int    `json:"room_id"`
	MessageID int    `json:"message_id,omitempty"`
	SenderID  int    `json:"sender_id,omitempty"`
}
