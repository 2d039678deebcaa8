package models

import "time"

// ReadReceipt tracks per-reader delivery and read state for a message.
type ReadReceipt struct {
	MessageID   int        `db:"message_id" json:"message_id"`
	UserID      int        `db:"user_id" json:"user_id"`
	DeliveredAt time.Time  `db:"delivered_at" json:"delivered_at"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
}
