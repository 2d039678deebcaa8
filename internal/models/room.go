package models

import "time"

// Room types.
const (
	RoomTypePrivate = "private"
	RoomTypeGroup   = "group"
)

// Room represents a chat room between two or more users.
type Room struct {
	ID        int       `db:"id" json:"id"`
	Type      string    `db:"room_type" json:"room_type"`
	Name      string    `db:"name" json:"name,omitempty"`
	Encrypted bool      `db:"encrypted" json:"encrypted"`
	CreatorID int       `db:"creator_id" json:"creator_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RoomMember links a user to a room.
type RoomMember struct {
	RoomID   int       `db:"room_id" json:"room_id"`
	UserID   int       `db:"user_id" json:"user_id"`
	Hidden   bool      `db:"hidden" json:"hidden"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// RoomSummary provides an API-friendly view of a room for a user.
type RoomSummary struct {
	RoomID      int       `db:"id" json:"room_id"`
	Type        string    `db:"room_type" json:"room_type"`
	Name        string    `db:"name" json:"name,omitempty"`
	Encrypted   bool      `db:"encrypted" json:"encrypted"`
	OtherUserID int       `json:"other_user_id,omitempty"`
	MemberCount int       `db:"member_count" json:"member_count"`
	Created     time.Time `db:"created_at" json:"created_at"`
}
