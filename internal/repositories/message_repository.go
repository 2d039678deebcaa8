package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/KallebyX/caris-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// NewMessage carries the fields of a message being created.
type NewMessage struct {
	RoomID      int
	SenderID    int
	Content     string
	MessageType string
	IsTemporary bool
	ExpiresAt   *time.Time
	Metadata    []byte
}

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg NewMessage) (models.Message, error)
	GetRoomMessages(ctx context.Context, roomID int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	EditMessage(ctx context.Context, messageID int, senderID int, content string) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int, senderID int) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, room_id, sender_id, content, message_type, is_temporary, expires_at, edited_at, deleted, metadata, created_at`

// CreateMessage stores a message in a room.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg NewMessage) (models.Message, error) {
	var out models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (room_id, sender_id, content, message_type, is_temporary, expires_at, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING `+messageColumns, msg.RoomID, msg.SenderID, msg.Content, msg.MessageType, msg.IsTemporary, msg.ExpiresAt, msg.Metadata).
		StructScan(&out)
	return out, err
}

// GetRoomMessages returns ordered, non-deleted messages of a room.
// Expiry is enforced by the caller at read time, not here: rows past
// their expires_at still come back so the handler can redact them
// without depending on the sweep having run.
func (r *MessageRepo) GetRoomMessages(ctx context.Context, roomID int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE room_id=$1 AND deleted = FALSE
        ORDER BY created_at ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, roomID)
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// EditMessage replaces the content of a sender's own message.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID int, senderID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET content=$1, edited_at=NOW()
        WHERE id=$2 AND sender_id=$3 AND deleted = FALSE
        RETURNING `+messageColumns, content, messageID, senderID).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDeleteMessage marks a message deleted without removing the row.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID int, senderID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted = TRUE WHERE id=$1 AND sender_id=$2`, messageID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteExpiredBefore hard-deletes temporary messages whose expiry has
// passed. Read paths never rely on this sweep.
func (r *MessageRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE is_temporary = TRUE AND expires_at IS NOT NULL AND expires_at <= $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
