package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/KallebyX/caris-chat-service/internal/models"
)

// ReceiptRepository tracks delivery and read state per message and reader.
type ReceiptRepository interface {
	MarkDelivered(ctx context.Context, messageIDs []int, userID int) error
	MarkRead(ctx context.Context, messageID int, userID int) error
	ListForMessage(ctx context.Context, messageID int) ([]models.ReadReceipt, error)
}

// ReceiptRepo is a sqlx-backed repository.
type ReceiptRepo struct {
	db *sqlx.DB
}

// NewReceiptRepo constructs ReceiptRepo.
func NewReceiptRepo(db *sqlx.DB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

// MarkDelivered records first delivery of the messages to a reader.
// Repeated fetches keep the original delivered_at.
func (r *ReceiptRepo) MarkDelivered(ctx context.Context, messageIDs []int, userID int) error {
	if len(messageIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`INSERT INTO read_receipts (message_id, user_id)
        SELECT id, ? FROM messages WHERE id IN (?) AND sender_id <> ?
        ON CONFLICT (message_id, user_id) DO NOTHING`, userID, messageIDs, userID)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

// MarkRead sets read_at for the reader, creating the receipt if the
// delivery row was never written.
func (r *ReceiptRepo) MarkRead(ctx context.Context, messageID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO read_receipts (message_id, user_id, read_at) VALUES ($1, $2, NOW())
        ON CONFLICT (message_id, user_id) DO UPDATE SET read_at = COALESCE(read_receipts.read_at, NOW())`, messageID, userID)
	return err
}

// ListForMessage returns all receipts of a message.
func (r *ReceiptRepo) ListForMessage(ctx context.Context, messageID int) ([]models.ReadReceipt, error) {
	var receipts []models.ReadReceipt
	err := r.db.SelectContext(ctx, &receipts, `SELECT message_id, user_id, delivered_at, read_at FROM read_receipts WHERE message_id=$1 ORDER BY user_id`, messageID)
	return receipts, err
}
