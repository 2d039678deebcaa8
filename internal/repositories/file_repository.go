package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/KallebyX/caris-chat-service/internal/models"
)

var ErrFileNotFound = errors.New("file not found")

// NewFile carries the fields of a file record being created.
type NewFile struct {
	MessageID    int
	UploaderID   int
	OriginalName string
	StoredName   string
	Size         int64
	MimeType     string
	Encrypted    bool
}

// FileRepository defines interactions for message file attachments.
type FileRepository interface {
	CreateFile(ctx context.Context, file NewFile) (models.MessageFile, error)
	GetFile(ctx context.Context, fileID int) (models.MessageFile, error)
	SetScanStatus(ctx context.Context, fileID int, status string, result []byte) error
	IncrementDownloads(ctx context.Context, fileID int) error
	ListPendingScans(ctx context.Context, olderThan time.Time, limit int) ([]models.MessageFile, error)
	ListExpiredBlobs(ctx context.Context, cutoff time.Time) ([]string, error)
}

// FileRepo is a sqlx-backed repository.
type FileRepo struct {
	db *sqlx.DB
}

// NewFileRepo constructs FileRepo.
func NewFileRepo(db *sqlx.DB) *FileRepo {
	return &FileRepo{db: db}
}

const fileColumns = `id, message_id, uploader_id, original_name, stored_name, size, mime_type, encrypted, scan_status, scan_result, downloads, created_at, updated_at`

// CreateFile stores attachment metadata; scan status starts pending.
func (r *FileRepo) CreateFile(ctx context.Context, file NewFile) (models.MessageFile, error) {
	var out models.MessageFile
	err := r.db.QueryRowxContext(ctx, `INSERT INTO message_files (message_id, uploader_id, original_name, stored_name, size, mime_type, encrypted)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING `+fileColumns, file.MessageID, file.UploaderID, file.OriginalName, file.StoredName, file.Size, file.MimeType, file.Encrypted).
		StructScan(&out)
	return out, err
}

// GetFile retrieves a file record.
func (r *FileRepo) GetFile(ctx context.Context, fileID int) (models.MessageFile, error) {
	var file models.MessageFile
	err := r.db.GetContext(ctx, &file, `SELECT `+fileColumns+` FROM message_files WHERE id=$1`, fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MessageFile{}, ErrFileNotFound
	}
	return file, err
}

// SetScanStatus records a scan verdict and its raw result payload.
func (r *FileRepo) SetScanStatus(ctx context.Context, fileID int, status string, result []byte) error {
	res, err := r.db.ExecContext(ctx, `UPDATE message_files SET scan_status=$1, scan_result=$2, updated_at=NOW() WHERE id=$3`, status, result, fileID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrFileNotFound
	}
	return nil
}

// IncrementDownloads bumps the download counter.
func (r *FileRepo) IncrementDownloads(ctx context.Context, fileID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE message_files SET downloads = downloads + 1 WHERE id=$1`, fileID)
	return err
}

// ListExpiredBlobs returns the stored names of attachments whose owning
// temporary message has passed its expiry. The sweep collects these
// before the message rows (and, by cascade, the file rows) go away.
func (r *FileRepo) ListExpiredBlobs(ctx context.Context, cutoff time.Time) ([]string, error) {
	var names []string
	err := r.db.SelectContext(ctx, &names, `SELECT f.stored_name FROM message_files f
        JOIN messages m ON m.id = f.message_id
        WHERE m.is_temporary = TRUE AND m.expires_at IS NOT NULL AND m.expires_at <= $1`, cutoff)
	return names, err
}

// ListPendingScans returns files stuck in pending for re-scanning.
func (r *FileRepo) ListPendingScans(ctx context.Context, olderThan time.Time, limit int) ([]models.MessageFile, error) {
	var files []models.MessageFile
	err := r.db.SelectContext(ctx, &files, `SELECT `+fileColumns+` FROM message_files
        WHERE scan_status='pending' AND updated_at <= $1
        ORDER BY updated_at ASC LIMIT $2`, olderThan, limit)
	return files, err
}
