package models

import "time"

// Virus scan statuses. Pending blocks the download path; only Clean is
// ever served.
const (
	ScanStatusPending  = "pending"
	ScanStatusClean    = "clean"
	ScanStatusInfected = "infected"
	ScanStatusError    = "error"
)

// MessageFile holds metadata for a file attached to a message. The blob
// itself lives in the upload store under StoredName.
type MessageFile struct {
	ID           int       `db:"id" json:"id"`
	MessageID    int       `db:"message_id" json:"message_id"`
	UploaderID   int       `db:"uploader_id" json:"uploader_id"`
	OriginalName string    `db:"original_name" json:"original_name"`
	StoredName   string    `db:"stored_name" json:"-"`
	Size         int64     `db:"size" json:"size"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	Encrypted    bool      `db:"encrypted" json:"encrypted"`
	ScanStatus   string    `db:"scan_status" json:"scan_status"`
	ScanResult   []byte    `db:"scan_result" json:"-"`
	Downloads    int       `db:"downloads" json:"downloads"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Downloadable reports whether the file may be served. Anything short of
// a clean verdict is withheld, including pending and errored scans.
func (f MessageFile) Downloadable() bool {
	return f.ScanStatus == ScanStatusClean
}
