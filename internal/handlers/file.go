package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/KallebyX/caris-chat-service/internal/antivirus"
	roomcrypto "github.com/KallebyX/caris-chat-service/internal/crypto"
	"github.com/KallebyX/caris-chat-service/internal/models"
	"github.com/KallebyX/caris-chat-service/internal/repositories"
	"github.com/KallebyX/caris-chat-service/internal/storage"
	"github.com/KallebyX/caris-chat-service/internal/telemetry"
)

// virusScanner walks the engine chain; antivirus.Scanner implements it.
type virusScanner interface {
	Scan(ctx context.Context, data []byte) antivirus.Result
}

// FileHandler manages attachment upload and download. Downloads are
// gated on the scan verdict: anything short of clean is withheld.
type FileHandler struct {
	roomRepo    repositories.RoomRepository
	messageRepo repositories.MessageRepository
	fileRepo    repositories.FileRepository
	store       storage.BlobStore
	scanner     virusScanner
	audit       *telemetry.AuditEmitter
	maxBytes    int64
	now         func() time.Time
}

// NewFileHandler builds a FileHandler.
func NewFileHandler(roomRepo repositories.RoomRepository, messageRepo repositories.MessageRepository, fileRepo repositories.FileRepository, store storage.BlobStore, scanner virusScanner, audit *telemetry.AuditEmitter, maxBytes int64) *FileHandler {
	return &FileHandler{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		fileRepo:    fileRepo,
		store:       store,
		scanner:     scanner,
		audit:       audit,
		maxBytes:    maxBytes,
		now:         time.Now,
	}
}

// Upload accepts a multipart attachment for an existing file message.
// Declared MIME type must match the payload's magic bytes; mismatches
// are rejected before any scan engine runs. When the uploader includes
// an exported key the blob is sealed at rest after a clean verdict and
// the key material is dropped with the request.
func (h *FileHandler) Upload(c *gin.Context) {
	userID := c.GetInt("userID")

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	messageID, err := strconv.Atoi(c.PostForm("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender may attach files"})
		return
	}
	if msg.MessageType != models.MessageTypeFile {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is not a file message"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	opened, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}

	declared := fileHeader.Header.Get("Content-Type")
	if declared == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content type is required"})
		return
	}
	detected := mimetype.Detect(data)
	if !detected.Is(declared) {
		h.emitAudit(c, "WARN", "upload rejected: declared mime does not match magic bytes")
		c.JSON(http.StatusBadRequest, gin.H{"error": "declared content type does not match file content"})
		return
	}

	// Scan the plaintext before anything touches disk.
	result := h.scanner.Scan(c.Request.Context(), data)
	resultPayload := scanResultJSON(result)

	encrypted := false
	blob := data
	if exported := c.PostForm("key"); exported != "" && result.Status == models.ScanStatusClean {
		key, err := roomcrypto.ImportKey(exported)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key material"})
			return
		}
		fileKey, err := roomcrypto.DeriveFileKey(key, strconv.Itoa(messageID))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key material"})
			return
		}
		sealed, err := roomcrypto.SealBytes(data, fileKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not protect file"})
			return
		}
		blob = sealed
		encrypted = true
	}

	storedName, err := h.store.Save(blob, filepath.Ext(fileHeader.Filename))
	if err != nil {
		h.emitAudit(c, "ERROR", "failed to store attachment blob")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	file, err := h.fileRepo.CreateFile(c.Request.Context(), repositories.NewFile{
		MessageID:    messageID,
		UploaderID:   userID,
		OriginalName: fileHeader.Filename,
		StoredName:   storedName,
		Size:         int64(len(data)),
		MimeType:     declared,
		Encrypted:    encrypted,
	})
	if err != nil {
		_ = h.store.Delete(storedName)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record file"})
		return
	}

	// pending -> terminal transition; a crash in between leaves the row
	// pending for the re-scan sweep.
	if err := h.fileRepo.SetScanStatus(c.Request.Context(), file.ID, result.Status, resultPayload); err != nil {
		h.emitAudit(c, "ERROR", "failed to record scan verdict")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record scan result"})
		return
	}
	file.ScanStatus = result.Status

	if result.Status == models.ScanStatusInfected {
		h.emitAudit(c, "WARN", "infected upload withheld: "+result.Signature)
	}

	c.JSON(http.StatusCreated, file)
}

// Download serves a clean attachment to a room participant. Pending
// scans return 409; infected and errored files are withheld with 403;
// attachments of expired or deleted messages are 404.
func (h *FileHandler) Download(c *gin.Context) {
	fileID, err := strconv.Atoi(c.Param("file_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}

	file, err := h.fileRepo.GetFile(c.Request.Context(), fileID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrFileNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "file not found"})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), file.MessageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}
	// Expiry binds the attachment the same way it binds the message
	// content: once the owning message is past expires_at (or deleted),
	// the blob is gone from the API even if the sweep has not run yet.
	if msg.Deleted || msg.ExpiredAt(h.now()) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.roomRepo.IsParticipant(c.Request.Context(), msg.RoomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	switch file.ScanStatus {
	case models.ScanStatusClean:
	case models.ScanStatusPending:
		c.JSON(http.StatusConflict, gin.H{"error": "virus scan pending"})
		return
	default:
		c.JSON(http.StatusForbidden, gin.H{"error": "file withheld by virus scan"})
		return
	}

	blob, err := h.store.Load(file.StoredName)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrBlobNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "file unavailable"})
		return
	}

	if err := h.fileRepo.IncrementDownloads(c.Request.Context(), fileID); err != nil {
		h.emitAudit(c, "WARN", "failed to bump download counter")
	}

	c.Header("Content-Disposition", `attachment; filename="`+file.OriginalName+`"`)
	if file.Encrypted {
		// Sealed blobs are opaque to HTTP; the client opens them with
		// the room-derived key.
		c.Data(http.StatusOK, "application/octet-stream", blob)
		return
	}
	c.Data(http.StatusOK, file.MimeType, blob)
}

func scanResultJSON(result antivirus.Result) []byte {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return payload
}

func (h *FileHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
