package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/KallebyX/caris-chat-service/internal/antivirus"
	"github.com/KallebyX/caris-chat-service/internal/mocks"
	"github.com/KallebyX/caris-chat-service/internal/models"
	"github.com/KallebyX/caris-chat-service/internal/repositories"
)

func setupFileRouter(handler *FileHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/chat/files", handler.Upload)
	r.GET("/chat/files/:file_id/download", handler.Download)
	return r
}

// buildUpload crafts a multipart body with an explicit part Content-Type.
// multipart.Writer.CreateFormFile would pin application/octet-stream.
func buildUpload(t *testing.T, messageID, filename, contentType string, data []byte, extraFields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("message_id", messageID))
	for field, value := range extraFields {
		require.NoError(t, writer.WriteField(field, value))
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUploadRejectsMimeMismatchBeforeScan(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	scanner := new(mocks.ScannerMock)
	store := new(mocks.BlobStoreMock)
	handler := NewFileHandler(new(mocks.RoomRepositoryMock), messageRepo, new(mocks.FileRepositoryMock), store, scanner, nil, 1<<20)
	router := setupFileRouter(handler)

	messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 5, SenderID: 1, MessageType: models.MessageTypeFile}, nil).Once()

	// Declared as PNG but carries no PNG magic.
	body, contentType := buildUpload(t, "7", "photo.png", "image/png", []byte("not a png"), nil)
	req := httptest.NewRequest(http.MethodPost, "/chat/files", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	scanner.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestUploadCleanFileStoredWithVerdict(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	fileRepo := new(mocks.FileRepositoryMock)
	scanner := new(mocks.ScannerMock)
	store := new(mocks.BlobStoreMock)
	handler := NewFileHandler(new(mocks.RoomRepositoryMock), messageRepo, fileRepo, store, scanner, nil, 1<<20)
	router := setupFileRouter(handler)

	data := []byte("plain text attachment\n")
	messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 5, SenderID: 1, MessageType: models.MessageTypeFile}, nil).Once()
	scanner.On("Scan", mock.Anything, data).Return(antivirus.Result{Status: models.ScanStatusClean, Engine: "heuristic"}).Once()
	store.On("Save", data, ".txt").Return("blob-1.txt", nil).Once()
	fileRepo.On("CreateFile", mock.Anything, mock.MatchedBy(func(f repositories.NewFile) bool {
		return f.MessageID == 7 && f.StoredName == "blob-1.txt" && f.MimeType == "text/plain" && !f.Encrypted
	})).Return(models.MessageFile{ID: 3, MessageID: 7, ScanStatus: models.ScanStatusPending}, nil).Once()
	fileRepo.On("SetScanStatus", mock.Anything, 3, models.ScanStatusClean, mock.Anything).Return(nil).Once()

	body, contentType := buildUpload(t, "7", "note.txt", "text/plain", data, nil)
	req := httptest.NewRequest(http.MethodPost, "/chat/files", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scan_status":"clean"`)
	fileRepo.AssertExpectations(t)
	scanner.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestUploadInfectedFileRecordedButWithheld(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	fileRepo := new(mocks.FileRepositoryMock)
	scanner := new(mocks.ScannerMock)
	store := new(mocks.BlobStoreMock)
	handler := NewFileHandler(new(mocks.RoomRepositoryMock), messageRepo, fileRepo, store, scanner, nil, 1<<20)
	router := setupFileRouter(handler)

	data := []byte("suspicious payload")
	messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 5, SenderID: 1, MessageType: models.MessageTypeFile}, nil).Once()
	scanner.On("Scan", mock.Anything, data).Return(antivirus.Result{Status: models.ScanStatusInfected, Engine: "clamav", Signature: "Eicar-Test-Signature"}).Once()
	store.On("Save", data, ".bin").Return("blob-2.bin", nil).Once()
	fileRepo.On("CreateFile", mock.Anything, mock.Anything).Return(models.MessageFile{ID: 4, MessageID: 7, ScanStatus: models.ScanStatusPending}, nil).Once()
	fileRepo.On("SetScanStatus", mock.Anything, 4, models.ScanStatusInfected, mock.Anything).Return(nil).Once()

	body, contentType := buildUpload(t, "7", "payload.bin", "text/plain; charset=utf-8", data, nil)
	req := httptest.NewRequest(http.MethodPost, "/chat/files", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scan_status":"infected"`)
	fileRepo.AssertExpectations(t)
}

func TestUploadOnlySenderMayAttach(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	scanner := new(mocks.ScannerMock)
	handler := NewFileHandler(new(mocks.RoomRepositoryMock), messageRepo, new(mocks.FileRepositoryMock), new(mocks.BlobStoreMock), scanner, nil, 1<<20)
	router := setupFileRouter(handler)

	messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 5, SenderID: 2, MessageType: models.MessageTypeFile}, nil).Once()

	body, contentType := buildUpload(t, "7", "note.txt", "text/plain", []byte("hello"), nil)
	req := httptest.NewRequest(http.MethodPost, "/chat/files", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	scanner.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
}

func TestDownloadGatedOnScanStatus(t *testing.T) {
	cases := []struct {
		name       string
		scanStatus string
		wantCode   int
	}{
		{name: "pending blocks with conflict", scanStatus: models.ScanStatusPending, wantCode: http.StatusConflict},
		{name: "infected withheld", scanStatus: models.ScanStatusInfected, wantCode: http.StatusForbidden},
		{name: "scan error withheld", scanStatus: models.ScanStatusError, wantCode: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			roomRepo := new(mocks.RoomRepositoryMock)
			messageRepo := new(mocks.MessageRepositoryMock)
			fileRepo := new(mocks.FileRepositoryMock)
			store := new(mocks.BlobStoreMock)
			handler := NewFileHandler(roomRepo, messageRepo, fileRepo, store, new(mocks.ScannerMock), nil, 1<<20)
			router := setupFileRouter(handler)

			fileRepo.On("GetFile", mock.Anything, 3).Return(models.MessageFile{ID: 3, MessageID: 7, StoredName: "blob-1", ScanStatus: tc.scanStatus}, nil).Once()
			messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 5, SenderID: 2}, nil).Once()
			roomRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()

			req := httptest.NewRequest(http.MethodGet, "/chat/files/3/download", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.wantCode, rec.Code)
			store.AssertNotCalled(t, "Load", mock.Anything)
		})
	}
}

func TestDownloadCleanFileServed(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	fileRepo := new(mocks.FileRepositoryMock)
	store := new(mocks.BlobStoreMock)
	handler := NewFileHandler(roomRepo, messageRepo, fileRepo, store, new(mocks.ScannerMock), nil, 1<<20)
	router := setupFileRouter(handler)

	blob := []byte("attachment bytes")
	fileRepo.On("GetFile", mock.Anything, 3).Return(models.MessageFile{ID: 3, MessageID: 7, OriginalName: "note.txt", StoredName: "blob-1.txt", MimeType: "text/plain", ScanStatus: models.ScanStatusClean}, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 5, SenderID: 2}, nil).Once()
	roomRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()
	store.On("Load", "blob-1.txt").Return(blob, nil).Once()
	fileRepo.On("IncrementDownloads", mock.Anything, 3).Return(nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/files/3/download", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, blob, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "note.txt")
	fileRepo.AssertExpectations(t)
}

func TestDownloadEncryptedServedOpaque(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	fileRepo := new(mocks.FileRepositoryMock)
	store := new(mocks.BlobStoreMock)
	handler := NewFileHandler(roomRepo, messageRepo, fileRepo, store, new(mocks.ScannerMock), nil, 1<<20)
	router := setupFileRouter(handler)

	sealed := []byte{0x01, 0x02, 0x03}
	fileRepo.On("GetFile", mock.Anything, 3).Return(models.MessageFile{ID: 3, MessageID: 7, OriginalName: "scan.pdf", StoredName: "blob-9", MimeType: "application/pdf", Encrypted: true, ScanStatus: models.ScanStatusClean}, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 5, SenderID: 2}, nil).Once()
	roomRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()
	store.On("Load", "blob-9").Return(sealed, nil).Once()
	fileRepo.On("IncrementDownloads", mock.Anything, 3).Return(nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/files/3/download", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
}

func TestDownloadExpiredMessageAttachmentWithheld(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	fileRepo := new(mocks.FileRepositoryMock)
	store := new(mocks.BlobStoreMock)
	handler := NewFileHandler(roomRepo, messageRepo, fileRepo, store, new(mocks.ScannerMock), nil, 1<<20)

	sent := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := sent.Add(time.Minute)
	// 61 seconds after sending a 60-second message.
	handler.now = func() time.Time { return sent.Add(61 * time.Second) }
	router := setupFileRouter(handler)

	fileRepo.On("GetFile", mock.Anything, 3).Return(models.MessageFile{ID: 3, MessageID: 7, StoredName: "blob-1", ScanStatus: models.ScanStatusClean}, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 5, SenderID: 2, IsTemporary: true, ExpiresAt: &expiresAt, CreatedAt: sent}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/files/3/download", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	store.AssertNotCalled(t, "Load", mock.Anything)
}

func TestDownloadUnexpiredAttachmentStillServed(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	fileRepo := new(mocks.FileRepositoryMock)
	store := new(mocks.BlobStoreMock)
	handler := NewFileHandler(roomRepo, messageRepo, fileRepo, store, new(mocks.ScannerMock), nil, 1<<20)

	sent := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := sent.Add(time.Minute)
	handler.now = func() time.Time { return sent.Add(59 * time.Second) }
	router := setupFileRouter(handler)

	fileRepo.On("GetFile", mock.Anything, 3).Return(models.MessageFile{ID: 3, MessageID: 7, OriginalName: "note.txt", StoredName: "blob-1", MimeType: "text/plain", ScanStatus: models.ScanStatusClean}, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 5, SenderID: 2, IsTemporary: true, ExpiresAt: &expiresAt, CreatedAt: sent}, nil).Once()
	roomRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()
	store.On("Load", "blob-1").Return([]byte("still valid"), nil).Once()
	fileRepo.On("IncrementDownloads", mock.Anything, 3).Return(nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/files/3/download", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDownloadDeletedMessageAttachmentWithheld(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	fileRepo := new(mocks.FileRepositoryMock)
	store := new(mocks.BlobStoreMock)
	handler := NewFileHandler(roomRepo, messageRepo, fileRepo, store, new(mocks.ScannerMock), nil, 1<<20)
	router := setupFileRouter(handler)

	fileRepo.On("GetFile", mock.Anything, 3).Return(models.MessageFile{ID: 3, MessageID: 7, StoredName: "blob-1", ScanStatus: models.ScanStatusClean}, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 5, SenderID: 2, Deleted: true}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/files/3/download", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	store.AssertNotCalled(t, "Load", mock.Anything)
}

func TestDownloadNonParticipantForbidden(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	fileRepo := new(mocks.FileRepositoryMock)
	store := new(mocks.BlobStoreMock)
	handler := NewFileHandler(roomRepo, messageRepo, fileRepo, store, new(mocks.ScannerMock), nil, 1<<20)
	router := setupFileRouter(handler)

	fileRepo.On("GetFile", mock.Anything, 3).Return(models.MessageFile{ID: 3, MessageID: 7, ScanStatus: models.ScanStatusClean}, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 5, SenderID: 2}, nil).Once()
	roomRepo.On("IsParticipant", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/files/3/download", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	store.AssertNotCalled(t, "Load", mock.Anything)
}
