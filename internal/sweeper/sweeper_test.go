package sweeper

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/KallebyX/caris-chat-service/internal/antivirus"
	"github.com/KallebyX/caris-chat-service/internal/mocks"
	"github.com/KallebyX/caris-chat-service/internal/models"
	"github.com/KallebyX/caris-chat-service/internal/storage"
)

func newTestSweeper(messageRepo *mocks.MessageRepositoryMock, fileRepo *mocks.FileRepositoryMock, store *mocks.BlobStoreMock, scanner *mocks.ScannerMock) *Sweeper {
	return New(messageRepo, fileRepo, store, scanner, zerolog.Nop())
}

func TestSweepExpiredDeletes(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	fileRepo := new(mocks.FileRepositoryMock)
	sweeper := newTestSweeper(messageRepo, fileRepo, new(mocks.BlobStoreMock), new(mocks.ScannerMock))

	fileRepo.On("ListExpiredBlobs", mock.Anything, mock.Anything).Return(nil, nil).Once()
	messageRepo.On("DeleteExpiredBefore", mock.Anything, mock.Anything).Return(int64(3), nil).Once()

	sweeper.SweepExpired()
	messageRepo.AssertExpectations(t)
	fileRepo.AssertExpectations(t)
}

func TestSweepExpiredRemovesAttachmentBlobs(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	fileRepo := new(mocks.FileRepositoryMock)
	store := new(mocks.BlobStoreMock)
	sweeper := newTestSweeper(messageRepo, fileRepo, store, new(mocks.ScannerMock))

	fileRepo.On("ListExpiredBlobs", mock.Anything, mock.Anything).Return([]string{"blob-a", "blob-b"}, nil).Once()
	messageRepo.On("DeleteExpiredBefore", mock.Anything, mock.Anything).Return(int64(2), nil).Once()
	store.On("Delete", "blob-a").Return(nil).Once()
	store.On("Delete", "blob-b").Return(nil).Once()

	sweeper.SweepExpired()
	store.AssertExpectations(t)
	fileRepo.AssertExpectations(t)
}

func TestSweepExpiredPostponedWhenBlobLookupFails(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	fileRepo := new(mocks.FileRepositoryMock)
	store := new(mocks.BlobStoreMock)
	sweeper := newTestSweeper(messageRepo, fileRepo, store, new(mocks.ScannerMock))

	fileRepo.On("ListExpiredBlobs", mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()

	sweeper.SweepExpired()
	// Deleting the rows without the names would orphan the blobs.
	messageRepo.AssertNotCalled(t, "DeleteExpiredBefore", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Delete", mock.Anything)
}

func TestRescanPendingRecordsVerdict(t *testing.T) {
	fileRepo := new(mocks.FileRepositoryMock)
	store := new(mocks.BlobStoreMock)
	scanner := new(mocks.ScannerMock)
	sweeper := newTestSweeper(new(mocks.MessageRepositoryMock), fileRepo, store, scanner)

	blob := []byte("stuck attachment")
	fileRepo.On("ListPendingScans", mock.Anything, mock.Anything, rescanBatch).Return([]models.MessageFile{
		{ID: 3, StoredName: "blob-1", ScanStatus: models.ScanStatusPending},
	}, nil).Once()
	store.On("Load", "blob-1").Return(blob, nil).Once()
	scanner.On("Scan", mock.Anything, blob).Return(antivirus.Result{Status: models.ScanStatusClean, Engine: "heuristic"}).Once()
	fileRepo.On("SetScanStatus", mock.Anything, 3, models.ScanStatusClean, mock.Anything).Return(nil).Once()

	sweeper.RescanPending()
	fileRepo.AssertExpectations(t)
	scanner.AssertExpectations(t)
}

func TestRescanPendingSealedBlobMovesToError(t *testing.T) {
	fileRepo := new(mocks.FileRepositoryMock)
	store := new(mocks.BlobStoreMock)
	scanner := new(mocks.ScannerMock)
	sweeper := newTestSweeper(new(mocks.MessageRepositoryMock), fileRepo, store, scanner)

	fileRepo.On("ListPendingScans", mock.Anything, mock.Anything, rescanBatch).Return([]models.MessageFile{
		{ID: 4, StoredName: "blob-2", Encrypted: true, ScanStatus: models.ScanStatusPending},
	}, nil).Once()
	fileRepo.On("SetScanStatus", mock.Anything, 4, models.ScanStatusError, mock.Anything).Return(nil).Once()

	sweeper.RescanPending()
	fileRepo.AssertExpectations(t)
	scanner.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Load", mock.Anything)
}

func TestRescanPendingMissingBlobMovesToError(t *testing.T) {
	fileRepo := new(mocks.FileRepositoryMock)
	store := new(mocks.BlobStoreMock)
	scanner := new(mocks.ScannerMock)
	sweeper := newTestSweeper(new(mocks.MessageRepositoryMock), fileRepo, store, scanner)

	fileRepo.On("ListPendingScans", mock.Anything, mock.Anything, rescanBatch).Return([]models.MessageFile{
		{ID: 5, StoredName: "blob-3", ScanStatus: models.ScanStatusPending},
	}, nil).Once()
	store.On("Load", "blob-3").Return(nil, storage.ErrBlobNotFound).Once()
	fileRepo.On("SetScanStatus", mock.Anything, 5, models.ScanStatusError, mock.Anything).Return(nil).Once()

	sweeper.RescanPending()
	fileRepo.AssertExpectations(t)
	scanner.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
}

func TestSweepExpiredSurvivesRepositoryError(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	fileRepo := new(mocks.FileRepositoryMock)
	sweeper := newTestSweeper(messageRepo, fileRepo, new(mocks.BlobStoreMock), new(mocks.ScannerMock))

	fileRepo.On("ListExpiredBlobs", mock.Anything, mock.Anything).Return(nil, nil).Once()
	messageRepo.On("DeleteExpiredBefore", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down")).Once()

	sweeper.SweepExpired()
	messageRepo.AssertExpectations(t)
}
