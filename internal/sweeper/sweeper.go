// Package sweeper runs the background maintenance jobs: hard-deleting
// expired temporary messages and re-scanning attachments stuck in
// pending. Neither job is load-bearing for correctness; read paths
// enforce expiry and scan gating on their own.
package sweeper

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/KallebyX/caris-chat-service/internal/antivirus"
	"github.com/KallebyX/caris-chat-service/internal/models"
	"github.com/KallebyX/caris-chat-service/internal/observability"
	"github.com/KallebyX/caris-chat-service/internal/repositories"
	"github.com/KallebyX/caris-chat-service/internal/storage"
)

// rescanBatch bounds how many stuck files one sweep attempt handles.
const rescanBatch = 50

type scanner interface {
	Scan(ctx context.Context, data []byte) antivirus.Result
}

// Sweeper schedules the maintenance jobs.
type Sweeper struct {
	messageRepo repositories.MessageRepository
	fileRepo    repositories.FileRepository
	store       storage.BlobStore
	scanner     scanner
	logger      zerolog.Logger
	cron        *cron.Cron
}

// New constructs a Sweeper.
func New(messageRepo repositories.MessageRepository, fileRepo repositories.FileRepository, store storage.BlobStore, scanner scanner, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		messageRepo: messageRepo,
		fileRepo:    fileRepo,
		store:       store,
		scanner:     scanner,
		logger:      logger,
		cron:        cron.New(),
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Sweeper) Start(expirySpec, rescanSpec string) error {
	if _, err := s.cron.AddFunc(expirySpec, s.SweepExpired); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(rescanSpec, s.RescanPending); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Str("expiry", expirySpec).Str("rescan", rescanSpec).Msg("sweeper started")
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// SweepExpired hard-deletes temporary messages past their expiry,
// along with the attachment blobs they own. Blob names are collected
// first: the row delete cascades through message_files and would lose
// them.
func (s *Sweeper) SweepExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now()
	blobs, err := s.fileRepo.ListExpiredBlobs(ctx, cutoff)
	if err != nil {
		// Without the names the blobs would orphan; retry next run.
		s.logger.Error().Err(err).Msg("expired attachment lookup failed, sweep postponed")
		return
	}

	deleted, err := s.messageRepo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("expired message sweep failed")
		return
	}

	for _, name := range blobs {
		if err := s.store.Delete(name); err != nil {
			s.logger.Error().Err(err).Str("stored_name", name).Msg("failed to remove expired blob")
		}
	}

	if deleted > 0 {
		observability.AddSweepDeleted("expired_messages", deleted)
		s.logger.Info().Int64("deleted", deleted).Int("blobs", len(blobs)).Msg("expired messages removed")
	}
}

// RescanPending retries the scan for files that never reached a
// terminal status. Encrypted blobs cannot be re-scanned (the plaintext
// is gone with the request-scoped key), so they move to error and stay
// withheld.
func (s *Sweeper) RescanPending() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	files, err := s.fileRepo.ListPendingScans(ctx, time.Now().Add(-time.Minute), rescanBatch)
	if err != nil {
		s.logger.Error().Err(err).Msg("pending scan sweep failed")
		return
	}

	for _, file := range files {
		s.rescan(ctx, file)
	}
	if len(files) > 0 {
		observability.AddSweepDeleted("rescanned_files", int64(len(files)))
	}
}

func (s *Sweeper) rescan(ctx context.Context, file models.MessageFile) {
	if file.Encrypted {
		if err := s.fileRepo.SetScanStatus(ctx, file.ID, models.ScanStatusError, []byte(`{"detail":"sealed blob cannot be re-scanned"}`)); err != nil {
			s.logger.Error().Err(err).Int("file_id", file.ID).Msg("failed to mark sealed file")
		}
		return
	}

	blob, err := s.store.Load(file.StoredName)
	if err != nil {
		s.logger.Error().Err(err).Int("file_id", file.ID).Msg("failed to load blob for re-scan")
		if err := s.fileRepo.SetScanStatus(ctx, file.ID, models.ScanStatusError, []byte(`{"detail":"blob missing"}`)); err != nil {
			s.logger.Error().Err(err).Int("file_id", file.ID).Msg("failed to record scan error")
		}
		return
	}

	result := s.scanner.Scan(ctx, blob)
	if err := s.fileRepo.SetScanStatus(ctx, file.ID, result.Status, scanResultJSON(result)); err != nil {
		s.logger.Error().Err(err).Int("file_id", file.ID).Msg("failed to record re-scan verdict")
		return
	}
	s.logger.Info().Int("file_id", file.ID).Str("status", result.Status).Str("engine", result.Engine).Msg("pending file re-scanned")
}

func scanResultJSON(result antivirus.Result) []byte {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return payload
}
