package antivirus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/KallebyX/caris-chat-service/internal/models"
)

// CloudEngine submits payloads to a hosted scanning API and waits a
// bounded time for the verdict. The wait is sequential, never a race
// against other engines.
type CloudEngine struct {
	baseURL string
	apiKey  string
	maxWait time.Duration
	client  *http.Client
}

// NewCloudEngine builds the engine; an empty baseURL makes it
// permanently unavailable.
func NewCloudEngine(baseURL, apiKey string, maxWait time.Duration) *CloudEngine {
	return &CloudEngine{
		baseURL: baseURL,
		apiKey:  apiKey,
		maxWait: maxWait,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *CloudEngine) Name() string { return "cloud" }

type cloudSubmitResponse struct {
	ScanID string `json:"scan_id"`
}

type cloudReportResponse struct {
	Status    string `json:"status"` // queued|scanning|completed
	Positives int    `json:"positives"`
	Signature string `json:"signature"`
}

// Scan submits the payload and polls the report endpoint until the scan
// completes or the bounded wait elapses.
func (e *CloudEngine) Scan(ctx context.Context, data []byte) (Result, error) {
	if e.baseURL == "" {
		return Result{}, ErrUnavailable
	}

	scanID, err := e.submit(ctx, data)
	if err != nil {
		return Result{}, err
	}

	deadline := time.Now().Add(e.maxWait)
	for {
		report, err := e.report(ctx, scanID)
		if err != nil {
			return Result{}, err
		}
		if report.Status == "completed" {
			if report.Positives > 0 {
				return Result{Status: models.ScanStatusInfected, Engine: e.Name(), Signature: report.Signature}, nil
			}
			return Result{Status: models.ScanStatusClean, Engine: e.Name()}, nil
		}
		if time.Now().After(deadline) {
			return Result{}, fmt.Errorf("%w: cloud scan %s not completed in time", ErrUnavailable, scanID)
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (e *CloudEngine) submit(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/scan", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-API-Key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("%w: cloud scan submit status %d", ErrUnavailable, resp.StatusCode)
	}

	var submit cloudSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submit); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if submit.ScanID == "" {
		return "", fmt.Errorf("cloud scan submit returned empty scan id")
	}
	return submit.ScanID, nil
}

func (e *CloudEngine) report(ctx context.Context, scanID string) (cloudReportResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/scan/"+scanID, nil)
	if err != nil {
		return cloudReportResponse{}, err
	}
	req.Header.Set("X-API-Key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return cloudReportResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return cloudReportResponse{}, fmt.Errorf("%w: cloud scan report status %d", ErrUnavailable, resp.StatusCode)
	}

	var report cloudReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return cloudReportResponse{}, fmt.Errorf("decode report response: %w", err)
	}
	return report, nil
}
