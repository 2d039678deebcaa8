package antivirus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KallebyX/caris-chat-service/internal/models"
)

func TestCloudEngineCompletedVerdicts(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/scan":
			assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
			json.NewEncoder(w).Encode(cloudSubmitResponse{ScanID: "scan-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/scan/scan-1":
			// First poll still scanning, second completes infected.
			if polls.Add(1) == 1 {
				json.NewEncoder(w).Encode(cloudReportResponse{Status: "scanning"})
				return
			}
			json.NewEncoder(w).Encode(cloudReportResponse{Status: "completed", Positives: 2, Signature: "EICAR-Test"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	engine := NewCloudEngine(server.URL, "test-key", 30*time.Second)
	result, err := engine.Scan(context.Background(), []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusInfected, result.Status)
	assert.Equal(t, "EICAR-Test", result.Signature)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestCloudEngineCleanVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(cloudSubmitResponse{ScanID: "scan-2"})
			return
		}
		json.NewEncoder(w).Encode(cloudReportResponse{Status: "completed"})
	}))
	defer server.Close()

	engine := NewCloudEngine(server.URL, "", time.Second)
	result, err := engine.Scan(context.Background(), []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusClean, result.Status)
}

func TestCloudEngineBoundedWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(cloudSubmitResponse{ScanID: "scan-3"})
			return
		}
		json.NewEncoder(w).Encode(cloudReportResponse{Status: "queued"})
	}))
	defer server.Close()

	engine := NewCloudEngine(server.URL, "", 0)
	_, err := engine.Scan(context.Background(), []byte("payload"))
	assert.ErrorIs(t, err, ErrUnavailable)
}
