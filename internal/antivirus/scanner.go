// Package antivirus gates file attachments behind a virus scan. Engines
// are tried in priority order; an unavailable engine advances the chain
// and only a terminal verdict (clean/infected) or an exhausted chain
// ends it.
package antivirus

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/KallebyX/caris-chat-service/internal/models"
	"github.com/KallebyX/caris-chat-service/internal/observability"
)

// ErrUnavailable is returned by an engine that cannot give a verdict
// right now (daemon down, API unreachable). The scanner moves on.
var ErrUnavailable = errors.New("scan engine unavailable")

// Result is a terminal scan verdict.
type Result struct {
	Status    string `json:"status"`
	Engine    string `json:"engine"`
	Signature string `json:"signature,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Engine scans a byte payload.
type Engine interface {
	Name() string
	Scan(ctx context.Context, data []byte) (Result, error)
}

// Scanner walks an ordered engine chain.
type Scanner struct {
	engines []Engine
	logger  zerolog.Logger
}

// NewScanner builds a Scanner over the given engines, tried in order.
func NewScanner(logger zerolog.Logger, engines ...Engine) *Scanner {
	return &Scanner{engines: engines, logger: logger}
}

// Scan tries each engine until one yields a verdict. If every engine is
// unavailable or fails, the result is status=error: unknown is never
// treated as clean.
func (s *Scanner) Scan(ctx context.Context, data []byte) Result {
	for _, engine := range s.engines {
		result, err := engine.Scan(ctx, data)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				s.logger.Debug().Str("engine", engine.Name()).Msg("scan engine unavailable, trying next")
				continue
			}
			s.logger.Warn().Err(err).Str("engine", engine.Name()).Msg("scan engine failed, trying next")
			continue
		}
		observability.IncScanResult(engine.Name(), result.Status)
		return result
	}

	observability.IncScanResult("none", models.ScanStatusError)
	return Result{
		Status: models.ScanStatusError,
		Engine: "none",
		Detail: "no scan engine available",
	}
}
