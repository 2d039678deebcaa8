package antivirus

import (
	"bytes"
	"context"
	"fmt"

	"github.com/KallebyX/caris-chat-service/internal/models"
)

// HeuristicEngine is the last-resort engine: cheap signature and shape
// checks that run when no real scanner is reachable. It errs on the side
// of flagging.
type HeuristicEngine struct{}

// NewHeuristicEngine builds the engine. It is always available.
func NewHeuristicEngine() *HeuristicEngine {
	return &HeuristicEngine{}
}

func (e *HeuristicEngine) Name() string { return "heuristic" }

var executableHeaders = []struct {
	magic     []byte
	signature string
}{
	{[]byte{'M', 'Z'}, "Heuristic.PE-Header"},
	{[]byte{0x7F, 'E', 'L', 'F'}, "Heuristic.ELF-Header"},
	{[]byte{0xCF, 0xFA, 0xED, 0xFE}, "Heuristic.MachO-Header"},
	{[]byte("#!"), "Heuristic.Shebang"},
}

var scriptPatterns = [][]byte{
	[]byte("<script"),
	[]byte("javascript:"),
	[]byte("eval("),
	[]byte("powershell"),
	[]byte("cmd.exe"),
}

// Scan applies the heuristic checks in order: empty payload, executable
// headers, embedded script patterns, excessive null-byte padding.
func (e *HeuristicEngine) Scan(_ context.Context, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{
			Status:    models.ScanStatusInfected,
			Engine:    e.Name(),
			Signature: "Heuristic.EmptyFile",
			Detail:    "zero-byte upload",
		}, nil
	}

	for _, header := range executableHeaders {
		if bytes.HasPrefix(data, header.magic) {
			return Result{Status: models.ScanStatusInfected, Engine: e.Name(), Signature: header.signature}, nil
		}
	}

	lowered := bytes.ToLower(data)
	for _, pattern := range scriptPatterns {
		if bytes.Contains(lowered, pattern) {
			return Result{
				Status:    models.ScanStatusInfected,
				Engine:    e.Name(),
				Signature: "Heuristic.ScriptContent",
				Detail:    fmt.Sprintf("pattern %q", pattern),
			}, nil
		}
	}

	if nullRatio(data) > 0.9 {
		return Result{
			Status:    models.ScanStatusInfected,
			Engine:    e.Name(),
			Signature: "Heuristic.NullPadding",
			Detail:    "payload is mostly null bytes",
		}, nil
	}

	return Result{Status: models.ScanStatusClean, Engine: e.Name()}, nil
}

func nullRatio(data []byte) float64 {
	nulls := 0
	for _, b := range data {
		if b == 0 {
			nulls++
		}
	}
	return float64(nulls) / float64(len(data))
}
