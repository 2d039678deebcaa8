package antivirus

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KallebyX/caris-chat-service/internal/models"
)

func TestHeuristicEmptyFile(t *testing.T) {
	engine := NewHeuristicEngine()
	result, err := engine.Scan(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusInfected, result.Status)
	assert.Equal(t, "Heuristic.EmptyFile", result.Signature)
}

func TestHeuristicExecutableHeaders(t *testing.T) {
	engine := NewHeuristicEngine()
	cases := map[string][]byte{
		"Heuristic.PE-Header":    append([]byte("MZ"), make([]byte, 16)...),
		"Heuristic.ELF-Header":   append([]byte{0x7F, 'E', 'L', 'F'}, make([]byte, 16)...),
		"Heuristic.MachO-Header": append([]byte{0xCF, 0xFA, 0xED, 0xFE}, make([]byte, 16)...),
		"Heuristic.Shebang":      []byte("#!/bin/sh\nrm -rf /\n"),
	}
	for signature, payload := range cases {
		result, err := engine.Scan(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, models.ScanStatusInfected, result.Status, signature)
		assert.Equal(t, signature, result.Signature)
	}
}

func TestHeuristicScriptContent(t *testing.T) {
	engine := NewHeuristicEngine()
	result, err := engine.Scan(context.Background(), []byte(`<html><SCRIPT>alert(1)</SCRIPT></html>`))
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusInfected, result.Status)
	assert.Equal(t, "Heuristic.ScriptContent", result.Signature)
}

func TestHeuristicNullPadding(t *testing.T) {
	engine := NewHeuristicEngine()
	payload := append([]byte("x"), bytes.Repeat([]byte{0}, 1000)...)
	result, err := engine.Scan(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusInfected, result.Status)
	assert.Equal(t, "Heuristic.NullPadding", result.Signature)
}

func TestHeuristicCleanDocument(t *testing.T) {
	engine := NewHeuristicEngine()
	result, err := engine.Scan(context.Background(), []byte("Dear patient, see you on Thursday at 10."))
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusClean, result.Status)
	assert.Empty(t, result.Signature)
}
