package antivirus

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/KallebyX/caris-chat-service/internal/models"
)

// ClamAVEngine streams payloads to a clamd daemon over its INSTREAM
// protocol.
type ClamAVEngine struct {
	addr    string
	timeout time.Duration
}

// NewClamAVEngine builds the engine; an empty addr makes it permanently
// unavailable.
func NewClamAVEngine(addr string) *ClamAVEngine {
	return &ClamAVEngine{addr: addr, timeout: 30 * time.Second}
}

func (e *ClamAVEngine) Name() string { return "clamav" }

// Scan sends the payload as length-prefixed chunks and parses clamd's
// single-line reply.
func (e *ClamAVEngine) Scan(ctx context.Context, data []byte) (Result, error) {
	if e.addr == "" {
		return Result{}, ErrUnavailable
	}

	dialer := net.Dialer{Timeout: e.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", e.addr)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(e.timeout))

	if _, err := conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	const chunkSize = 2048
	prefix := make([]byte, 4)
	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		binary.BigEndian.PutUint32(prefix, uint32(len(chunk)))
		if _, err := conn.Write(prefix); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if _, err := conn.Write(chunk); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	// Zero-length chunk terminates the stream.
	binary.BigEndian.PutUint32(prefix, 0)
	if _, err := conn.Write(prefix); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var reply bytes.Buffer
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			reply.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}

	line := strings.TrimRight(reply.String(), "\x00\n ")
	switch {
	case strings.HasSuffix(line, "OK"):
		return Result{Status: models.ScanStatusClean, Engine: e.Name()}, nil
	case strings.HasSuffix(line, "FOUND"):
		signature := strings.TrimSuffix(line, " FOUND")
		if idx := strings.Index(signature, ": "); idx >= 0 {
			signature = signature[idx+2:]
		}
		return Result{Status: models.ScanStatusInfected, Engine: e.Name(), Signature: signature}, nil
	case strings.HasSuffix(line, "ERROR"):
		return Result{}, fmt.Errorf("clamd error: %s", line)
	default:
		return Result{}, fmt.Errorf("unexpected clamd reply: %q", line)
	}
}
