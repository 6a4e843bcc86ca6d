package elm327

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nerrad567/obd2mqtt/internal/obd"
)

const (
	// prompt ends every adapter reply.
	prompt = '>'

	// drainTimeout bounds discarding a late reply after a timeout.
	drainTimeout = 100 * time.Millisecond

	readChunk = 128
)

// session is a request/response exchange over a Port.
// It is not safe for concurrent use; the adapter serialises access.
type session struct {
	port    Port
	timeout time.Duration
	buf     []byte

	// dirty is set after a timeout: a late reply may still be in flight.
	dirty bool
}

func newSession(port Port, timeout time.Duration) *session {
	return &session{
		port:    port,
		timeout: timeout,
		buf:     make([]byte, readChunk),
	}
}

// exchange sends cmd and returns the reply lines, without the echo,
// blank lines and the prompt.
func (s *session) exchange(ctx context.Context, cmd string) ([]string, error) {
	return s.exchangeTimeout(ctx, cmd, s.timeout)
}

func (s *session) exchangeTimeout(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.dirty {
		s.drain()
	}

	if _, err := s.port.Write([]byte(cmd + "\r")); err != nil {
		return nil, fmt.Errorf("%w: write %s: %w", obd.ErrConnectionFailed, cmd, err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.port.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %w", obd.ErrConnectionFailed, err)
	}

	var reply []byte
	for {
		n, err := s.port.Read(s.buf)
		reply = append(reply, s.buf[:n]...)
		if i := bytes.IndexByte(reply, prompt); i >= 0 {
			return splitLines(string(reply[:i]), cmd), nil
		}
		if err != nil {
			if isTimeout(err) {
				s.dirty = true
				return nil, fmt.Errorf("%w: %s", obd.ErrTimeout, cmd)
			}
			return nil, fmt.Errorf("%w: read %s: %w", obd.ErrConnectionFailed, cmd, err)
		}
	}
}

// drain discards anything left over from a timed-out exchange.
func (s *session) drain() {
	s.dirty = false
	if err := s.port.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
		return
	}
	for {
		if _, err := s.port.Read(s.buf); err != nil {
			return
		}
	}
}

// splitLines breaks a reply into trimmed, non-empty lines and drops the
// echoed command if echo is still on.
func splitLines(reply, cmd string) []string {
	fields := strings.FieldsFunc(reply, func(r rune) bool { return r == '\r' || r == '\n' })

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || strings.EqualFold(f, cmd) {
			continue
		}
		lines = append(lines, f)
	}
	return lines
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
