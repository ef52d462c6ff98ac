package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"
)

// ErrProducerUnavailable means the tracker is not running or not answering. It is
// the normal state between sessions, not a fault.
var ErrProducerUnavailable = errors.New("telemetry producer not available")

// TelemetrySource answers one status line per request.
type TelemetrySource interface {
	Request(ctx context.Context, item string) (string, error)
	Close() error
}

// openTelemetrySource understands "tcp://host:port" and "file:/path".
func openTelemetrySource(addr string) (TelemetrySource, error) {
	switch {
	case strings.HasPrefix(addr, "tcp://"):
		return &tcpTelemetrySource{addr: strings.TrimPrefix(addr, "tcp://")}, nil
	case strings.HasPrefix(addr, "file:"):
		return &fileTelemetrySource{path: strings.TrimPrefix(addr, "file:")}, nil
	default:
		return nil, fmt.Errorf("unsupported telemetry source %q (want tcp://host:port or file:/path)", addr)
	}
}

// tcpTelemetrySource talks to a line relay in front of the tracker: it writes the
// item name followed by CRLF and reads back one line. The connection is kept
// between requests and redialled after any failure.
type tcpTelemetrySource struct {
	addr   string
	dialer net.Dialer
	conn   net.Conn
	r      *bufio.Reader
}

func (s *tcpTelemetrySource) Request(ctx context.Context, item string) (string, error) {
	if s.conn == nil {
		conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: %v", ErrProducerUnavailable, err)
		}
		s.conn = conn
		s.r = bufio.NewReader(conn)
	}

	conn := s.conn
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		s.drop()
		return "", fmt.Errorf("%w: %v", ErrProducerUnavailable, err)
	}
	// Cancelling ctx unblocks a pending read.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := conn.Write([]byte(item + "\r\n")); err != nil {
		return "", s.fail(ctx, err)
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		return "", s.fail(ctx, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *tcpTelemetrySource) fail(ctx context.Context, err error) error {
	s.drop()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("request timed out: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrProducerUnavailable, err)
}

func (s *tcpTelemetrySource) drop() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
		s.r = nil
	}
}

func (s *tcpTelemetrySource) Close() error {
	s.drop()
	return nil
}

// fileTelemetrySource reads the first line of a status file on every request.
type fileTelemetrySource struct {
	path string
}

func (s *fileTelemetrySource) Request(ctx context.Context, item string) (string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s missing", ErrProducerUnavailable, s.path)
	}
	if err != nil {
		return "", err
	}

	line, _, _ := strings.Cut(string(b), "\n")
	return strings.TrimRight(line, "\r"), nil
}

func (s *fileTelemetrySource) Close() error {
	return nil
}
