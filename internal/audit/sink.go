// Package audit appends one pipe-delimited line per authorization decision
// to a configured file. The sink is best effort: handlers hand records to a
// single background writer and never wait on disk.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Allowed and Denied are the literal trailing fields of every record.
const (
	verdictAllowed = "ALLOWED"
	verdictDenied  = "DENIED"
)

// Sink is the multi-producer single-consumer audit writer. The zero-value
// disabled sink (from New with an empty path) accepts records and drops
// them, so callers never branch on whether auditing is configured.
type Sink struct {
	path    string
	logger  *slog.Logger
	records chan string
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

// queueDepth bounds the handoff buffer. Records beyond it are dropped with
// a log line rather than stalling request handlers.
const queueDepth = 1024

// New starts the background writer for the given file. An empty path
// returns a disabled sink. The file itself is opened per write, so a
// missing or rotated file never wedges the writer.
func New(path string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		path:   path,
		logger: logger.With(slog.String("component", "audit")),
		now:    time.Now,
	}
	if path == "" {
		return s
	}
	s.records = make(chan string, queueDepth)
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	go s.run()
	return s
}

// Enabled reports whether records reach a file.
func (s *Sink) Enabled() bool {
	return s != nil && s.records != nil
}

// Record enqueues one decision line:
// YYYY-MM-DD|HH:MM:SS|email|objType|objName|operation|ALLOWED-or-DENIED.
// It never blocks; when the writer is saturated the record is dropped, and
// after Close it is a silent no-op.
func (s *Sink) Record(email, objType, objName, operation string, allowed bool) {
	if !s.Enabled() {
		return
	}
	select {
	case <-s.quit:
		return
	default:
	}
	verdict := verdictDenied
	if allowed {
		verdict = verdictAllowed
	}
	line := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		s.now().Format("2006-01-02|15:04:05"),
		email, objType, objName, operation, verdict)

	select {
	case s.records <- line:
	default:
		s.logger.Warn("audit queue full, dropping record", slog.String("operation", operation))
	}
}

// Close drains queued records and stops the writer. Safe to call more than
// once; the context bounds how long the drain may take.
func (s *Sink) Close(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	var err error
	s.once.Do(func() {
		// The records channel is never closed: handlers may still hold a
		// *Sink after shutdown begins, and a send must stay a safe drop.
		close(s.quit)
		select {
		case <-s.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (s *Sink) run() {
	defer close(s.done)
	write := func(line string) {
		if err := s.append(line); err != nil {
			s.logger.Error("audit write failed", slog.Any("error", err))
		}
	}
	for {
		select {
		case line := <-s.records:
			write(line)
		case <-s.quit:
			for {
				select {
				case line := <-s.records:
					write(line)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) append(line string) error {
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", s.path, err)
	}
	defer file.Close()
	if _, err := fmt.Fprintln(file, line); err != nil {
		return fmt.Errorf("audit: write %s: %w", s.path, err)
	}
	return nil
}
