package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"log/slog"

	"github.com/MindFlavor/nas-gallery/internal/config"
)

// LevelTrace sits below slog.LevelDebug so converter invocations and other
// chatty diagnostics can be silenced independently of debug output.
const LevelTrace = slog.LevelDebug - 4

// levelOff is higher than anything the service logs at, so it disables output.
const levelOff = slog.LevelError + 16

// Level translates the configured level name. Unknown names fall back to
// Info rather than failing startup.
func Level(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "off":
		return levelOff
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// New shapes slog so emitted telemetry lands on stdout and in the configured
// log file at once. Failing to open the file is a startup error.
func New(cfg config.LogConfig) (*slog.Logger, func() error, error) {
	out := io.Writer(os.Stdout)
	closeFile := func() error { return nil }
	if cfg.Path != "" {
		file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open log file %s: %w", cfg.Path, err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closeFile = file.Close
	}

	opts := &slog.HandlerOptions{Level: Level(cfg.Level)}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text", "":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		// config.Validate rejects unknown formats before New runs; this
		// branch only matters for direct callers.
		err := fmt.Errorf("logging: unsupported format %q", cfg.Format)
		if closeErr := closeFile(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("logging: close log file %s: %w", cfg.Path, closeErr))
		}
		return nil, nil, err
	}

	logger := slog.New(handler).With(slog.String("component", "nas-gallery"))
	return logger, closeFile, nil
}
