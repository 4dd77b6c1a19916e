// Package thumbs produces and caches thumbnails by shelling out to the
// ImageMagick and ffmpeg binaries. Artifacts live at deterministic paths
// under the thumb root, so existence on disk is the cache.
package thumbs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/MindFlavor/nas-gallery/internal/logging"
	"github.com/MindFlavor/nas-gallery/internal/metrics"
)

// ErrNotApplicable reports that no thumbnail can exist for the request:
// the source is missing, not a regular file, not a media file, or the
// requested size is out of bounds.
var ErrNotApplicable = errors.New("thumbs: not applicable")

// Kind classifies a media file by extension.
type Kind int

const (
	// KindNone marks paths that are not media files.
	KindNone Kind = iota
	// KindImage covers the still-image extensions.
	KindImage
	// KindVideo covers the video extensions.
	KindVideo
)

var imageExtensions = map[string]struct{}{
	"png": {}, "bmp": {}, "jpg": {}, "gif": {},
}

var videoExtensions = map[string]struct{}{
	"mkv": {}, "mp4": {}, "avi": {}, "mov": {}, "webm": {},
}

// MediaKind reports how the path's extension classifies it. Matching is
// case-insensitive; extensionless paths are KindNone.
func MediaKind(path string) Kind {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return KindNone
	}
	if _, ok := imageExtensions[ext]; ok {
		return KindImage
	}
	if _, ok := videoExtensions[ext]; ok {
		return KindVideo
	}
	return KindNone
}

// IsMedia reports whether the path has a previewable media extension.
func IsMedia(path string) bool {
	return MediaKind(path) != KindNone
}

// Tools names the external converter binaries. Relative names resolve
// through PATH.
type Tools struct {
	Convert   string
	Ffmpeg    string
	Composite string
}

// Options configures the cache.
type Options struct {
	// Root is the directory the artifacts are written under.
	Root string
	// PlayOverlay is the image composited onto video thumbnails.
	PlayOverlay string
	// MaxSize caps the requested thumbnail edge. Zero means unbounded.
	MaxSize int
	Tools   Tools
	Metrics *metrics.Recorder
}

// Cache generates thumbnails at most once per artifact within the process.
// Cross-process races stay last-writer-wins, which is harmless because the
// build is deterministic.
type Cache struct {
	opts   Options
	logger *slog.Logger
	group  singleflight.Group
}

// New builds a thumbnail cache. Tool names default to the conventional
// binaries when unset.
func New(logger *slog.Logger, opts Options) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Tools.Convert == "" {
		opts.Tools.Convert = "convert"
	}
	if opts.Tools.Ffmpeg == "" {
		opts.Tools.Ffmpeg = "ffmpeg"
	}
	if opts.Tools.Composite == "" {
		opts.Tools.Composite = "composite"
	}
	if opts.PlayOverlay == "" {
		opts.PlayOverlay = "play256.png"
	}
	return &Cache{
		opts:   opts,
		logger: logger.With(slog.String("component", "thumbs")),
	}
}

// ArtifactPath maps a thumbnail key onto its cache location:
// <root>/<SxS>/<source-parent-without-leading-slash>/<basename>.jpg.
func (c *Cache) ArtifactPath(size int, source string) string {
	parent := strings.TrimPrefix(filepath.Dir(source), "/")
	return filepath.Join(
		c.opts.Root,
		fmt.Sprintf("%dx%d", size, size),
		parent,
		filepath.Base(source)+".jpg",
	)
}

// ThumbnailFor returns the artifact path for (size, source), generating it
// first when it is not on disk yet. Converter failures are logged and
// surface only as a missing artifact, so the next request retries.
func (c *Cache) ThumbnailFor(ctx context.Context, size int, source string) (string, error) {
	if size <= 0 || (c.opts.MaxSize > 0 && size > c.opts.MaxSize) {
		return "", fmt.Errorf("%w: size %d out of bounds", ErrNotApplicable, size)
	}

	info, err := os.Stat(source)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a readable file", ErrNotApplicable, source)
	}

	kind := MediaKind(source)
	if kind == KindNone {
		return "", fmt.Errorf("%w: %s has no media extension", ErrNotApplicable, source)
	}

	switch kind {
	case KindImage:
		c.opts.Metrics.PictureThumbAccess()
	case KindVideo:
		c.opts.Metrics.VideoThumbAccess()
	}

	artifact := c.ArtifactPath(size, source)
	if _, err := os.Stat(artifact); err == nil {
		return artifact, nil
	}

	// Collapse concurrent builds of the same artifact onto one converter run.
	if _, err, _ := c.group.Do(artifact, func() (any, error) {
		if _, err := os.Stat(artifact); err == nil {
			return nil, nil
		}
		return nil, c.build(ctx, kind, size, source, artifact)
	}); err != nil {
		return "", err
	}

	if _, err := os.Stat(artifact); err != nil {
		return "", fmt.Errorf("thumbs: artifact missing after generation: %w", err)
	}
	return artifact, nil
}

func (c *Cache) build(ctx context.Context, kind Kind, size int, source, artifact string) error {
	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		return fmt.Errorf("thumbs: create artifact directory: %w", err)
	}

	fit := fmt.Sprintf("%dx%d>", size, size)
	extent := fmt.Sprintf("%dx%d", size, size)

	switch kind {
	case KindImage:
		c.opts.Metrics.PictureThumbGeneration()
		c.run(ctx, c.opts.Tools.Convert,
			source,
			"-auto-orient",
			"-thumbnail", fit,
			"-background", "white",
			"-gravity", "center",
			"-extent", extent,
			artifact,
		)
	case KindVideo:
		c.opts.Metrics.VideoThumbGeneration()
		c.run(ctx, c.opts.Tools.Ffmpeg,
			"-i", source,
			"-vframes", "1",
			artifact,
			"-y",
		)
		c.run(ctx, c.opts.Tools.Convert,
			artifact,
			"-thumbnail", fit,
			"-background", "white",
			"-gravity", "center",
			"-extent", extent,
			artifact,
		)
		c.run(ctx, c.opts.Tools.Composite,
			"-dissolve", "50",
			"-gravity", "Center",
			c.opts.PlayOverlay,
			artifact,
			"-alpha", "Set",
			artifact,
		)
	}
	return nil
}

// run executes one converter invocation. Exit status is logged, never
// inspected: a failed step leaves the artifact absent and the request path
// reports not found.
func (c *Cache) run(ctx context.Context, name string, args ...string) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		c.logger.Warn("converter failed",
			slog.String("tool", name),
			slog.Any("error", err),
			slog.String("output", strings.TrimSpace(string(output))))
		return
	}
	c.logger.Log(ctx, logging.LevelTrace, "converter finished",
		slog.String("tool", name),
		slog.String("output", strings.TrimSpace(string(output))))
}
