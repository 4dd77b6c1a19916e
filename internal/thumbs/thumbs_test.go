package thumbs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MindFlavor/nas-gallery/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// writeStub creates an executable that appends its invocation to callLog and
// writes a fake artifact to the argument selected by dstArg (negative counts
// from the end).
func writeStub(t *testing.T, dir, name, callLog string, dstArg int) string {
	t.Helper()
	script := fmt.Sprintf(`#!/bin/sh
echo "%s $@" >> %q
eval "dst=\${$(($#+1+%d))}"
echo thumb > "$dst"
`, name, callLog, dstArg)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

func countCalls(t *testing.T, callLog, tool string) int {
	t.Helper()
	data, err := os.ReadFile(callLog)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("read call log: %v", err)
	}
	count := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, tool+" ") {
			count++
		}
	}
	return count
}

func counterValue(t *testing.T, rec *metrics.Recorder, name string) float64 {
	t.Helper()
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			var total float64
			for _, m := range family.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	return 0
}

func newTestCache(t *testing.T, rec *metrics.Recorder) (*Cache, string, string) {
	t.Helper()
	binDir := t.TempDir()
	callLog := filepath.Join(binDir, "calls.txt")
	convert := writeStub(t, binDir, "convert", callLog, -1)
	ffmpeg := writeStub(t, binDir, "ffmpeg", callLog, -2)
	composite := writeStub(t, binDir, "composite", callLog, -1)

	root := t.TempDir()
	cache := New(testLogger(), Options{
		Root:        root,
		PlayOverlay: filepath.Join(binDir, "play256.png"),
		MaxSize:     1024,
		Tools:       Tools{Convert: convert, Ffmpeg: ffmpeg, Composite: composite},
		Metrics:     rec,
	})
	return cache, root, callLog
}

func TestMediaKind(t *testing.T) {
	cases := []struct {
		path string
		want Kind
	}{
		{"/m/a.jpg", KindImage},
		{"/m/a.PNG", KindImage},
		{"/m/a.gif", KindImage},
		{"/m/a.bmp", KindImage},
		{"/m/a.mkv", KindVideo},
		{"/m/a.mp4", KindVideo},
		{"/m/a.webm", KindVideo},
		{"/m/a.mov", KindVideo},
		{"/m/a.avi", KindVideo},
		{"/m/a.txt", KindNone},
		{"/m/noext", KindNone},
		{"/m/a.jpeg", KindNone},
	}
	for _, tc := range cases {
		if got := MediaKind(tc.path); got != tc.want {
			t.Fatalf("MediaKind(%s) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestArtifactPathLayout(t *testing.T) {
	cache := New(testLogger(), Options{Root: "/cache"})
	got := cache.ArtifactPath(128, "/media/2020/p.jpg")
	want := "/cache/128x128/media/2020/p.jpg.jpg"
	if got != want {
		t.Fatalf("ArtifactPath = %s, want %s", got, want)
	}
}

func TestThumbnailForImageBuildsOnce(t *testing.T) {
	rec := metrics.NewRecorder(nil)
	cache, _, callLog := newTestCache(t, rec)

	srcDir := t.TempDir()
	source := filepath.Join(srcDir, "p.jpg")
	if err := os.WriteFile(source, []byte("img"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	artifact, err := cache.ThumbnailFor(context.Background(), 128, source)
	if err != nil {
		t.Fatalf("first thumbnail: %v", err)
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("expected artifact on disk: %v", err)
	}
	if !strings.HasSuffix(artifact, "p.jpg.jpg") {
		t.Fatalf("unexpected artifact path: %s", artifact)
	}

	again, err := cache.ThumbnailFor(context.Background(), 128, source)
	if err != nil {
		t.Fatalf("second thumbnail: %v", err)
	}
	if again != artifact {
		t.Fatalf("expected stable artifact path, got %s vs %s", again, artifact)
	}

	if calls := countCalls(t, callLog, "convert"); calls != 1 {
		t.Fatalf("expected one convert invocation, got %d", calls)
	}
	if got := counterValue(t, rec, "nas_gallery_picture_thumb_access"); got != 2 {
		t.Fatalf("expected picture access 2, got %v", got)
	}
	if got := counterValue(t, rec, "nas_gallery_picture_thumb_generation"); got != 1 {
		t.Fatalf("expected picture generation 1, got %v", got)
	}
}

func TestThumbnailForVideoRunsPipeline(t *testing.T) {
	rec := metrics.NewRecorder(nil)
	cache, _, callLog := newTestCache(t, rec)

	srcDir := t.TempDir()
	source := filepath.Join(srcDir, "v.mp4")
	if err := os.WriteFile(source, []byte("vid"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	artifact, err := cache.ThumbnailFor(context.Background(), 64, source)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("expected artifact on disk: %v", err)
	}

	for _, tool := range []string{"ffmpeg", "convert", "composite"} {
		if calls := countCalls(t, callLog, tool); calls != 1 {
			t.Fatalf("expected one %s invocation, got %d", tool, calls)
		}
	}
	if got := counterValue(t, rec, "nas_gallery_video_thumb_access"); got != 1 {
		t.Fatalf("expected video access 1, got %v", got)
	}
	if got := counterValue(t, rec, "nas_gallery_video_thumb_generation"); got != 1 {
		t.Fatalf("expected video generation 1, got %v", got)
	}
}

func TestThumbnailForNotApplicable(t *testing.T) {
	cache, _, _ := newTestCache(t, nil)

	srcDir := t.TempDir()
	text := filepath.Join(srcDir, "notes.txt")
	if err := os.WriteFile(text, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	image := filepath.Join(srcDir, "p.jpg")
	if err := os.WriteFile(image, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cases := []struct {
		name   string
		size   int
		source string
	}{
		{"non-media extension", 128, text},
		{"directory", 128, srcDir},
		{"missing file", 128, filepath.Join(srcDir, "gone.jpg")},
		{"zero size", 0, image},
		{"oversize", 4096, image},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := cache.ThumbnailFor(context.Background(), tc.size, tc.source)
			if err == nil || !strings.Contains(err.Error(), "not applicable") {
				t.Fatalf("expected not-applicable error, got %v", err)
			}
		})
	}
}

func TestThumbnailForConverterFailureLeavesNoArtifact(t *testing.T) {
	binDir := t.TempDir()
	failing := filepath.Join(binDir, "convert")
	if err := os.WriteFile(failing, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write failing stub: %v", err)
	}

	cache := New(testLogger(), Options{
		Root:    t.TempDir(),
		MaxSize: 1024,
		Tools:   Tools{Convert: failing, Ffmpeg: failing, Composite: failing},
	})

	srcDir := t.TempDir()
	source := filepath.Join(srcDir, "p.jpg")
	if err := os.WriteFile(source, []byte("img"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	if _, err := cache.ThumbnailFor(context.Background(), 128, source); err == nil {
		t.Fatalf("expected error when the converter produces nothing")
	}

	// The failed build left nothing behind, so the next request retries.
	if _, err := os.Stat(cache.ArtifactPath(128, source)); err == nil {
		t.Fatalf("expected no artifact after failed build")
	}
}
