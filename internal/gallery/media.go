package gallery

import (
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/MindFlavor/nas-gallery/internal/thumbs"
)

// contentTypeFallbacks covers the media extensions the platform mime table
// routinely misses, video containers above all.
var contentTypeFallbacks = map[string]string{
	"mkv":  "video/mp4",
	"mp4":  "video/mp4",
	"avi":  "video/x-msvideo",
	"webm": "video/webm",
	"webp": "image/webp",
	"ogv":  "video/ogg",
	"mpeg": "video/mpeg",
}

// contentTypeFor resolves the response content type for an extension. The
// system mime table wins; unknown extensions degrade to an octet stream.
func contentTypeFor(ext string) string {
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	if ct, ok := contentTypeFallbacks[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ServeMedia streams one media file from the protected tree. Directories,
// extensionless paths, and non-media extensions all answer 404 so the URL
// space leaks nothing about the tree layout.
func (g *Gallery) ServeMedia(w http.ResponseWriter, r *http.Request, path string) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}

	if !g.isAllowed(r.Context(), path, id.Email) {
		g.opts.Metrics.UnauthorizedStatic(path)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		g.opts.Metrics.AuthorizedNotFound()
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if !thumbs.IsMedia(path) {
		g.opts.Metrics.AuthorizedNotFound()
		w.WriteHeader(http.StatusNotFound)
		return
	}

	g.opts.Metrics.AuthorizedDynamic()
	g.opts.Audit.Record(id.Email, "image/video", path, "get", true)

	file, err := os.Open(path)
	if err != nil {
		g.logger.Debug("media open failed", slog.String("path", path), slog.Any("error", err))
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(ext))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), file)
}
