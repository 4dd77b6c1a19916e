package gallery

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/MindFlavor/nas-gallery/internal/metrics"
	"github.com/MindFlavor/nas-gallery/internal/thumbs"
)

// FileWithSize is one listing entry. Size is present for files and omitted
// for folders.
type FileWithSize struct {
	Path string `json:"path"`
	Size *int64 `json:"size,omitempty"`
}

// auditTypeFor maps a listing kind onto its audit object type.
func auditTypeFor(kind metrics.FileType) string {
	switch kind {
	case metrics.FileTypePreview:
		return "preview"
	case metrics.FileTypeExtra:
		return "extra"
	default:
		return "folder"
	}
}

// ServeList enumerates one directory, partitioned by kind: Preview returns
// media files with sizes, Extra the remaining files with sizes, Folder the
// subdirectories the caller may enter.
func (g *Gallery) ServeList(w http.ResponseWriter, r *http.Request, kindSegment, path string) {
	kind, ok := metrics.ParseFileType(kindSegment)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	id, identified := g.identity(w, r)
	if !identified {
		return
	}

	if !g.isAllowed(r.Context(), path, id.Email) {
		g.opts.Metrics.UnauthorizedList(kind)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	g.opts.Metrics.AuthorizedList(kind)

	entries, err := os.ReadDir(path)
	if err != nil {
		g.logger.Error("directory listing failed",
			slog.String("path", path), slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	items := make([]FileWithSize, 0, len(entries))
	for _, entry := range entries {
		full := filepath.Join(path, entry.Name())
		switch kind {
		case metrics.FileTypePreview, metrics.FileTypeExtra:
			if entry.IsDir() {
				continue
			}
			if thumbs.IsMedia(full) != (kind == metrics.FileTypePreview) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				g.logger.Error("listing stat failed",
					slog.String("path", full), slog.Any("error", err))
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			size := info.Size()
			items = append(items, FileWithSize{Path: full, Size: &size})
		case metrics.FileTypeFolder:
			if !entry.IsDir() {
				continue
			}
			if !g.isAllowed(r.Context(), full, id.Email) {
				continue
			}
			items = append(items, FileWithSize{Path: full})
		}
	}

	g.opts.Audit.Record(id.Email, auditTypeFor(kind), path, "list", true)
	g.writeJSON(w, items)
}
