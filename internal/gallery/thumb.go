package gallery

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/MindFlavor/nas-gallery/internal/thumbs"
)

// ServeThumb returns the cached thumbnail for a media file, generating it
// on first access. Denied and non-thumbnailable requests alike answer 404;
// the thumbnail surface never distinguishes "forbidden" from "absent".
func (g *Gallery) ServeThumb(w http.ResponseWriter, r *http.Request, size int, path string) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}

	if !g.isAllowed(r.Context(), path, id.Email) {
		g.opts.Metrics.UnauthorizedThumb()
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	g.opts.Metrics.AuthorizedThumb()

	artifact, err := g.opts.Thumbs.ThumbnailFor(r.Context(), size, path)
	if err != nil {
		if !errors.Is(err, thumbs.ErrNotApplicable) {
			g.logger.Warn("thumbnail generation failed",
				slog.String("path", path), slog.Any("error", err))
		}
		w.WriteHeader(http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, artifact)
}
