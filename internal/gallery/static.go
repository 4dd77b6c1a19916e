package gallery

import (
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ServeStatic maps a request onto the static site tree, falling back to
// index.html for paths the SPA router owns. Only the coarse identity gate
// applies; the site itself has no per-path rules.
func (g *Gallery) ServeStatic(w http.ResponseWriter, r *http.Request, reqPath string) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}

	rules, _ := g.snapshot()
	if !rules.IdentityAllowed(id) {
		g.opts.Metrics.UnauthorizedStatic(reqPath)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// Collapse any ../ segments before touching the filesystem.
	cleaned := path.Clean("/" + reqPath)
	if strings.Contains(cleaned, "..") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	target := filepath.Join(g.opts.StaticRoot, filepath.FromSlash(cleaned))
	if cleaned != "/" && fileExists(target) {
		g.opts.Metrics.AuthorizedStatic(cleaned)
		http.ServeFile(w, r, target)
		return
	}

	fallback := filepath.Join(g.opts.StaticRoot, "index.html")
	if !fileExists(fallback) {
		g.logger.Error("spa fallback missing, check static_site_path",
			slog.String("requested", reqPath), slog.String("fallback", fallback))
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if cleaned == "/" {
		g.opts.Metrics.AuthorizedStatic("/")
	} else {
		g.opts.Metrics.AuthorizedDynamic()
	}
	http.ServeFile(w, r, fallback)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
