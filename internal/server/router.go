package server

import (
	"net/http"
	"strconv"
	"strings"
)

// GalleryHTTP is the surface the router needs from the gallery
// orchestrator. URL parsing stays here; the gallery only sees the decoded
// target path and route parameters.
type GalleryHTTP interface {
	ServeMedia(w http.ResponseWriter, r *http.Request, path string)
	ServeThumb(w http.ResponseWriter, r *http.Request, size int, path string)
	ServeList(w http.ResponseWriter, r *http.Request, kind, path string)
	ServeAllowed(w http.ResponseWriter, r *http.Request, path string)
	ServeFirstLevel(w http.ResponseWriter, r *http.Request)
	ServeStatic(w http.ResponseWriter, r *http.Request, path string)
}

// NewGalleryHandler dispatches the gallery URL space. Anything that is not
// a recognized API route falls through to the static site, which is what
// lets the SPA own arbitrary client-side paths.
func NewGalleryHandler(g GalleryHTTP) http.Handler {
	if g == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gallery unavailable", http.StatusServiceUnavailable)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		urlPath := r.URL.Path
		switch {
		case urlPath == "/firstlevel":
			g.ServeFirstLevel(w, r)
		case strings.HasPrefix(urlPath, "/path/") || urlPath == "/path":
			g.ServeMedia(w, r, subtreePath(urlPath, "/path"))
		case strings.HasPrefix(urlPath, "/allowed/") || urlPath == "/allowed":
			g.ServeAllowed(w, r, subtreePath(urlPath, "/allowed"))
		case strings.HasPrefix(urlPath, "/thumb/"):
			size, rest, ok := splitParamRoute(urlPath, "/thumb/")
			if !ok {
				http.NotFound(w, r)
				return
			}
			n, err := strconv.Atoi(size)
			if err != nil || n <= 0 {
				http.NotFound(w, r)
				return
			}
			g.ServeThumb(w, r, n, rest)
		case strings.HasPrefix(urlPath, "/list/"):
			kind, rest, ok := splitParamRoute(urlPath, "/list/")
			if !ok {
				http.NotFound(w, r)
				return
			}
			g.ServeList(w, r, kind, rest)
		default:
			g.ServeStatic(w, r, urlPath)
		}
	})
}

// subtreePath turns "/path/a/b" into "/a/b", and a bare prefix into "/".
func subtreePath(urlPath, prefix string) string {
	rest := strings.TrimPrefix(urlPath, prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

// splitParamRoute parses "/<prefix><param>/<rest...>" routes, returning the
// parameter segment and the remainder as an absolute path.
func splitParamRoute(urlPath, prefix string) (param, rest string, ok bool) {
	trimmed := strings.TrimPrefix(urlPath, prefix)
	param, rest, found := strings.Cut(trimmed, "/")
	if param == "" {
		return "", "", false
	}
	if !found {
		return param, "/", true
	}
	return param, "/" + rest, true
}
