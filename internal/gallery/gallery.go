// Package gallery orchestrates the media-gallery request surface: it holds
// the live rule snapshot, asks the access engine for decisions, and
// composes responses from the thumbnail cache, the filesystem, and the
// static site tree.
package gallery

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/MindFlavor/nas-gallery/internal/access"
	"github.com/MindFlavor/nas-gallery/internal/access/cache"
	"github.com/MindFlavor/nas-gallery/internal/audit"
	"github.com/MindFlavor/nas-gallery/internal/config"
	"github.com/MindFlavor/nas-gallery/internal/metrics"
	"github.com/MindFlavor/nas-gallery/internal/thumbs"
)

// Options wires the gallery's collaborators. Only StaticRoot is mandatory;
// nil metrics, a disabled audit sink, and a nil decision cache all degrade
// to no-ops.
type Options struct {
	StaticRoot        string
	CORSOrigin        string
	SegmentBoundaries bool

	Thumbs  *thumbs.Cache
	Audit   *audit.Sink
	Metrics *metrics.Recorder

	DecisionCache cache.DecisionCache
	CacheTTL      time.Duration
}

// Gallery serves every authenticated endpoint. The rule snapshot swaps
// atomically under the mutex on reload; everything else is fixed at
// construction.
type Gallery struct {
	logger *slog.Logger
	opts   Options

	mu    sync.RWMutex
	rules *access.Ruleset
	epoch int
}

// New builds the gallery with an initial rule snapshot.
func New(logger *slog.Logger, opts Options, groups []config.Group, folders []config.Folder) *Gallery {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gallery{
		logger: logger.With(slog.String("component", "gallery")),
		opts:   opts,
		epoch:  1,
	}
	g.rules = access.NewRuleset(logger, groups, folders, opts.SegmentBoundaries)
	return g
}

// Reload swaps in a new rule snapshot and retires the cached decisions of
// the previous one. Requests in flight keep the snapshot they started with.
func (g *Gallery) Reload(ctx context.Context, groups []config.Group, folders []config.Folder) {
	g.mu.Lock()
	previous := cache.ReloadScope{Epoch: g.epoch}
	g.epoch++
	g.rules = access.NewRuleset(g.logger, groups, folders, g.opts.SegmentBoundaries)
	g.mu.Unlock()

	if g.opts.DecisionCache != nil {
		if err := g.opts.DecisionCache.DeletePrefix(ctx, previous.Prefix()); err != nil {
			g.logger.Error("decision cache purge failed", slog.Any("error", err))
		}
	}
	g.logger.Info("access rules reloaded",
		slog.Int("groups", len(groups)), slog.Int("folders", len(folders)))
}

// Close releases the decision cache backend.
func (g *Gallery) Close(ctx context.Context) error {
	if g.opts.DecisionCache == nil {
		return nil
	}
	return g.opts.DecisionCache.Close(ctx)
}

// snapshot returns the current rules and the cache scope they answer under.
func (g *Gallery) snapshot() (*access.Ruleset, cache.ReloadScope) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rules, cache.ReloadScope{Epoch: g.epoch}
}

// isAllowed resolves one path decision, consulting the decision cache when
// configured. Every invocation leaves one audit "check" record, cache hit
// or not, classified by whether the target is a directory on disk.
func (g *Gallery) isAllowed(ctx context.Context, path, email string) bool {
	rules, scope := g.snapshot()

	allowed, cached := g.cachedDecision(ctx, scope, path, email)
	if !cached {
		allowed = rules.IsAllowed(path, email)
		g.storeDecision(ctx, scope, path, email, allowed)
	}

	objType := "file"
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		objType = "directory"
	}
	g.opts.Audit.Record(email, objType, path, "check", allowed)

	return allowed
}

func (g *Gallery) cachedDecision(ctx context.Context, scope cache.ReloadScope, path, email string) (bool, bool) {
	if g.opts.DecisionCache == nil {
		return false, false
	}
	entry, ok, err := g.opts.DecisionCache.Lookup(ctx, cache.Key(scope, email, path))
	switch {
	case err != nil:
		g.opts.Metrics.ObserveCacheLookup(metrics.CacheLookupError)
		g.logger.Warn("decision cache lookup failed", slog.Any("error", err))
		return false, false
	case !ok:
		g.opts.Metrics.ObserveCacheLookup(metrics.CacheLookupMiss)
		return false, false
	default:
		g.opts.Metrics.ObserveCacheLookup(metrics.CacheLookupHit)
		return entry.Allowed, true
	}
}

func (g *Gallery) storeDecision(ctx context.Context, scope cache.ReloadScope, path, email string, allowed bool) {
	if g.opts.DecisionCache == nil {
		return
	}
	ttl := g.opts.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	now := time.Now().UTC()
	err := g.opts.DecisionCache.Store(ctx, cache.Key(scope, email, path), cache.Entry{
		Allowed:   allowed,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	g.opts.Metrics.ObserveCacheStore(err)
	if err != nil {
		g.logger.Warn("decision cache store failed", slog.Any("error", err))
	}
}

// identity pulls the caller identity off the request, answering 401 and
// reporting false when the request is anonymous.
func (g *Gallery) identity(w http.ResponseWriter, r *http.Request) (access.Identity, bool) {
	id, ok := access.IdentityFromRequest(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return access.Identity{}, false
	}
	return id, true
}

// ServeAllowed reports the engine's decision for the path as a bare JSON
// boolean. There is no authorization gate beyond needing an identity to
// decide for.
func (g *Gallery) ServeAllowed(w http.ResponseWriter, r *http.Request, path string) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}
	g.writeJSON(w, g.isAllowed(r.Context(), path, id.Email))
}

// ServeFirstLevel returns the precomputed top-level entry points for the
// caller. The audit record lands before the admission gate, mirroring the
// decision log of the original service.
func (g *Gallery) ServeFirstLevel(w http.ResponseWriter, r *http.Request) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}
	g.opts.Audit.Record(id.Email, "first_level_folders", "", "list", true)

	rules, _ := g.snapshot()
	if !rules.IdentityAllowed(id) {
		g.opts.Metrics.UnauthorizedFirstLevel()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	g.opts.Metrics.AuthorizedFirstLevel()
	g.writeJSON(w, rules.FirstLevel(id.Email))
}

// writeJSON emits a JSON payload with the configured CORS header.
func (g *Gallery) writeJSON(w http.ResponseWriter, payload any) {
	if g.opts.CORSOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", g.opts.CORSOrigin)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		g.logger.Error("response encoding failed", slog.Any("error", err))
	}
}
