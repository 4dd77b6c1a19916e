// Package cache holds the optional access-decision cache. The engine is a
// pure function of the rule snapshot, so caching a decision can only ever
// replay an identical answer; the cache exists to skip the rule walk on hot
// paths, not to change outcomes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultNamespace prefixes every cache key. Bumping the version segment
// invalidates all persisted entries at once.
const DefaultNamespace = "nas-gallery:decision:v1"

// Entry is one cached access decision.
type Entry struct {
	Allowed   bool      `json:"allowed"`
	StoredAt  time.Time `json:"storedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DecisionCache abstracts the decision cache backends. Implementations must
// be safe for concurrent use by request handlers.
type DecisionCache interface {
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, key string, entry Entry) error
	DeletePrefix(ctx context.Context, prefix string) error
	Size(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

// ReloadScope names the key prefix that a rule reload invalidates.
type ReloadScope struct {
	Namespace string
	Epoch     int
}

// Prefix renders the invalidation prefix for the scope.
func (s ReloadScope) Prefix() string {
	namespace := s.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return fmt.Sprintf("%s:%d:", namespace, s.Epoch)
}

// Key derives the cache key for a decision. The email and path are hashed
// so arbitrary filesystem paths never leak into backend key listings.
func Key(scope ReloadScope, email, path string) string {
	sum := sha256.Sum256([]byte(email + "|" + path))
	return scope.Prefix() + hex.EncodeToString(sum[:])
}
