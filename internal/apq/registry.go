// Package apq implements the persisted-query registry backing the
// Automatic Persisted Queries protocol: a stable SHA-256 hash mapped to the
// full GraphQL document it represents.
package apq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Registry maps a query hash to its full document text. Entries are
// immutable in practice: re-registration with the same hash is idempotent
// and last-write-wins, and nothing is evicted implicitly.
type Registry interface {
	// Register stores or overwrites the mapping. It never fails on
	// repeated hashes.
	Register(ctx context.Context, hash, queryText string) error

	// Lookup returns the stored text, or found=false when the hash has
	// never been registered.
	Lookup(ctx context.Context, hash string) (queryText string, found bool, err error)

	// IsRegistered reports whether the hash is known.
	IsRegistered(ctx context.Context, hash string) (bool, error)
}

// HashQuery computes the canonical hex-encoded SHA-256 of a query document,
// used to verify client-supplied hashes on registration.
func HashQuery(queryText string) string {
	sum := sha256.Sum256([]byte(queryText))
	return hex.EncodeToString(sum[:])
}

// MemoryRegistry is the in-process default backend. State is per gateway
// instance; deployments needing cross-instance sharing use the Redis or
// Postgres backends instead.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]string)}
}

// Register implements Registry.
func (r *MemoryRegistry) Register(_ context.Context, hash, queryText string) error {
	r.mu.Lock()
	r.entries[hash] = queryText
	r.mu.Unlock()
	return nil
}

// Lookup implements Registry.
func (r *MemoryRegistry) Lookup(_ context.Context, hash string) (string, bool, error) {
	r.mu.RLock()
	text, ok := r.entries[hash]
	r.mu.RUnlock()
	return text, ok, nil
}

// IsRegistered implements Registry.
func (r *MemoryRegistry) IsRegistered(ctx context.Context, hash string) (bool, error) {
	_, ok, err := r.Lookup(ctx, hash)
	return ok, err
}

// Len returns the number of registered queries.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
