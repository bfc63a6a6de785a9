// Package registry implements the Prompt Pool whitelist (spec.md §4.4):
// the set of prompt-pool hashes a prove request is allowed to reference.
// Registration is append-mostly and rarely contested, so the package
// keeps a full in-memory cache behind a RWMutex and treats the embedded
// KV store as the durable backing log, rebuilt on open exactly like the
// MMR store rebuilds its peaks.
package registry

import (
	"fmt"
	"sync"

	"github.com/Tenerife-Q/yuanjing-core/internal/canon"
	"github.com/Tenerife-Q/yuanjing-core/internal/kvstore"
	"github.com/Tenerife-Q/yuanjing-core/internal/model"
)

const keyPrefix = "wl/"

// Registry is the durable, whitelist of registered Prompt Pool hashes.
type Registry struct {
	mu    sync.RWMutex
	store *kvstore.Store
	cache map[[32]byte]model.WhitelistEntry
}

// Open rebuilds the in-memory cache from every "wl/" entry in store.
func Open(store *kvstore.Store) (*Registry, error) {
	r := &Registry{
		store: store,
		cache: make(map[[32]byte]model.WhitelistEntry),
	}

	it := store.NewIterator([]byte(keyPrefix))
	for it.Next() {
		entry, err := canon.DecodeWhitelistEntry(it.Value())
		if err != nil {
			return nil, fmt.Errorf("registry: decode %x: %w", it.Key(), err)
		}
		r.cache[entry.Hash] = entry
	}
	return r, nil
}

// Register records hash under description. Re-registering the same
// (hash, description) pair is a no-op that returns AlreadyPresent; a
// hash already registered under a *different* description also returns
// AlreadyPresent, without overwriting the stored entry (spec.md §4.4).
func (r *Registry) Register(hash [32]byte, description string, registeredAt int64) (model.RegisterOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cache[hash]; ok {
		return model.AlreadyPresent, nil
	}

	entry := model.WhitelistEntry{Hash: hash, Description: description, RegisteredAt: registeredAt}
	key := append([]byte(keyPrefix), hash[:]...)
	if err := r.store.Put(key, canon.EncodeWhitelistEntry(entry)); err != nil {
		return "", fmt.Errorf("registry: persist %x: %w", hash, err)
	}
	r.cache[hash] = entry
	return model.Registered, nil
}

// Contains reports whether hash is currently registered.
func (r *Registry) Contains(hash [32]byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[hash]
	return ok
}

// Get returns the registered entry for hash, if any. Used by the HTTP
// layer to report "registered under a different description" instead of
// a bare conflict when a register request collides.
func (r *Registry) Get(hash [32]byte) (model.WhitelistEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[hash]
	return entry, ok
}
