package processor

import (
	"sync"

	"anemochory/domain"
)

// KeyRegistry is the simplest possible application.SessionKeyStore: a
// concurrency-safe map populated by whatever provisions a node's hop of a
// path, such as an out-of-band control channel. Nothing in this repository
// calls Register; cmd/relay starts with an empty registry.
type KeyRegistry struct {
	mu   sync.RWMutex
	keys map[domain.SessionId][]byte
}

// NewKeyRegistry returns an empty registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{keys: make(map[domain.SessionId][]byte)}
}

// Register binds sessionID to key, replacing any prior binding.
func (r *KeyRegistry) Register(sessionID domain.SessionId, key []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[sessionID] = key
}

// Revoke removes sessionID's binding, if any.
func (r *KeyRegistry) Revoke(sessionID domain.SessionId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, sessionID)
}

// Lookup implements application.SessionKeyStore.
func (r *KeyRegistry) Lookup(sessionID domain.SessionId) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[sessionID]
	return key, ok
}
