// Package kdf derives per-layer and per-session keys via HKDF-SHA256,
// binding each derivation to an info string so keys from one context can
// never be mistaken for keys from another.
package kdf

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"anemochory/application"
	"anemochory/domain"
)

// DefaultSessionContext is used by DeriveSessionMasterKey when the caller
// passes an empty context string.
const DefaultSessionContext = "anemochory-session"

// Deriver implements application.KeyDeriver using HKDF-SHA256.
type Deriver struct{}

// New returns a Deriver. It holds no state.
func New() *Deriver { return &Deriver{} }

var _ application.KeyDeriver = (*Deriver)(nil)

// DeriveLayerKey derives the key for one onion layer. Binding totalLayers
// into the info string prevents a key from an N-layer path being misused
// at index i of an M-layer path.
func (d *Deriver) DeriveLayerKey(master []byte, layerIndex, totalLayers int) ([]byte, error) {
	if layerIndex < 0 || totalLayers <= 0 || layerIndex >= totalLayers {
		return nil, fmt.Errorf("kdf: layer index %d out of range for %d layers: %w", layerIndex, totalLayers, domain.ErrKeyDerivationFailed)
	}
	info := fmt.Sprintf("anemochory-layer-%d-of-%d", layerIndex, totalLayers)
	return expand(master, nil, info)
}

// DeriveSessionMasterKey binds shared_secret, session_id, context, and
// timestamp together so replaying an observed shared secret under the same
// session_id in a later epoch yields a different key.
func (d *Deriver) DeriveSessionMasterKey(sharedSecret, sessionID []byte, context string, timestamp time.Time) ([]byte, error) {
	if len(sharedSecret) == 0 {
		return nil, fmt.Errorf("kdf: empty shared secret: %w", domain.ErrKeyDerivationFailed)
	}
	if context == "" {
		context = DefaultSessionContext
	}
	info := fmt.Sprintf("%s|%s|%d", context, hex.EncodeToString(sessionID), timestamp.Unix())
	return expand(sharedSecret, nil, info)
}

func expand(secret, salt []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	out := make([]byte, domain.KeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("kdf: expand: %w", domain.ErrKeyDerivationFailed)
	}
	return out, nil
}
