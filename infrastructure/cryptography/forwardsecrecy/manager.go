// Package forwardsecrecy generates ephemeral X25519 keypairs and derives the
// shared secret for a session key exchange, so that compromise of a
// long-term key never exposes past session traffic.
package forwardsecrecy

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"

	"anemochory/application"
	"anemochory/domain"
)

// Manager implements application.KeyExchanger using X25519.
type Manager struct{}

// New returns a Manager. It holds no state.
func New() *Manager { return &Manager{} }

var _ application.KeyExchanger = (*Manager)(nil)

// GenerateSessionKeypair draws a random X25519 private key, derives the
// corresponding public key, and mints a fresh random session_id.
func (m *Manager) GenerateSessionKeypair() (domain.EphemeralKeypair, error) {
	var kp domain.EphemeralKeypair
	if _, err := io.ReadFull(rand.Reader, kp.PrivateKey[:]); err != nil {
		return domain.EphemeralKeypair{}, fmt.Errorf("forwardsecrecy: private key generation: %w", domain.ErrKeyExchangeFailed)
	}
	pub, err := curve25519.X25519(kp.PrivateKey[:], curve25519.Basepoint)
	if err != nil {
		return domain.EphemeralKeypair{}, fmt.Errorf("forwardsecrecy: public key derivation: %w", domain.ErrKeyExchangeFailed)
	}
	copy(kp.PublicKey[:], pub)
	if _, err := io.ReadFull(rand.Reader, kp.SessionID[:]); err != nil {
		return domain.EphemeralKeypair{}, fmt.Errorf("forwardsecrecy: session id generation: %w", domain.ErrKeyExchangeFailed)
	}
	return kp, nil
}

// DeriveSharedSecret performs X25519 ECDH. curve25519.X25519 already rejects
// low-order points, which would otherwise collapse the shared secret to a
// small, attacker-predictable set.
func (m *Manager) DeriveSharedSecret(ourPrivate, theirPublic []byte) ([]byte, error) {
	if len(theirPublic) != domain.KeySize {
		return nil, fmt.Errorf("forwardsecrecy: peer public key must be %d bytes, got %d: %w", domain.KeySize, len(theirPublic), domain.ErrKeyExchangeFailed)
	}
	if len(ourPrivate) != domain.KeySize {
		return nil, fmt.Errorf("forwardsecrecy: private key must be %d bytes, got %d: %w", domain.KeySize, len(ourPrivate), domain.ErrKeyExchangeFailed)
	}
	secret, err := curve25519.X25519(ourPrivate, theirPublic)
	if err != nil {
		return nil, fmt.Errorf("forwardsecrecy: %w: %v", domain.ErrKeyExchangeFailed, err)
	}
	return secret, nil
}
