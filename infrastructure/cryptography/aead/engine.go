// Package aead implements authenticated encryption for a single onion layer
// or session traffic direction, bound to one 32-byte key.
package aead

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"anemochory/application"
	"anemochory/domain"
)

// Engine implements application.Cipher using ChaCha20-Poly1305 (RFC 8439).
// No associated data is used at this layer; binding is performed by KDF
// context strings at callers.
type Engine struct {
	aead cipher.AEAD
}

// New binds a fresh Engine to key, which must be exactly domain.KeySize bytes.
func New(key []byte) (*Engine, error) {
	if len(key) != domain.KeySize {
		return nil, fmt.Errorf("aead: key must be %d bytes, got %d: %w", domain.KeySize, len(key), domain.ErrKeyDerivationFailed)
	}
	a, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("aead: new cipher: %w", err)
	}
	return &Engine{aead: a}, nil
}

var _ application.Cipher = (*Engine)(nil)

// Encrypt generates a fresh random 96-bit nonce and returns ciphertext of
// length len(plaintext)+16.
func (e *Engine) Encrypt(plaintext []byte) ([domain.NonceSize]byte, []byte, error) {
	var nonce [domain.NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nonce, nil, fmt.Errorf("aead: nonce generation: %w", err)
	}
	ciphertext := e.aead.Seal(nil, nonce[:], plaintext, nil)
	return nonce, ciphertext, nil
}

// Decrypt verifies authenticity and returns the plaintext. It fails with
// domain.ErrAuthenticationFailed if the tag does not verify or the
// ciphertext is shorter than the tag size.
func (e *Engine) Decrypt(nonce [domain.NonceSize]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < domain.AuthTagSize {
		return nil, fmt.Errorf("aead: ciphertext shorter than tag: %w", domain.ErrAuthenticationFailed)
	}
	plaintext, err := e.aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("aead: %w", domain.ErrAuthenticationFailed)
	}
	return plaintext, nil
}

// DecryptBytes is a convenience wrapper for callers holding a nonce as a
// plain slice (e.g. parsed off the wire) rather than an array.
func (e *Engine) DecryptBytes(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != domain.NonceSize {
		return nil, fmt.Errorf("aead: nonce must be %d bytes, got %d: %w", domain.NonceSize, len(nonce), domain.ErrBadNonce)
	}
	var n [domain.NonceSize]byte
	copy(n[:], nonce)
	return e.Decrypt(n, ciphertext)
}
