package application

import "anemochory/domain"

// Cipher is bound to exactly one 32-byte key and performs authenticated
// encryption for a single onion layer or session traffic direction.
type Cipher interface {
	// Encrypt generates a fresh random nonce and returns ciphertext of
	// length len(plaintext)+16.
	Encrypt(plaintext []byte) (nonce [domain.NonceSize]byte, ciphertext []byte, err error)
	// Decrypt verifies authenticity and returns the plaintext.
	Decrypt(nonce [domain.NonceSize]byte, ciphertext []byte) ([]byte, error)
}
