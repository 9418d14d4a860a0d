package aead

import (
	"bytes"
	"errors"
	"testing"

	"anemochory/domain"
)

func mustEngine(t *testing.T, key []byte) *Engine {
	t.Helper()
	e, err := New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestEngineRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, domain.KeySize)
	e := mustEngine(t, key)

	plaintext := []byte("the owls are not what they seem")
	nonce, ciphertext, err := e.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(ciphertext) != len(plaintext)+domain.AuthTagSize {
		t.Fatalf("ciphertext length = %d, want %d", len(ciphertext), len(plaintext)+domain.AuthTagSize)
	}

	got, err := e.Decrypt(nonce, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("Decrypt = %q, want %q", got, plaintext)
	}
}

func TestEngineWrongKeyFails(t *testing.T) {
	keyA := bytes.Repeat([]byte{0x01}, domain.KeySize)
	keyB := bytes.Repeat([]byte{0x02}, domain.KeySize)
	eA := mustEngine(t, keyA)
	eB := mustEngine(t, keyB)

	nonce, ciphertext, err := eA.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := eB.Decrypt(nonce, ciphertext); !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("Decrypt with wrong key: err = %v, want %v", err, domain.ErrAuthenticationFailed)
	}
}

func TestEngineTamperedCiphertextFails(t *testing.T) {
	key := bytes.Repeat([]byte{0x09}, domain.KeySize)
	e := mustEngine(t, key)

	nonce, ciphertext, err := e.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	tampered := bytes.Clone(ciphertext)
	tampered[0] ^= 0xFF

	if _, err := e.Decrypt(nonce, tampered); !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("Decrypt tampered: err = %v, want %v", err, domain.ErrAuthenticationFailed)
	}
}

func TestEngineShortCiphertextFails(t *testing.T) {
	key := bytes.Repeat([]byte{0x0A}, domain.KeySize)
	e := mustEngine(t, key)

	var nonce [domain.NonceSize]byte
	if _, err := e.Decrypt(nonce, []byte{1, 2, 3}); !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("Decrypt short ciphertext: err = %v, want %v", err, domain.ErrAuthenticationFailed)
	}
}

func TestEngineNonceUniqueness(t *testing.T) {
	key := bytes.Repeat([]byte{0x77}, domain.KeySize)
	e := mustEngine(t, key)

	seen := make(map[[domain.NonceSize]byte]struct{})
	for i := 0; i < 1000; i++ {
		nonce, _, err := e.Encrypt([]byte("x"))
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if _, dup := seen[nonce]; dup {
			t.Fatalf("nonce repeated after %d encryptions", i)
		}
		seen[nonce] = struct{}{}
	}
}

func TestNewRejectsBadKeySize(t *testing.T) {
	if _, err := New(make([]byte, 16)); !errors.Is(err, domain.ErrKeyDerivationFailed) {
		t.Fatalf("New with short key: err = %v, want %v", err, domain.ErrKeyDerivationFailed)
	}
}

func TestDecryptBytesRejectsBadNonceSize(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, domain.KeySize)
	e := mustEngine(t, key)

	if _, err := e.DecryptBytes(make([]byte, 4), []byte("whatever")); !errors.Is(err, domain.ErrBadNonce) {
		t.Fatalf("DecryptBytes with bad nonce: err = %v, want %v", err, domain.ErrBadNonce)
	}
}
