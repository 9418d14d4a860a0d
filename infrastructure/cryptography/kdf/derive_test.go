package kdf

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"anemochory/domain"
)

func TestDeriveLayerKeyDeterministic(t *testing.T) {
	d := New()
	master := bytes.Repeat([]byte{0x5A}, 32)

	k1, err := d.DeriveLayerKey(master, 2, 5)
	if err != nil {
		t.Fatalf("DeriveLayerKey: %v", err)
	}
	k2, err := d.DeriveLayerKey(master, 2, 5)
	if err != nil {
		t.Fatalf("DeriveLayerKey: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatalf("DeriveLayerKey not deterministic: %x != %x", k1, k2)
	}
	if len(k1) != domain.KeySize {
		t.Fatalf("len = %d, want %d", len(k1), domain.KeySize)
	}
}

func TestDeriveLayerKeyBindsTotalLayers(t *testing.T) {
	d := New()
	master := bytes.Repeat([]byte{0x5A}, 32)

	kN5, err := d.DeriveLayerKey(master, 1, 5)
	if err != nil {
		t.Fatalf("DeriveLayerKey(N=5): %v", err)
	}
	kN7, err := d.DeriveLayerKey(master, 1, 7)
	if err != nil {
		t.Fatalf("DeriveLayerKey(N=7): %v", err)
	}
	if bytes.Equal(kN5, kN7) {
		t.Fatalf("layer key for index 1 is identical across total_layers 5 and 7")
	}
}

func TestDeriveLayerKeyRejectsOutOfRange(t *testing.T) {
	d := New()
	master := bytes.Repeat([]byte{0x01}, 32)

	if _, err := d.DeriveLayerKey(master, 5, 5); !errors.Is(err, domain.ErrKeyDerivationFailed) {
		t.Fatalf("DeriveLayerKey(5,5): err = %v, want %v", err, domain.ErrKeyDerivationFailed)
	}
	if _, err := d.DeriveLayerKey(master, -1, 5); !errors.Is(err, domain.ErrKeyDerivationFailed) {
		t.Fatalf("DeriveLayerKey(-1,5): err = %v, want %v", err, domain.ErrKeyDerivationFailed)
	}
}

func TestDeriveSessionMasterKeyDeterministic(t *testing.T) {
	d := New()
	secret := bytes.Repeat([]byte{0x11}, 32)
	sessionID := bytes.Repeat([]byte{0x22}, 32)
	ts := time.Unix(1_700_000_000, 0)

	k1, err := d.DeriveSessionMasterKey(secret, sessionID, "", ts)
	if err != nil {
		t.Fatalf("DeriveSessionMasterKey: %v", err)
	}
	k2, err := d.DeriveSessionMasterKey(secret, sessionID, DefaultSessionContext, ts)
	if err != nil {
		t.Fatalf("DeriveSessionMasterKey: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatalf("empty context should default to %q, got differing keys", DefaultSessionContext)
	}
}

func TestDeriveSessionMasterKeyBindsTimestamp(t *testing.T) {
	d := New()
	secret := bytes.Repeat([]byte{0x11}, 32)
	sessionID := bytes.Repeat([]byte{0x22}, 32)

	k1, err := d.DeriveSessionMasterKey(secret, sessionID, "", time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("DeriveSessionMasterKey: %v", err)
	}
	k2, err := d.DeriveSessionMasterKey(secret, sessionID, "", time.Unix(1001, 0))
	if err != nil {
		t.Fatalf("DeriveSessionMasterKey: %v", err)
	}
	if bytes.Equal(k1, k2) {
		t.Fatalf("keys at different timestamps must differ")
	}
}

func TestDeriveSessionMasterKeyRejectsEmptySecret(t *testing.T) {
	d := New()
	if _, err := d.DeriveSessionMasterKey(nil, []byte("sid"), "", time.Now()); !errors.Is(err, domain.ErrKeyDerivationFailed) {
		t.Fatalf("err = %v, want %v", err, domain.ErrKeyDerivationFailed)
	}
}
