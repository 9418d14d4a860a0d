// Package rotation manages a forward-only ratcheting chain of session keys,
// rotating on packet count or key age and retaining a bounded grace deque so
// in-flight packets encrypted under a just-displaced key still decrypt.
package rotation

import (
	"container/list"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"anemochory/application"
	"anemochory/domain"
	"anemochory/infrastructure/cryptography/aead"
)

// graceEntry is one displaced key retained for decryption of in-flight
// packets, alongside its ratchet index and the time it was displaced.
type graceEntry struct {
	index     int
	key       []byte
	displaced time.Time
}

// Manager ratchets a chain of AEAD keys forward from a session master key.
// Every exported method takes the internal mutex, so a Manager is safe for
// concurrent use.
type Manager struct {
	mu sync.Mutex

	wiper application.Wiper
	clock application.Clock

	currentKey   []byte
	currentIndex int
	packetCount  uint64
	keySince     time.Time

	grace *list.List // of *graceEntry, most-recently-displaced at Back
}

// New derives the initial session key from master and starts the ratchet
// chain at index 0.
func New(master []byte, wiper application.Wiper, clock application.Clock) (*Manager, error) {
	initial, err := ratchetExpand(master, "anemochory-initial-session")
	if err != nil {
		return nil, fmt.Errorf("rotation: initial key: %w", err)
	}
	return &Manager{
		wiper:        wiper,
		clock:        clock,
		currentKey:   initial,
		currentIndex: 0,
		keySince:     clock.Now(),
		grace:        list.New(),
	}, nil
}

// ratchetExpand is HKDF(secret, info) with no salt, exactly as §4.6 defines
// the initial-key and per-ratchet derivations.
func ratchetExpand(secret []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	out := make([]byte, domain.KeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w", domain.ErrKeyDerivationFailed)
	}
	return out, nil
}

// CurrentKey returns the active key and its ratchet index.
func (m *Manager) CurrentKey() ([]byte, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentKey, m.currentIndex
}

// RecordUse increments the packet counter for the active key and rotates if
// either trigger (packet count or key age) fires. Call once per encryption
// performed under the key returned by CurrentKey.
func (m *Manager) RecordUse() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packetCount++
	now := m.clock.Now()
	if m.packetCount >= domain.RotationMaxPacketsPerKey || now.Sub(m.keySince) >= domain.RotationMaxKeyAge {
		return m.rotateLocked(now)
	}
	return nil
}

func (m *Manager) rotateLocked(now time.Time) error {
	nextIndex := m.currentIndex + 1
	next, err := ratchetExpand(m.currentKey, fmt.Sprintf("anemochory-ratchet-%d", nextIndex))
	if err != nil {
		return fmt.Errorf("rotation: ratchet: %w", err)
	}

	m.grace.PushBack(&graceEntry{index: m.currentIndex, key: m.currentKey, displaced: now})
	for m.grace.Len() > domain.RotationGraceDequeCapacity {
		front := m.grace.Remove(m.grace.Front()).(*graceEntry)
		m.wiper.Zero(front.key)
	}

	m.currentKey = next
	m.currentIndex = nextIndex
	m.packetCount = 0
	m.keySince = now
	return nil
}

// Encrypt seals plaintext under the current key and records the use,
// rotating the chain if a trigger fires.
func (m *Manager) Encrypt(plaintext []byte) (nonce [domain.NonceSize]byte, ciphertext []byte, err error) {
	key, _ := m.CurrentKey()
	engine, err := aead.New(key)
	if err != nil {
		return nonce, nil, fmt.Errorf("rotation: encrypt: %w", err)
	}
	nonce, ciphertext, err = engine.Encrypt(plaintext)
	if err != nil {
		return nonce, nil, fmt.Errorf("rotation: encrypt: %w", err)
	}
	if err := m.RecordUse(); err != nil {
		return nonce, nil, fmt.Errorf("rotation: encrypt: %w", err)
	}
	return nonce, ciphertext, nil
}

// Decrypt tries the current key, then grace-deque keys in most-recent-first
// order, skipping entries older than domain.RotationGracePeriod. If every
// candidate fails, it returns domain.ErrAuthenticationFailed.
func (m *Manager) Decrypt(nonce [domain.NonceSize]byte, ciphertext []byte) ([]byte, error) {
	for _, key := range m.candidateKeys() {
		engine, err := aead.New(key)
		if err != nil {
			continue
		}
		if plaintext, err := engine.Decrypt(nonce, ciphertext); err == nil {
			return plaintext, nil
		}
	}
	return nil, fmt.Errorf("rotation: decrypt: %w", domain.ErrAuthenticationFailed)
}

// candidateKeys returns the current key followed by non-expired grace keys,
// most-recently-displaced first.
func (m *Manager) candidateKeys() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([][]byte, 0, 1+m.grace.Len())
	keys = append(keys, m.currentKey)
	now := m.clock.Now()
	for e := m.grace.Back(); e != nil; e = e.Prev() {
		entry := e.Value.(*graceEntry)
		if now.Sub(entry.displaced) <= domain.RotationGracePeriod {
			keys = append(keys, entry.key)
		}
	}
	return keys
}

// Close wipes the current key and every grace-deque key. Call once when the
// owning session closes; the Manager must not be used afterward.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wiper.Zero(m.currentKey)
	for e := m.grace.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*graceEntry)
		m.wiper.Zero(entry.key)
	}
	m.grace.Init()
}

// FindDecryptKey returns the key active at keyIndex: the current key, or a
// grace key if it is still within domain.RotationGracePeriod of its
// displacement. ok is false once no candidate key remains, meaning the
// packet is too old to decrypt.
func (m *Manager) FindDecryptKey(keyIndex int) (key []byte, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if keyIndex == m.currentIndex {
		return m.currentKey, true
	}

	now := m.clock.Now()
	for e := m.grace.Back(); e != nil; e = e.Prev() {
		entry := e.Value.(*graceEntry)
		if entry.index != keyIndex {
			continue
		}
		if now.Sub(entry.displaced) <= domain.RotationGracePeriod {
			return entry.key, true
		}
		return nil, false
	}
	return nil, false
}
