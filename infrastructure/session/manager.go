// Package session implements the per-link session state machine: key
// exchange, establishment, and the encrypt/decrypt operations a session in
// the Established state exposes over its own rotation and replay state.
package session

import (
	"fmt"
	"sync"

	"anemochory/application"
	"anemochory/domain"
	"anemochory/infrastructure/cryptography/replay"
	"anemochory/infrastructure/cryptography/rotation"
)

// sessionMasterContext is the KDF context string bound into every derived
// session master key.
const sessionMasterContext = "anemochory-session"

// Session is a state machine over {Created, InitiatingExchange,
// Established, Closed}. Every operation outside the transitions the
// lifecycle table allows returns domain.ErrSessionStateError.
type Session struct {
	mu sync.Mutex

	keyExchanger application.KeyExchanger
	deriver      application.KeyDeriver
	wiper        application.Wiper
	clock        application.Clock

	state      domain.SessionState
	sessionID  domain.SessionId
	ourPrivate []byte

	rotation *rotation.Manager
	replay   *replay.Protector
	seq      uint64
}

// New returns a Session in the Created state.
func New(keyExchanger application.KeyExchanger, deriver application.KeyDeriver, wiper application.Wiper, clock application.Clock) *Session {
	return &Session{
		keyExchanger: keyExchanger,
		deriver:      deriver,
		wiper:        wiper,
		clock:        clock,
		state:        domain.SessionCreated,
	}
}

// State reports the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the session_id assigned at key exchange initiation or
// establishment. It is the zero value before either has happened.
func (s *Session) SessionID() domain.SessionId {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// InitiateKeyExchange generates an ephemeral keypair and session_id,
// transitioning Created -> InitiatingExchange. It returns the public key
// to send to the peer.
func (s *Session) InitiateKeyExchange() (publicKey []byte, sessionID domain.SessionId, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionCreated {
		return nil, domain.SessionId{}, s.illegal("initiate_key_exchange")
	}

	keypair, err := s.keyExchanger.GenerateSessionKeypair()
	if err != nil {
		return nil, domain.SessionId{}, fmt.Errorf("session: generate keypair: %w", err)
	}

	s.ourPrivate = append([]byte{}, keypair.PrivateKey[:]...)
	s.sessionID = keypair.SessionID
	s.state = domain.SessionInitiatingExchange
	pub := append([]byte{}, keypair.PublicKey[:]...)
	return pub, s.sessionID, nil
}

// CompleteKeyExchange derives the shared secret and session master key from
// peerPublic and our stored ephemeral private key, constructs the rotation
// and replay state, and transitions InitiatingExchange -> Established.
func (s *Session) CompleteKeyExchange(peerPublic []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionInitiatingExchange {
		return s.illegal("complete_key_exchange")
	}

	shared, err := s.keyExchanger.DeriveSharedSecret(s.ourPrivate, peerPublic)
	if err != nil {
		return fmt.Errorf("session: derive shared secret: %w", err)
	}
	return s.establishLocked(shared)
}

// EstablishWithSharedKey skips key exchange, deriving the session master
// key directly from an out-of-band shared key. Created -> Established.
func (s *Session) EstablishWithSharedKey(sharedKey []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionCreated {
		return s.illegal("establish_with_shared_key")
	}
	if (s.sessionID == domain.SessionId{}) {
		keypair, err := s.keyExchanger.GenerateSessionKeypair()
		if err != nil {
			return fmt.Errorf("session: generate session_id: %w", err)
		}
		s.sessionID = keypair.SessionID
	}
	return s.establishLocked(sharedKey)
}

func (s *Session) establishLocked(shared []byte) error {
	master, err := s.deriver.DeriveSessionMasterKey(shared, s.sessionID[:], sessionMasterContext, s.clock.Now())
	if err != nil {
		return fmt.Errorf("session: derive master key: %w", err)
	}

	rotationMgr, err := rotation.New(master, s.wiper, s.clock)
	if err != nil {
		return fmt.Errorf("session: construct rotation manager: %w", err)
	}
	s.wiper.Zero(master)

	s.rotation = rotationMgr
	s.replay = replay.New(s.clock)
	s.state = domain.SessionEstablished
	return nil
}

// Encrypt seals plaintext under the session's current rotating key and
// records the resulting nonce into this session's own replay protector, so
// a reflected copy of one of our own packets is recognized as a replay.
func (s *Session) Encrypt(plaintext []byte) (nonce [domain.NonceSize]byte, ciphertext []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionEstablished {
		return nonce, nil, s.illegal("encrypt")
	}

	nonce, ciphertext, err = s.rotation.Encrypt(plaintext)
	if err != nil {
		return nonce, nil, err
	}
	s.seq++
	s.replay.MarkSeen(nonce, s.sessionID)
	return nonce, ciphertext, nil
}

// Decrypt validates freshness and replay state against metadata, then
// delegates to the rotation manager, which tries the current key and any
// still-valid grace keys. A fresh success is marked seen.
func (s *Session) Decrypt(nonce [domain.NonceSize]byte, ciphertext []byte, metadata domain.PacketMetadata) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionEstablished {
		return nil, s.illegal("decrypt")
	}

	if !s.replay.ValidateFreshness(metadata) {
		return nil, fmt.Errorf("session: %w", domain.ErrExpired)
	}
	if s.replay.IsSeen(nonce, s.sessionID) {
		return nil, fmt.Errorf("session: %w", domain.ErrReplayDetected)
	}

	plaintext, err := s.rotation.Decrypt(nonce, ciphertext)
	if err != nil {
		return nil, err
	}
	s.replay.MarkSeen(nonce, s.sessionID)
	s.replay.AdvanceHighWater(s.sessionID, metadata.Seq)
	return plaintext, nil
}

// NextMetadata builds the freshness metadata for the session's next
// outbound packet, with a monotonically increasing sequence number.
func (s *Session) NextMetadata() domain.PacketMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return domain.PacketMetadata{SessionID: s.sessionID, Seq: s.seq, Timestamp: s.clock.Now()}
}

// Close wipes the rotation manager's keys and the ephemeral private key,
// then transitions to Closed from any state. Closing an already-closed
// session is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return
	}
	if s.rotation != nil {
		s.rotation.Close()
	}
	if s.ourPrivate != nil {
		s.wiper.Zero(s.ourPrivate)
	}
	s.state = domain.SessionClosed
}

func (s *Session) illegal(op string) error {
	return fmt.Errorf("session: %s is illegal in state %s: %w", op, s.state, domain.ErrSessionStateError)
}
