package domain

import "fmt"

// SessionId identifies a key-exchange session. It is distinct from, and
// larger than, the NodeId of a relay: session_ids are generated fresh per
// exchange and never reused.
type SessionId [SessionIDSize]byte

func (id SessionId) String() string {
	return fmt.Sprintf("%x", id[:])
}

// EphemeralKeypair is a one-time X25519 keypair bound to a fresh SessionId,
// produced at the start of a key exchange.
type EphemeralKeypair struct {
	PrivateKey [KeySize]byte
	PublicKey  [KeySize]byte
	SessionID  SessionId
}
