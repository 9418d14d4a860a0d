package application

import "anemochory/domain"

// KeyExchanger generates ephemeral X25519 keypairs and derives the shared
// secret both parties of an exchange converge on.
type KeyExchanger interface {
	// GenerateSessionKeypair returns a fresh ephemeral keypair and session_id.
	// Every call must yield unique session_ids and public keys with
	// overwhelming probability.
	GenerateSessionKeypair() (domain.EphemeralKeypair, error)
	// DeriveSharedSecret performs X25519 ECDH. It fails if theirPublic is
	// not 32 bytes or is an invalid curve point.
	DeriveSharedSecret(ourPrivate, theirPublic []byte) ([]byte, error)
}
