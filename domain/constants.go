// Package domain holds the wire-level constants and pure value types shared
// across the Anemochory packet, routing, and session packages. Nothing here
// owns mutable key material or performs I/O.
package domain

import "time"

const (
	// KeySize is the size in bytes of an AEAD key and of a derived layer key.
	KeySize = 32
	// NonceSize is the size in bytes of a ChaCha20-Poly1305 nonce.
	NonceSize = 12
	// AuthTagSize is the size in bytes of the Poly1305 authentication tag.
	AuthTagSize = 16
	// SessionIDSize is the size in bytes of a SessionId.
	SessionIDSize = 32
	// NodeIDSize is the size in bytes of a NodeId.
	NodeIDSize = 16

	// PacketSize is the fixed total size of every packet on the wire.
	PacketSize = 1024
	// HeaderSize is the size in bytes of PacketHeader.
	HeaderSize = SessionIDSize + NonceSize + 1 + 1 + 2 // 48
	// InnerPacketSize is the space left for onion layers after the header.
	InnerPacketSize = PacketSize - HeaderSize

	// RoutingInfoSize is the fixed serialized size of LayerRoutingInfo.
	RoutingInfoSize = 16 + 2 + 8 + SessionIDSize + 2 + 4 // 64
	// LayerOverhead is the per-layer cost of routing info, nonce, and tag.
	LayerOverhead = RoutingInfoSize + NonceSize + AuthTagSize // 92

	MinHops     = 3
	MaxHops     = 7
	MinPoolSize = 9

	// MaxExitPayloadSize bounds what an exit handler will accept.
	MaxExitPayloadSize = 64 * 1024

	// ReplayMaxAge is the default freshness window for packet timestamps.
	ReplayMaxAge = 60 * time.Second
	// ReplayClockSkew is the tolerance applied on both sides of the freshness window.
	ReplayClockSkew = 5 * time.Second
	// ReplayMaxSeenNonces bounds total tracked nonces across all sessions.
	ReplayMaxSeenNonces = 100_000

	// RotationMaxPacketsPerKey is the packet-count rotation trigger.
	RotationMaxPacketsPerKey = 10_000
	// RotationMaxKeyAge is the wall-clock rotation trigger.
	RotationMaxKeyAge = time.Hour
	// RotationGracePeriod is how long a displaced key stays valid for decrypt.
	RotationGracePeriod = 60 * time.Second
	// RotationGraceDequeCapacity bounds how many displaced keys are retained.
	RotationGraceDequeCapacity = 3

	// MinJitterMillis and MaxJitterMillis bound advisory forwarding jitter.
	MinJitterMillis = 5
	MaxJitterMillis = 50

	// TransportFrameSessionIDSize is the size of the session_id carried in
	// every transport frame: the leading bytes of the packet-header
	// SessionId.
	TransportFrameSessionIDSize = 16

	// TransportFrameMinLength and TransportFrameMaxLength bound a frame's
	// declared length field (which covers session_id + payload).
	TransportFrameMinLength = TransportFrameSessionIDSize + 1
	TransportFrameMaxLength = TransportFrameSessionIDSize + PacketSize + 256

	// TransportReadTimeout bounds how long the server waits for one frame.
	TransportReadTimeout = 5 * time.Second
	// TransportConnectTimeout bounds how long the sender waits to dial.
	TransportConnectTimeout = 5 * time.Second

	// ClientMaxRetries bounds how many times the client retries a failed
	// send; a send makes at most ClientMaxRetries+1 attempts.
	ClientMaxRetries = 3
	// ClientBackoffBase is the base delay the client's exponential backoff
	// multiplies by 2^attempt.
	ClientBackoffBase = 100 * time.Millisecond
)
