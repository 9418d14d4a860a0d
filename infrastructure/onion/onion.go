// Package onion builds and peels the fixed-size layered packet format: a
// PacketHeader followed by a single constant-size, padding-codec-wrapped
// AEAD ciphertext nesting each inner layer in turn.
//
// Every hop, including the very first (entry) hop, sees the same shape on
// the wire: header || pad(ciphertext, PacketSize-HeaderSize). A relay peels
// by unwrapping that padding, decrypting with the header's nonce, reading
// the leading routing info, then re-wrapping whatever remains (the next
// layer's nonce plus its own ciphertext) with fresh random fill before
// forwarding — so the outgoing wire size never reveals how many layers
// remain.
package onion

import (
	"fmt"

	"anemochory/application"
	"anemochory/domain"
	"anemochory/infrastructure/cryptography/aead"
)

// outermostLayerCost is the size growth of the outermost layer alone:
// routing info plus the AEAD tag. Unlike inner layers, the outermost
// layer's nonce travels in the PacketHeader instead of the body, so it
// does not also pay domain.NonceSize here.
const outermostLayerCost = domain.RoutingInfoSize + domain.AuthTagSize

// Layer is one hop's key and routing info, supplied innermost-first (the
// exit's layer is index 0) to Build.
type Layer struct {
	Key     []byte
	Routing domain.LayerRoutingInfo
}

// Builder constructs onion packets from a caller-supplied path.
type Builder struct {
	padder application.Padder
}

// NewBuilder returns a Builder using the given padder.
func NewBuilder(padder application.Padder) *Builder {
	return &Builder{padder: padder}
}

// payloadPadTarget returns the size the user payload is padded to before
// any layer is wrapped around it, chosen so that after n layers (n-1 of
// them paying the full domain.LayerOverhead for carrying their own nonce,
// the outermost paying only outermostLayerCost since its nonce moves to the
// header) and the final wire-level padding wrap, the packet lands at
// exactly domain.PacketSize.
func payloadPadTarget(n int) int {
	wireBodyCapacity := (domain.PacketSize - domain.HeaderSize) - lengthPrefixSize
	return wireBodyCapacity - outermostLayerCost - (n-1)*domain.LayerOverhead
}

// lengthPrefixSize mirrors the padding codec's own length-prefix width;
// duplicated here (rather than imported) since Padder is an interface and
// callers may supply any conforming implementation.
const lengthPrefixSize = 2

// Build wraps payload in len(layers) nested AEAD layers, innermost first,
// and prepends a PacketHeader carrying sessionID, the outermost nonce, and
// hop_count = len(layers). The final packet is exactly domain.PacketSize
// bytes.
func (b *Builder) Build(payload []byte, layers []Layer, sessionID domain.SessionId) ([]byte, error) {
	n := len(layers)
	if n < domain.MinHops || n > domain.MaxHops {
		return nil, fmt.Errorf("onion: hop count %d out of range [%d, %d]: %w", n, domain.MinHops, domain.MaxHops, domain.ErrPathConstraintError)
	}
	if len(payload) > domain.MaxPayloadSize(n) {
		return nil, fmt.Errorf("onion: payload of %d bytes exceeds max %d for %d hops: %w", len(payload), domain.MaxPayloadSize(n), n, domain.ErrPayloadTooLarge)
	}

	current, err := b.padder.Pad(payload, payloadPadTarget(n))
	if err != nil {
		return nil, fmt.Errorf("onion: pad payload: %w", err)
	}

	var outerNonce [domain.NonceSize]byte
	for i := 0; i < n; i++ {
		layer := layers[i]
		routingBytes, err := layer.Routing.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("onion: marshal routing info: %w", err)
		}
		plaintext := append(routingBytes, current...)

		engine, err := aead.New(layer.Key)
		if err != nil {
			return nil, fmt.Errorf("onion: layer %d cipher: %w", i, err)
		}
		nonce, ciphertext, err := engine.Encrypt(plaintext)
		if err != nil {
			return nil, fmt.Errorf("onion: layer %d encrypt: %w", i, err)
		}

		if i == n-1 {
			outerNonce = nonce
			current = ciphertext
		} else {
			current = append(append([]byte{}, nonce[:]...), ciphertext...)
		}
	}

	wireBody, err := b.padder.Pad(current, domain.PacketSize-domain.HeaderSize)
	if err != nil {
		return nil, fmt.Errorf("onion: final wire wrap: %w", err)
	}

	header := domain.PacketHeader{
		SessionID: sessionID,
		Nonce:     outerNonce,
		HopCount:  byte(n),
	}
	headerBytes, err := header.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("onion: marshal header: %w", err)
	}

	packet := append(headerBytes, wireBody...)
	if len(packet) != domain.PacketSize {
		return nil, fmt.Errorf("onion: built packet is %d bytes, want %d: %w", len(packet), domain.PacketSize, domain.ErrInvalidSize)
	}
	return packet, nil
}

// PeelResult is the outcome of peeling one layer at a relay node.
type PeelResult struct {
	Routing     domain.LayerRoutingInfo
	NextPacket  []byte // re-padded, constant-size, ready to forward
	IsExit      bool
	ExitPayload []byte // populated only when IsExit is true
}

// Peel verifies, decrypts, and re-pads one layer at a node holding key for
// this session. It fails with domain.ErrInvalidSize if packet is not
// exactly domain.PacketSize bytes, with the AEAD's authentication error on
// tag failure, or with domain.ErrMalformedRouting if the routing prefix
// cannot be parsed.
func Peel(packet []byte, key []byte, padder application.Padder) (PeelResult, error) {
	if len(packet) != domain.PacketSize {
		return PeelResult{}, fmt.Errorf("onion: packet is %d bytes, want %d: %w", len(packet), domain.PacketSize, domain.ErrInvalidSize)
	}

	header, err := domain.UnmarshalPacketHeader(packet[:domain.HeaderSize])
	if err != nil {
		return PeelResult{}, err
	}

	ciphertext, err := padder.Unpad(packet[domain.HeaderSize:])
	if err != nil {
		return PeelResult{}, err
	}

	engine, err := aead.New(key)
	if err != nil {
		return PeelResult{}, fmt.Errorf("onion: cipher: %w", err)
	}
	plaintext, err := engine.Decrypt(header.Nonce, ciphertext)
	if err != nil {
		return PeelResult{}, err
	}
	if len(plaintext) < domain.RoutingInfoSize {
		return PeelResult{}, fmt.Errorf("onion: decrypted layer shorter than routing info: %w", domain.ErrMalformedRouting)
	}

	routing, err := domain.UnmarshalLayerRoutingInfo(plaintext[:domain.RoutingInfoSize])
	if err != nil {
		return PeelResult{}, err
	}
	remainder := plaintext[domain.RoutingInfoSize:]

	if routing.IsExit() {
		unpadded, err := padder.Unpad(remainder)
		if err != nil {
			return PeelResult{}, err
		}
		return PeelResult{Routing: routing, IsExit: true, ExitPayload: unpadded}, nil
	}

	if len(remainder) < domain.NonceSize {
		return PeelResult{}, fmt.Errorf("onion: remainder shorter than a nonce: %w", domain.ErrMalformedRouting)
	}
	var nextNonce [domain.NonceSize]byte
	copy(nextNonce[:], remainder[:domain.NonceSize])
	nextCiphertext := remainder[domain.NonceSize:]

	wireBody, err := padder.Pad(nextCiphertext, domain.PacketSize-domain.HeaderSize)
	if err != nil {
		return PeelResult{}, fmt.Errorf("onion: re-pad for forwarding: %w", err)
	}
	nextHeader := domain.PacketHeader{
		SessionID: routing.SessionID,
		Nonce:     nextNonce,
		HopCount:  header.HopCount - 1,
	}
	nextHeaderBytes, err := nextHeader.MarshalBinary()
	if err != nil {
		return PeelResult{}, fmt.Errorf("onion: marshal next header: %w", err)
	}
	nextPacket := append(nextHeaderBytes, wireBody...)

	return PeelResult{Routing: routing, NextPacket: nextPacket}, nil
}
