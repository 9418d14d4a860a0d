package domain

import (
	"encoding/binary"
	"fmt"
	"net"
)

// PacketHeader prefixes every onion packet on the wire. It is HeaderSize
// bytes: session_id(32) || nonce(12) || flags(1) || hop_count(1) ||
// reserved(2).
type PacketHeader struct {
	SessionID SessionId
	Nonce     [NonceSize]byte
	Flags     byte
	HopCount  byte
}

// MarshalBinary serializes the header to exactly HeaderSize bytes.
func (h PacketHeader) MarshalBinary() ([]byte, error) {
	out := make([]byte, HeaderSize)
	off := 0
	copy(out[off:], h.SessionID[:])
	off += SessionIDSize
	copy(out[off:], h.Nonce[:])
	off += NonceSize
	out[off] = h.Flags
	off++
	out[off] = h.HopCount
	off++
	// remaining 2 bytes are reserved, left zero
	return out, nil
}

// UnmarshalPacketHeader parses a HeaderSize-byte header.
func UnmarshalPacketHeader(b []byte) (PacketHeader, error) {
	if len(b) != HeaderSize {
		return PacketHeader{}, fmt.Errorf("domain: header must be %d bytes, got %d: %w", HeaderSize, len(b), ErrInvalidSize)
	}
	var h PacketHeader
	off := 0
	copy(h.SessionID[:], b[off:off+SessionIDSize])
	off += SessionIDSize
	copy(h.Nonce[:], b[off:off+NonceSize])
	off += NonceSize
	h.Flags = b[off]
	off++
	h.HopCount = b[off]
	return h, nil
}

// LayerRoutingInfo is the leading plaintext-after-decryption prefix of each
// onion layer, telling the peeling node where to forward next (or that it
// is the exit). It serializes to exactly RoutingInfoSize (64) bytes:
// next_hop_address(16) || next_hop_port(2, BE) || sequence_number(8, BE) ||
// session_id(32) || padding_length(2, BE) || reserved(4).
type LayerRoutingInfo struct {
	NextHopAddress [16]byte // IPv4 in the first 4 bytes (rest zero) or native IPv6; all-zero means Exit
	NextHopPort    uint16
	SequenceNumber uint64
	SessionID      SessionId
	PaddingLength  uint16
}

// MarshalBinary serializes the routing info to exactly RoutingInfoSize bytes.
func (r LayerRoutingInfo) MarshalBinary() ([]byte, error) {
	out := make([]byte, RoutingInfoSize)
	off := 0
	copy(out[off:], r.NextHopAddress[:])
	off += 16
	binary.BigEndian.PutUint16(out[off:], r.NextHopPort)
	off += 2
	binary.BigEndian.PutUint64(out[off:], r.SequenceNumber)
	off += 8
	copy(out[off:], r.SessionID[:])
	off += SessionIDSize
	binary.BigEndian.PutUint16(out[off:], r.PaddingLength)
	off += 2
	// remaining 4 bytes are reserved, left zero
	return out, nil
}

// UnmarshalLayerRoutingInfo parses a RoutingInfoSize-byte routing prefix.
func UnmarshalLayerRoutingInfo(b []byte) (LayerRoutingInfo, error) {
	if len(b) != RoutingInfoSize {
		return LayerRoutingInfo{}, fmt.Errorf("domain: routing info must be %d bytes, got %d: %w", RoutingInfoSize, len(b), ErrMalformedRouting)
	}
	var r LayerRoutingInfo
	off := 0
	copy(r.NextHopAddress[:], b[off:off+16])
	off += 16
	r.NextHopPort = binary.BigEndian.Uint16(b[off:])
	off += 2
	r.SequenceNumber = binary.BigEndian.Uint64(b[off:])
	off += 8
	copy(r.SessionID[:], b[off:off+SessionIDSize])
	off += SessionIDSize
	r.PaddingLength = binary.BigEndian.Uint16(b[off:])
	return r, nil
}

// IsExit reports whether this layer names no further hop: the action is
// Exit rather than Forward.
func (r LayerRoutingInfo) IsExit() bool {
	for _, b := range r.NextHopAddress {
		if b != 0 {
			return false
		}
	}
	return true
}

// NextHopIP renders NextHopAddress as a net.IP. Per §6's packing rule, an
// IPv4 address occupies the first 4 bytes with the remaining 12 zeroed, so
// that form is recognized even though it differs from the standard
// IPv4-in-IPv6 mapped prefix (::ffff:a.b.c.d).
func (r LayerRoutingInfo) NextHopIP() net.IP {
	if isIPv4Packed(r.NextHopAddress) {
		return net.IP(r.NextHopAddress[:4]).To4()
	}
	return net.IP(r.NextHopAddress[:])
}

func isIPv4Packed(addr [16]byte) bool {
	for _, b := range addr[4:] {
		if b != 0 {
			return false
		}
	}
	return true
}

// PutIPv4 encodes an IPv4 address into NextHopAddress as 4 bytes followed
// by 12 zero bytes, per §6's packing rule (not the IPv4-in-IPv6 mapped
// prefix).
func (r *LayerRoutingInfo) PutIPv4(ip net.IP) error {
	v4 := ip.To4()
	if v4 == nil {
		return fmt.Errorf("domain: %w: not an IPv4 address", ErrMalformedRouting)
	}
	var addr [16]byte
	copy(addr[:4], v4)
	r.NextHopAddress = addr
	return nil
}

// PutIPv6 copies a 16-byte IPv6 address into NextHopAddress.
func (r *LayerRoutingInfo) PutIPv6(ip net.IP) error {
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return fmt.Errorf("domain: %w: not an IPv6 address", ErrMalformedRouting)
	}
	copy(r.NextHopAddress[:], v6)
	return nil
}

// MaxPayloadSize returns the largest plaintext payload that can be onion
// wrapped in hopCount layers: the space remaining after the header and each
// layer's overhead.
func MaxPayloadSize(hopCount int) int {
	return InnerPacketSize - hopCount*LayerOverhead
}
