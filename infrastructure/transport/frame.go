// Package transport implements Anemochory's length-prefixed framing over
// stream sockets (§4.12): a TCP accept-loop server that drives the node
// processor per frame, and a one-shot Sender used both by the server (to
// forward) and the client (to make first contact with the entry node).
package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"anemochory/domain"
)

// frameLengthSize is the size of the frame's leading length prefix.
const frameLengthSize = 4

// FrameSessionID is the transport frame's 16-byte session identifier: the
// leading 16 bytes of the 32-byte domain.SessionId carried in the onion
// packet header (see frameSessionIDFromHeader).
type FrameSessionID [domain.TransportFrameSessionIDSize]byte

// WriteFrame writes length(4, BE) || sessionID(16) || packet to w, where
// length = len(sessionID)+len(packet).
func WriteFrame(w io.Writer, sessionID FrameSessionID, packet []byte) error {
	length := uint32(domain.TransportFrameSessionIDSize + len(packet))
	header := make([]byte, frameLengthSize+domain.TransportFrameSessionIDSize)
	binary.BigEndian.PutUint32(header, length)
	copy(header[frameLengthSize:], sessionID[:])
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("transport: write frame header: %w", domain.ErrWriteFailed)
	}
	if _, err := w.Write(packet); err != nil {
		return fmt.Errorf("transport: write frame body: %w", domain.ErrWriteFailed)
	}
	return nil
}

// ReadFrame reads one frame from r, validating the declared length against
// [domain.TransportFrameMinLength, domain.TransportFrameMaxLength].
func ReadFrame(r io.Reader) (FrameSessionID, []byte, error) {
	var lengthBytes [frameLengthSize]byte
	if _, err := io.ReadFull(r, lengthBytes[:]); err != nil {
		return FrameSessionID{}, nil, fmt.Errorf("transport: read length prefix: %w", domain.ErrFramingError)
	}
	length := binary.BigEndian.Uint32(lengthBytes[:])
	if length < domain.TransportFrameMinLength || length > domain.TransportFrameMaxLength {
		return FrameSessionID{}, nil, fmt.Errorf("transport: declared length %d out of range [%d, %d]: %w", length, domain.TransportFrameMinLength, domain.TransportFrameMaxLength, domain.ErrFramingError)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return FrameSessionID{}, nil, fmt.Errorf("transport: read frame body: %w", domain.ErrFramingError)
	}

	var sessionID FrameSessionID
	copy(sessionID[:], body[:domain.TransportFrameSessionIDSize])
	packet := body[domain.TransportFrameSessionIDSize:]
	return sessionID, packet, nil
}

// frameSessionIDFromHeader derives a frame's session_id as the leading 16
// bytes of the onion packet header's 32-byte session_id, so a frame can be
// addressed without a separate identifier namespace.
func frameSessionIDFromHeader(id domain.SessionId) FrameSessionID {
	var out FrameSessionID
	copy(out[:], id[:domain.TransportFrameSessionIDSize])
	return out
}
