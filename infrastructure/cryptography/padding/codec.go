// Package padding implements the fixed-size packet padding codec: a
// length-prefixed payload followed by cryptographically random filler, never
// zero, so padded frames resist compression and side-channel distinguishers.
package padding

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"anemochory/application"
	"anemochory/domain"
)

// lengthPrefixSize is the size in bytes of the big-endian length prefix.
const lengthPrefixSize = 2

// Codec implements application.Padder.
type Codec struct{}

// New returns a Codec. It holds no state.
func New() *Codec { return &Codec{} }

var _ application.Padder = (*Codec)(nil)

// Pad lays out length_prefix(2, big-endian) || data || random_fill and
// returns exactly targetSize bytes.
func (c *Codec) Pad(data []byte, targetSize int) ([]byte, error) {
	if len(data) > targetSize-lengthPrefixSize {
		return nil, fmt.Errorf("padding: data length %d exceeds capacity %d: %w", len(data), targetSize-lengthPrefixSize, domain.ErrPaddingInvalid)
	}
	out := make([]byte, targetSize)
	binary.BigEndian.PutUint16(out[:lengthPrefixSize], uint16(len(data)))
	copy(out[lengthPrefixSize:], data)
	fill := out[lengthPrefixSize+len(data):]
	if _, err := io.ReadFull(rand.Reader, fill); err != nil {
		return nil, fmt.Errorf("padding: fill generation: %w", domain.ErrPaddingInvalid)
	}
	return out, nil
}

// Unpad reads the length prefix and returns the prefixed slice. Every
// validation failure returns the same generic domain.ErrPaddingInvalid so a
// peeling node cannot distinguish underflow from overflow.
func (c *Codec) Unpad(frame []byte) ([]byte, error) {
	if len(frame) < lengthPrefixSize {
		return nil, fmt.Errorf("padding: frame shorter than length prefix: %w", domain.ErrPaddingInvalid)
	}
	length := int(binary.BigEndian.Uint16(frame[:lengthPrefixSize]))
	if length > len(frame)-lengthPrefixSize {
		return nil, fmt.Errorf("padding: declared length exceeds frame: %w", domain.ErrPaddingInvalid)
	}
	data := make([]byte, length)
	copy(data, frame[lengthPrefixSize:lengthPrefixSize+length])
	return data, nil
}
