package padding

import (
	"bytes"
	"errors"
	"testing"

	"anemochory/domain"
)

func TestPadUnpadRoundTrip(t *testing.T) {
	c := New()
	data := []byte("hello onion world")

	padded, err := c.Pad(data, 1024)
	if err != nil {
		t.Fatalf("Pad: %v", err)
	}
	if len(padded) != 1024 {
		t.Fatalf("len(padded) = %d, want 1024", len(padded))
	}

	got, err := c.Unpad(padded)
	if err != nil {
		t.Fatalf("Unpad: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Unpad = %q, want %q", got, data)
	}
}

func TestPadFillIsNotAllZero(t *testing.T) {
	c := New()
	padded, err := c.Pad([]byte("x"), 1024)
	if err != nil {
		t.Fatalf("Pad: %v", err)
	}
	fill := padded[2+1:]
	allZero := true
	for _, b := range fill {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Fatalf("fill bytes are all zero; padding must use random, non-zero filler")
	}
}

func TestPadRejectsOversizeData(t *testing.T) {
	c := New()
	if _, err := c.Pad(make([]byte, 1023), 1024); !errors.Is(err, domain.ErrPaddingInvalid) {
		t.Fatalf("err = %v, want %v", err, domain.ErrPaddingInvalid)
	}
}

func TestUnpadRejectsShortFrame(t *testing.T) {
	c := New()
	if _, err := c.Unpad([]byte{0x00}); !errors.Is(err, domain.ErrPaddingInvalid) {
		t.Fatalf("err = %v, want %v", err, domain.ErrPaddingInvalid)
	}
}

func TestUnpadRejectsOverflowLength(t *testing.T) {
	c := New()
	frame := []byte{0xFF, 0xFF, 0x01, 0x02}
	if _, err := c.Unpad(frame); !errors.Is(err, domain.ErrPaddingInvalid) {
		t.Fatalf("err = %v, want %v", err, domain.ErrPaddingInvalid)
	}
}

func TestUnpadEmptyData(t *testing.T) {
	c := New()
	padded, err := c.Pad(nil, 64)
	if err != nil {
		t.Fatalf("Pad: %v", err)
	}
	got, err := c.Unpad(padded)
	if err != nil {
		t.Fatalf("Unpad: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Unpad empty = %v, want empty", got)
	}
}
