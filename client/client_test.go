package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"anemochory/domain"
	"anemochory/infrastructure/cryptography/padding"
	"anemochory/infrastructure/onion"
	"anemochory/infrastructure/routing/nodepool"
)

func populatedPool(t *testing.T) *nodepool.Pool {
	t.Helper()
	pool := nodepool.New()

	addNode := func(id byte, subnet int, caps ...domain.Capability) {
		var n domain.NodeInfo
		n.NodeID[0] = id
		n.Address = fmt.Sprintf("10.0.%d.1", subnet)
		n.Port = 9000 + int(id)
		n.PublicKey[0] = id
		n.Capabilities = domain.NewCapabilitySet(caps...)
		n.Reputation = 0.9
		if err := pool.Add(n); err != nil {
			t.Fatalf("Add node %d: %v", id, err)
		}
	}

	addNode(1, 1, domain.CapabilityEntry)
	addNode(2, 2, domain.CapabilityExit)
	for i := 0; i < 8; i++ {
		addNode(byte(10+i), 10+i, domain.CapabilityRelay)
	}
	return pool
}

type fakeSender struct {
	mu        sync.Mutex
	failUntil int
	calls     int
	lastHost  string
	lastPort  int
}

func (s *fakeSender) Send(ctx context.Context, host string, port int, sessionID [16]byte, packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastHost, s.lastPort = host, port
	if s.calls <= s.failUntil {
		return errors.New("fake transport failure")
	}
	return nil
}

func newTestClient(t *testing.T, sender *fakeSender) *Client {
	t.Helper()
	c := New(populatedPool(t), onion.NewBuilder(padding.New()), sender, nil)
	c.backoffBase = time.Millisecond
	return c
}

func TestSendSucceedsOnFirstAttempt(t *testing.T) {
	sender := &fakeSender{}
	c := newTestClient(t, sender)

	result := c.Send(context.Background(), []byte("hello"), 3)
	if !result.Success {
		t.Fatalf("Send failed: %v", result.Error)
	}
	if result.PathLength != 3 {
		t.Fatalf("PathLength = %d, want 3", result.PathLength)
	}
	if result.Retries != 0 {
		t.Fatalf("Retries = %d, want 0", result.Retries)
	}
	if !result.Entry.CanEntry() {
		t.Fatalf("Entry must be an entry-capable node")
	}
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	sender := &fakeSender{failUntil: 2}
	c := newTestClient(t, sender)

	result := c.Send(context.Background(), []byte("hello"), 3)
	if !result.Success {
		t.Fatalf("Send failed: %v", result.Error)
	}
	if result.Retries != 2 {
		t.Fatalf("Retries = %d, want 2", result.Retries)
	}
}

func TestSendExhaustsRetriesAndFails(t *testing.T) {
	sender := &fakeSender{failUntil: 1000}
	c := newTestClient(t, sender)

	result := c.Send(context.Background(), []byte("hello"), 3)
	if result.Success {
		t.Fatal("expected failure after exhausting retries")
	}
	if result.Error == nil {
		t.Fatal("expected a non-nil error")
	}
	if sender.calls != domain.ClientMaxRetries+1 {
		t.Fatalf("sender.calls = %d, want %d", sender.calls, domain.ClientMaxRetries+1)
	}
}

func TestSendRejectsEmptyPayload(t *testing.T) {
	sender := &fakeSender{}
	c := newTestClient(t, sender)

	result := c.Send(context.Background(), nil, 3)
	if !errors.Is(result.Error, domain.ErrEmptyPayload) {
		t.Fatalf("err = %v, want ErrEmptyPayload", result.Error)
	}
}

func TestSendRejectsOversizePayload(t *testing.T) {
	sender := &fakeSender{}
	c := newTestClient(t, sender)

	oversize := make([]byte, domain.MaxPayloadSize(3)+1)
	result := c.Send(context.Background(), oversize, 3)
	if !errors.Is(result.Error, domain.ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", result.Error)
	}
}

func TestSendExcludesOurOwnNode(t *testing.T) {
	sender := &fakeSender{}
	pool := populatedPool(t)
	var ourID domain.NodeId
	ourID[0] = 1 // the pool's only entry node

	c := New(pool, onion.NewBuilder(padding.New()), sender, &ourID)
	c.backoffBase = time.Millisecond

	result := c.Send(context.Background(), []byte("hello"), 3)
	if !errors.Is(result.Error, domain.ErrInsufficientNodes) {
		t.Fatalf("err = %v, want ErrInsufficientNodes (no entry left once excluded)", result.Error)
	}
}

func TestSendHonorsContextCancellationDuringBackoff(t *testing.T) {
	sender := &fakeSender{failUntil: 1000}
	c := newTestClient(t, sender)
	c.backoffBase = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := c.Send(ctx, []byte("hello"), 3)
	if !errors.Is(result.Error, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", result.Error)
	}
}
