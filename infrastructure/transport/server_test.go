package transport

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"anemochory/domain"
)

type fakeProcessor struct {
	decision domain.Decision
	mu       sync.Mutex
	calls    int
}

func (p *fakeProcessor) Process(wireBytes []byte, sessionID [domain.SessionIDSize]byte) domain.Decision {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.decision
}

type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
}

func (s *fakeSender) Send(ctx context.Context, host string, port int, sessionID [16]byte, packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, packet)
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeExitHandler struct {
	mu       sync.Mutex
	received [][]byte
}

func (h *fakeExitHandler) Handle(payload []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, payload)
	return payload, nil
}

func (h *fakeExitHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.received)
}

func startTestServer(t *testing.T, decision domain.Decision) (addr string, sender *fakeSender, exitHandler *fakeExitHandler, processor *fakeProcessor, stop func()) {
	t.Helper()
	processor = &fakeProcessor{decision: decision}
	sender = &fakeSender{}
	exitHandler = &fakeExitHandler{}
	srv := NewServer(processor, exitHandler, sender, nil, rate.Limit(1000), 1000)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr = listener.Addr().String()
	_ = listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.ListenAndServe(ctx, addr)
		close(done)
	}()
	// Give the listener a moment to bind before tests dial it.
	time.Sleep(50 * time.Millisecond)

	return addr, sender, exitHandler, processor, func() {
		cancel()
		<-done
	}
}

func validPacket(t *testing.T) []byte {
	t.Helper()
	var header domain.PacketHeader
	header.HopCount = 1
	headerBytes, err := header.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	packet := make([]byte, domain.PacketSize)
	copy(packet, headerBytes)
	return packet
}

func TestServerForwardsOnForwardDecision(t *testing.T) {
	packet := validPacket(t)
	decision := domain.Decision{
		Kind:         domain.DecisionForward,
		PacketData:   packet,
		NextAddress:  "127.0.0.1",
		NextPort:     9999,
		JitterMillis: 1,
	}
	addr, sender, exitHandler, processor, stop := startTestServer(t, decision)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := WriteFrame(conn, FrameSessionID{}, packet); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if processor.calls > 0 && sender.count() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if processor.calls == 0 {
		t.Fatal("processor was never invoked")
	}
	if sender.count() != 1 {
		t.Fatalf("sender.count() = %d, want 1", sender.count())
	}
	if exitHandler.count() != 0 {
		t.Fatalf("exit handler should not have been invoked")
	}
}

func TestServerInvokesExitHandlerOnExitDecision(t *testing.T) {
	packet := validPacket(t)
	payload := []byte("exit payload")
	decision := domain.Decision{Kind: domain.DecisionExit, Payload: payload}
	addr, sender, exitHandler, _, stop := startTestServer(t, decision)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := WriteFrame(conn, FrameSessionID{}, packet); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if exitHandler.count() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if exitHandler.count() != 1 {
		t.Fatalf("exitHandler.count() = %d, want 1", exitHandler.count())
	}
	if !bytes.Equal(exitHandler.received[0], payload) {
		t.Fatalf("exit handler received %q, want %q", exitHandler.received[0], payload)
	}
	if sender.count() != 0 {
		t.Fatalf("sender should not have been invoked on an exit decision")
	}
}

func TestServerSilentlyDropsWithoutInvokingCollaborators(t *testing.T) {
	packet := validPacket(t)
	decision := domain.Decision{Kind: domain.DecisionDrop, DropReason: "test"}
	addr, sender, exitHandler, processor, stop := startTestServer(t, decision)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := WriteFrame(conn, FrameSessionID{}, packet); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if processor.calls > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if processor.calls == 0 {
		t.Fatal("processor was never invoked")
	}
	if sender.count() != 0 || exitHandler.count() != 0 {
		t.Fatal("a drop decision must not reach the sender or exit handler")
	}
}

func TestServerClosesConnectionOnFramingError(t *testing.T) {
	decision := domain.Decision{Kind: domain.DecisionDrop}
	addr, _, _, _, stop := startTestServer(t, decision)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	// Declared length far beyond TransportFrameMaxLength: framing error.
	if _, err := conn.Write([]byte{0x7F, 0xFF, 0xFF, 0xFF}); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected connection to be closed by the server after a framing error")
	}
}
