package transport

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"anemochory/domain"
)

func TestTCPSenderSendsOneFrame(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = listener.Close() }()

	received := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_, packet, err := ReadFrame(conn)
		if err != nil {
			return
		}
		received <- packet
	}()

	host, portStr, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi: %v", err)
	}

	sender := NewTCPSender()
	packet := bytes.Repeat([]byte{0x42}, domain.PacketSize)
	var sessionID [16]byte
	sessionID[0] = 9

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sender.Send(ctx, host, port, sessionID, packet); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if !bytes.Equal(got, packet) {
			t.Fatalf("server received mismatched packet")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive frame")
	}
}

func TestTCPSenderFailsOnUnreachableHost(t *testing.T) {
	sender := NewTCPSender()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Port 1 on loopback refuses immediately; no listener is bound there.
	err := sender.Send(ctx, "127.0.0.1", 1, [16]byte{}, []byte("x"))
	if err == nil {
		t.Fatal("expected dial error, got nil")
	}
}
