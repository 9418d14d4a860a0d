package transport

import (
	"context"
	"fmt"
	"net"

	"anemochory/application"
	"anemochory/domain"
)

// TCPSender implements application.Sender by dialing a fresh TCP connection
// per call, sending one frame, and closing. Retry policy lives in the
// client, not here.
type TCPSender struct {
	dialer net.Dialer
}

// NewTCPSender returns a TCPSender using domain.TransportConnectTimeout.
func NewTCPSender() *TCPSender {
	return &TCPSender{dialer: net.Dialer{Timeout: domain.TransportConnectTimeout}}
}

var _ application.Sender = (*TCPSender)(nil)

// Send implements application.Sender.
func (s *TCPSender) Send(ctx context.Context, host string, port int, sessionID [16]byte, packet []byte) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", addr, domain.ErrConnectFailed)
	}
	defer func() { _ = conn.Close() }()

	if err := WriteFrame(conn, FrameSessionID(sessionID), packet); err != nil {
		return err
	}
	return nil
}
