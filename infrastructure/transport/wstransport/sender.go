package wstransport

import (
	"context"
	"fmt"

	"github.com/coder/websocket"

	"anemochory/application"
	"anemochory/domain"
	"anemochory/infrastructure/transport"
)

var _ application.Sender = (*Sender)(nil)

// Sender implements application.Sender by dialing a fresh WebSocket
// connection per call, sending one frame, and closing — the WebSocket
// counterpart of transport.TCPSender, for relays reachable only over
// WebSocket. It dials ws:// only; wss:// is not supported.
type Sender struct {
	path string
}

// NewSender returns a Sender that upgrades to WebSocket on path (e.g.
// "/relay").
func NewSender(path string) *Sender {
	return &Sender{path: path}
}

// Send implements application.Sender.
func (s *Sender) Send(ctx context.Context, host string, port int, sessionID [16]byte, packet []byte) error {
	dialCtx, cancel := context.WithTimeout(ctx, domain.TransportConnectTimeout)
	defer cancel()

	url := fmt.Sprintf("ws://%s:%d%s", host, port, s.path)
	ws, resp, err := websocket.Dial(dialCtx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("wstransport: dial %s: %w", url, domain.ErrConnectFailed)
	}

	conn := NewConn(ctx, ws, nil, nil)
	defer func() { _ = conn.Close() }()

	if err := transport.WriteFrame(conn, transport.FrameSessionID(sessionID), packet); err != nil {
		return err
	}
	return nil
}
