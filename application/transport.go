package application

import "context"

// Sender transmits a single length-prefixed frame to (host, port) and closes
// the connection. Implementations do not retry; retry policy lives in the
// client.
type Sender interface {
	Send(ctx context.Context, host string, port int, sessionID [16]byte, packet []byte) error
}
