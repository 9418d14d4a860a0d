// Package exithandler implements application.ExitHandler: what happens to
// a payload once it reaches the innermost onion layer.
package exithandler

import (
	"fmt"

	"anemochory/application"
	"anemochory/domain"
)

// Echo implements application.ExitHandler by returning the payload
// unchanged — the stub dispatch this repo uses in place of a real exit
// gateway (proxying to the open internet, a local service, and so on).
type Echo struct{}

var _ application.ExitHandler = Echo{}

// Handle returns payload unchanged.
func (Echo) Handle(payload []byte) ([]byte, error) { return payload, nil }

// Bounded wraps another ExitHandler, rejecting payloads larger than
// domain.MaxExitPayloadSize before they ever reach it.
type Bounded struct {
	Next application.ExitHandler
}

var _ application.ExitHandler = Bounded{}

// Handle enforces the size bound, then delegates to Next.
func (b Bounded) Handle(payload []byte) ([]byte, error) {
	if len(payload) > domain.MaxExitPayloadSize {
		return nil, fmt.Errorf("exithandler: payload of %d bytes exceeds max %d: %w", len(payload), domain.MaxExitPayloadSize, domain.ErrPayloadTooLarge)
	}
	return b.Next.Handle(payload)
}
