// Package processor implements a node's per-packet decision logic: peel one
// onion layer and decide whether to drop, forward, or exit the packet. It
// never returns an error to its caller — every failure kind collapses into
// a Decision{Kind: DecisionDrop}, so a single malformed or hostile packet
// can never crash a relay or leak a distinguishing error to the network.
package processor

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"

	"anemochory/application"
	"anemochory/domain"
	"anemochory/infrastructure/cryptography/replay"
	"anemochory/infrastructure/onion"
)

// Processor implements application.Processor for one node. Dispatching an
// Exit decision's payload to an application.ExitHandler is the transport's
// job (§4.12), not the processor's — Process only decides.
type Processor struct {
	keys   application.SessionKeyStore
	padder application.Padder
	replay *replay.Protector
	logger application.Logger

	statsMu sync.Mutex
	stats   domain.NodeStats
}

// New builds a Processor. logger may be nil, in which case drops are not
// reported anywhere (the processor never errors to its caller regardless).
func New(keys application.SessionKeyStore, padder application.Padder, protector *replay.Protector, logger application.Logger) *Processor {
	return &Processor{keys: keys, padder: padder, replay: protector, logger: logger}
}

// Stats returns a snapshot of this node's per-packet outcome counters.
func (p *Processor) Stats() domain.NodeStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// Process implements application.Processor.
func (p *Processor) Process(wireBytes []byte, sessionID [domain.SessionIDSize]byte) domain.Decision {
	if len(wireBytes) != domain.PacketSize {
		return p.drop("InvalidSize")
	}

	header, err := domain.UnmarshalPacketHeader(wireBytes[:domain.HeaderSize])
	if err != nil {
		return p.drop("InvalidSize")
	}

	key, ok := p.keys.Lookup(sessionID)
	if !ok {
		return p.drop("UnknownSession")
	}

	if p.replay.IsSeen(header.Nonce, sessionID) {
		return p.drop("Replay")
	}

	result, err := onion.Peel(wireBytes, key, p.padder)
	if err != nil {
		return p.drop(peelDropReason(err))
	}

	p.replay.MarkSeen(header.Nonce, sessionID)
	p.replay.AdvanceHighWater(sessionID, result.Routing.SequenceNumber)

	if result.IsExit {
		p.bump(func(s *domain.NodeStats) { s.Exited++ })
		return domain.Decision{Kind: domain.DecisionExit, Payload: result.ExitPayload}
	}

	jitter, err := randomJitter()
	if err != nil {
		return p.drop("JitterGenerationFailed")
	}

	p.bump(func(s *domain.NodeStats) { s.Forwarded++ })
	return domain.Decision{
		Kind:         domain.DecisionForward,
		PacketData:   result.NextPacket,
		NextAddress:  result.Routing.NextHopIP().String(),
		NextPort:     int(result.Routing.NextHopPort),
		JitterMillis: jitter,
	}
}

func (p *Processor) drop(reason string) domain.Decision {
	if p.logger != nil {
		p.logger.Printf("packet dropped: %s", reason)
	}
	p.bump(func(s *domain.NodeStats) {
		s.Dropped++
		switch reason {
		case "Replay":
			s.ReplayAttempts++
		case "AuthenticationFailed":
			s.DecryptionFailures++
		case "InvalidSize", "MalformedRouting", "PaddingInvalid", "PeelFailed":
			s.Malformed++
		}
	})
	return domain.Decision{Kind: domain.DecisionDrop, DropReason: reason}
}

// bump applies update to the processor's stats under lock, the single
// chokepoint every counter mutation passes through.
func (p *Processor) bump(update func(*domain.NodeStats)) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	update(&p.stats)
}

// peelDropReason maps a peel failure to the drop reason the processor
// reports, without ever surfacing the underlying error to the network.
func peelDropReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthenticationFailed):
		return "AuthenticationFailed"
	case errors.Is(err, domain.ErrPaddingInvalid):
		return "PaddingInvalid"
	case errors.Is(err, domain.ErrMalformedRouting):
		return "MalformedRouting"
	case errors.Is(err, domain.ErrInvalidSize):
		return "InvalidSize"
	default:
		return "PeelFailed"
	}
}

// randomJitter returns a uniform random delay in
// [domain.MinJitterMillis, domain.MaxJitterMillis], advisory only: the
// processor never sleeps; the transport applies the delay before
// forwarding.
func randomJitter() (int, error) {
	span := domain.MaxJitterMillis - domain.MinJitterMillis + 1
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return domain.MinJitterMillis + int(binary.BigEndian.Uint64(buf[:])%uint64(span)), nil
}
