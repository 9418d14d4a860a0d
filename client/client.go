// Package client implements the single public send operation described in
// §4.13: pick a path, build one onion packet, hand it to the entry node,
// and retry with exponential backoff and jitter on transport failure.
// Anemochory is fire-and-forget at this layer — no acknowledgement is
// tracked.
package client

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math"
	"math/big"
	"time"

	"anemochory/application"
	"anemochory/domain"
	"anemochory/infrastructure/onion"
	"anemochory/infrastructure/routing/nodepool"
	"anemochory/infrastructure/routing/pathselect"
)

// SendResult reports the outcome of one Send call.
type SendResult struct {
	Success    bool
	PathLength int
	Entry      domain.NodeInfo
	Retries    int
	Error      error
}

// Client selects a path through pool, builds an onion packet with builder,
// and delivers it to the entry node through sender.
type Client struct {
	pool       *nodepool.Pool
	builder    *onion.Builder
	sender     application.Sender
	ourNodeID  *domain.NodeId
	maxRetries int
	backoffBase time.Duration
}

// New returns a Client. ourNodeID, if non-nil, excludes the caller's own
// node from path selection so a node never routes traffic through itself.
func New(pool *nodepool.Pool, builder *onion.Builder, sender application.Sender, ourNodeID *domain.NodeId) *Client {
	return &Client{
		pool:        pool,
		builder:     builder,
		sender:      sender,
		ourNodeID:   ourNodeID,
		maxRetries:  domain.ClientMaxRetries,
		backoffBase: domain.ClientBackoffBase,
	}
}

// Send selects a path, builds an onion packet around payload, and attempts
// delivery to the entry node, retrying on transport failure per the
// backoff schedule. hopCount of 0 selects domain.MinHops.
func (c *Client) Send(ctx context.Context, payload []byte, hopCount int) SendResult {
	if len(payload) == 0 {
		return SendResult{Error: domain.ErrEmptyPayload}
	}
	if hopCount == 0 {
		hopCount = domain.MinHops
	}
	if max := domain.MaxPayloadSize(hopCount); len(payload) > max {
		return SendResult{Error: fmt.Errorf("client: payload of %d bytes exceeds max %d for %d hops: %w", len(payload), max, hopCount, domain.ErrPayloadTooLarge)}
	}

	opts := pathselect.DefaultOptions(hopCount)
	if c.ourNodeID != nil {
		opts.Exclude = map[domain.NodeId]struct{}{*c.ourNodeID: {}}
	}
	path, err := pathselect.Select(c.pool, opts)
	if err != nil {
		return SendResult{Error: err}
	}

	sessionID, err := newSessionID()
	if err != nil {
		return SendResult{Error: err}
	}

	layers := pathselect.BuildPacketPath(path, sessionID)
	packet, err := c.builder.Build(payload, layers, sessionID)
	if err != nil {
		return SendResult{Error: err}
	}

	entry := path.Nodes[0]
	var frameSessionID [domain.TransportFrameSessionIDSize]byte
	copy(frameSessionID[:], sessionID[:domain.TransportFrameSessionIDSize])

	retries := 0
	for {
		sendErr := c.sender.Send(ctx, entry.Address, entry.Port, frameSessionID, packet)
		if sendErr == nil {
			return SendResult{Success: true, PathLength: len(path.Nodes), Entry: entry, Retries: retries}
		}
		if retries >= c.maxRetries {
			return SendResult{Error: sendErr}
		}

		delay, jitterErr := backoffDelay(c.backoffBase, retries)
		if jitterErr != nil {
			return SendResult{Error: jitterErr}
		}
		select {
		case <-ctx.Done():
			return SendResult{Error: ctx.Err()}
		case <-time.After(delay):
		}
		retries++
	}
}

// backoffDelay returns base*2^attempt plus up to 20% random jitter, the
// jitter breaking any fixed timing signature a passive observer could
// correlate across retries.
func backoffDelay(base time.Duration, attempt int) (time.Duration, error) {
	scaled := float64(base) * math.Pow(2, float64(attempt))
	jitterMax := int64(scaled * 0.2)
	if jitterMax <= 0 {
		return time.Duration(scaled), nil
	}
	jitter, err := rand.Int(rand.Reader, big.NewInt(jitterMax))
	if err != nil {
		return 0, fmt.Errorf("client: backoff jitter: %w", domain.ErrKeyDerivationFailed)
	}
	return time.Duration(scaled) + time.Duration(jitter.Int64()), nil
}

// newSessionID generates a fresh, independent session_id for one Send
// call — never derived from any existing session's key material.
func newSessionID() (domain.SessionId, error) {
	var id domain.SessionId
	if _, err := io.ReadFull(rand.Reader, id[:]); err != nil {
		return domain.SessionId{}, fmt.Errorf("client: session_id generation: %w", domain.ErrKeyDerivationFailed)
	}
	return id, nil
}
