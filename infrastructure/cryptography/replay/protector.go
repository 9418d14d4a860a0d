// Package replay provides per-session replay protection: nonce tracking
// bounded per session, a global cap enforced by retiring whole sessions in
// least-recently-active order, and a freshness check that tolerates clock
// skew and network reordering.
package replay

import (
	"container/list"
	"sync"
	"time"

	"anemochory/application"
	"anemochory/domain"
)

// perSessionRingCapacity bounds how many nonces a single session's ring
// retains before its own oldest entries fall off, independent of the
// global retirement below. Chosen so one chatty session cannot starve a
// quiet one of its share of the global cap.
const perSessionRingCapacity = 4096

type sessionState struct {
	sessionID  domain.SessionId
	nonces     map[[domain.NonceSize]byte]struct{}
	order      *list.List // FIFO of [domain.NonceSize]byte, for per-session eviction
	highWater  uint64
	lastActive time.Time
	elem       *list.Element // this session's element in Protector.sessionLRU
}

// Protector implements per-session replay detection and packet freshness
// validation.
type Protector struct {
	mu        sync.Mutex
	clock     application.Clock
	maxAge    time.Duration
	clockSkew time.Duration
	globalCap int

	sessions   map[domain.SessionId]*sessionState
	sessionLRU *list.List // of *sessionState, most-recently-active at Back
	totalNonces int
}

// New returns a Protector using the default freshness window
// (domain.ReplayMaxAge), clock skew tolerance (domain.ReplayClockSkew), and
// global nonce cap (domain.ReplayMaxSeenNonces).
func New(clock application.Clock) *Protector {
	return &Protector{
		clock:       clock,
		maxAge:      domain.ReplayMaxAge,
		clockSkew:   domain.ReplayClockSkew,
		globalCap:   domain.ReplayMaxSeenNonces,
		sessions:    make(map[domain.SessionId]*sessionState),
		sessionLRU:  list.New(),
	}
}

// CreateMetadata builds the metadata this session's next packet carries.
func (p *Protector) CreateMetadata(sessionID domain.SessionId, seq uint64) domain.PacketMetadata {
	return domain.PacketMetadata{SessionID: sessionID, Seq: seq, Timestamp: p.clock.Now()}
}

// ValidateFreshness accepts packets whose age lies in
// [-clockSkew, maxAge+clockSkew], absorbing clock skew on both ends of the
// window.
func (p *Protector) ValidateFreshness(metadata domain.PacketMetadata) bool {
	age := p.clock.Now().Sub(metadata.Timestamp)
	return age >= -p.clockSkew && age <= p.maxAge+p.clockSkew
}

// IsSeen reports whether nonce has already been recorded for sessionID.
// The same nonce under a different session_id is not a replay.
func (p *Protector) IsSeen(nonce [domain.NonceSize]byte, sessionID domain.SessionId) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return false
	}
	_, seen := s.nonces[nonce]
	return seen
}

// MarkSeen records nonce as seen for sessionID, advances that session to
// most-recently-active, and retires the least-recently-active session
// wholesale if the global nonce cap would otherwise be exceeded.
func (p *Protector) MarkSeen(nonce [domain.NonceSize]byte, sessionID domain.SessionId) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[sessionID]
	if !ok {
		s = &sessionState{
			sessionID: sessionID,
			nonces:    make(map[[domain.NonceSize]byte]struct{}),
			order:     list.New(),
		}
		s.elem = p.sessionLRU.PushBack(s)
		p.sessions[sessionID] = s
	} else {
		p.sessionLRU.MoveToBack(s.elem)
	}
	s.lastActive = p.clock.Now()

	if _, dup := s.nonces[nonce]; !dup {
		s.nonces[nonce] = struct{}{}
		s.order.PushBack(nonce)
		p.totalNonces++
	}

	for s.order.Len() > perSessionRingCapacity {
		p.evictOldest(s)
	}
	for p.totalNonces > p.globalCap && p.sessionLRU.Len() > 0 {
		p.retireOldestSession()
	}
}

func (p *Protector) evictOldest(s *sessionState) {
	front := s.order.Remove(s.order.Front()).([domain.NonceSize]byte)
	delete(s.nonces, front)
	p.totalNonces--
}

// retireOldestSession drops the entire least-recently-active session,
// freeing its whole nonce budget at once rather than evicting nonce by
// nonce across sessions.
func (p *Protector) retireOldestSession() {
	front := p.sessionLRU.Front()
	if front == nil {
		return
	}
	s := p.sessionLRU.Remove(front).(*sessionState)
	p.totalNonces -= len(s.nonces)
	delete(p.sessions, s.sessionID)
}

// AdvanceHighWater records seq as the session's high-water mark if it
// exceeds the current one. Gaps are tolerated; only strictly-decreasing
// resubmission below the mark is suspect, and even that is not itself a
// replay (only duplicate nonces are).
func (p *Protector) AdvanceHighWater(sessionID domain.SessionId, seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return
	}
	if seq > s.highWater {
		s.highWater = seq
	}
}
