package domain

import "time"

// PacketMetadata carries the replay-relevant fields of one packet: which
// session it belongs to, its sequence number, and when it was created.
type PacketMetadata struct {
	SessionID SessionId
	Seq       uint64
	Timestamp time.Time
}
