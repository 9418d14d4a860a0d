package domain

// NodeStats is a snapshot of one node's per-packet outcome counters, the
// "statistics counters" named alongside identity, the layer-key map, and the
// replay protector in a node's per-node state. Nothing downstream of a
// snapshot mutates it.
type NodeStats struct {
	Forwarded          uint64
	Exited             uint64
	ReplayAttempts     uint64
	DecryptionFailures uint64
	Malformed          uint64
	Dropped            uint64
}
