package nodepool

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"anemochory/domain"
)

// NewNodeID mints a random NodeId via a v4 UUID, for a deployment that
// provisions a node identity without deriving one from an existing
// public key.
func NewNodeID() domain.NodeId {
	u := uuid.New()
	var id domain.NodeId
	copy(id[:], u[:])
	return id
}

// nodeDocument is the on-disk JSON shape of one node: lowercase keys, byte
// fields hex-encoded, capabilities a sorted array of lowercase strings.
type nodeDocument struct {
	NodeID       string   `json:"node_id"`
	Address      string   `json:"address"`
	Port         int      `json:"port"`
	PublicKey    string   `json:"public_key"`
	Capabilities []string `json:"capabilities"`
	Reputation   float64  `json:"reputation"`
}

// poolDocument is the top-level bootstrap file shape. "generation" is
// optional; a file lacking it is treated as uuid.Nil.
type poolDocument struct {
	Nodes      []nodeDocument `json:"nodes"`
	Generation *uuid.UUID     `json:"generation,omitempty"`
}

// LoadPool parses the {"nodes": [...]} bootstrap JSON format and returns a
// populated Pool and its generation (uuid.Nil if the document omits the
// field).
func LoadPool(r io.Reader) (*Pool, uuid.UUID, error) {
	var doc poolDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, uuid.Nil, fmt.Errorf("nodepool: decode bootstrap file: %w", err)
	}

	pool := New()
	for _, nd := range doc.Nodes {
		node, err := nd.toNodeInfo()
		if err != nil {
			return nil, uuid.Nil, err
		}
		if err := pool.Add(node); err != nil {
			return nil, uuid.Nil, err
		}
	}

	generation := uuid.Nil
	if doc.Generation != nil {
		generation = *doc.Generation
	}
	return pool, generation, nil
}

// Save writes the pool's current contents as the {"nodes": [...]} bootstrap
// format. A non-nil generation is included; uuid.Nil is omitted so
// round-tripping a file that never set one stays byte-shape-compatible.
func (p *Pool) Save(w io.Writer, generation uuid.UUID) error {
	snapshot := p.Snapshot()
	doc := poolDocument{Nodes: make([]nodeDocument, 0, len(snapshot))}
	if generation != uuid.Nil {
		doc.Generation = &generation
	}
	for _, n := range snapshot {
		doc.Nodes = append(doc.Nodes, fromNodeInfo(n))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("nodepool: encode bootstrap file: %w", err)
	}
	return nil
}

func (nd nodeDocument) toNodeInfo() (domain.NodeInfo, error) {
	var n domain.NodeInfo

	idBytes, err := hex.DecodeString(nd.NodeID)
	if err != nil || len(idBytes) != domain.NodeIDSize {
		return domain.NodeInfo{}, fmt.Errorf("nodepool: node_id must be %d hex-encoded bytes: %q", domain.NodeIDSize, nd.NodeID)
	}
	copy(n.NodeID[:], idBytes)

	pubBytes, err := hex.DecodeString(nd.PublicKey)
	if err != nil || len(pubBytes) != domain.KeySize {
		return domain.NodeInfo{}, fmt.Errorf("nodepool: public_key must be %d hex-encoded bytes: %q", domain.KeySize, nd.PublicKey)
	}
	copy(n.PublicKey[:], pubBytes)

	n.Address = nd.Address
	n.Port = nd.Port
	n.Reputation = nd.Reputation

	caps := make([]domain.Capability, 0, len(nd.Capabilities))
	for _, c := range nd.Capabilities {
		caps = append(caps, domain.Capability(c))
	}
	n.Capabilities = domain.NewCapabilitySet(caps...)

	if err := n.Validate(); err != nil {
		return domain.NodeInfo{}, err
	}
	return n, nil
}

func fromNodeInfo(n domain.NodeInfo) nodeDocument {
	return nodeDocument{
		NodeID:       hex.EncodeToString(n.NodeID[:]),
		Address:      n.Address,
		Port:         n.Port,
		PublicKey:    hex.EncodeToString(n.PublicKey[:]),
		Capabilities: n.Capabilities.Sorted(),
		Reputation:   n.Reputation,
	}
}
