// Package pathselect draws a diverse, capability-respecting hop sequence
// from a node pool and assembles the independent per-layer keys and routing
// infos a packet build needs.
package pathselect

import (
	"crypto/rand"
	"fmt"
	"io"

	"anemochory/domain"
	"anemochory/infrastructure/onion"
	"anemochory/infrastructure/routing/nodepool"
)

// RoutingPath is the output of a successful Select: the chosen nodes, an
// independent layer key per hop, and the routing info each hop's peel will
// see, entry-first.
type RoutingPath struct {
	Nodes       []domain.NodeInfo
	LayerKeys   [][]byte
	RoutingInfo []domain.LayerRoutingInfo
}

// Options configures Select.
type Options struct {
	HopCount                int
	MinReputation           float64
	Exclude                 map[domain.NodeId]struct{}
	EnforceSubnetDiversity  bool
}

// DefaultOptions returns Options with EnforceSubnetDiversity true, as the
// spec's default.
func DefaultOptions(hopCount int) Options {
	return Options{HopCount: hopCount, EnforceSubnetDiversity: true}
}

// Select builds a RoutingPath from pool per the spec's path-selection
// algorithm: pick an entry, an exit, hopCount-2 diverse relays for the
// middle, generate independent layer keys, and chain routing infos
// entry-to-exit with the final hop's next_hop all-zero.
func Select(pool *nodepool.Pool, opts Options) (RoutingPath, error) {
	n := opts.HopCount
	if n < domain.MinHops || n > domain.MaxHops {
		return RoutingPath{}, fmt.Errorf("pathselect: hop count %d out of range [%d, %d]: %w", n, domain.MinHops, domain.MaxHops, domain.ErrPathConstraintError)
	}

	exclude := opts.Exclude
	if exclude == nil {
		exclude = make(map[domain.NodeId]struct{})
	} else {
		exclude = cloneExclusion(exclude)
	}

	entryCandidates := pool.Filter(nodepool.WithCapability(domain.CapabilityEntry), nodepool.WithMinReputation(opts.MinReputation), nodepool.ExcludingIDs(exclude))
	if len(entryCandidates) == 0 {
		return RoutingPath{}, fmt.Errorf("pathselect: no entry candidates: %w", domain.ErrInsufficientNodes)
	}
	entry, err := pickRandom(entryCandidates)
	if err != nil {
		return RoutingPath{}, err
	}
	exclude[entry.NodeID] = struct{}{}

	exitCandidates := pool.Filter(nodepool.WithCapability(domain.CapabilityExit), nodepool.WithMinReputation(opts.MinReputation), nodepool.ExcludingIDs(exclude))
	if len(exitCandidates) == 0 {
		return RoutingPath{}, fmt.Errorf("pathselect: no exit candidates: %w", domain.ErrInsufficientNodes)
	}
	exit, err := pickRandom(exitCandidates)
	if err != nil {
		return RoutingPath{}, err
	}
	exclude[exit.NodeID] = struct{}{}

	middleCount := n - 2
	relayCandidates := pool.Filter(nodepool.WithCapability(domain.CapabilityRelay), nodepool.WithMinReputation(opts.MinReputation), nodepool.ExcludingIDs(exclude))

	nodes := make([]domain.NodeInfo, 0, n)
	nodes = append(nodes, entry)

	usedSubnets := map[string]struct{}{entry.SubnetPrefix(): {}}
	middles, err := sampleDiverse(relayCandidates, middleCount, usedSubnets, opts.EnforceSubnetDiversity)
	if err != nil {
		return RoutingPath{}, err
	}
	nodes = append(nodes, middles...)

	if opts.EnforceSubnetDiversity {
		if _, conflict := usedSubnets[exit.SubnetPrefix()]; conflict {
			return RoutingPath{}, fmt.Errorf("pathselect: exit subnet collides with an earlier hop: %w", domain.ErrPathConstraintError)
		}
	}
	nodes = append(nodes, exit)

	layerKeys, err := independentLayerKeys(n)
	if err != nil {
		return RoutingPath{}, err
	}

	routingInfo, err := buildRoutingInfo(nodes)
	if err != nil {
		return RoutingPath{}, err
	}

	return RoutingPath{Nodes: nodes, LayerKeys: layerKeys, RoutingInfo: routingInfo}, nil
}

func cloneExclusion(in map[domain.NodeId]struct{}) map[domain.NodeId]struct{} {
	out := make(map[domain.NodeId]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// sampleDiverse draws count nodes from candidates without replacement. When
// diversity is enforced, a candidate whose subnet prefix already appears in
// usedSubnets is rejected and resampling continues against the remaining
// pool; domain.ErrPathConstraintError is returned if candidates run out
// before count nodes are chosen.
func sampleDiverse(candidates []domain.NodeInfo, count int, usedSubnets map[string]struct{}, enforceDiversity bool) ([]domain.NodeInfo, error) {
	pool := append([]domain.NodeInfo{}, candidates...)
	chosen := make([]domain.NodeInfo, 0, count)

	for len(chosen) < count {
		if len(pool) == 0 {
			if enforceDiversity {
				return nil, fmt.Errorf("pathselect: cannot satisfy subnet diversity with %d remaining candidates: %w", len(pool), domain.ErrPathConstraintError)
			}
			return nil, fmt.Errorf("pathselect: not enough relay candidates: %w", domain.ErrInsufficientNodes)
		}
		idx, err := randomIndex(len(pool))
		if err != nil {
			return nil, err
		}
		candidate := pool[idx]
		pool = append(pool[:idx], pool[idx+1:]...)

		if enforceDiversity {
			if _, conflict := usedSubnets[candidate.SubnetPrefix()]; conflict {
				continue
			}
		}
		usedSubnets[candidate.SubnetPrefix()] = struct{}{}
		chosen = append(chosen, candidate)
	}
	return chosen, nil
}

// independentLayerKeys generates n independent 32-byte keys from a secure
// RNG — never derived from a shared master, so compromise of one layer's
// key yields nothing about any other.
func independentLayerKeys(n int) ([][]byte, error) {
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		key := make([]byte, domain.KeySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("pathselect: layer key generation: %w", domain.ErrKeyDerivationFailed)
		}
		keys[i] = key
	}
	return keys, nil
}

// buildRoutingInfo returns one LayerRoutingInfo per hop, entry-first: hop i
// routes to hop i+1, and the final hop (the exit) routes to the zero
// address signaling Exit.
func buildRoutingInfo(nodes []domain.NodeInfo) ([]domain.LayerRoutingInfo, error) {
	n := len(nodes)
	infos := make([]domain.LayerRoutingInfo, n)
	for i := 0; i < n; i++ {
		var info domain.LayerRoutingInfo
		info.SequenceNumber = uint64(i)
		if i < n-1 {
			next := nodes[i+1]
			if err := putAddress(&info, next.Address); err != nil {
				return nil, err
			}
			info.NextHopPort = uint16(next.Port)
		}
		infos[i] = info
	}
	return infos, nil
}

func putAddress(info *domain.LayerRoutingInfo, address string) error {
	ip := parseIP(address)
	if v4 := ip.To4(); v4 != nil {
		return info.PutIPv4(v4)
	}
	return info.PutIPv6(ip)
}

func pickRandom(nodes []domain.NodeInfo) (domain.NodeInfo, error) {
	idx, err := randomIndex(len(nodes))
	if err != nil {
		return domain.NodeInfo{}, err
	}
	return nodes[idx], nil
}

// BuildPacketPath returns the innermost-first list of onion.Layer that
// Build expects, derived from a RoutingPath and the overall session_id.
func BuildPacketPath(path RoutingPath, sessionID domain.SessionId) []onion.Layer {
	n := len(path.Nodes)
	layers := make([]onion.Layer, n)
	for i := 0; i < n; i++ {
		routing := path.RoutingInfo[i]
		routing.SessionID = sessionID
		// innermost-first: hop n-1 (the exit) is layers[0].
		layers[n-1-i] = onion.Layer{Key: path.LayerKeys[i], Routing: routing}
	}
	return layers
}
