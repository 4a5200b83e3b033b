// ring.go
//
// Implements the consistent hash ring that maps request keys to physical
// worker nodes. Each physical node is represented by a configurable number of
// virtual nodes (150 by default) so that key ownership is smoothed across the
// ring and membership changes remap only the departing node's share of keys.

package gate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/stat"
)

// virtualNode is one hash-ring position owned by a physical node. Virtual
// nodes are derived, never mutated: they are regenerated from
// (physicalID, replicaIndex) whenever membership changes.
type virtualNode struct {
	position   uint64 // 64-bit xxhash of "physicalID#replicaIndex"
	physicalID string
}

// HashRing maps arbitrary keys to physical node IDs. Lookups take the read
// lock and membership changes take the write lock, so concurrent readers see
// either the pre- or post-mutation ring, never a partially updated one.
// Membership operations are not on the per-request hot path.
type HashRing struct {
	mu           sync.RWMutex
	virtualNodes int                 // virtual nodes per physical node
	ring         []virtualNode       // sorted by position, no duplicates
	owner        map[uint64]string   // position -> physical ID, for collision checks
	nodes        map[string]struct{} // registered physical IDs
}

// NewHashRing creates an empty ring with the given number of virtual nodes
// per physical node. Values <= 0 fall back to DefaultVirtualNodes.
func NewHashRing(virtualNodes int) *HashRing {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	return &HashRing{
		virtualNodes: virtualNodes,
		owner:        make(map[uint64]string),
		nodes:        make(map[string]struct{}),
	}
}

// hashKey maps a lookup key to its ring position.
func hashKey(key string) uint64 {
	return xxhash.Sum64String(key)
}

// virtualPosition derives the ring position for one replica of a physical
// node. Positions already taken are resolved by rehashing with a salt suffix,
// so the ring never holds duplicate positions and every physical node keeps
// exactly its configured virtual-node count. Deterministic for a given
// membership history.
func (hr *HashRing) virtualPosition(physicalID string, replica int) uint64 {
	pos := xxhash.Sum64String(fmt.Sprintf("%s#%d", physicalID, replica))
	for salt := 0; ; salt++ {
		if _, taken := hr.owner[pos]; !taken {
			return pos
		}
		pos = xxhash.Sum64String(fmt.Sprintf("%s#%d!%d", physicalID, replica, salt))
	}
}

// AddNode registers a physical node and inserts its virtual nodes.
// Returns DuplicateNodeError if the node is already present.
func (hr *HashRing) AddNode(physicalID string) error {
	hr.mu.Lock()
	defer hr.mu.Unlock()

	if _, ok := hr.nodes[physicalID]; ok {
		return &DuplicateNodeError{NodeID: physicalID}
	}
	hr.nodes[physicalID] = struct{}{}

	for i := 0; i < hr.virtualNodes; i++ {
		pos := hr.virtualPosition(physicalID, i)
		hr.owner[pos] = physicalID
		hr.ring = append(hr.ring, virtualNode{position: pos, physicalID: physicalID})
	}
	sort.Slice(hr.ring, func(i, j int) bool {
		return hr.ring[i].position < hr.ring[j].position
	})
	return nil
}

// RemoveNode removes a physical node and all of its virtual nodes.
// Returns UnknownNodeError if the node is not present.
func (hr *HashRing) RemoveNode(physicalID string) error {
	hr.mu.Lock()
	defer hr.mu.Unlock()

	if _, ok := hr.nodes[physicalID]; !ok {
		return &UnknownNodeError{NodeID: physicalID}
	}
	delete(hr.nodes, physicalID)

	kept := hr.ring[:0]
	for _, vn := range hr.ring {
		if vn.physicalID == physicalID {
			delete(hr.owner, vn.position)
			continue
		}
		kept = append(kept, vn)
	}
	hr.ring = kept
	return nil
}

// Lookup returns the physical node owning the first virtual node at or after
// the key's position, wrapping to the smallest position past the top of the
// ring. Returns ErrEmptyRing when no nodes are registered.
func (hr *HashRing) Lookup(key string) (string, error) {
	hr.mu.RLock()
	defer hr.mu.RUnlock()

	if len(hr.ring) == 0 {
		return "", ErrEmptyRing
	}
	idx := hr.search(hashKey(key))
	return hr.ring[idx].physicalID, nil
}

// Successors returns up to n distinct physical nodes in ring order starting
// from the key's owner. The first element is always the Lookup result; the
// rest are the fallback candidates the gateway walks when bounded retry is
// enabled. Returns ErrEmptyRing when no nodes are registered.
func (hr *HashRing) Successors(key string, n int) ([]string, error) {
	hr.mu.RLock()
	defer hr.mu.RUnlock()

	if len(hr.ring) == 0 {
		return nil, ErrEmptyRing
	}
	if n > len(hr.nodes) {
		n = len(hr.nodes)
	}
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	idx := hr.search(hashKey(key))
	for i := 0; i < len(hr.ring) && len(out) < n; i++ {
		id := hr.ring[(idx+i)%len(hr.ring)].physicalID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// search returns the index of the first virtual node at or after pos,
// wrapping to index 0. Callers must hold at least the read lock.
func (hr *HashRing) search(pos uint64) int {
	idx := sort.Search(len(hr.ring), func(i int) bool {
		return hr.ring[i].position >= pos
	})
	if idx == len(hr.ring) {
		idx = 0
	}
	return idx
}

// Nodes returns a snapshot of the registered physical node IDs, sorted.
func (hr *HashRing) Nodes() []string {
	hr.mu.RLock()
	defer hr.mu.RUnlock()

	out := make([]string, 0, len(hr.nodes))
	for id := range hr.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of registered physical nodes.
func (hr *HashRing) Size() int {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	return len(hr.nodes)
}

// Distribution counts how many of the given keys each physical node owns.
// Every registered node appears in the result, including nodes owning zero
// keys. Used to validate ring fairness.
func (hr *HashRing) Distribution(keys []string) map[string]int {
	hr.mu.RLock()
	defer hr.mu.RUnlock()

	dist := make(map[string]int, len(hr.nodes))
	for id := range hr.nodes {
		dist[id] = 0
	}
	if len(hr.ring) == 0 {
		return dist
	}
	for _, key := range keys {
		dist[hr.ring[hr.search(hashKey(key))].physicalID]++
	}
	return dist
}

// LoadBalanceCV routes numKeys synthetic keys and returns the coefficient of
// variation (stddev/mean) of the per-node counts. 0.0 for an empty ring.
func (hr *HashRing) LoadBalanceCV(numKeys int) float64 {
	keys := make([]string, numKeys)
	for i := range keys {
		keys[i] = fmt.Sprintf("key_%d", i)
	}
	dist := hr.Distribution(keys)
	if len(dist) == 0 {
		return 0.0
	}
	counts := make([]float64, 0, len(dist))
	for _, c := range dist {
		counts = append(counts, float64(c))
	}
	mean := stat.Mean(counts, nil)
	if mean == 0 {
		return 0.0
	}
	return stat.StdDev(counts, nil) / mean
}
