package gate

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashRing_AddNode_Duplicate_ReturnsError(t *testing.T) {
	// GIVEN a ring containing node-1
	hr := NewHashRing(150)
	require.NoError(t, hr.AddNode("node-1"))

	// WHEN node-1 is added again
	err := hr.AddNode("node-1")

	// THEN a DuplicateNodeError is returned and the ring is unchanged
	var dup *DuplicateNodeError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "node-1", dup.NodeID)
	assert.Equal(t, 150, len(hr.ring))
}

func TestHashRing_RemoveNode_Unknown_ReturnsError(t *testing.T) {
	hr := NewHashRing(150)
	err := hr.RemoveNode("ghost")

	var unknown *UnknownNodeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.NodeID)
}

func TestHashRing_Lookup_Empty_ReturnsErrEmptyRing(t *testing.T) {
	hr := NewHashRing(150)
	_, err := hr.Lookup("any-key")
	assert.ErrorIs(t, err, ErrEmptyRing)

	_, err = hr.Successors("any-key", 2)
	assert.ErrorIs(t, err, ErrEmptyRing)
}

func TestHashRing_VirtualNodeCount_ExactPerNode(t *testing.T) {
	// GIVEN a ring with 3 physical nodes at 150 virtual nodes each
	hr := NewHashRing(150)
	for i := 1; i <= 3; i++ {
		require.NoError(t, hr.AddNode(fmt.Sprintf("node-%d", i)))
	}

	// THEN every physical node owns exactly its configured virtual-node count
	counts := map[string]int{}
	for _, vn := range hr.ring {
		counts[vn.physicalID]++
	}
	for node, c := range counts {
		assert.Equal(t, 150, c, "virtual nodes for %s", node)
	}
	assert.Equal(t, 450, len(hr.ring))

	// AND positions are strictly increasing (no duplicates)
	for i := 1; i < len(hr.ring); i++ {
		require.Less(t, hr.ring[i-1].position, hr.ring[i].position)
	}
}

func TestHashRing_Lookup_Deterministic(t *testing.T) {
	hr := NewHashRing(150)
	require.NoError(t, hr.AddNode("node-1"))
	require.NoError(t, hr.AddNode("node-2"))

	first, err := hr.Lookup("stable-key")
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		got, err := hr.Lookup("stable-key")
		require.NoError(t, err)
		require.Equal(t, first, got)
	}
}

func TestHashRing_Fairness_CVUnderTenPercent(t *testing.T) {
	// GIVEN a ring with 3 physical nodes and 150 virtual nodes each
	hr := NewHashRing(150)
	for i := 1; i <= 3; i++ {
		require.NoError(t, hr.AddNode(fmt.Sprintf("node-%d", i)))
	}

	// WHEN 10,000 distinct keys are routed
	keys := make([]string, 10000)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}
	dist := hr.Distribution(keys)

	// THEN every node gets a share and the coefficient of variation is bounded
	total := 0
	for node, count := range dist {
		assert.Greater(t, count, 0, "node %s received no keys", node)
		total += count
	}
	assert.Equal(t, 10000, total)
	assert.Less(t, hr.LoadBalanceCV(10000), 0.10)
}

func TestHashRing_RemoveNode_MinimalRemapping(t *testing.T) {
	// GIVEN a 4-node ring and the assignment of 10,000 keys
	hr := NewHashRing(150)
	for i := 0; i < 4; i++ {
		require.NoError(t, hr.AddNode(fmt.Sprintf("node-%d", i)))
	}
	keys := make([]string, 10000)
	before := make(map[string]string, len(keys))
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
		owner, err := hr.Lookup(keys[i])
		require.NoError(t, err)
		before[keys[i]] = owner
	}

	// WHEN node-2 is removed
	require.NoError(t, hr.RemoveNode("node-2"))

	// THEN keys of surviving nodes keep their owner, and only node-2's share
	// (roughly K/N) moved
	remapped := 0
	for _, key := range keys {
		after, err := hr.Lookup(key)
		require.NoError(t, err)
		if before[key] == "node-2" {
			remapped++
			require.NotEqual(t, "node-2", after)
		} else {
			require.Equal(t, before[key], after, "key %s moved despite unaffected owner", key)
		}
	}
	// node-2 owned about a quarter of the keyspace
	assert.InDelta(t, 2500, remapped, 1250)
}

func TestHashRing_Successors_DistinctInRingOrder(t *testing.T) {
	hr := NewHashRing(150)
	for i := 0; i < 3; i++ {
		require.NoError(t, hr.AddNode(fmt.Sprintf("node-%d", i)))
	}

	succ, err := hr.Successors("some-key", 5)
	require.NoError(t, err)

	// Capped at the number of physical nodes, all distinct, primary first
	require.Len(t, succ, 3)
	primary, err := hr.Lookup("some-key")
	require.NoError(t, err)
	assert.Equal(t, primary, succ[0])
	seen := map[string]bool{}
	for _, node := range succ {
		assert.False(t, seen[node], "duplicate successor %s", node)
		seen[node] = true
	}
}

func TestHashRing_ConcurrentLookupsDuringMutation(t *testing.T) {
	// Readers must see either the pre- or post-mutation ring, never an
	// inconsistent one. Run lookups while membership churns.
	hr := NewHashRing(50)
	require.NoError(t, hr.AddNode("stable-node"))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; ; j++ {
				select {
				case <-stop:
					return
				default:
				}
				node, err := hr.Lookup(fmt.Sprintf("key-%d-%d", id, j))
				if err != nil {
					t.Errorf("lookup failed with non-empty ring: %v", err)
					return
				}
				if node == "" {
					t.Error("lookup returned empty node")
					return
				}
			}
		}(i)
	}

	for round := 0; round < 50; round++ {
		node := fmt.Sprintf("churn-%d", round)
		require.NoError(t, hr.AddNode(node))
		require.NoError(t, hr.RemoveNode(node))
	}
	close(stop)
	wg.Wait()
}

func TestHashRing_DefaultVirtualNodes_AppliedForNonPositive(t *testing.T) {
	hr := NewHashRing(0)
	require.NoError(t, hr.AddNode("only"))
	assert.Equal(t, DefaultVirtualNodes, len(hr.ring))

	owner, err := hr.Lookup("whatever")
	require.NoError(t, err)
	assert.Equal(t, "only", owner)
	assert.False(t, errors.Is(err, ErrEmptyRing))
}
