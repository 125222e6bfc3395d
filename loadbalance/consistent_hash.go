package loadbalance

import (
	"dsg-rpc/object"
	"dsg-rpc/registry"
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"
)

// ConsistentHashBalancer maps object ids to endpoints using a hash ring.
// The same object always goes to the same router (until the endpoint set changes),
// so a retried post reaches the router that may already hold it.
//
// Virtual nodes: each endpoint is mapped to N virtual nodes on the ring so a
// handful of endpoints still split the key space evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.Mutex
	sig   string            // addresses the current ring was built from
	ring  []uint32          // Sorted hash values on the ring
	nodes map[uint32]string // Hash value → endpoint address
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per endpoint.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]string),
	}
}

// rebuild places every endpoint onto the ring. Each virtual node is hashed
// from "{addr}#{i}".
func (b *ConsistentHashBalancer) rebuild(records []registry.DeviceRecord, sig string) {
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]string, len(records)*b.replicas)
	for _, rec := range records {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", rec.Addr, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = rec.Addr
		}
	}
	// Keep the ring sorted for binary search in Pick()
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
	b.sig = sig
}

func signature(records []registry.DeviceRecord) string {
	addrs := make([]string, len(records))
	for i, rec := range records {
		addrs[i] = rec.Addr
	}
	sort.Strings(addrs)
	return strings.Join(addrs, ",")
}

// Pick finds the endpoint responsible for key. It hashes the key, then
// binary-searches for the first node >= hash on the ring, wrapping around to
// the first node past the end. The ring is rebuilt when records change.
func (b *ConsistentHashBalancer) Pick(key object.ID, records []registry.DeviceRecord) (*registry.DeviceRecord, error) {
	if len(records) == 0 {
		return nil, ErrNoEndpoints
	}

	b.mu.Lock()
	if sig := signature(records); sig != b.sig {
		b.rebuild(records, sig)
	}
	hash := crc32.ChecksumIEEE(key[:])
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	addr := b.nodes[b.ring[idx]]
	b.mu.Unlock()

	for i := range records {
		if records[i].Addr == addr {
			return &records[i], nil
		}
	}
	return nil, ErrNoEndpoints
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
