package loadbalance

import (
	"dsg-rpc/object"
	"dsg-rpc/registry"
	"sync/atomic"
)

// RoundRobinBalancer distributes posts evenly across all endpoints in order.
// Uses an atomic counter for lock-free, goroutine-safe operation.
type RoundRobinBalancer struct {
	counter atomic.Uint64 // incremented on each Pick()
}

// Pick selects the next endpoint in round-robin order.
func (b *RoundRobinBalancer) Pick(_ object.ID, records []registry.DeviceRecord) (*registry.DeviceRecord, error) {
	if len(records) == 0 {
		return nil, ErrNoEndpoints
	}
	index := (b.counter.Add(1) - 1) % uint64(len(records))
	return &records[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
