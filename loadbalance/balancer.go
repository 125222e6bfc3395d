// Package loadbalance picks which router endpoint of a device receives a post.
//
// Three strategies are implemented:
//   - RoundRobin:      routers of equal capacity
//   - WeightedRandom:  routers with different capacity, per DeviceRecord.Weight
//   - ConsistentHash:  the same object id always lands on the same router
package loadbalance

import (
	"dsg-rpc/object"
	"dsg-rpc/registry"
	"errors"
	"fmt"
	"strings"
)

// ErrNoEndpoints is returned when a device has no endpoint to pick from.
var ErrNoEndpoints = errors.New("loadbalance: no endpoints available")

// Balancer is the interface for load balancing strategies.
// The stack calls Pick() before each targeted post to select an endpoint.
type Balancer interface {
	// Pick selects one record from the available list. key is the id of the
	// posted object; strategies without affinity ignore it.
	// Called on every post, so it must be goroutine-safe.
	Pick(key object.ID, records []registry.DeviceRecord) (*registry.DeviceRecord, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer named in configuration. "" selects round-robin.
func New(name string) (Balancer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "round_robin", "roundrobin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random", "weightedrandom":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash", "consistenthash":
		return NewConsistentHashBalancer(), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
	}
}
