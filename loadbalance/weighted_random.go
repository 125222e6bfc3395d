package loadbalance

import (
	"dsg-rpc/object"
	"dsg-rpc/registry"
	"math/rand"
)

// WeightedRandomBalancer picks an endpoint with probability proportional to its
// weight. Endpoints with a weight of 0 or less count as weight 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(_ object.ID, records []registry.DeviceRecord) (*registry.DeviceRecord, error) {
	if len(records) == 0 {
		return nil, ErrNoEndpoints
	}

	total := 0
	for _, rec := range records {
		total += weightOf(rec)
	}

	// Walk the cumulative weights until the random point is passed
	r := rand.Intn(total)
	for i := range records {
		r -= weightOf(records[i])
		if r < 0 {
			return &records[i], nil
		}
	}
	return &records[len(records)-1], nil
}

func weightOf(rec registry.DeviceRecord) int {
	if rec.Weight <= 0 {
		return 1
	}
	return rec.Weight
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
