package loadbalance

import (
	"math/rand"
	"sync"

	"copro-rpc/registry"
)

// WeightedRandom picks bridges with probability proportional to their
// registered weight. A bridge on a dedicated host can carry more sessions
// than one sharing a lab machine; weights express that.
type WeightedRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWeightedRandom seeds the strategy. seed 0 draws from the global source.
func NewWeightedRandom(seed int64) *WeightedRandom {
	if seed == 0 {
		seed = rand.Int63()
	}
	return &WeightedRandom{rng: rand.New(rand.NewSource(seed))}
}

func (b *WeightedRandom) Pick(instances []registry.BridgeInstance) (*registry.BridgeInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	total := 0
	for _, inst := range instances {
		if inst.Weight > 0 {
			total += inst.Weight
		}
	}
	if total == 0 {
		// All weights unset: degrade to uniform.
		b.mu.Lock()
		i := b.rng.Intn(len(instances))
		b.mu.Unlock()
		return &instances[i], nil
	}

	b.mu.Lock()
	n := b.rng.Intn(total)
	b.mu.Unlock()
	for i := range instances {
		if instances[i].Weight <= 0 {
			continue
		}
		n -= instances[i].Weight
		if n < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandom) Name() string {
	return "WeightedRandom"
}
