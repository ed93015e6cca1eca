package loadbalance

import (
	"errors"
	"sync/atomic"

	"copro-rpc/registry"
)

// ErrNoInstances is returned when discovery produced an empty bridge list.
var ErrNoInstances = errors.New("loadbalance: no bridge instances available")

// RoundRobin walks the instance list in order with an atomic counter, so
// concurrent dials spread across bridges without locking.
type RoundRobin struct {
	counter atomic.Int64
}

func (b *RoundRobin) Pick(instances []registry.BridgeInstance) (*registry.BridgeInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	index := b.counter.Add(1) % int64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobin) Name() string {
	return "RoundRobin"
}
