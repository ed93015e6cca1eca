// Package loadbalance selects which debug bridge to dial when a board type
// has several registered. Selection happens once per dial, not per call:
// after the link is up, every call rides the same multiplexed transport.
//
// Two strategies:
//   - RoundRobin:      boards of equal capacity, spread sessions evenly
//   - WeightedRandom:  heterogeneous bridges (shared vs. dedicated hosts)
package loadbalance

import "copro-rpc/registry"

// Balancer picks one bridge from the discovered list.
// Implementations must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.BridgeInstance) (*registry.BridgeInstance, error)

	// Name returns the strategy name, for logging.
	Name() string
}
