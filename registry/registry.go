// Package registry discovers debug bridges: the TCP endpoints (ser2net-style
// adapters, SWD probes with UART tunnels) that front co-processor serial
// links in a device farm. A bridge registers itself when its board comes up;
// clients discover a bridge for the board type they need and dial it.
package registry

// BridgeInstance describes one registered debug bridge.
type BridgeInstance struct {
	Addr   string // TCP endpoint the stream transport dials
	Board  string // board type, e.g. "nrf5340dk"
	Serial string // device serial, distinguishes boards of the same type
	Weight int    // selection weight for load balancing
}

// Registry is the discovery interface. The etcd implementation is the one
// used in farms; tests substitute a static in-memory one.
type Registry interface {
	Register(board string, instance BridgeInstance, ttl int64) error
	Deregister(board string, addr string) error
	Discover(board string) ([]BridgeInstance, error)
	Watch(board string) <-chan []BridgeInstance
}

// Static is a fixed instance list, for tests and single-device setups.
type Static []BridgeInstance

func (s Static) Register(string, BridgeInstance, int64) error { return nil }
func (s Static) Deregister(string, string) error              { return nil }

func (s Static) Discover(board string) ([]BridgeInstance, error) {
	out := make([]BridgeInstance, 0, len(s))
	for _, inst := range s {
		if inst.Board == board {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (s Static) Watch(string) <-chan []BridgeInstance {
	ch := make(chan []BridgeInstance)
	close(ch)
	return ch
}
