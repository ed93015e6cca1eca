// etcd-backed implementation of the Registry interface.
//
// Bridges live under TTL-leased keys:
//
//	Key:   /copro-rpc/bridges/{board}/{addr}
//	Value: JSON-encoded BridgeInstance
//
// If a bridge host dies, its lease expires and the entry disappears on its
// own, so clients never discover a dead endpoint for longer than the TTL.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const bridgePrefix = "/copro-rpc/bridges/"

// EtcdRegistry implements Registry using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	log    *zap.Logger
}

// NewEtcdRegistry connects to the given etcd endpoints. The logger is also
// handed to the etcd client itself.
func NewEtcdRegistry(endpoints []string, log *zap.Logger) (*EtcdRegistry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
		Logger:    log.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, log: log}, nil
}

// Register adds a bridge under a TTL lease and keeps the lease alive in the
// background. The entry auto-expires if keepalive stops.
func (r *EtcdRegistry) Register(board string, instance BridgeInstance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, bridgePrefix+board+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain keepalive responses so the channel never fills.
	go func() {
		for range ch {
		}
		r.log.Warn("bridge lease keepalive ended",
			zap.String("board", board), zap.String("addr", instance.Addr))
	}()
	return nil
}

// Deregister removes a bridge entry, typically during graceful shutdown.
func (r *EtcdRegistry) Deregister(board string, addr string) error {
	_, err := r.client.Delete(context.TODO(), bridgePrefix+board+"/"+addr)
	return err
}

// Discover lists all bridges currently registered for a board type.
func (r *EtcdRegistry) Discover(board string) ([]BridgeInstance, error) {
	resp, err := r.client.Get(context.TODO(), bridgePrefix+board+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]BridgeInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance BridgeInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.log.Warn("skipping malformed bridge entry", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch emits a fresh instance list whenever the board's bridge set changes
// (registration, deregistration, lease expiry). Server-push via etcd watch,
// no polling.
func (r *EtcdRegistry) Watch(board string) <-chan []BridgeInstance {
	ch := make(chan []BridgeInstance, 1)

	go func() {
		watchChan := r.client.Watch(context.TODO(), bridgePrefix+board+"/", clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the whole list on any change; simpler than folding
			// individual watch events and the lists are tiny.
			instances, err := r.Discover(board)
			if err != nil {
				r.log.Warn("re-fetch after watch event failed", zap.String("board", board), zap.Error(err))
				continue
			}
			ch <- instances
		}
	}()

	return ch
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
