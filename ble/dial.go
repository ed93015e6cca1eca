package ble

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"copro-rpc/dispatch"
	"copro-rpc/loadbalance"
	"copro-rpc/registry"
	"copro-rpc/transport"
)

// DialOption configures Dial.
type DialOption func(*dialConfig)

type dialConfig struct {
	log           *zap.Logger
	timeout       time.Duration
	clientOptions []ClientOption
}

// WithLogger sets the logger used by the dispatcher and the facade.
func WithLogger(log *zap.Logger) DialOption {
	return func(c *dialConfig) { c.log = log }
}

// WithDefaultTimeout sets the dispatcher's default response window.
func WithDefaultTimeout(timeout time.Duration) DialOption {
	return func(c *dialConfig) { c.timeout = timeout }
}

// WithClientOptions forwards options to the Client constructor.
func WithClientOptions(opts ...ClientOption) DialOption {
	return func(c *dialConfig) { c.clientOptions = append(c.clientOptions, opts...) }
}

// Dial discovers a debug bridge for the given board type, picks one with the
// balancer, connects the stream transport, and builds a Bluetooth client on
// top. This is the one-call setup path for device-farm use; embedders with
// their own link construct a transport and dispatcher directly.
func Dial(ctx context.Context, reg registry.Registry, bal loadbalance.Balancer, board string, opts ...DialOption) (*Client, error) {
	cfg := dialConfig{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	instances, err := reg.Discover(board)
	if err != nil {
		return nil, fmt.Errorf("ble: discover %q bridges: %w", board, err)
	}
	instance, err := bal.Pick(instances)
	if err != nil {
		return nil, fmt.Errorf("ble: pick %q bridge: %w", board, err)
	}

	cfg.log.Info("dialing debug bridge",
		zap.String("board", board),
		zap.String("addr", instance.Addr),
		zap.String("serial", instance.Serial),
		zap.String("balancer", bal.Name()),
	)

	tr, err := transport.Dial(ctx, "tcp", instance.Addr)
	if err != nil {
		return nil, fmt.Errorf("ble: dial bridge %s: %w", instance.Addr, err)
	}

	dispatchOpts := []dispatch.Option{dispatch.WithLogger(cfg.log)}
	if cfg.timeout > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithDefaultTimeout(cfg.timeout))
	}
	d := dispatch.NewDispatcher(tr, Commands, dispatchOpts...)

	clientOpts := append([]ClientOption{WithClientLogger(cfg.log)}, cfg.clientOptions...)
	return NewClient(d, clientOpts...), nil
}
