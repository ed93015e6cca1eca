// Package dispatch implements the client side of the co-processor RPC
// protocol: it turns encoded commands into wire frames, correlates responses
// back to waiting callers, and demultiplexes unsolicited events to listeners.
//
// Multiple goroutines call into one Dispatcher concurrently over a single
// transport. Each call gets a fresh correlation id and parks on its own
// buffered channel; a single background goroutine (recvLoop) reads the
// transport and routes each response to the caller that owns its id:
//
//	goroutine-1 ──Call(corr=1)──┐
//	goroutine-2 ──Call(corr=2)──┼──→ transport ──→ co-processor
//	goroutine-3 ──Call(corr=3)──┘
//
//	recvLoop:  ←── response(corr=2) → pending[2] chan → goroutine-2 wakes up
//
// Responses may arrive in any order; correlation ids make the matching
// independent of arrival order. Events bypass the pending table entirely and
// go to whatever listener is registered for their (group, opcode).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"copro-rpc/codec"
	"copro-rpc/command"
	"copro-rpc/transport"
	"copro-rpc/wire"
)

// DefaultTimeout bounds a call's wait for its response when neither the
// dispatcher option nor the command spec overrides it.
const DefaultTimeout = 3 * time.Second

// DefaultEventQueueDepth is the listener buffer used when Listen is given a
// non-positive depth.
const DefaultEventQueueDepth = 16

// Invoker is the call shape shared by the Dispatcher and the middleware
// package: middleware wraps an Invoker and returns an Invoker.
type Invoker func(ctx context.Context, name string, args ...any) (any, error)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the structured logger. Defaults to a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithDefaultTimeout sets the response window used by commands that do not
// carry their own override.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.defaultTimeout = timeout }
}

type pendingCall struct {
	spec *command.Spec
	// ch is the completion slot: written exactly once by the receive loop
	// (or the teardown path) and read exactly once by the waiting caller.
	// Buffered so the receive loop never blocks on a slow caller.
	ch chan callResult
}

type callResult struct {
	val any
	err error
}

type eventKey struct {
	group  byte
	opcode byte
}

// Dispatcher owns the outstanding-request table and the single receive loop
// for one transport link.
type Dispatcher struct {
	tr             transport.Transport
	table          *command.Table
	log            *zap.Logger
	defaultTimeout time.Duration

	mu        sync.Mutex
	pending   map[uint16]*pendingCall
	nextCorr  uint16
	listeners map[eventKey]*Listener
	closed    bool

	done chan struct{} // closed when recvLoop exits

	discarded atomic.Uint64 // frames dropped without delivery

	framesDiscarded metric.Int64Counter
	eventsDropped   metric.Int64Counter
	callDuration    metric.Float64Histogram
}

// NewDispatcher starts a dispatcher over tr using table as its command
// registry. The receive loop starts immediately and runs until the transport
// closes; at that point every still-pending call resolves with
// ErrTransportClosed.
func NewDispatcher(tr transport.Transport, table *command.Table, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tr:             tr,
		table:          table,
		log:            zap.NewNop(),
		defaultTimeout: DefaultTimeout,
		pending:        make(map[uint16]*pendingCall),
		listeners:      make(map[eventKey]*Listener),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	meter := otel.Meter("copro-rpc/dispatch")
	d.framesDiscarded, _ = meter.Int64Counter("rpc.client.frames_discarded",
		metric.WithUnit("{frame}"),
		metric.WithDescription("Frames dropped without delivery (stale, unknown, unparseable)"),
	)
	d.eventsDropped, _ = meter.Int64Counter("rpc.client.events_dropped",
		metric.WithUnit("{event}"),
		metric.WithDescription("Decoded events dropped because the listener queue was full"),
	)
	d.callDuration, _ = meter.Float64Histogram("rpc.client.call.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Round-trip duration of RPC calls"),
	)

	go d.recvLoop()
	return d
}

// Call invokes the named command and waits for its response.
//
// The error is ErrUnknownCommand, codec.ErrEncoding, a *TransportError,
// ErrTimeout, ctx.Err() on cancellation, ErrTransportClosed, a *RemoteError
// carrying the peer's status, or codec.ErrMalformed if the response payload
// does not decode. A call that fails locally (timeout, cancel) deregisters
// itself, so a late response finds no entry and is discarded.
func (d *Dispatcher) Call(ctx context.Context, name string, args ...any) (any, error) {
	spec, ok := d.table.LookupName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return d.CallSpec(ctx, spec, args...)
}

// CallSpec is Call with the spec already in hand.
func (d *Dispatcher) CallSpec(ctx context.Context, spec *command.Spec, args ...any) (any, error) {
	payload, err := codec.EncodeSeq(nil, spec.Args, args)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", spec, err)
	}

	corr, pc, err := d.register(spec)
	if err != nil {
		return nil, err
	}

	frame, err := wire.Frame(wire.Header{
		Kind:   wire.KindCommand,
		Group:  spec.Group,
		Opcode: spec.Opcode,
		Corr:   corr,
	}, payload)
	if err != nil {
		d.deregister(corr)
		return nil, fmt.Errorf("frame %s: %w", spec, err)
	}

	start := time.Now()
	if err := d.tr.Send(ctx, frame); err != nil {
		d.deregister(corr)
		if errors.Is(err, transport.ErrClosed) {
			return nil, ErrTransportClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Op: "send", Err: err}
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pc.ch:
		d.callDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("rpc.method", spec.Name)))
		return res.val, res.err

	case <-ctx.Done():
		d.deregister(corr)
		return nil, ctx.Err()

	case <-timer.C:
		d.deregister(corr)
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, spec, timeout)

	case <-d.done:
		// The loop exited between our registration and its teardown sweep;
		// the sweep may already have completed our slot.
		select {
		case res := <-pc.ch:
			return res.val, res.err
		default:
			d.deregister(corr)
			return nil, ErrTransportClosed
		}
	}
}

// register allocates a fresh correlation id and installs the pending entry.
// Ids increase monotonically and wrap; an id still attached to an
// outstanding request is skipped, so no id is reused while in flight.
func (d *Dispatcher) register(spec *command.Spec) (uint16, *pendingCall, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, nil, ErrTransportClosed
	}
	if len(d.pending) >= 1<<16 {
		return 0, nil, ErrIDSpaceFull
	}
	for {
		d.nextCorr++
		if _, taken := d.pending[d.nextCorr]; !taken {
			break
		}
	}
	pc := &pendingCall{spec: spec, ch: make(chan callResult, 1)}
	d.pending[d.nextCorr] = pc
	return d.nextCorr, pc, nil
}

// deregister releases a correlation id after timeout or cancellation. The
// id becomes reusable; a response that arrives later finds no entry.
func (d *Dispatcher) deregister(corr uint16) {
	d.mu.Lock()
	delete(d.pending, corr)
	d.mu.Unlock()
}

// recvLoop is the single reader of the transport. It runs for the
// dispatcher's entire lifetime and exits only when the transport ends.
// Nothing a peer sends can break it: unparseable frames, stale responses,
// and unknown events are counted and dropped.
func (d *Dispatcher) recvLoop() {
	for {
		frame, err := d.tr.Receive(context.Background())
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) {
				d.log.Warn("transport receive failed", zap.Error(err))
			}
			d.teardown()
			return
		}

		h, payload, err := wire.Parse(frame)
		if err != nil {
			d.discard("unparseable", zap.Error(err))
			continue
		}

		switch h.Kind {
		case wire.KindResponse:
			d.handleResponse(h, payload)
		case wire.KindEvent:
			d.handleEvent(h, payload)
		default:
			// A command addressed to us; this client never serves calls.
			d.discard("unexpected-kind", zap.Stringer("kind", h.Kind))
		}
	}
}

func (d *Dispatcher) handleResponse(h wire.Header, payload []byte) {
	d.mu.Lock()
	pc, ok := d.pending[h.Corr]
	if ok {
		delete(d.pending, h.Corr)
	}
	d.mu.Unlock()

	if !ok {
		// Timed out, cancelled, or never ours. Not an error anyone sees.
		d.discard("stale-response", zap.Uint16("corr", h.Corr))
		return
	}

	if len(payload) < 1 {
		pc.ch <- callResult{err: fmt.Errorf("%w: response for %s has no status byte", codec.ErrMalformed, pc.spec)}
		return
	}
	status := payload[0]
	body := payload[1:]

	if status != 0 {
		pc.ch <- callResult{err: decodeRemoteError(status, body)}
		return
	}

	if pc.spec.Ret == nil {
		if len(body) != 0 {
			pc.ch <- callResult{err: fmt.Errorf("%w: %d payload bytes on void response for %s", codec.ErrMalformed, len(body), pc.spec)}
			return
		}
		pc.ch <- callResult{}
		return
	}

	val, err := codec.Decode(body, *pc.spec.Ret)
	if err != nil {
		pc.ch <- callResult{err: fmt.Errorf("decode %s response: %w", pc.spec, err)}
		return
	}
	pc.ch <- callResult{val: val}
}

func (d *Dispatcher) handleEvent(h wire.Header, payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.listeners[eventKey{h.Group, h.Opcode}]
	if !ok {
		d.discardLocked("unknown-event", zap.Uint8("group", h.Group), zap.Uint8("opcode", h.Opcode))
		return
	}

	vals, err := codec.DecodeSeq(payload, l.schema)
	if err != nil {
		d.discardLocked("malformed-event", zap.Uint8("group", h.Group), zap.Uint8("opcode", h.Opcode), zap.Error(err))
		return
	}

	// Non-blocking: a slow consumer loses events, never stalls the loop.
	select {
	case l.ch <- vals:
	default:
		l.dropped.Add(1)
		d.eventsDropped.Add(context.Background(), 1,
			metric.WithAttributes(attribute.Int("group", int(h.Group)), attribute.Int("opcode", int(h.Opcode))))
	}
}

// teardown resolves every outstanding call with ErrTransportClosed, closes
// all listener channels, and marks the dispatcher closed.
func (d *Dispatcher) teardown() {
	d.mu.Lock()
	d.closed = true
	for corr, pc := range d.pending {
		pc.ch <- callResult{err: ErrTransportClosed}
		delete(d.pending, corr)
	}
	for k, l := range d.listeners {
		close(l.ch)
		delete(d.listeners, k)
	}
	d.mu.Unlock()

	close(d.done)
	d.log.Info("dispatcher stopped")
}

// Close closes the transport and waits for the receive loop to finish its
// teardown sweep.
func (d *Dispatcher) Close() error {
	err := d.tr.Close()
	<-d.done
	return err
}

// Done is closed once the receive loop has exited and all pending calls have
// been resolved.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// DiscardedFrames reports how many received frames were dropped without
// delivery: stale responses, unknown events, unparseable or unexpected
// frames. Diagnostic only.
func (d *Dispatcher) DiscardedFrames() uint64 {
	return d.discarded.Load()
}

func (d *Dispatcher) discard(reason string, fields ...zap.Field) {
	d.discarded.Add(1)
	d.framesDiscarded.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason)))
	d.log.Debug("frame discarded", append([]zap.Field{zap.String("reason", reason)}, fields...)...)
}

// discardLocked is discard for paths already holding d.mu.
func (d *Dispatcher) discardLocked(reason string, fields ...zap.Field) {
	d.discard(reason, fields...)
}
