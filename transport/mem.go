package transport

import (
	"context"
	"sync"
)

// MemTransport is one endpoint of an in-memory transport pair. It moves
// already-framed buffers over channels, so it models a frame-oriented medium
// (a shared-memory ring, an IPC mailbox) rather than a byte stream.
//
// Tests use it to play the remote co-processor without sockets.
type MemTransport struct {
	in        <-chan []byte
	out       chan<- []byte
	done      chan struct{}
	peerDone  chan struct{}
	closeOnce sync.Once
}

// Pair creates two connected in-memory transports. Frames sent on one are
// received by the other, in order, with the given per-direction buffer depth.
func Pair(depth int) (*MemTransport, *MemTransport) {
	if depth <= 0 {
		depth = 16
	}
	ab := make(chan []byte, depth)
	ba := make(chan []byte, depth)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &MemTransport{in: ba, out: ab, done: aDone, peerDone: bDone}
	b := &MemTransport{in: ab, out: ba, done: bDone, peerDone: aDone}
	return a, b
}

// Send queues one frame for the peer. A copy is made so the caller may reuse
// its buffer immediately.
func (t *MemTransport) Send(ctx context.Context, frame []byte) error {
	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case <-t.done:
		return ErrClosed
	case <-t.peerDone:
		return ErrClosed
	default:
	}

	select {
	case t.out <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrClosed
	case <-t.peerDone:
		return ErrClosed
	}
}

// Receive yields the next frame from the peer. Frames already in flight when
// either side closes are still delivered before ErrClosed.
func (t *MemTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-t.in:
		return frame, nil
	default:
	}

	select {
	case frame := <-t.in:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
	case <-t.peerDone:
	}

	// Closed: drain anything that raced in ahead of the close.
	select {
	case frame := <-t.in:
		return frame, nil
	default:
		return nil, ErrClosed
	}
}

// Close tears down this endpoint. The peer's Receive observes ErrClosed once
// in-flight frames are drained.
func (t *MemTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}
