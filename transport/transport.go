// Package transport defines the byte-transport capability the dispatch core
// depends on, plus the two concrete transports the client ships with: a
// framed stream transport for net.Conn-style links (TCP debug bridges, PTYs)
// and an in-memory pair for tests.
//
// A transport carries whole frames. Send hands off one framed buffer; Receive
// yields the next complete frame. Framing over raw streams (finding frame
// boundaries in a byte soup) is the transport's job, not the dispatcher's.
//
// Concurrency contract: exactly one goroutine calls Receive (the dispatch
// receive loop) while any number call Send. Implementations must keep those
// two paths independently safe; Send must never wait on Receive.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive once the transport has been
// closed locally or torn down by the peer.
var ErrClosed = errors.New("transport: closed")

// Transport is the sole collaborator interface the dispatch core requires.
type Transport interface {
	// Send hands off one complete frame. It returns once the bytes are
	// accepted by the medium, which does not imply the remote has seen them.
	Send(ctx context.Context, frame []byte) error

	// Receive blocks until the next complete frame arrives. Frames are
	// returned in medium-arrival order; the caller owns the returned buffer.
	Receive(ctx context.Context) ([]byte, error)

	// Close tears the transport down, unblocking any pending Receive.
	Close() error
}
