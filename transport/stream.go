package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"copro-rpc/wire"
)

// StreamTransport frames co-processor traffic over a raw byte stream: a TCP
// connection to a debug bridge, a PTY fronting a UART, anything that is an
// io.ReadWriteCloser.
//
// Writes are serialized by a mutex so that frames from concurrent senders
// never interleave on the stream; one interleaved header would desynchronize
// everything after it. Reads are expected from a single goroutine (the
// dispatch receive loop) and delimit frames with wire.ReadFrame.
type StreamTransport struct {
	rwc     io.ReadWriteCloser
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewStreamTransport wraps an open stream. The transport takes ownership:
// Close closes the underlying stream.
func NewStreamTransport(rwc io.ReadWriteCloser) *StreamTransport {
	return &StreamTransport{rwc: rwc}
}

// Dial connects to a stream endpoint (typically a TCP debug bridge fronting
// the co-processor's UART) and wraps it.
func Dial(ctx context.Context, network, addr string) (*StreamTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return NewStreamTransport(conn), nil
}

// Send writes one frame to the stream under the write lock.
func (t *StreamTransport) Send(ctx context.Context, frame []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.writeMu.Lock()
	_, err := t.rwc.Write(frame)
	t.writeMu.Unlock()
	if err != nil {
		if t.closed.Load() {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Receive reads the next complete frame from the stream.
//
// The stream cannot be resynchronized after garbage (an unknown kind byte
// leaves the header size unknowable), so wire.ReadFrame errors end the
// transport: stream corruption and stream closure look the same from here.
func (t *StreamTransport) Receive(ctx context.Context) ([]byte, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	frame, err := wire.ReadFrame(t.rwc)
	if err != nil {
		if t.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return frame, nil
}

// Close closes the underlying stream, unblocking any in-flight Receive.
func (t *StreamTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.rwc.Close()
}
