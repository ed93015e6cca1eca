package dispatch

import (
	"errors"
	"fmt"

	"copro-rpc/codec"
)

// Sentinel errors returned by Call. Match with errors.Is.
var (
	// ErrTimeout means no response arrived within the call's window. The
	// pending entry is gone by the time this is returned; a late response is
	// silently discarded.
	ErrTimeout = errors.New("dispatch: call timed out")

	// ErrTransportClosed means the transport ended while the call was in
	// flight. Every outstanding call resolves with it when the receive loop
	// exits.
	ErrTransportClosed = errors.New("dispatch: transport closed")

	// ErrIDSpaceFull means every correlation id is attached to an
	// outstanding request. With a 16-bit id space this signals a leak or a
	// stuck peer, not normal load.
	ErrIDSpaceFull = errors.New("dispatch: correlation id space exhausted")

	// ErrUnknownCommand means the name passed to Call is not in the table.
	ErrUnknownCommand = errors.New("dispatch: unknown command")
)

// RemoteError is a non-success status reported by the peer. Status is the
// 1-byte wire status; Code and Detail come from the diagnostic structure
// that replaces the declared return payload on failure.
type RemoteError struct {
	Status uint8
	Code   uint32
	Detail []byte
}

func (e *RemoteError) Error() string {
	if len(e.Detail) > 0 {
		return fmt.Sprintf("dispatch: remote status %d (code %d): %s", e.Status, e.Code, e.Detail)
	}
	return fmt.Sprintf("dispatch: remote status %d (code %d)", e.Status, e.Code)
}

// Is lets errors.Is match any *RemoteError target regardless of fields.
func (e *RemoteError) Is(target error) bool {
	_, ok := target.(*RemoteError)
	return ok
}

// TransportError wraps a send-path transport failure with the operation
// that hit it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dispatch: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// diagSchema is the payload layout the peer sends after a non-zero status
// byte: a 32-bit error code and optional detail bytes.
var diagSchema = []codec.Type{codec.U32, codec.Bytes}

// decodeRemoteError builds a RemoteError from a failure payload. Firmware
// builds that cannot produce the diagnostic structure send a bare status or
// free-form bytes; those are carried opaquely in Detail rather than being
// reported as malformed, so the remote status is never masked.
func decodeRemoteError(status uint8, body []byte) *RemoteError {
	re := &RemoteError{Status: status}
	if len(body) == 0 {
		return re
	}
	vals, err := codec.DecodeSeq(body, diagSchema)
	if err != nil {
		re.Detail = body
		return re
	}
	re.Code = vals[0].(uint32)
	re.Detail = vals[1].([]byte)
	return re
}
