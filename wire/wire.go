// Package wire implements the binary frame layout spoken with the remote
// co-processor.
//
// A frame is a small little-endian header followed by a variable-length
// payload. The header size depends on the frame kind: command and response
// frames carry a 2-byte correlation id, event frames do not.
//
// Frame format:
//
//	0    1    2    3         5         7
//	┌────┬────┬────┬─────────┬─────────┬───────────────┐
//	│kind│grp │op  │  corr   │ payLen  │  payload ...  │
//	│    │    │    │ uint16  │ uint16  │ payLen bytes  │
//	└────┴────┴────┴─────────┴─────────┴───────────────┘
//
// Event frames omit the corr field, so their header is 5 bytes instead of 7.
// All multi-byte fields are little-endian, matching the peer's native order.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind identifies the function of a frame on the wire.
type Kind byte

const (
	KindCommand  Kind = 0 // locally initiated call, carries a correlation id
	KindResponse Kind = 1 // reply to a command, echoes the correlation id
	KindEvent    Kind = 2 // unsolicited remote-originated notification
)

// KindNames maps frame kinds to readable names for logging and diagnostics.
var KindNames = map[Kind]string{
	KindCommand:  "COMMAND",
	KindResponse: "RESPONSE",
	KindEvent:    "EVENT",
}

func (k Kind) String() string {
	if n, ok := KindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("KIND(%d)", byte(k))
}

// Header sizes in bytes. Correlated frames (command/response) carry two
// extra bytes for the correlation id.
const (
	EventHeaderSize      = 5
	CorrelatedHeaderSize = 7
)

// MaxPayload is the largest payload a frame can carry (2-byte length field).
const MaxPayload = 1<<16 - 1

// Header is the decoded frame header. Corr is meaningful only for
// KindCommand and KindResponse.
type Header struct {
	Kind   Kind
	Group  byte
	Opcode byte
	Corr   uint16
}

// HeaderSize returns the on-wire header size for the given kind, or an
// error if the kind byte is not one this protocol defines.
func HeaderSize(k Kind) (int, error) {
	switch k {
	case KindCommand, KindResponse:
		return CorrelatedHeaderSize, nil
	case KindEvent:
		return EventHeaderSize, nil
	default:
		return 0, fmt.Errorf("wire: unknown frame kind %d", byte(k))
	}
}

// Append appends a complete frame (header + payload) to dst and returns the
// extended slice. The payload must fit in the 2-byte length field.
func Append(dst []byte, h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("wire: payload length %d exceeds %d", len(payload), MaxPayload)
	}
	dst = append(dst, byte(h.Kind), h.Group, h.Opcode)
	if h.Kind == KindCommand || h.Kind == KindResponse {
		dst = binary.LittleEndian.AppendUint16(dst, h.Corr)
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(payload)))
	return append(dst, payload...), nil
}

// Frame builds a complete frame in a freshly allocated buffer.
func Frame(h Header, payload []byte) ([]byte, error) {
	size := EventHeaderSize
	if h.Kind == KindCommand || h.Kind == KindResponse {
		size = CorrelatedHeaderSize
	}
	return Append(make([]byte, 0, size+len(payload)), h, payload)
}

// Parse decodes a complete framed buffer into its header and payload.
// The payload aliases the input buffer; no copy is made.
//
// A declared payload length that disagrees with the buffer size is rejected:
// the transport delivers whole frames, so any mismatch means corruption.
func Parse(frame []byte) (Header, []byte, error) {
	if len(frame) < EventHeaderSize {
		return Header{}, nil, fmt.Errorf("wire: frame truncated at %d bytes", len(frame))
	}

	h := Header{
		Kind:   Kind(frame[0]),
		Group:  frame[1],
		Opcode: frame[2],
	}
	size, err := HeaderSize(h.Kind)
	if err != nil {
		return Header{}, nil, err
	}
	if len(frame) < size {
		return Header{}, nil, fmt.Errorf("wire: %s frame truncated at %d bytes", h.Kind, len(frame))
	}

	off := 3
	if size == CorrelatedHeaderSize {
		h.Corr = binary.LittleEndian.Uint16(frame[off : off+2])
		off += 2
	}
	payLen := int(binary.LittleEndian.Uint16(frame[off : off+2]))
	off += 2

	if len(frame)-off != payLen {
		return Header{}, nil, fmt.Errorf("wire: declared payload %d bytes, frame carries %d", payLen, len(frame)-off)
	}
	return h, frame[off:], nil
}

// ReadFrame delimits and reads one complete frame from a raw byte stream.
// It reads the kind byte first to learn the header size, then the remaining
// header, then exactly the declared payload length. io.ReadFull guarantees
// no partial reads split a frame.
//
// An unknown kind byte on a raw stream is unrecoverable: without a known
// header size the stream cannot be resynchronized, so it is returned as an
// error rather than a skippable frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return nil, err
	}
	size, err := HeaderSize(Kind(first[0]))
	if err != nil {
		return nil, err
	}

	header := make([]byte, size)
	header[0] = first[0]
	if _, err := io.ReadFull(r, header[1:]); err != nil {
		return nil, err
	}

	payLen := int(binary.LittleEndian.Uint16(header[size-2:]))
	frame := make([]byte, size+payLen)
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[size:]); err != nil {
		return nil, err
	}
	return frame, nil
}

// WriteFrame writes a complete frame to w as a single Write call, so that a
// caller serializing writes with a mutex cannot interleave partial frames.
func WriteFrame(w io.Writer, h Header, payload []byte) error {
	frame, err := Frame(h, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}
