// Package codec encodes and decodes typed values in the positional binary
// layout the remote co-processor understands.
//
// There are no field names on the wire: a schema is an ordered list of types,
// and order is the contract. Every multi-byte integer is little-endian,
// matching the peer's native order, so the firmware can overlay decoded
// buffers onto its structs without byte swapping.
//
// Supported types:
//
//   - U8/U16/U32/U64  fixed-width unsigned integers
//   - Bool            single byte, 0 or 1
//   - FixedBytes(n)   exactly n raw bytes
//   - Bytes           2-byte length prefix followed by that many bytes
//   - StructOf(...)   fields of the above, encoded positionally
//
// Domain semantics (enum ranges, unit scaling) are the caller's business;
// the codec moves bytes.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed reports a payload that cannot be decoded against its schema:
// the buffer ran out mid-value, or a length prefix pointed past the end.
// It usually means a protocol or firmware version mismatch.
var ErrMalformed = errors.New("codec: malformed payload")

// ErrEncoding reports a value whose Go type does not match its declared
// schema type. It is fatal to the call that supplied the value, nothing else.
var ErrEncoding = errors.New("codec: value does not match schema")

type kind uint8

const (
	kindU8 kind = iota
	kindU16
	kindU32
	kindU64
	kindBool
	kindFixedBytes
	kindBytes
	kindStruct
)

var kindNames = [...]string{"u8", "u16", "u32", "u64", "bool", "fixed-bytes", "bytes", "struct"}

// Type describes one position in a schema.
type Type struct {
	kind   kind
	size   int    // FixedBytes only
	fields []Type // Struct only
}

// Primitive schema types.
var (
	U8   = Type{kind: kindU8}
	U16  = Type{kind: kindU16}
	U32  = Type{kind: kindU32}
	U64  = Type{kind: kindU64}
	Bool = Type{kind: kindBool}
	// Bytes is a variable-length byte sequence with a 2-byte length prefix.
	Bytes = Type{kind: kindBytes}
)

// FixedBytes is a byte array of exactly n bytes, no length prefix.
func FixedBytes(n int) Type {
	return Type{kind: kindFixedBytes, size: n}
}

// StructOf composes fields into a positionally encoded structure.
func StructOf(fields ...Type) Type {
	return Type{kind: kindStruct, fields: fields}
}

func (t Type) String() string {
	return kindNames[t.kind]
}

// Encode appends the encoding of v (per schema type t) to dst.
//
// Accepted Go values: uint8, uint16, uint32, uint64, bool, []byte (for
// FixedBytes and Bytes), and []any for Struct. Anything else fails with
// ErrEncoding. Given a well-typed value, encoding cannot fail.
func Encode(dst []byte, t Type, v any) ([]byte, error) {
	switch t.kind {
	case kindU8:
		n, ok := v.(uint8)
		if !ok {
			return nil, encodingErr(t, v)
		}
		return append(dst, n), nil

	case kindU16:
		n, ok := v.(uint16)
		if !ok {
			return nil, encodingErr(t, v)
		}
		return binary.LittleEndian.AppendUint16(dst, n), nil

	case kindU32:
		n, ok := v.(uint32)
		if !ok {
			return nil, encodingErr(t, v)
		}
		return binary.LittleEndian.AppendUint32(dst, n), nil

	case kindU64:
		n, ok := v.(uint64)
		if !ok {
			return nil, encodingErr(t, v)
		}
		return binary.LittleEndian.AppendUint64(dst, n), nil

	case kindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, encodingErr(t, v)
		}
		if b {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil

	case kindFixedBytes:
		b, ok := v.([]byte)
		if !ok || len(b) != t.size {
			return nil, encodingErr(t, v)
		}
		return append(dst, b...), nil

	case kindBytes:
		b, ok := v.([]byte)
		if !ok || len(b) > 1<<16-1 {
			return nil, encodingErr(t, v)
		}
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(b)))
		return append(dst, b...), nil

	case kindStruct:
		vals, ok := v.([]any)
		if !ok || len(vals) != len(t.fields) {
			return nil, encodingErr(t, v)
		}
		var err error
		for i, f := range t.fields {
			if dst, err = Encode(dst, f, vals[i]); err != nil {
				return nil, err
			}
		}
		return dst, nil
	}
	return nil, encodingErr(t, v)
}

// EncodeSeq encodes vals against the ordered schema types, appending to dst.
// Used for command argument lists, which are a sequence rather than a struct.
func EncodeSeq(dst []byte, types []Type, vals []any) ([]byte, error) {
	if len(vals) != len(types) {
		return nil, fmt.Errorf("%w: %d values for %d schema positions", ErrEncoding, len(vals), len(types))
	}
	var err error
	for i, t := range types {
		if dst, err = Encode(dst, t, vals[i]); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// Decode decodes one value of schema type t from data, which must contain
// exactly the value and nothing else. Trailing bytes are malformed: the frame
// header already delimits the payload, so extra bytes mean a schema mismatch.
func Decode(data []byte, t Type) (any, error) {
	v, n, err := decodeValue(data, t)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after %s", ErrMalformed, len(data)-n, t)
	}
	return v, nil
}

// DecodeSeq decodes an ordered sequence of values, consuming data exactly.
func DecodeSeq(data []byte, types []Type) ([]any, error) {
	vals := make([]any, 0, len(types))
	off := 0
	for _, t := range types {
		v, n, err := decodeValue(data[off:], t)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		off += n
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after sequence", ErrMalformed, len(data)-off)
	}
	return vals, nil
}

// decodeValue decodes one value and reports how many bytes it consumed.
func decodeValue(data []byte, t Type) (any, int, error) {
	switch t.kind {
	case kindU8:
		if len(data) < 1 {
			return nil, 0, shortErr(t, 1, len(data))
		}
		return data[0], 1, nil

	case kindU16:
		if len(data) < 2 {
			return nil, 0, shortErr(t, 2, len(data))
		}
		return binary.LittleEndian.Uint16(data), 2, nil

	case kindU32:
		if len(data) < 4 {
			return nil, 0, shortErr(t, 4, len(data))
		}
		return binary.LittleEndian.Uint32(data), 4, nil

	case kindU64:
		if len(data) < 8 {
			return nil, 0, shortErr(t, 8, len(data))
		}
		return binary.LittleEndian.Uint64(data), 8, nil

	case kindBool:
		if len(data) < 1 {
			return nil, 0, shortErr(t, 1, len(data))
		}
		switch data[0] {
		case 0:
			return false, 1, nil
		case 1:
			return true, 1, nil
		}
		return nil, 0, fmt.Errorf("%w: bool byte %#02x", ErrMalformed, data[0])

	case kindFixedBytes:
		if len(data) < t.size {
			return nil, 0, shortErr(t, t.size, len(data))
		}
		out := make([]byte, t.size)
		copy(out, data)
		return out, t.size, nil

	case kindBytes:
		if len(data) < 2 {
			return nil, 0, shortErr(t, 2, len(data))
		}
		n := int(binary.LittleEndian.Uint16(data))
		if len(data)-2 < n {
			return nil, 0, fmt.Errorf("%w: length prefix %d exceeds %d remaining bytes", ErrMalformed, n, len(data)-2)
		}
		out := make([]byte, n)
		copy(out, data[2:])
		return out, 2 + n, nil

	case kindStruct:
		vals := make([]any, 0, len(t.fields))
		off := 0
		for _, f := range t.fields {
			v, n, err := decodeValue(data[off:], f)
			if err != nil {
				return nil, 0, err
			}
			vals = append(vals, v)
			off += n
		}
		return vals, off, nil
	}
	return nil, 0, fmt.Errorf("%w: unknown schema kind %d", ErrMalformed, t.kind)
}

func encodingErr(t Type, v any) error {
	return fmt.Errorf("%w: %T is not a valid %s", ErrEncoding, v, t)
}

func shortErr(t Type, need, have int) error {
	return fmt.Errorf("%w: %s needs %d bytes, %d remain", ErrMalformed, t, need, have)
}
