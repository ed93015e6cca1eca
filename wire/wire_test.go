package wire

import (
	"bytes"
	"io"
	"testing"
)

func TestFrameParseCommand(t *testing.T) {
	h := Header{Kind: KindCommand, Group: 3, Opcode: 9, Corr: 0x1234}
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	frame, err := Frame(h, payload)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}

	// kind, group, opcode, corr LE, len LE, payload
	want := []byte{0x00, 0x03, 0x09, 0x34, 0x12, 0x04, 0x00, 0xDE, 0xAD, 0xBE, 0xEF}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame bytes mismatch:\ngot  %x\nwant %x", frame, want)
	}

	got, body, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got != h {
		t.Errorf("header mismatch: got %+v, want %+v", got, h)
	}
	if !bytes.Equal(body, payload) {
		t.Errorf("payload mismatch: got %x, want %x", body, payload)
	}
}

func TestFrameParseEvent(t *testing.T) {
	h := Header{Kind: KindEvent, Group: 1, Opcode: 0x80}
	payload := []byte{0x01, 0x00}

	frame, err := Frame(h, payload)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if len(frame) != EventHeaderSize+len(payload) {
		t.Fatalf("event frame is %d bytes, want %d (no correlation id)", len(frame), EventHeaderSize+len(payload))
	}

	got, body, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got.Kind != KindEvent || got.Group != 1 || got.Opcode != 0x80 || got.Corr != 0 {
		t.Errorf("header mismatch: got %+v", got)
	}
	if !bytes.Equal(body, payload) {
		t.Errorf("payload mismatch: got %x, want %x", body, payload)
	}
}

func TestParseEmptyPayload(t *testing.T) {
	frame, err := Frame(Header{Kind: KindResponse, Group: 2, Opcode: 7, Corr: 1}, nil)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	h, body, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if h.Corr != 1 || len(body) != 0 {
		t.Errorf("got corr=%d payload=%x, want corr=1 empty payload", h.Corr, body)
	}
}

func TestParseRejectsUnknownKind(t *testing.T) {
	frame := []byte{0x07, 0x01, 0x01, 0x00, 0x00}
	if _, _, err := Parse(frame); err == nil {
		t.Fatal("expected error for unknown kind byte, got nil")
	}
}

func TestParseRejectsTruncated(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0x00, 0x01, 0x01},           // command cut before corr
		{0x00, 0x01, 0x01, 0x05, 0x00}, // command cut before len
		{0x02, 0x01, 0x01, 0x02},     // event cut mid len
	}
	for i, frame := range cases {
		if _, _, err := Parse(frame); err == nil {
			t.Errorf("case %d: expected truncation error for %x, got nil", i, frame)
		}
	}
}

func TestParseRejectsLengthMismatch(t *testing.T) {
	// Event declaring 4 payload bytes but carrying 2.
	frame := []byte{0x02, 0x01, 0x01, 0x04, 0x00, 0xAA, 0xBB}
	if _, _, err := Parse(frame); err == nil {
		t.Fatal("expected error for declared/actual payload mismatch, got nil")
	}
}

func TestReadWriteFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	frames := []struct {
		h       Header
		payload []byte
	}{
		{Header{Kind: KindCommand, Group: 1, Opcode: 2, Corr: 7}, []byte{1, 2, 3}},
		{Header{Kind: KindEvent, Group: 1, Opcode: 0x81}, []byte{9}},
		{Header{Kind: KindResponse, Group: 1, Opcode: 2, Corr: 7}, nil},
	}

	for _, f := range frames {
		if err := WriteFrame(&buf, f.h, f.payload); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	// Back-to-back frames on one stream must come out at their boundaries.
	for i, f := range frames {
		raw, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		h, body, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse %d failed: %v", i, err)
		}
		if h != f.h {
			t.Errorf("frame %d header mismatch: got %+v, want %+v", i, h, f.h)
		}
		if !bytes.Equal(body, f.payload) {
			t.Errorf("frame %d payload mismatch: got %x, want %x", i, body, f.payload)
		}
	}
	if buf.Len() != 0 {
		t.Errorf("%d leftover bytes on stream", buf.Len())
	}
}

func TestReadFrameUnknownKindFails(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x42, 0x00, 0x00, 0x00, 0x00})
	if _, err := ReadFrame(buf); err == nil {
		t.Fatal("expected error for unknown kind byte on stream, got nil")
	}
}

func TestReadFrameTruncatedStream(t *testing.T) {
	full, err := Frame(Header{Kind: KindCommand, Group: 1, Opcode: 1, Corr: 3}, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	for cut := 1; cut < len(full); cut++ {
		_, err := ReadFrame(bytes.NewReader(full[:cut]))
		if err == nil {
			t.Fatalf("cut at %d: expected error, got nil", cut)
		}
		if err != io.ErrUnexpectedEOF && err != io.EOF {
			t.Fatalf("cut at %d: got %v, want EOF-ish", cut, err)
		}
	}
}
