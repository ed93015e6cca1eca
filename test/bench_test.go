package test

import (
	"context"
	"testing"
	"time"

	"copro-rpc/ble"
	"copro-rpc/codec"
	"copro-rpc/dispatch"
	"copro-rpc/transport"
	"copro-rpc/wire"
)

func setupClient(b *testing.B) *ble.Client {
	b.Helper()
	near, far := transport.Pair(256)
	serveFirmware(far)

	d := dispatch.NewDispatcher(near, ble.Commands, dispatch.WithDefaultTimeout(5*time.Second))
	cli := ble.NewClient(d)
	b.Cleanup(func() { cli.Close() })

	if err := cli.Enable(context.Background()); err != nil {
		b.Fatal(err)
	}
	return cli
}

// Single goroutine, one round trip at a time.
func BenchmarkSerialCall(b *testing.B) {
	cli := setupClient(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cli.Name(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// Many goroutines multiplexed over the one link.
func BenchmarkConcurrentCall(b *testing.B) {
	cli := setupClient(b)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := cli.Name(ctx); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// Pure codec: the adv_start argument payload, no transport.
func BenchmarkCodecAdvParam(b *testing.B) {
	schema := []codec.Type{fwAdvParamSchema, codec.Bytes, codec.Bytes}
	args := []any{
		[]any{uint8(0), uint8(0), uint8(0), uint32(1), uint32(160), uint32(240), []byte{}},
		[]byte{0x02, 0x01, 0x06},
		[]byte{0x0A, 0x09, 'N', 'o', 'r', 'd', 'i', 'c', '_', 'P', 'S'},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		payload, err := codec.EncodeSeq(nil, schema, args)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := codec.DecodeSeq(payload, schema); err != nil {
			b.Fatal(err)
		}
	}
}

// Pure framing: build and parse a command frame, no transport.
func BenchmarkFrameRoundTrip(b *testing.B) {
	payload := make([]byte, 32)
	h := wire.Header{Kind: wire.KindCommand, Group: 1, Opcode: 4, Corr: 7}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		frame, err := wire.Frame(h, payload)
		if err != nil {
			b.Fatal(err)
		}
		if _, _, err := wire.Parse(frame); err != nil {
			b.Fatal(err)
		}
	}
}
