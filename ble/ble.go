// Package ble exposes the Bluetooth functions that run on the remote
// co-processor. The API mirrors the Zephyr Bluetooth host running on the
// peer's firmware; every method encodes its arguments against the command
// table and goes through the dispatch core.
//
// Usage:
//
//	client := ble.NewClient(dispatcher)
//
//	if err := client.Enable(ctx); err != nil { ... }
//
//	param := ble.ConnectableAdvParam()
//	ad := []ble.AdvData{ble.Flags(ble.ADGeneral | ble.ADNoBREDR)}
//	sd := []ble.AdvData{ble.NameComplete("MyDevice")}
//	if err := client.StartAdvertising(ctx, param, ad, sd); err != nil { ... }
//
//	for ev := range client.Connected(0) {
//	    fmt.Println("peer connected:", ev.Peer)
//	}
package ble

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"copro-rpc/codec"
	"copro-rpc/command"
	"copro-rpc/dispatch"
)

// Group is the namespace byte the peer firmware assigns to its Bluetooth
// subsystem.
const Group byte = 0x01

// Command opcodes within the Bluetooth group.
const (
	opEnable   byte = 0x00
	opAdvStart byte = 0x04
	opAdvStop  byte = 0x05
	opSetName  byte = 0x06
	opGetName  byte = 0x07
)

// Event opcodes within the Bluetooth group. The high bit distinguishes
// firmware-originated notifications from callable commands.
const (
	evConnected    byte = 0x80
	evDisconnected byte = 0x81
)

// advParamSchema matches the firmware's bt_le_adv_param layout: id, sid,
// secondary max skip, options, min/max interval, and the optional peer
// address (empty bytes = undirected).
var advParamSchema = codec.StructOf(
	codec.U8,  // id
	codec.U8,  // sid
	codec.U8,  // secondary_max_skip
	codec.U32, // options
	codec.U32, // interval_min
	codec.U32, // interval_max
	codec.Bytes,
)

var nameRet = codec.Bytes

// Commands is the Bluetooth group's command table. Opcode collisions here
// are a programming error and fail at package init.
var Commands = command.MustTable(
	command.Spec{Group: Group, Opcode: opEnable, Name: "bt.enable"},
	command.Spec{Group: Group, Opcode: opAdvStart, Name: "bt.adv_start",
		Args: []codec.Type{advParamSchema, codec.Bytes, codec.Bytes}},
	command.Spec{Group: Group, Opcode: opAdvStop, Name: "bt.adv_stop"},
	command.Spec{Group: Group, Opcode: opSetName, Name: "bt.set_name",
		Args: []codec.Type{codec.Bytes}},
	command.Spec{Group: Group, Opcode: opGetName, Name: "bt.get_name",
		Ret: &nameRet},
)

// Event payload schemas.
var (
	connectedSchema    = []codec.Type{codec.U16, codec.FixedBytes(7)}
	disconnectedSchema = []codec.Type{codec.U16, codec.U8}
)

// Client is the Bluetooth facade over a dispatcher.
type Client struct {
	d      *dispatch.Dispatcher
	invoke dispatch.Invoker
	log    *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the facade's logger. Defaults to a nop logger.
func WithClientLogger(log *zap.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithCallWrapper wraps the client's call path, typically with a
// middleware.Chain.
func WithCallWrapper(wrap func(dispatch.Invoker) dispatch.Invoker) ClientOption {
	return func(c *Client) { c.invoke = wrap(c.invoke) }
}

// NewClient builds a Bluetooth client over d. The dispatcher must have been
// created with a table that includes Commands (or Commands itself).
func NewClient(d *dispatch.Dispatcher, opts ...ClientOption) *Client {
	c := &Client{
		d:      d,
		invoke: d.Call,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close shuts down the underlying dispatcher and its transport.
func (c *Client) Close() error {
	return c.d.Close()
}

// Enable powers on the Bluetooth stack on the co-processor.
func (c *Client) Enable(ctx context.Context) error {
	_, err := c.invoke(ctx, "bt.enable")
	return err
}

// StartAdvertising begins advertising with the given parameters,
// advertising data, and scan response data.
func (c *Client) StartAdvertising(ctx context.Context, param AdvParam, ad, sd []AdvData) error {
	adPayload, err := appendAdvPayload(nil, ad)
	if err != nil {
		return err
	}
	sdPayload, err := appendAdvPayload(nil, sd)
	if err != nil {
		return err
	}
	_, err = c.invoke(ctx, "bt.adv_start", param.encode(), adPayload, sdPayload)
	return err
}

// StopAdvertising stops an active advertising set.
func (c *Client) StopAdvertising(ctx context.Context) error {
	_, err := c.invoke(ctx, "bt.adv_stop")
	return err
}

// SetName sets the device's complete local name.
func (c *Client) SetName(ctx context.Context, name string) error {
	_, err := c.invoke(ctx, "bt.set_name", []byte(name))
	return err
}

// Name reads the device's complete local name back from the peer.
func (c *Client) Name(ctx context.Context) (string, error) {
	v, err := c.invoke(ctx, "bt.get_name")
	if err != nil {
		return "", err
	}
	return string(v.([]byte)), nil
}

// ConnectedEvent reports a new connection established by the peer stack.
type ConnectedEvent struct {
	Handle uint16
	Peer   Addr
}

// DisconnectedEvent reports a dropped connection and its HCI reason code.
type DisconnectedEvent struct {
	Handle uint16
	Reason uint8
}

// Connected returns a channel of connection events. Registering again
// replaces any previous registration. The channel closes when the
// dispatcher shuts down or the registration is replaced.
func (c *Client) Connected(depth int) <-chan ConnectedEvent {
	l := c.d.Listen(Group, evConnected, connectedSchema, depth)
	out := make(chan ConnectedEvent, cap(l.C))
	go func() {
		defer close(out)
		for vals := range l.C {
			raw := vals[1].([]byte)
			var ev ConnectedEvent
			ev.Handle = vals[0].(uint16)
			ev.Peer.Type = raw[0]
			copy(ev.Peer.Addr[:], raw[1:])
			out <- ev
		}
	}()
	return out
}

// Disconnected returns a channel of disconnection events, with the same
// registration semantics as Connected.
func (c *Client) Disconnected(depth int) <-chan DisconnectedEvent {
	l := c.d.Listen(Group, evDisconnected, disconnectedSchema, depth)
	out := make(chan DisconnectedEvent, cap(l.C))
	go func() {
		defer close(out)
		for vals := range l.C {
			out <- DisconnectedEvent{
				Handle: vals[0].(uint16),
				Reason: vals[1].(uint8),
			}
		}
	}()
	return out
}

// appendAdvPayload flattens advertising data items into the standard BLE
// AD-structure layout: [len][type][data...] per item, concatenated.
func appendAdvPayload(dst []byte, items []AdvData) ([]byte, error) {
	for _, item := range items {
		if len(item.Data) > 254 {
			return nil, fmt.Errorf("ble: advertising data item type %#02x is %d bytes, limit 254", item.Type, len(item.Data))
		}
		dst = append(dst, byte(1+len(item.Data)), item.Type)
		dst = append(dst, item.Data...)
	}
	return dst, nil
}
