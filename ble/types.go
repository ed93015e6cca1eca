package ble

import "fmt"

// Advertising options, matching the Zephyr bt_le_adv_param option bits the
// firmware understands.
const (
	AdvOptConnectable uint32 = 0x00000001
	AdvOptOneTime     uint32 = 0x00000002
	AdvOptUseName     uint32 = 0x00000008
)

// Advertising data types (Bluetooth Core Spec assigned numbers).
const (
	DataFlags        uint8 = 0x01
	DataNameComplete uint8 = 0x09
)

// Advertising flag bits.
const (
	ADGeneral uint8 = 0x02
	ADNoBREDR uint8 = 0x04
)

// Addr is a Bluetooth LE device address with its type byte.
type Addr struct {
	Type uint8
	Addr [6]byte
}

func (a Addr) String() string {
	// Bluetooth convention prints most significant byte first.
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X (type %d)",
		a.Addr[5], a.Addr[4], a.Addr[3], a.Addr[2], a.Addr[1], a.Addr[0], a.Type)
}

// AdvParam holds advertising parameters, mirroring bt_le_adv_param.
// Intervals are in 0.625 ms units.
type AdvParam struct {
	ID               uint8
	SID              uint8
	SecondaryMaxSkip uint8
	Options          uint32
	IntervalMin      uint32
	IntervalMax      uint32
	Peer             *Addr // nil for undirected advertising
}

// ConnectableAdvParam returns default connectable advertising parameters:
// 100-150 ms interval, undirected.
func ConnectableAdvParam() AdvParam {
	return AdvParam{
		Options:     AdvOptConnectable,
		IntervalMin: 160, // 100 ms
		IntervalMax: 240, // 150 ms
	}
}

// encode lays the parameters out positionally for the wire schema.
func (p AdvParam) encode() []any {
	peer := []byte{}
	if p.Peer != nil {
		peer = make([]byte, 7)
		peer[0] = p.Peer.Type
		copy(peer[1:], p.Peer.Addr[:])
	}
	return []any{p.ID, p.SID, p.SecondaryMaxSkip, p.Options, p.IntervalMin, p.IntervalMax, peer}
}

// AdvData is one advertising data item, mirroring bt_data.
type AdvData struct {
	Type uint8
	Data []byte
}

// Flags builds the advertising-flags data item.
func Flags(flags uint8) AdvData {
	return AdvData{Type: DataFlags, Data: []byte{flags}}
}

// NameComplete builds the complete-local-name data item.
func NameComplete(name string) AdvData {
	return AdvData{Type: DataNameComplete, Data: []byte(name)}
}
