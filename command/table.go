// Package command holds the static table of remote functions the client can
// invoke. Each entry pins a (group, opcode) pair to the positional argument
// schema and return schema used to encode calls and decode responses.
//
// Tables are built once at startup and never mutated afterward; every call
// references them read-only, so lookups need no locking.
package command

import (
	"fmt"
	"time"

	"copro-rpc/codec"
)

// Spec describes one remote function.
type Spec struct {
	Group  byte
	Opcode byte
	Name   string // human-readable, used in logs and name-based lookup

	Args []codec.Type // positional argument schema, possibly empty
	Ret  *codec.Type  // return schema; nil means the function returns nothing

	// Timeout overrides the dispatcher's default response window for this
	// command. Zero means use the default.
	Timeout time.Duration
}

func (s *Spec) String() string {
	return fmt.Sprintf("%s (group=%d opcode=%d)", s.Name, s.Group, s.Opcode)
}

type key struct {
	group  byte
	opcode byte
}

// Table is an immutable registry of command specs, the single source of
// truth for what can be sent to the peer and how replies decode.
type Table struct {
	byID   map[key]*Spec
	byName map[string]*Spec
}

// NewTable builds a table from the given specs. Two specs sharing a
// (group, opcode) pair or a name is a registration bug, reported as an error
// so callers can fail at startup rather than misroute at runtime.
func NewTable(specs ...Spec) (*Table, error) {
	t := &Table{
		byID:   make(map[key]*Spec, len(specs)),
		byName: make(map[string]*Spec, len(specs)),
	}
	for i := range specs {
		s := &specs[i]
		if s.Name == "" {
			return nil, fmt.Errorf("command: spec at group=%d opcode=%d has no name", s.Group, s.Opcode)
		}
		k := key{s.Group, s.Opcode}
		if prev, ok := t.byID[k]; ok {
			return nil, fmt.Errorf("command: %s collides with %s", s, prev)
		}
		if prev, ok := t.byName[s.Name]; ok {
			return nil, fmt.Errorf("command: duplicate name %q (group=%d opcode=%d and group=%d opcode=%d)",
				s.Name, s.Group, s.Opcode, prev.Group, prev.Opcode)
		}
		t.byID[k] = s
		t.byName[s.Name] = s
	}
	return t, nil
}

// MustTable is NewTable for package-level table construction; a collision
// panics at init time instead of surfacing per-request.
func MustTable(specs ...Spec) *Table {
	t, err := NewTable(specs...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup finds the spec registered for (group, opcode).
func (t *Table) Lookup(group, opcode byte) (*Spec, bool) {
	s, ok := t.byID[key{group, opcode}]
	return s, ok
}

// LookupName finds the spec registered under name.
func (t *Table) LookupName(name string) (*Spec, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// Len reports how many commands are registered.
func (t *Table) Len() int {
	return len(t.byID)
}
