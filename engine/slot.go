package engine

import (
	"sort"
	"strings"

	"github.com/tetratelabs/wazero/api"

	wasmdsp "github.com/wippyai/wasm-dsp"
	"github.com/wippyai/wasm-dsp/errors"
)

// ReadOnlyPrefix marks guest-published slots the host must not write.
const ReadOnlyPrefix = "_ro_"

// Slot is a typed accessor for one exported guest global.
//
// Slot contents are call-scoped: the guest may reuse any scratch slot on the
// next call into it, so read what you need right after the call that filled
// it.
type Slot struct {
	g        api.Global
	mut      api.MutableGlobal
	name     string
	kind     wasmdsp.ValueKind
	readOnly bool
}

func newSlot(name string, kind wasmdsp.ValueKind, g api.Global) *Slot {
	s := &Slot{
		g:        g,
		name:     name,
		kind:     kind,
		readOnly: strings.HasPrefix(name, ReadOnlyPrefix),
	}
	if mg, ok := g.(api.MutableGlobal); ok {
		s.mut = mg
	}
	return s
}

func (s *Slot) Name() string            { return s.name }
func (s *Slot) Kind() wasmdsp.ValueKind { return s.kind }

// Writable reports whether the host may Set this slot.
func (s *Slot) Writable() bool {
	return s.mut != nil && !s.readOnly
}

// Get returns the current slot value.
func (s *Slot) Get() wasmdsp.Value {
	return wasmdsp.FromRaw(s.kind, s.g.Get())
}

// Pointer returns the slot as a guest memory offset.
func (s *Slot) Pointer() uint32 {
	return uint32(s.g.Get())
}

// Set writes v into the slot.
func (s *Slot) Set(v wasmdsp.Value) error {
	if s.readOnly {
		return errors.ReadOnly(s.name)
	}
	if s.mut == nil {
		return errors.New(errors.PhaseSlot, errors.KindReadOnly).
			Name(s.name).
			Detail("guest global is immutable").
			Build()
	}
	if v.Kind() != s.kind {
		return errors.TypeMismatch(errors.PhaseSlot, s.name, s.kind.String(), v.Kind().String())
	}
	s.mut.Set(v.Raw())
	return nil
}

// SlotTable maps slot names to accessors resolved at link time.
type SlotTable struct {
	slots map[string]*Slot
}

func newSlotTable() *SlotTable {
	return &SlotTable{slots: make(map[string]*Slot)}
}

func (t *SlotTable) add(s *Slot) {
	t.slots[s.name] = s
}

// Lookup returns the slot registered under name.
func (t *SlotTable) Lookup(name string) (*Slot, error) {
	if t == nil {
		return nil, errors.UnknownSlot(name)
	}
	s, ok := t.slots[name]
	if !ok {
		return nil, errors.UnknownSlot(name)
	}
	return s, nil
}

func (t *SlotTable) Has(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.slots[name]
	return ok
}

func (t *SlotTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.slots)
}

// Names returns the resolved slot names, sorted.
func (t *SlotTable) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.slots))
	for n := range t.slots {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
