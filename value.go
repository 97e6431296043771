package wasmdsp

import (
	"strconv"

	"github.com/tetratelabs/wazero/api"
)

// ValueKind is the type tag of a scalar crossing the sandbox boundary.
type ValueKind uint8

const (
	KindI32 ValueKind = iota + 1
	KindI64
	KindF32
	KindF64
)

func (k ValueKind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	default:
		return "invalid"
	}
}

// ValueType returns the wazero value type for k.
func (k ValueKind) ValueType() api.ValueType {
	switch k {
	case KindI64:
		return api.ValueTypeI64
	case KindF32:
		return api.ValueTypeF32
	case KindF64:
		return api.ValueTypeF64
	default:
		return api.ValueTypeI32
	}
}

// KindOf maps a wazero value type to a ValueKind. Reference types are not
// scalars and report false.
func KindOf(t api.ValueType) (ValueKind, bool) {
	switch t {
	case api.ValueTypeI32:
		return KindI32, true
	case api.ValueTypeI64:
		return KindI64, true
	case api.ValueTypeF32:
		return KindF32, true
	case api.ValueTypeF64:
		return KindF64, true
	default:
		return 0, false
	}
}

// ValueTypes converts kinds to wazero value types.
func ValueTypes(kinds []ValueKind) []api.ValueType {
	if len(kinds) == 0 {
		return nil
	}
	out := make([]api.ValueType, len(kinds))
	for i, k := range kinds {
		out[i] = k.ValueType()
	}
	return out
}

// SameKinds reports whether the wazero types match kinds exactly.
func SameKinds(kinds []ValueKind, types []api.ValueType) bool {
	if len(kinds) != len(types) {
		return false
	}
	for i, k := range kinds {
		if k.ValueType() != types[i] {
			return false
		}
	}
	return true
}

// Value is a tagged scalar. The payload is stored in the same uint64 encoding
// wazero uses for its call stack.
type Value struct {
	bits uint64
	kind ValueKind
}

func I32(v int32) Value   { return Value{kind: KindI32, bits: api.EncodeI32(v)} }
func I64(v int64) Value   { return Value{kind: KindI64, bits: api.EncodeI64(v)} }
func F32(v float32) Value { return Value{kind: KindF32, bits: api.EncodeF32(v)} }
func F64(v float64) Value { return Value{kind: KindF64, bits: api.EncodeF64(v)} }

// Pointer wraps a guest memory offset as an i32 value.
func Pointer(offset uint32) Value { return Value{kind: KindI32, bits: uint64(offset)} }

// FromRaw builds a Value from a wazero stack slot. 32-bit kinds keep only the
// low 32 bits.
func FromRaw(kind ValueKind, raw uint64) Value {
	if kind == KindI32 || kind == KindF32 {
		raw &= 0xFFFFFFFF
	}
	return Value{kind: kind, bits: raw}
}

func (v Value) Kind() ValueKind { return v.kind }

// Raw returns the wazero stack encoding of v.
func (v Value) Raw() uint64 { return v.bits }

// The accessors below reinterpret the payload; check Kind first when the
// value comes from an untrusted source.

func (v Value) I32() int32   { return api.DecodeI32(v.bits) }
func (v Value) U32() uint32  { return api.DecodeU32(v.bits) }
func (v Value) I64() int64   { return int64(v.bits) }
func (v Value) F32() float32 { return api.DecodeF32(v.bits) }
func (v Value) F64() float64 { return api.DecodeF64(v.bits) }

func (v Value) String() string {
	switch v.kind {
	case KindI32:
		return "i32:" + strconv.FormatInt(int64(v.I32()), 10)
	case KindI64:
		return "i64:" + strconv.FormatInt(v.I64(), 10)
	case KindF32:
		return "f32:" + strconv.FormatFloat(float64(v.F32()), 'g', -1, 32)
	case KindF64:
		return "f64:" + strconv.FormatFloat(v.F64(), 'g', -1, 64)
	default:
		return "invalid"
	}
}
