package engine

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-dsp/errors"
)

// MemoryView is a bounds-checked window into guest memory starting at a
// guest-reported offset. Offsets passed to its methods are relative to Base.
//
// Every access is checked against the memory size at the time of the access.
// Slices returned by Bytes alias guest memory and must not be retained across
// guest calls, since the guest may grow (and thereby move) its memory.
type MemoryView struct {
	mem  api.Memory
	base uint32
}

// NewMemoryView roots a view at base. base may equal the memory size, which
// yields an empty view.
func NewMemoryView(mem api.Memory, base uint32) (MemoryView, error) {
	if mem == nil {
		return MemoryView{}, errors.NilPointer(errors.PhaseMemory, "memory")
	}
	if size := mem.Size(); base > size {
		return MemoryView{}, errors.OutOfBounds(uint64(base), 0, size)
	}
	return MemoryView{mem: mem, base: base}, nil
}

func (v MemoryView) Base() uint32 { return v.base }

// Len returns the number of bytes between Base and the end of memory.
func (v MemoryView) Len() uint32 {
	if v.mem == nil {
		return 0
	}
	size := v.mem.Size()
	if v.base >= size {
		return 0
	}
	return size - v.base
}

func (v MemoryView) check(off, n uint32) (uint32, error) {
	if v.mem == nil {
		return 0, errors.NilPointer(errors.PhaseMemory, "memory")
	}
	start := uint64(v.base) + uint64(off)
	size := v.mem.Size()
	if start+uint64(n) > uint64(size) {
		return 0, errors.OutOfBounds(start, uint64(n), size)
	}
	return uint32(start), nil
}

// Bytes returns n bytes at off, aliasing guest memory.
func (v MemoryView) Bytes(off, n uint32) ([]byte, error) {
	abs, err := v.check(off, n)
	if err != nil {
		return nil, err
	}
	b, ok := v.mem.Read(abs, n)
	if !ok {
		return nil, errors.OutOfBounds(uint64(abs), uint64(n), v.mem.Size())
	}
	return b, nil
}

// Read copies len(dst) bytes at off into dst.
func (v MemoryView) Read(off uint32, dst []byte) error {
	b, err := v.Bytes(off, uint32(len(dst)))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

// Write copies src into guest memory at off.
func (v MemoryView) Write(off uint32, src []byte) error {
	b, err := v.Bytes(off, uint32(len(src)))
	if err != nil {
		return err
	}
	copy(b, src)
	return nil
}

func (v MemoryView) ReadU32(off uint32) (uint32, error) {
	b, err := v.Bytes(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (v MemoryView) WriteU32(off uint32, value uint32) error {
	b, err := v.Bytes(off, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, value)
	return nil
}

func (v MemoryView) ReadF32(off uint32) (float32, error) {
	u, err := v.ReadU32(off)
	return math.Float32frombits(u), err
}

func (v MemoryView) WriteF32(off uint32, value float32) error {
	return v.WriteU32(off, math.Float32bits(value))
}

// WriteFloats stores src as little-endian float32 samples at off.
func (v MemoryView) WriteFloats(off uint32, src []float32) error {
	b, err := v.Bytes(off, uint32(len(src))*4)
	if err != nil {
		return err
	}
	for i, s := range src {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(s))
	}
	return nil
}

// ReadFloats loads len(dst) little-endian float32 samples at off.
func (v MemoryView) ReadFloats(off uint32, dst []float32) error {
	b, err := v.Bytes(off, uint32(len(dst))*4)
	if err != nil {
		return err
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return nil
}

// CString reads a NUL-terminated string at off. The scan stops at the end of
// memory, or after limit bytes when limit > 0.
func (v MemoryView) CString(off, limit uint32) (string, error) {
	abs, err := v.check(off, 0)
	if err != nil {
		return "", err
	}
	size := v.mem.Size()
	avail := size - abs
	scan := avail
	if limit > 0 && limit < scan {
		scan = limit
	}
	b, ok := v.mem.Read(abs, scan)
	if !ok {
		return "", errors.OutOfBounds(uint64(abs), uint64(scan), size)
	}
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		if scan < avail {
			return "", errors.Capacity(errors.PhaseMemory, uint64(scan)+1, uint64(limit))
		}
		return "", errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
			Value(uint64(abs)).
			Detail("unterminated string at %d runs past memory size %d", abs, size).
			Build()
	}
	return string(b[:n]), nil
}

// PutCString writes s and a NUL terminator at off. capacity is the size of
// the guest buffer, terminator included.
func (v MemoryView) PutCString(off uint32, s string, capacity uint32) error {
	need := uint64(len(s)) + 1
	if need > uint64(capacity) {
		return errors.Capacity(errors.PhaseMemory, need, uint64(capacity))
	}
	b, err := v.Bytes(off, uint32(need))
	if err != nil {
		return err
	}
	copy(b, s)
	b[len(s)] = 0
	return nil
}
