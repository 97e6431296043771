package wasmbuild

import (
	"encoding/binary"
	"math"
)

// Code accumulates a function body. Structured instructions (Block, Loop,
// If) must be closed with End; the final End of the body is added by
// Module.Func.
type Code struct {
	buf []byte
}

func NewCode() *Code {
	return &Code{}
}

func (c *Code) op(b ...byte) *Code {
	c.buf = append(c.buf, b...)
	return c
}

func (c *Code) memarg(opcode byte, align, offset uint32) *Code {
	c.buf = append(c.buf, opcode)
	c.buf = appendU32(c.buf, align)
	c.buf = appendU32(c.buf, offset)
	return c
}

func (c *Code) Unreachable() *Code { return c.op(0x00) }
func (c *Code) Block() *Code       { return c.op(0x02, 0x40) }
func (c *Code) Loop() *Code        { return c.op(0x03, 0x40) }
func (c *Code) If() *Code          { return c.op(0x04, 0x40) }
func (c *Code) Else() *Code        { return c.op(0x05) }
func (c *Code) End() *Code         { return c.op(0x0B) }
func (c *Code) Return() *Code      { return c.op(0x0F) }
func (c *Code) Drop() *Code        { return c.op(0x1A) }
func (c *Code) Select() *Code      { return c.op(0x1B) }

func (c *Code) Br(depth uint32) *Code {
	c.buf = appendU32(append(c.buf, 0x0C), depth)
	return c
}

func (c *Code) BrIf(depth uint32) *Code {
	c.buf = appendU32(append(c.buf, 0x0D), depth)
	return c
}

func (c *Code) Call(fn uint32) *Code {
	c.buf = appendU32(append(c.buf, 0x10), fn)
	return c
}

func (c *Code) LocalGet(i uint32) *Code {
	c.buf = appendU32(append(c.buf, 0x20), i)
	return c
}

func (c *Code) LocalSet(i uint32) *Code {
	c.buf = appendU32(append(c.buf, 0x21), i)
	return c
}

func (c *Code) GlobalGet(i uint32) *Code {
	c.buf = appendU32(append(c.buf, 0x23), i)
	return c
}

func (c *Code) GlobalSet(i uint32) *Code {
	c.buf = appendU32(append(c.buf, 0x24), i)
	return c
}

func (c *Code) I32Load(offset uint32) *Code  { return c.memarg(0x28, 2, offset) }
func (c *Code) F32Load(offset uint32) *Code  { return c.memarg(0x2A, 2, offset) }
func (c *Code) I32Store(offset uint32) *Code { return c.memarg(0x36, 2, offset) }
func (c *Code) F32Store(offset uint32) *Code { return c.memarg(0x38, 2, offset) }

func (c *Code) I32Const(v int32) *Code {
	c.buf = appendS32(append(c.buf, 0x41), v)
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.buf = appendS64(append(c.buf, 0x42), v)
	return c
}

func (c *Code) F32Const(v float32) *Code {
	c.buf = binary.LittleEndian.AppendUint32(append(c.buf, 0x43), math.Float32bits(v))
	return c
}

func (c *Code) I32Eqz() *Code { return c.op(0x45) }
func (c *Code) I32Eq() *Code  { return c.op(0x46) }
func (c *Code) I32GeU() *Code { return c.op(0x4F) }
func (c *Code) I32Add() *Code { return c.op(0x6A) }
func (c *Code) I32Mul() *Code { return c.op(0x6C) }
func (c *Code) I32Shl() *Code { return c.op(0x74) }
func (c *Code) F32Mul() *Code { return c.op(0x94) }

// MemoryCopy is the bulk memory copy (dst, src, n).
func (c *Code) MemoryCopy() *Code { return c.op(0xFC, 0x0A, 0x00, 0x00) }

func (c *Code) Bytes() []byte {
	return c.buf
}
