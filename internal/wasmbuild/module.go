// Package wasmbuild encodes small core WebAssembly modules. It covers what
// test and demo guests need: function imports, one memory, globals, exports
// and active data segments.
package wasmbuild

import (
	"encoding/binary"
	"math"
)

// ValType is a core value type.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
	F32 ValType = 0x7D
	F64 ValType = 0x7C
)

const (
	exportFunc   byte = 0x00
	exportMemory byte = 0x02
	exportGlobal byte = 0x03
)

type funcType struct {
	params  []ValType
	results []ValType
}

func (t funcType) equal(o funcType) bool {
	if len(t.params) != len(o.params) || len(t.results) != len(o.results) {
		return false
	}
	for i := range t.params {
		if t.params[i] != o.params[i] {
			return false
		}
	}
	for i := range t.results {
		if t.results[i] != o.results[i] {
			return false
		}
	}
	return true
}

type importFunc struct {
	module, name string
	typ          uint32
}

type function struct {
	typ    uint32
	locals []ValType
	body   []byte
}

type global struct {
	typ     ValType
	mutable bool
	init    []byte
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type segment struct {
	offset uint32
	data   []byte
}

// Module is a module under construction. Imports must be added before any
// function is defined, since imported functions take the low indices.
type Module struct {
	types    []funcType
	imports  []importFunc
	funcs    []function
	globals  []global
	exports  []export
	data     []segment
	memPages uint32
	hasMem   bool
}

func New() *Module {
	return &Module{}
}

func (m *Module) typeIndex(params, results []ValType) uint32 {
	t := funcType{params: params, results: results}
	for i, existing := range m.types {
		if existing.equal(t) {
			return uint32(i)
		}
	}
	m.types = append(m.types, t)
	return uint32(len(m.types) - 1)
}

// ImportFunc declares a function import and returns its function index.
func (m *Module) ImportFunc(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmbuild: imports must precede function definitions")
	}
	m.imports = append(m.imports, importFunc{module: module, name: name, typ: m.typeIndex(params, results)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function and returns its index. Parameters are locals
// 0..len(params)-1; extra locals follow.
func (m *Module) Func(params, results, locals []ValType, body *Code) uint32 {
	m.funcs = append(m.funcs, function{
		typ:    m.typeIndex(params, results),
		locals: locals,
		body:   body.Bytes(),
	})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Memory defines the module's memory with an initial size in 64KiB pages.
func (m *Module) Memory(pages uint32) {
	m.memPages = pages
	m.hasMem = true
}

func (m *Module) global(t ValType, mutable bool, init []byte) uint32 {
	m.globals = append(m.globals, global{typ: t, mutable: mutable, init: init})
	return uint32(len(m.globals) - 1)
}

func (m *Module) GlobalI32(v int32, mutable bool) uint32 {
	return m.global(I32, mutable, appendS32([]byte{0x41}, v))
}

func (m *Module) GlobalI64(v int64, mutable bool) uint32 {
	return m.global(I64, mutable, appendS64([]byte{0x42}, v))
}

func (m *Module) GlobalF32(v float32, mutable bool) uint32 {
	return m.global(F32, mutable, binary.LittleEndian.AppendUint32([]byte{0x43}, math.Float32bits(v)))
}

func (m *Module) GlobalF64(v float64, mutable bool) uint32 {
	return m.global(F64, mutable, binary.LittleEndian.AppendUint64([]byte{0x44}, math.Float64bits(v)))
}

func (m *Module) ExportFunc(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: exportFunc, idx: idx})
}

func (m *Module) ExportMemory(name string) {
	m.exports = append(m.exports, export{name: name, kind: exportMemory})
}

func (m *Module) ExportGlobal(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: exportGlobal, idx: idx})
}

// Data places b at offset when the module is instantiated.
func (m *Module) Data(offset uint32, b []byte) {
	m.data = append(m.data, segment{offset: offset, data: b})
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

	if len(m.types) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.types)))
		for _, t := range m.types {
			s = append(s, 0x60)
			s = appendValTypes(s, t.params)
			s = appendValTypes(s, t.results)
		}
		out = appendSection(out, 1, s)
	}

	if len(m.imports) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.imports)))
		for _, imp := range m.imports {
			s = appendName(s, imp.module)
			s = appendName(s, imp.name)
			s = append(s, 0x00)
			s = appendU32(s, imp.typ)
		}
		out = appendSection(out, 2, s)
	}

	if len(m.funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			s = appendU32(s, f.typ)
		}
		out = appendSection(out, 3, s)
	}

	if m.hasMem {
		s := appendU32(nil, 1)
		s = append(s, 0x00)
		s = appendU32(s, m.memPages)
		out = appendSection(out, 5, s)
	}

	if len(m.globals) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.globals)))
		for _, g := range m.globals {
			s = append(s, byte(g.typ))
			if g.mutable {
				s = append(s, 0x01)
			} else {
				s = append(s, 0x00)
			}
			s = append(s, g.init...)
			s = append(s, 0x0B)
		}
		out = appendSection(out, 6, s)
	}

	if len(m.exports) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.exports)))
		for _, e := range m.exports {
			s = appendName(s, e.name)
			s = append(s, e.kind)
			s = appendU32(s, e.idx)
		}
		out = appendSection(out, 7, s)
	}

	if len(m.funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			body := appendLocals(nil, f.locals)
			body = append(body, f.body...)
			body = append(body, 0x0B)
			s = appendU32(s, uint32(len(body)))
			s = append(s, body...)
		}
		out = appendSection(out, 10, s)
	}

	if len(m.data) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.data)))
		for _, d := range m.data {
			s = append(s, 0x00, 0x41)
			s = appendS32(s, int32(d.offset))
			s = append(s, 0x0B)
			s = appendU32(s, uint32(len(d.data)))
			s = append(s, d.data...)
		}
		out = appendSection(out, 11, s)
	}

	return out
}

func appendSection(b []byte, id byte, content []byte) []byte {
	b = append(b, id)
	b = appendU32(b, uint32(len(content)))
	return append(b, content...)
}

func appendValTypes(b []byte, types []ValType) []byte {
	b = appendU32(b, uint32(len(types)))
	for _, t := range types {
		b = append(b, byte(t))
	}
	return b
}

// appendLocals groups consecutive locals of the same type.
func appendLocals(b []byte, locals []ValType) []byte {
	type group struct {
		n uint32
		t ValType
	}
	var groups []group
	for _, t := range locals {
		if len(groups) > 0 && groups[len(groups)-1].t == t {
			groups[len(groups)-1].n++
			continue
		}
		groups = append(groups, group{n: 1, t: t})
	}
	b = appendU32(b, uint32(len(groups)))
	for _, g := range groups {
		b = appendU32(b, g.n)
		b = append(b, byte(g.t))
	}
	return b
}
