// Package demo builds a complete DSP guest: a two-parameter gain plugin that
// echoes every inbound MIDI event, with two programs and one state key.
package demo

import (
	"encoding/binary"
	"math"
	"unicode/utf16"

	"github.com/wippyai/wasm-dsp/abi"
	wb "github.com/wippyai/wasm-dsp/internal/wasmbuild"
)

const (
	Label    = "Demo Gain"
	Maker    = "wasm-dsp"
	License  = "ISC"
	Version  = 1<<16 | 2<<8 | 3
	UniqueID = int64(0x6447616E)

	ParamGain       = 0
	ParamSampleRate = 1
	ParameterCount  = 2
	ProgramCount    = 2
	StateCount      = 1

	GainName       = "Gain"
	SampleRateName = "Sample Rate"
	StateKey       = "mode"
	StateDefault   = "clean"

	// AbortMessage is what the guest passes to abort in Options.Abort mode.
	AbortMessage = "gain out of range"
	AbortFile    = "assembly/index.ts"
	AbortLine    = 12
	AbortColumn  = 5
)

// ProgramNames lists the factory programs in index order.
var ProgramNames = []string{"Default", "Loud"}

// Guest memory layout.
const (
	pages       = 3
	stringsBase = 0x0400
	stateStore  = 0x2000
	paramsBase  = 0x2800
	stringBuf1  = 0x3000
	stringBuf2  = 0x3400
	MidiBlock   = 0x4000
	InputBlock  = 0x10000
	OutputBlock = 0x20000
)

// Options selects guest variants used to exercise failure paths.
type Options struct {
	// OmitRun leaves out the _run export.
	OmitRun bool
	// RunTraps makes _run execute unreachable.
	RunTraps bool
	// Abort imports the AssemblyScript abort function and calls it from _run.
	Abort bool
}

// Module returns the default guest.
func Module() []byte {
	return Build(Options{})
}

type strtab struct {
	next uint32
	data []byte
}

func (s *strtab) add(str string) uint32 {
	ptr := stringsBase + s.next
	s.data = append(s.data, str...)
	s.data = append(s.data, 0)
	s.next = uint32(len(s.data))
	return ptr
}

// addUTF16 stores str the way AssemblyScript lays out strings: a byte length
// at ptr-4 followed by UTF-16LE code units.
func (s *strtab) addUTF16(str string) uint32 {
	for len(s.data)%4 != 0 {
		s.data = append(s.data, 0)
	}
	units := utf16.Encode([]rune(str))
	s.data = binary.LittleEndian.AppendUint32(s.data, uint32(len(units)*2))
	ptr := stringsBase + uint32(len(s.data))
	for _, u := range units {
		s.data = binary.LittleEndian.AppendUint16(s.data, u)
	}
	s.next = uint32(len(s.data))
	return ptr
}

func f32bytes(v float32) []byte {
	return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))
}

// Build encodes the guest.
func Build(opts Options) []byte {
	m := wb.New()
	none := []wb.ValType{}

	getSampleRate := m.ImportFunc("env", abi.ImportGetSampleRate, none, []wb.ValType{wb.F32})
	writeMidi := m.ImportFunc("env", abi.ImportWriteMidiEvent, none, []wb.ValType{wb.I32})
	var abort uint32
	if opts.Abort {
		abort = m.ImportFunc("env", abi.ImportAbort, []wb.ValType{wb.I32, wb.I32, wb.I32, wb.I32}, none)
	}

	m.Memory(pages)
	m.ExportMemory("memory")

	var strs strtab
	labelPtr := strs.add(Label)
	makerPtr := strs.add(Maker)
	licensePtr := strs.add(License)
	gainName := strs.add(GainName)
	rateName := strs.add(SampleRateName)
	program0 := strs.add(ProgramNames[0])
	program1 := strs.add(ProgramNames[1])
	stateKey := strs.add(StateKey)
	abortMsg := strs.addUTF16(AbortMessage)
	abortFile := strs.addUTF16(AbortFile)
	m.Data(stringsBase, strs.data)
	m.Data(stateStore, append([]byte(StateDefault), 0))
	m.Data(paramsBase, f32bytes(1))

	numInputs := m.GlobalI32(0, true)
	numOutputs := m.GlobalI32(0, true)
	m.ExportGlobal(abi.GlobalNumInputs, numInputs)
	m.ExportGlobal(abi.GlobalNumOutputs, numOutputs)
	m.ExportGlobal(abi.GlobalInputBlock, m.GlobalI32(InputBlock, false))
	m.ExportGlobal(abi.GlobalOutputBlock, m.GlobalI32(OutputBlock, false))
	m.ExportGlobal(abi.GlobalMidiBlock, m.GlobalI32(MidiBlock, false))

	var ints, floats, strings [abi.ScratchSlots]uint32
	for i := range ints {
		ints[i] = m.GlobalI32(0, true)
		m.ExportGlobal(abi.RoleInt.Slot(i+1), ints[i])
	}
	for i := range floats {
		floats[i] = m.GlobalF32(0, true)
		m.ExportGlobal(abi.RoleFloat.Slot(i+1), floats[i])
	}
	for i := range strings {
		strings[i] = m.GlobalI32(0, true)
		m.ExportGlobal(abi.RoleString.Slot(i+1), strings[i])
	}
	m.ExportGlobal(abi.RoleStringBuffer.Slot(1), m.GlobalI32(stringBuf1, false))
	m.ExportGlobal(abi.RoleStringBuffer.Slot(2), m.GlobalI32(stringBuf2, false))

	ret := func(name string, ptr int32) {
		m.ExportFunc(name, m.Func(none, []wb.ValType{wb.I32}, nil, wb.NewCode().I32Const(ptr)))
	}
	ret(abi.ExportGetLabel, int32(labelPtr))
	ret(abi.ExportGetMaker, int32(makerPtr))
	ret(abi.ExportGetLicense, int32(licensePtr))
	ret(abi.ExportGetVersion, Version)
	m.ExportFunc(abi.ExportGetUniqueID, m.Func(none, []wb.ValType{wb.I64}, nil, wb.NewCode().I64Const(UniqueID)))

	// Index 0 is the gain, anything else the read-only sample rate meter.
	m.ExportFunc(abi.ExportInitParameter, m.Func([]wb.ValType{wb.I32}, none, nil, wb.NewCode().
		LocalGet(0).I32Eqz().
		If().
		I32Const(0x01).GlobalSet(ints[0]).
		I32Const(int32(gainName)).GlobalSet(strings[0]).
		F32Const(1).GlobalSet(floats[0]).
		F32Const(0).GlobalSet(floats[1]).
		F32Const(2).GlobalSet(floats[2]).
		Else().
		I32Const(0x10).GlobalSet(ints[0]).
		I32Const(int32(rateName)).GlobalSet(strings[0]).
		F32Const(0).GlobalSet(floats[0]).
		F32Const(0).GlobalSet(floats[1]).
		F32Const(192000).GlobalSet(floats[2]).
		End()))

	paramAddr := func(c *wb.Code) *wb.Code {
		return c.I32Const(paramsBase).LocalGet(0).I32Const(2).I32Shl().I32Add()
	}
	m.ExportFunc(abi.ExportGetParameterValue, m.Func([]wb.ValType{wb.I32}, []wb.ValType{wb.F32}, nil,
		paramAddr(wb.NewCode()).F32Load(0)))
	m.ExportFunc(abi.ExportSetParameterValue, m.Func([]wb.ValType{wb.I32, wb.F32}, none, nil,
		paramAddr(wb.NewCode()).LocalGet(1).F32Store(0)))

	m.ExportFunc(abi.ExportInitProgramName, m.Func([]wb.ValType{wb.I32}, []wb.ValType{wb.I32}, nil, wb.NewCode().
		I32Const(int32(program1)).I32Const(int32(program0)).LocalGet(0).Select()))
	m.ExportFunc(abi.ExportLoadProgram, m.Func([]wb.ValType{wb.I32}, none, nil, wb.NewCode().
		I32Const(paramsBase).F32Const(2).F32Const(1).LocalGet(0).Select().F32Store(0)))

	m.ExportFunc(abi.ExportInitState, m.Func([]wb.ValType{wb.I32}, none, nil, wb.NewCode().
		I32Const(int32(stateKey)).GlobalSet(strings[0]).
		I32Const(stateStore).GlobalSet(strings[1])))
	m.ExportFunc(abi.ExportSetState, m.Func([]wb.ValType{wb.I32, wb.I32}, none, nil, wb.NewCode().
		I32Const(stateStore).LocalGet(1).I32Const(abi.StringBufferSize).MemoryCopy()))
	m.ExportFunc(abi.ExportGetState, m.Func([]wb.ValType{wb.I32}, []wb.ValType{wb.I32}, nil, wb.NewCode().
		I32Const(stateStore)))

	m.ExportFunc(abi.ExportActivate, m.Func(none, none, nil, wb.NewCode().
		I32Const(paramsBase+4).Call(getSampleRate).F32Store(0)))
	m.ExportFunc(abi.ExportDeactivate, m.Func(none, none, nil, wb.NewCode()))

	if !opts.OmitRun {
		m.ExportFunc(abi.ExportRun, m.Func([]wb.ValType{wb.I32, wb.I32}, none, []wb.ValType{wb.I32, wb.I32, wb.I32, wb.I32},
			runBody(opts, numOutputs, writeMidi, abort, abortMsg, abortFile)))
	}

	return m.Bytes()
}

// runBody scales every output sample by the gain, then echoes the inbound
// MIDI records by moving each to the region start and calling the host.
func runBody(opts Options, numOutputs, writeMidi, abort, abortMsg, abortFile uint32) *wb.Code {
	const (
		frames = 0
		events = 1
		i      = 2
		n      = 3
		p      = 4
		size   = 5
	)
	c := wb.NewCode()
	if opts.RunTraps {
		return c.Unreachable()
	}
	if opts.Abort {
		c.I32Const(int32(abortMsg)).I32Const(int32(abortFile)).
			I32Const(AbortLine).I32Const(AbortColumn).Call(abort)
	}

	c.LocalGet(frames).GlobalGet(numOutputs).I32Mul().LocalSet(n).
		I32Const(0).LocalSet(i).
		Block().Loop().
		LocalGet(i).LocalGet(n).I32GeU().BrIf(1).
		I32Const(OutputBlock).LocalGet(i).I32Const(2).I32Shl().I32Add().
		I32Const(InputBlock).LocalGet(i).I32Const(2).I32Shl().I32Add().F32Load(0).
		I32Const(paramsBase).F32Load(0).
		F32Mul().
		F32Store(0).
		LocalGet(i).I32Const(1).I32Add().LocalSet(i).
		Br(0).
		End().End()

	c.I32Const(MidiBlock).LocalSet(p).
		I32Const(0).LocalSet(i).
		Block().Loop().
		LocalGet(i).LocalGet(events).I32GeU().BrIf(1).
		LocalGet(p).I32Load(4).I32Const(8).I32Add().LocalSet(size).
		I32Const(MidiBlock).LocalGet(p).LocalGet(size).MemoryCopy().
		Call(writeMidi).Drop().
		LocalGet(p).LocalGet(size).I32Add().LocalSet(p).
		LocalGet(i).I32Const(1).I32Add().LocalSet(i).
		Br(0).
		End().End()

	return c
}
