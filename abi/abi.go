// Package abi names the functions and globals a DSP guest and its host agree
// on, with their scalar signatures.
package abi

import (
	"strconv"

	wasmdsp "github.com/wippyai/wasm-dsp"
	"github.com/wippyai/wasm-dsp/engine"
)

// Guest exports.
const (
	ExportGetLabel          = "_get_label"
	ExportGetMaker          = "_get_maker"
	ExportGetLicense        = "_get_license"
	ExportGetVersion        = "_get_version"
	ExportGetUniqueID       = "_get_unique_id"
	ExportInitParameter     = "_init_parameter"
	ExportGetParameterValue = "_get_parameter_value"
	ExportSetParameterValue = "_set_parameter_value"
	ExportInitProgramName   = "_init_program_name"
	ExportLoadProgram       = "_load_program"
	ExportInitState         = "_init_state"
	ExportSetState          = "_set_state"
	ExportGetState          = "_get_state"
	ExportActivate          = "_activate"
	ExportDeactivate        = "_deactivate"
	ExportRun               = "_run"
)

// Host imports, all under engine.DefaultImportModule.
const (
	ImportGetSampleRate  = "_get_sample_rate"
	ImportWriteMidiEvent = "_write_midi_event"

	// ImportGetSampleRateAlias is an older spelling some hosts registered.
	ImportGetSampleRateAlias = "_get_samplerate"

	// ImportAbort is the AssemblyScript runtime's abort(msg, file, line, col).
	ImportAbort = "abort"
)

// Block globals.
const (
	GlobalNumInputs   = "_rw_num_inputs"
	GlobalNumOutputs  = "_rw_num_outputs"
	GlobalInputBlock  = "_rw_input_block"
	GlobalOutputBlock = "_rw_output_block"
	GlobalMidiBlock   = "_rw_midi_block"
)

const (
	// ScratchSlots is the number of mailbox slots per scratch role.
	ScratchSlots = 4

	// StringBuffers is the number of host-writable string buffers.
	StringBuffers = 2

	// StringBufferSize is the capacity of each _rw_string_N buffer,
	// terminator included.
	StringBufferSize = 1024

	// DefaultBlockBytes is the size of each audio region: 16384 float32
	// samples shared by all channels of one direction.
	DefaultBlockBytes = 65536

	// DefaultMidiBlockBytes is the size of the MIDI region.
	DefaultMidiBlockBytes = 16384
)

// Role is a family of mailbox slots sharing a prefix and a kind. Slots of a
// role are numbered from 1.
type Role struct {
	Prefix string
	Kind   wasmdsp.ValueKind
	Count  int
}

var (
	// RoleInt holds integers the guest publishes, e.g. parameter hints.
	RoleInt = Role{Prefix: "_rw_int_", Kind: wasmdsp.KindI32, Count: ScratchSlots}
	// RoleFloat holds floats the guest publishes, e.g. parameter ranges.
	RoleFloat = Role{Prefix: "_rw_float_", Kind: wasmdsp.KindF32, Count: ScratchSlots}
	// RoleString holds pointers to guest-owned C strings.
	RoleString = Role{Prefix: "_ro_string_", Kind: wasmdsp.KindI32, Count: ScratchSlots}
	// RoleStringBuffer holds pointers to guest buffers the host writes C
	// strings into.
	RoleStringBuffer = Role{Prefix: "_rw_string_", Kind: wasmdsp.KindI32, Count: StringBuffers}
)

// Slot returns the name of slot n of the role.
func (r Role) Slot(n int) string {
	return r.Prefix + strconv.Itoa(n)
}

// Names returns every slot name of the role.
func (r Role) Names() []string {
	names := make([]string, r.Count)
	for i := range names {
		names[i] = r.Slot(i + 1)
	}
	return names
}

var (
	i32 = []wasmdsp.ValueKind{wasmdsp.KindI32}
	i64 = []wasmdsp.ValueKind{wasmdsp.KindI64}
	f32 = []wasmdsp.ValueKind{wasmdsp.KindF32}
)

// Signature returns the scalar signature of a known export.
func Signature(name string) (params, results []wasmdsp.ValueKind, ok bool) {
	switch name {
	case ExportGetLabel, ExportGetMaker, ExportGetLicense, ExportGetVersion:
		return nil, i32, true
	case ExportGetUniqueID:
		return nil, i64, true
	case ExportInitParameter, ExportLoadProgram, ExportInitState:
		return i32, nil, true
	case ExportGetParameterValue:
		return i32, f32, true
	case ExportSetParameterValue:
		return []wasmdsp.ValueKind{wasmdsp.KindI32, wasmdsp.KindF32}, nil, true
	case ExportInitProgramName, ExportGetState:
		return i32, i32, true
	case ExportSetState, ExportRun:
		return []wasmdsp.ValueKind{wasmdsp.KindI32, wasmdsp.KindI32}, nil, true
	case ExportActivate, ExportDeactivate:
		return nil, nil, true
	}
	return nil, nil, false
}

// Capabilities selects the optional parts of the ABI a plugin uses. They are
// resolved once, at engine start.
type Capabilities struct {
	Programs   bool
	State      bool
	FullState  bool
	MidiInput  bool
	MidiOutput bool
}

func export(name string, optional bool) engine.ExportSpec {
	params, results, _ := Signature(name)
	return engine.ExportSpec{Name: name, Params: params, Results: results, Optional: optional}
}

func global(name string, kind wasmdsp.ValueKind, optional bool) engine.GlobalSpec {
	return engine.GlobalSpec{Name: name, Kind: kind, Optional: optional}
}

// Contract returns the exports and globals the engine must resolve for caps.
func (c Capabilities) Contract() engine.Contract {
	var ct engine.Contract

	for _, name := range []string{
		ExportGetLabel, ExportGetMaker, ExportGetLicense, ExportGetVersion, ExportGetUniqueID,
		ExportInitParameter, ExportGetParameterValue, ExportSetParameterValue,
		ExportActivate, ExportDeactivate, ExportRun,
	} {
		ct.Exports = append(ct.Exports, export(name, false))
	}
	ct.Exports = append(ct.Exports,
		export(ExportInitProgramName, true),
		export(ExportLoadProgram, !c.Programs),
		export(ExportInitState, !c.State),
		export(ExportSetState, !c.State),
		export(ExportGetState, !c.FullState),
	)

	ct.Globals = append(ct.Globals,
		global(GlobalNumInputs, wasmdsp.KindI32, false),
		global(GlobalNumOutputs, wasmdsp.KindI32, false),
		global(GlobalInputBlock, wasmdsp.KindI32, false),
		global(GlobalOutputBlock, wasmdsp.KindI32, false),
		global(GlobalMidiBlock, wasmdsp.KindI32, !c.MidiInput && !c.MidiOutput),
	)

	// Parameter descriptors use int 1, string 1 and floats 1..3; state
	// descriptors add string 2.
	for i, name := range RoleInt.Names() {
		ct.Globals = append(ct.Globals, global(name, RoleInt.Kind, i > 0))
	}
	for i, name := range RoleFloat.Names() {
		ct.Globals = append(ct.Globals, global(name, RoleFloat.Kind, i > 2))
	}
	for i, name := range RoleString.Names() {
		required := i == 0 || (i == 1 && c.State)
		ct.Globals = append(ct.Globals, global(name, RoleString.Kind, !required))
	}
	for _, name := range RoleStringBuffer.Names() {
		ct.Globals = append(ct.Globals, global(name, RoleStringBuffer.Kind, !c.State))
	}

	return ct
}
