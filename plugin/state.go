package plugin

import (
	"context"

	wasmdsp "github.com/wippyai/wasm-dsp"
	"github.com/wippyai/wasm-dsp/abi"
	"github.com/wippyai/wasm-dsp/engine"
	"github.com/wippyai/wasm-dsp/errors"
)

// ProgramName returns the name of factory program i, or "" when the guest
// does not name its programs.
func (p *Plugin) ProgramName(ctx context.Context, i int) string {
	if !p.checkIndex(abi.ExportInitProgramName, i, p.cfg.ProgramCount) {
		return ""
	}
	if p.eng.State() == engine.Started && !p.eng.Has(abi.ExportInitProgramName) {
		return ""
	}
	res, ok := p.call(ctx, abi.ExportInitProgramName, wasmdsp.I32(int32(i)))
	if !ok {
		return ""
	}
	name, _ := p.readString(abi.ExportInitProgramName, res[0])
	return name
}

// Programs lists program names up to Config.ProgramCount.
func (p *Plugin) Programs(ctx context.Context) []string {
	names := make([]string, 0, p.cfg.ProgramCount)
	for i := 0; i < p.cfg.ProgramCount; i++ {
		names = append(names, p.ProgramName(ctx, i))
	}
	return names
}

// LoadProgram switches to factory program i.
func (p *Plugin) LoadProgram(ctx context.Context, i int) {
	if !p.checkIndex(abi.ExportLoadProgram, i, p.cfg.ProgramCount) {
		return
	}
	p.call(ctx, abi.ExportLoadProgram, wasmdsp.I32(int32(i)))
}

// StateInfo describes one state key.
type StateInfo struct {
	Key     string
	Default string
}

// InitState queries state key i. The zero StateInfo is returned on failure.
func (p *Plugin) InitState(ctx context.Context, i int) StateInfo {
	if !p.checkIndex(abi.ExportInitState, i, p.cfg.StateCount) {
		return StateInfo{}
	}
	if _, ok := p.call(ctx, abi.ExportInitState, wasmdsp.I32(int32(i))); !ok {
		return StateInfo{}
	}

	keyPtr, err := p.eng.Global(abi.RoleString.Slot(1))
	if err != nil {
		p.logFailure(abi.ExportInitState, err)
		return StateInfo{}
	}
	defPtr, err := p.eng.Global(abi.RoleString.Slot(2))
	if err != nil {
		p.logFailure(abi.ExportInitState, err)
		return StateInfo{}
	}
	key, ok := p.readString(abi.ExportInitState, keyPtr)
	if !ok {
		return StateInfo{}
	}
	def, ok := p.readString(abi.ExportInitState, defPtr)
	if !ok {
		return StateInfo{}
	}
	return StateInfo{Key: key, Default: def}
}

// States lists state keys up to Config.StateCount.
func (p *Plugin) States(ctx context.Context) []StateInfo {
	states := make([]StateInfo, 0, p.cfg.StateCount)
	for i := 0; i < p.cfg.StateCount; i++ {
		states = append(states, p.InitState(ctx, i))
	}
	return states
}

// putString copies s into the host-writable string buffer n and returns the
// buffer pointer.
func (p *Plugin) putString(n int, s string) (wasmdsp.Value, error) {
	ptr, err := p.eng.Global(abi.RoleStringBuffer.Slot(n))
	if err != nil {
		return wasmdsp.Value{}, err
	}
	if err := p.eng.WriteCString(ptr, s, abi.StringBufferSize); err != nil {
		return wasmdsp.Value{}, err
	}
	return ptr, nil
}

// SetState hands a key/value pair to the guest. Both strings must fit a
// string buffer with their terminator.
func (p *Plugin) SetState(ctx context.Context, key, value string) {
	keyPtr, err := p.putString(1, key)
	if err != nil {
		p.logFailure(abi.ExportSetState, err)
		return
	}
	valuePtr, err := p.putString(2, value)
	if err != nil {
		p.logFailure(abi.ExportSetState, err)
		return
	}
	p.call(ctx, abi.ExportSetState, keyPtr, valuePtr)
}

// GetState asks the guest for the current value of key, or "" when the guest
// has no full state support.
func (p *Plugin) GetState(ctx context.Context, key string) string {
	if p.eng.State() == engine.Started && !p.eng.Has(abi.ExportGetState) {
		p.logFailure(abi.ExportGetState, errors.NotFound(errors.PhaseCall, "export", abi.ExportGetState))
		return ""
	}
	keyPtr, err := p.putString(1, key)
	if err != nil {
		p.logFailure(abi.ExportGetState, err)
		return ""
	}
	res, ok := p.call(ctx, abi.ExportGetState, keyPtr)
	if !ok {
		return ""
	}
	value, _ := p.readString(abi.ExportGetState, res[0])
	return value
}
