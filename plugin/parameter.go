package plugin

import (
	"context"
	"strings"

	wasmdsp "github.com/wippyai/wasm-dsp"
	"github.com/wippyai/wasm-dsp/abi"
)

// Hints are the parameter flags a guest publishes in _rw_int_1.
type Hints uint32

const (
	HintAutomatable Hints = 0x01
	HintBoolean     Hints = 0x02
	HintInteger     Hints = 0x04
	HintLogarithmic Hints = 0x08
	HintOutput      Hints = 0x10
	HintTrigger     Hints = 0x20 | HintBoolean
)

func (h Hints) Has(flag Hints) bool {
	return h&flag == flag
}

func (h Hints) String() string {
	if h == 0 {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		flag Hints
		name string
	}{
		{HintAutomatable, "automatable"},
		{HintTrigger, "trigger"},
		{HintBoolean, "boolean"},
		{HintInteger, "integer"},
		{HintLogarithmic, "logarithmic"},
		{HintOutput, "output"},
	} {
		if h.Has(f.flag) {
			if f.flag == HintBoolean && h.Has(HintTrigger) {
				continue
			}
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Parameter describes one guest parameter.
type Parameter struct {
	Index   int
	Hints   Hints
	Name    string
	Default float32
	Min     float32
	Max     float32
}

// InitParameter queries the descriptor of parameter i. The zero Parameter is
// returned on failure.
//
// The guest publishes the descriptor in scratch slots that its next call may
// overwrite, so every slot is read before anything else reaches the guest.
func (p *Plugin) InitParameter(ctx context.Context, i int) Parameter {
	if !p.checkIndex(abi.ExportInitParameter, i, p.cfg.ParameterCount) {
		return Parameter{}
	}
	if _, ok := p.call(ctx, abi.ExportInitParameter, wasmdsp.I32(int32(i))); !ok {
		return Parameter{}
	}

	hints, err := p.eng.Global(abi.RoleInt.Slot(1))
	if err != nil {
		p.logFailure(abi.ExportInitParameter, err)
		return Parameter{}
	}
	namePtr, err := p.eng.Global(abi.RoleString.Slot(1))
	if err != nil {
		p.logFailure(abi.ExportInitParameter, err)
		return Parameter{}
	}
	var ranges [3]float32
	for n := range ranges {
		v, err := p.eng.Global(abi.RoleFloat.Slot(n + 1))
		if err != nil {
			p.logFailure(abi.ExportInitParameter, err)
			return Parameter{}
		}
		ranges[n] = v.F32()
	}
	name, ok := p.readString(abi.ExportInitParameter, namePtr)
	if !ok {
		return Parameter{}
	}

	return Parameter{
		Index:   i,
		Hints:   Hints(hints.U32()),
		Name:    name,
		Default: ranges[0],
		Min:     ranges[1],
		Max:     ranges[2],
	}
}

// Parameters queries every parameter up to Config.ParameterCount.
func (p *Plugin) Parameters(ctx context.Context) []Parameter {
	params := make([]Parameter, 0, p.cfg.ParameterCount)
	for i := 0; i < p.cfg.ParameterCount; i++ {
		params = append(params, p.InitParameter(ctx, i))
	}
	return params
}

// ParameterValue returns the current value of parameter i, or 0.
func (p *Plugin) ParameterValue(ctx context.Context, i int) float32 {
	if !p.checkIndex(abi.ExportGetParameterValue, i, p.cfg.ParameterCount) {
		return 0
	}
	res, ok := p.call(ctx, abi.ExportGetParameterValue, wasmdsp.I32(int32(i)))
	if !ok {
		return 0
	}
	return res[0].F32()
}

// SetParameterValue sets parameter i.
func (p *Plugin) SetParameterValue(ctx context.Context, i int, v float32) {
	if !p.checkIndex(abi.ExportSetParameterValue, i, p.cfg.ParameterCount) {
		return
	}
	p.call(ctx, abi.ExportSetParameterValue, wasmdsp.I32(int32(i)), wasmdsp.F32(v))
}
