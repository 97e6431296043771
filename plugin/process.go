package plugin

import (
	"context"
	"math"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmdsp "github.com/wippyai/wasm-dsp"
	"github.com/wippyai/wasm-dsp/abi"
	"github.com/wippyai/wasm-dsp/engine"
	"github.com/wippyai/wasm-dsp/errors"
	"github.com/wippyai/wasm-dsp/midi"
)

// Activate prepares the guest for processing. The guest typically queries
// the sample rate here.
func (p *Plugin) Activate(ctx context.Context) {
	p.call(ctx, abi.ExportActivate)
}

func (p *Plugin) Deactivate(ctx context.Context) {
	p.call(ctx, abi.ExportDeactivate)
}

// SetSampleRate changes the rate reported to the guest. Safe to call from any
// goroutine; guests read it on their next _get_sample_rate call.
func (p *Plugin) SetSampleRate(rate float64) {
	p.sampleRate.Store(math.Float64bits(rate))
}

func (p *Plugin) SampleRate() float64 {
	return math.Float64frombits(p.sampleRate.Load())
}

func (p *Plugin) sampleRateImport(name string) engine.Import {
	return engine.Import{
		Name:    name,
		Results: []wasmdsp.ValueKind{wasmdsp.KindF32},
		Func: func(_ context.Context, stack []uint64) {
			stack[0] = api.EncodeF32(float32(p.SampleRate()))
		},
	}
}

// Run processes one audio block. On any failure the outputs are silent for
// the block and the error is returned after being logged; the caller may
// ignore it.
func (p *Plugin) Run(ctx context.Context, inputs, outputs [][]float32, frames uint32, midiIn []midi.Event, midiOut midi.Sink) error {
	if p.audio == nil {
		for _, buf := range outputs {
			clear(buf[:min(uint32(len(buf)), frames)])
		}
		return errors.NotStarted(p.eng.State().String())
	}

	err := p.audio.Run(ctx, inputs, outputs, frames, midiIn, midiOut)
	if err == nil {
		return nil
	}
	switch {
	case p.eng.State() == engine.Failed:
		Logger().Error("guest stopped processing", zap.String("module", p.eng.Name()), zap.Error(err))
	case errors.KindOf(err) == errors.KindCapacity:
		Logger().Warn("block exceeded negotiated capacity", zap.Uint32("frames", frames), zap.Error(err))
	default:
		Logger().Debug("block failed", zap.Int("consecutive", p.eng.Faults()), zap.Error(err))
	}
	return err
}
