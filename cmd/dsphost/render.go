package main

import (
	"context"
	"math"

	"github.com/wippyai/wasm-dsp/midi"
	"github.com/wippyai/wasm-dsp/plugin"
)

// toneHz is the test tone fed to every input channel.
const toneHz = 440

// renderOpts describes an offline render.
type renderOpts struct {
	blocks int
	frames uint32
	// note sends a note-on at frame 0 of the first block when >= 0.
	note int
}

// channelStats accumulates the level of one output channel.
type channelStats struct {
	peak  float32
	sumSq float64
	n     int
}

func (s *channelStats) add(buf []float32) {
	for _, v := range buf {
		if a := float32(math.Abs(float64(v))); a > s.peak {
			s.peak = a
		}
		s.sumSq += float64(v) * float64(v)
	}
	s.n += len(buf)
}

func (s *channelStats) rms() float64 {
	if s.n == 0 {
		return 0
	}
	return math.Sqrt(s.sumSq / float64(s.n))
}

// renderResult is what one render produced.
type renderResult struct {
	channels []channelStats
	midi     []midi.Event
	dropped  int
	failed   int
}

// render runs the plugin over a sine tone for opts.blocks blocks.
func render(ctx context.Context, p *plugin.Plugin, opts renderOpts) renderResult {
	cfg := p.Config()
	inputs := makeBuffers(cfg.Inputs, opts.frames)
	outputs := makeBuffers(cfg.Outputs, opts.frames)
	res := renderResult{channels: make([]channelStats, cfg.Outputs)}
	sink := midi.NewBuffer(256)

	step := 2 * math.Pi * toneHz / p.SampleRate()
	phase := 0.0
	for b := 0; b < opts.blocks; b++ {
		for i := uint32(0); i < opts.frames; i++ {
			v := float32(0.5 * math.Sin(phase))
			for _, in := range inputs {
				in[i] = v
			}
			phase += step
		}
		phase = math.Mod(phase, 2*math.Pi)

		var events []midi.Event
		if b == 0 && opts.note >= 0 {
			events = append(events, midi.NoteOn(0, 0, uint8(opts.note), 100))
		}

		if err := p.Run(ctx, inputs, outputs, opts.frames, events, sink); err != nil {
			res.failed++
		}
		for c, out := range outputs {
			res.channels[c].add(out)
		}
	}

	res.midi = sink.Events()
	res.dropped = sink.Dropped()
	return res
}

func makeBuffers(n int, frames uint32) [][]float32 {
	bufs := make([][]float32, n)
	for i := range bufs {
		bufs[i] = make([]float32, frames)
	}
	return bufs
}
