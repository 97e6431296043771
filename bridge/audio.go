package bridge

import (
	"context"

	"github.com/wippyai/wasm-dsp/abi"
	"github.com/wippyai/wasm-dsp/engine"
	"github.com/wippyai/wasm-dsp/errors"
	"github.com/wippyai/wasm-dsp/midi"
)

// AudioConfig fixes the block geometry negotiated at start.
type AudioConfig struct {
	Inputs  int
	Outputs int

	// BlockBytes is the size of each of the input and output regions.
	// 0 means abi.DefaultBlockBytes.
	BlockBytes uint32
}

// AudioBridge runs one audio block through the guest: write inputs, call
// _run, read outputs. Channel counts and the region size never change after
// construction, and the success path does not allocate.
type AudioBridge struct {
	eng        *engine.Engine
	run        *engine.Func
	input      *engine.Slot
	output     *engine.Slot
	midi       *MidiBridge
	stack      []uint64
	inputs     int
	outputs    int
	blockBytes uint32
	maxFrames  uint32
}

// NewAudioBridge resolves the _run handle and the audio region slots of a
// started engine. mb may be nil when the plugin has no MIDI.
func NewAudioBridge(eng *engine.Engine, mb *MidiBridge, cfg AudioConfig) (*AudioBridge, error) {
	if cfg.Inputs < 0 || cfg.Outputs < 0 {
		return nil, errors.InvalidInput(errors.PhaseAudio, "negative channel count")
	}
	if cfg.BlockBytes == 0 {
		cfg.BlockBytes = abi.DefaultBlockBytes
	}

	run, err := eng.Func(abi.ExportRun)
	if err != nil {
		return nil, err
	}
	in, err := eng.Slot(abi.GlobalInputBlock)
	if err != nil {
		return nil, err
	}
	out, err := eng.Slot(abi.GlobalOutputBlock)
	if err != nil {
		return nil, err
	}

	b := &AudioBridge{
		eng:        eng,
		run:        run,
		input:      in,
		output:     out,
		midi:       mb,
		stack:      make([]uint64, run.StackSize()),
		inputs:     cfg.Inputs,
		outputs:    cfg.Outputs,
		blockBytes: cfg.BlockBytes,
	}
	if ch := max(cfg.Inputs, cfg.Outputs); ch > 0 {
		b.maxFrames = cfg.BlockBytes / 4 / uint32(ch)
	} else {
		b.maxFrames = cfg.BlockBytes / 4
	}
	return b, nil
}

func (b *AudioBridge) Inputs() int  { return b.inputs }
func (b *AudioBridge) Outputs() int { return b.outputs }

// MaxFrames is the largest block Run accepts.
func (b *AudioBridge) MaxFrames() uint32 { return b.maxFrames }

// Run processes one block of frames samples per channel. Buffers are
// channel-major: inputs[c][0:frames]. midiOut receives events the guest emits
// during the call and may be nil.
//
// On failure the first frames samples of every output buffer are zeroed. A
// CapacityError from inbound MIDI overflow is returned after the block has
// been processed with the events that fit.
func (b *AudioBridge) Run(ctx context.Context, inputs, outputs [][]float32, frames uint32, midiIn []midi.Event, midiOut midi.Sink) error {
	if err := b.validate(inputs, outputs, frames); err != nil {
		silence(outputs, frames)
		return err
	}

	if err := b.writeInputs(inputs, frames); err != nil {
		silence(outputs, frames)
		return err
	}

	var events uint32
	var midiErr error
	if b.midi != nil {
		events, midiErr = b.midi.Serialize(midiIn)
		if midiErr != nil && errors.KindOf(midiErr) != errors.KindCapacity {
			silence(outputs, frames)
			return midiErr
		}
		b.midi.begin(midiOut)
	}

	b.stack[0] = uint64(frames)
	b.stack[1] = uint64(events)
	err := b.run.CallWithStack(ctx, b.stack)
	if b.midi != nil {
		b.midi.end()
	}
	if err != nil {
		silence(outputs, frames)
		return err
	}

	if err := b.readOutputs(outputs, frames); err != nil {
		silence(outputs, frames)
		return err
	}
	return midiErr
}

func (b *AudioBridge) validate(inputs, outputs [][]float32, frames uint32) error {
	if len(inputs) != b.inputs || len(outputs) != b.outputs {
		return errors.New(errors.PhaseAudio, errors.KindInvalidInput).
			Detail("got %d inputs and %d outputs, configured for %d and %d",
				len(inputs), len(outputs), b.inputs, b.outputs).
			Build()
	}
	if frames > b.maxFrames {
		return errors.Capacity(errors.PhaseAudio, uint64(frames), uint64(b.maxFrames))
	}
	for c, buf := range inputs {
		if uint32(len(buf)) < frames {
			return errors.New(errors.PhaseAudio, errors.KindInvalidInput).
				Value(c).
				Detail("input %d holds %d samples, block needs %d", c, len(buf), frames).
				Build()
		}
	}
	for c, buf := range outputs {
		if uint32(len(buf)) < frames {
			return errors.New(errors.PhaseAudio, errors.KindInvalidInput).
				Value(c).
				Detail("output %d holds %d samples, block needs %d", c, len(buf), frames).
				Build()
		}
	}
	return nil
}

func (b *AudioBridge) writeInputs(inputs [][]float32, frames uint32) error {
	if len(inputs) == 0 {
		return nil
	}
	view, err := b.eng.Memory(b.input.Pointer())
	if err != nil {
		return err
	}
	for c, buf := range inputs {
		if err := view.WriteFloats(uint32(c)*frames*4, buf[:frames]); err != nil {
			return err
		}
	}
	return nil
}

func (b *AudioBridge) readOutputs(outputs [][]float32, frames uint32) error {
	if len(outputs) == 0 {
		return nil
	}
	view, err := b.eng.Memory(b.output.Pointer())
	if err != nil {
		return err
	}
	for c, buf := range outputs {
		if err := view.ReadFloats(uint32(c)*frames*4, buf[:frames]); err != nil {
			return err
		}
	}
	return nil
}

func silence(outputs [][]float32, frames uint32) {
	for _, buf := range outputs {
		clear(buf[:min(uint32(len(buf)), frames)])
	}
}
