package bridge

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmdsp "github.com/wippyai/wasm-dsp"
	"github.com/wippyai/wasm-dsp/abi"
	"github.com/wippyai/wasm-dsp/engine"
	"github.com/wippyai/wasm-dsp/errors"
	"github.com/wippyai/wasm-dsp/midi"
)

// MidiBridge moves MIDI records through the guest's MIDI region: inbound
// events are serialized before _run, outbound events arrive one at a time
// through the _write_midi_event import while _run executes.
//
// Create it before the engine starts so its import can be linked, then Bind
// it to the started engine.
type MidiBridge struct {
	eng      *engine.Engine
	region   *engine.Slot
	sink     midi.Sink
	capacity uint32
	input    bool
	output   bool
}

// NewMidiBridge creates a bridge for a region of capacity bytes. Disabled
// directions are no-ops.
func NewMidiBridge(capacity uint32, input, output bool) *MidiBridge {
	if capacity == 0 {
		capacity = abi.DefaultMidiBlockBytes
	}
	return &MidiBridge{capacity: capacity, input: input, output: output}
}

func (b *MidiBridge) Capacity() uint32    { return b.capacity }
func (b *MidiBridge) InputEnabled() bool  { return b.input }
func (b *MidiBridge) OutputEnabled() bool { return b.output }

// Import returns the _write_midi_event host function. It is registered even
// when MIDI output is disabled, in which case it always answers 0.
func (b *MidiBridge) Import() engine.Import {
	return engine.Import{
		Name:    abi.ImportWriteMidiEvent,
		Results: []wasmdsp.ValueKind{wasmdsp.KindI32},
		Func:    b.writeEvent,
	}
}

// Bind resolves the MIDI region slot of a started engine.
func (b *MidiBridge) Bind(eng *engine.Engine) error {
	b.eng = eng
	if !b.input && !b.output {
		return nil
	}
	slot, err := eng.Slot(abi.GlobalMidiBlock)
	if err != nil {
		return err
	}
	b.region = slot
	return nil
}

func (b *MidiBridge) regionBytes() ([]byte, error) {
	if b.region == nil {
		return nil, errors.NotFound(errors.PhaseMIDI, "region", abi.GlobalMidiBlock)
	}
	view, err := b.eng.Memory(b.region.Pointer())
	if err != nil {
		return nil, err
	}
	return view.Bytes(0, b.capacity)
}

// Serialize writes events into the region in order and returns how many were
// written. Events that do not fit are dropped and reported as a
// CapacityError; the written ones remain valid.
func (b *MidiBridge) Serialize(events []midi.Event) (uint32, error) {
	if !b.input || len(events) == 0 {
		return 0, nil
	}
	dst, err := b.regionBytes()
	if err != nil {
		return 0, err
	}
	count, _, err := midi.Encode(dst, events)
	if err != nil {
		Logger().Warn("inbound MIDI truncated",
			zap.Int("written", count),
			zap.Int("events", len(events)),
			zap.Error(err))
	}
	return uint32(count), err
}

// begin routes guest output to sink until end is called.
func (b *MidiBridge) begin(sink midi.Sink) {
	if b.output {
		b.sink = sink
	}
}

func (b *MidiBridge) end() {
	b.sink = nil
}

func (b *MidiBridge) writeEvent(_ context.Context, stack []uint64) {
	stack[0] = 0
	if b.sink == nil {
		return
	}
	src, err := b.regionBytes()
	if err != nil {
		Logger().Debug("outbound MIDI region unavailable", zap.Error(err))
		return
	}
	ev, _, err := midi.ParseRecord(src)
	if err != nil {
		Logger().Debug("malformed outbound MIDI record", zap.Error(err))
		return
	}
	if b.sink.WriteMidiEvent(ev) {
		stack[0] = api.EncodeI32(1)
	}
}
