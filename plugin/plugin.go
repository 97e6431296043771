// Package plugin is the shell-facing side of a DSP guest. It drives the
// mailbox query protocol for metadata, parameters, programs and state, and
// runs audio blocks through the bridges.
//
// Methods never panic and never return guest faults as values: on failure
// they log through Logger and return a documented default, so a broken guest
// degrades to an "Error" label, zero values and silence.
package plugin

import (
	"context"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	wasmdsp "github.com/wippyai/wasm-dsp"
	"github.com/wippyai/wasm-dsp/abi"
	"github.com/wippyai/wasm-dsp/bridge"
	"github.com/wippyai/wasm-dsp/engine"
	"github.com/wippyai/wasm-dsp/errors"
)

// ErrorLabel is returned for metadata strings when the guest is unavailable.
const ErrorLabel = "Error"

// Plugin hosts one guest. Like the engine it wraps, it must be driven by one
// goroutine at a time; State and SetSampleRate are the exceptions.
type Plugin struct {
	cfg        Config
	eng        *engine.Engine
	imports    *engine.ImportTable
	midi       *bridge.MidiBridge
	audio      *bridge.AudioBridge
	sampleRate atomic.Uint64
}

// New prepares a plugin in the NotStarted state. Until Start succeeds every
// method returns its default.
func New(cfg Config) *Plugin {
	cfg = cfg.withDefaults()
	p := &Plugin{
		cfg:  cfg,
		eng:  engine.New(cfg.Engine, cfg.Capabilities.Contract()),
		midi: bridge.NewMidiBridge(cfg.MidiBlockBytes, cfg.Capabilities.MidiInput, cfg.Capabilities.MidiOutput),
	}
	p.sampleRate.Store(math.Float64bits(cfg.SampleRate))

	p.imports = engine.NewImportTable()
	for _, imp := range []engine.Import{
		p.sampleRateImport(abi.ImportGetSampleRate),
		p.sampleRateImport(abi.ImportGetSampleRateAlias),
		p.midi.Import(),
		p.abortImport(),
	} {
		if err := p.imports.Register(imp); err != nil {
			Logger().Error("failed to register import", zap.String("import", imp.Name), zap.Error(err))
		}
	}
	return p
}

func (p *Plugin) Config() Config {
	return p.cfg
}

// Engine exposes the underlying engine for direct slot and export access.
func (p *Plugin) Engine() *engine.Engine {
	return p.eng
}

// State is safe to call from any goroutine.
func (p *Plugin) State() engine.State {
	return p.eng.State()
}

// Start loads and links the guest, publishes the channel counts and binds
// the bridges. A failed start is terminal; create a new Plugin to retry.
func (p *Plugin) Start(ctx context.Context) error {
	var err error
	if p.cfg.Module != nil {
		name := p.cfg.ModulePath
		if name == "" {
			name = "guest"
		}
		err = p.eng.StartBytes(ctx, name, p.cfg.Module, p.imports)
	} else {
		err = p.eng.Start(ctx, p.cfg.ModulePath, p.imports)
	}
	if err != nil {
		return err
	}

	if err := p.bind(); err != nil {
		Logger().Error("failed to bind guest", zap.String("module", p.eng.Name()), zap.Error(err))
		if cerr := p.eng.Close(ctx); cerr != nil {
			Logger().Warn("failed to close engine", zap.Error(cerr))
		}
		return err
	}

	Logger().Info("plugin started",
		zap.String("module", p.eng.Name()),
		zap.Int("inputs", p.cfg.Inputs),
		zap.Int("outputs", p.cfg.Outputs),
		zap.Uint32("max_frames", p.audio.MaxFrames()))
	return nil
}

func (p *Plugin) bind() error {
	if err := p.eng.SetGlobal(abi.GlobalNumInputs, wasmdsp.I32(int32(p.cfg.Inputs))); err != nil {
		return err
	}
	if err := p.eng.SetGlobal(abi.GlobalNumOutputs, wasmdsp.I32(int32(p.cfg.Outputs))); err != nil {
		return err
	}
	if err := p.midi.Bind(p.eng); err != nil {
		return err
	}
	audio, err := bridge.NewAudioBridge(p.eng, p.midi, bridge.AudioConfig{
		Inputs:     p.cfg.Inputs,
		Outputs:    p.cfg.Outputs,
		BlockBytes: p.cfg.BlockBytes,
	})
	if err != nil {
		return err
	}
	p.audio = audio
	return nil
}

// Close releases the guest.
func (p *Plugin) Close(ctx context.Context) error {
	p.audio = nil
	return p.eng.Close(ctx)
}

// MaxFrames is the largest block Run accepts, 0 before Start.
func (p *Plugin) MaxFrames() uint32 {
	if p.audio == nil {
		return 0
	}
	return p.audio.MaxFrames()
}

// call invokes an export and logs a failure. ok is false on any error.
func (p *Plugin) call(ctx context.Context, name string, args ...wasmdsp.Value) ([]wasmdsp.Value, bool) {
	res, err := p.eng.Call(ctx, name, args...)
	if err != nil {
		p.logFailure(name, err)
		return nil, false
	}
	return res, true
}

func (p *Plugin) logFailure(op string, err error) {
	if errors.KindOf(err) == errors.KindNotStarted {
		Logger().Debug("guest unavailable", zap.String("op", op), zap.Stringer("state", p.eng.State()))
		return
	}
	Logger().Warn("guest operation failed",
		zap.String("op", op),
		zap.Stringer("state", p.eng.State()),
		zap.Error(err))
}

func (p *Plugin) checkIndex(op string, i, count int) bool {
	if i < 0 || (count > 0 && i >= count) {
		p.logFailure(op, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Name(op).
			Value(i).
			Detail("index %d outside 0..%d", i, count-1).
			Build())
		return false
	}
	return true
}

// readString reads the C string a guest pointer refers to.
func (p *Plugin) readString(op string, ptr wasmdsp.Value) (string, bool) {
	s, err := p.eng.ReadCString(ptr)
	if err != nil {
		p.logFailure(op, err)
		return "", false
	}
	return s, true
}

func (p *Plugin) metadataString(ctx context.Context, name string) string {
	res, ok := p.call(ctx, name)
	if !ok {
		return ErrorLabel
	}
	s, ok := p.readString(name, res[0])
	if !ok {
		return ErrorLabel
	}
	return s
}

// Label returns the plugin name, or ErrorLabel.
func (p *Plugin) Label(ctx context.Context) string {
	return p.metadataString(ctx, abi.ExportGetLabel)
}

// Maker returns the plugin author, or ErrorLabel.
func (p *Plugin) Maker(ctx context.Context) string {
	return p.metadataString(ctx, abi.ExportGetMaker)
}

// License returns the plugin license, or ErrorLabel.
func (p *Plugin) License(ctx context.Context) string {
	return p.metadataString(ctx, abi.ExportGetLicense)
}

// Version returns the packed version (major<<16 | minor<<8 | patch), or 0.
func (p *Plugin) Version(ctx context.Context) uint32 {
	res, ok := p.call(ctx, abi.ExportGetVersion)
	if !ok {
		return 0
	}
	return res[0].U32()
}

// UniqueID returns the plugin identifier, or 0.
func (p *Plugin) UniqueID(ctx context.Context) int64 {
	res, ok := p.call(ctx, abi.ExportGetUniqueID)
	if !ok {
		return 0
	}
	return res[0].I64()
}
