// Command dsphost loads a DSP guest module, prints what it declares and
// renders test blocks through it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-dsp/bridge"
	"github.com/wippyai/wasm-dsp/engine"
	"github.com/wippyai/wasm-dsp/internal/demo"
	"github.com/wippyai/wasm-dsp/plugin"
)

// options collects the command line.
type options struct {
	wasm     string
	info     bool
	blocks   int
	frames   uint
	rate     float64
	inputs   int
	outputs  int
	note     int
	sets     string
	caps     string
	params   int
	programs int
	states   int
	wasi     bool
	logLevel string
	emitDemo string
	interact bool
}

func main() {
	var o options
	flag.StringVar(&o.wasm, "wasm", "", "Path to guest wasm module (default: built-in demo guest)")
	flag.BoolVar(&o.info, "info", false, "Print guest metadata, parameters, programs and states")
	flag.IntVar(&o.blocks, "blocks", 4, "Number of blocks to render")
	flag.UintVar(&o.frames, "frames", 512, "Frames per block")
	flag.Float64Var(&o.rate, "rate", plugin.DefaultSampleRate, "Sample rate reported to the guest")
	flag.IntVar(&o.inputs, "inputs", 2, "Input channels")
	flag.IntVar(&o.outputs, "outputs", 2, "Output channels")
	flag.IntVar(&o.note, "note", -1, "Send a note-on with this note number at frame 0")
	flag.StringVar(&o.sets, "set", "", "Parameter overrides (INDEX=VALUE,...)")
	flag.StringVar(&o.caps, "caps", "programs,state,midi", "Guest capabilities (programs,state,fullstate,midi,midi-in,midi-out,all)")
	flag.IntVar(&o.params, "params", 0, "Parameter count declared by the guest")
	flag.IntVar(&o.programs, "programs", 0, "Program count declared by the guest")
	flag.IntVar(&o.states, "states", 0, "State key count declared by the guest")
	flag.BoolVar(&o.wasi, "wasi", false, "Provide wasi_snapshot_preview1 to the guest")
	flag.StringVar(&o.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.StringVar(&o.emitDemo, "emit-demo", "", "Write the built-in demo guest to this path and exit")
	flag.BoolVar(&o.interact, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if flag.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: dsphost [-wasm <guest.wasm>] [-info] [-blocks N] [-frames F] [-set i=v,...]")
		fmt.Fprintln(os.Stderr, "       dsphost [-wasm <guest.wasm>] -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "       dsphost -emit-demo <out.wasm>")
		os.Exit(1)
	}

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(o options) error {
	ctx := context.Background()

	if o.emitDemo != "" {
		if err := os.WriteFile(o.emitDemo, demo.Module(), 0o644); err != nil {
			return fmt.Errorf("write demo: %w", err)
		}
		fmt.Printf("Wrote demo guest to %s\n", o.emitDemo)
		return nil
	}

	log, err := newLogger(o.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	engine.SetLogger(log.Named("engine"))
	bridge.SetLogger(log.Named("bridge"))
	plugin.SetLogger(log.Named("plugin"))

	cfg, err := pluginConfig(o)
	if err != nil {
		return err
	}
	sets, err := parseSets(o.sets)
	if err != nil {
		return err
	}

	p := plugin.New(cfg)
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("start guest: %w", err)
	}
	defer p.Close(ctx)

	p.Activate(ctx)
	defer p.Deactivate(ctx)
	for _, s := range sets {
		p.SetParameterValue(ctx, s.index, s.value)
	}

	ropts := renderOpts{blocks: o.blocks, frames: uint32(o.frames), note: o.note}
	if o.interact {
		return runInteractive(ctx, p, ropts)
	}

	st := newStyler()
	if o.info {
		printInfo(ctx, st, p)
	}
	if o.blocks > 0 {
		if ropts.frames > p.MaxFrames() {
			return fmt.Errorf("frames: %d exceeds guest capacity of %d", ropts.frames, p.MaxFrames())
		}
		printRender(st, p, ropts, render(ctx, p, ropts))
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log, nil
}

func pluginConfig(o options) (plugin.Config, error) {
	caps, err := parseCaps(o.caps)
	if err != nil {
		return plugin.Config{}, err
	}
	cfg := plugin.Config{
		ModulePath:     o.wasm,
		Inputs:         o.inputs,
		Outputs:        o.outputs,
		ParameterCount: o.params,
		ProgramCount:   o.programs,
		StateCount:     o.states,
		Capabilities:   caps,
		SampleRate:     o.rate,
		Engine:         engine.Config{EnableWASI: o.wasi},
	}
	if o.wasm == "" {
		cfg.ModulePath = "demo"
		cfg.Module = demo.Module()
		cfg.ParameterCount = demo.ParameterCount
		cfg.ProgramCount = demo.ProgramCount
		cfg.StateCount = demo.StateCount
	}
	return cfg, nil
}

func printInfo(ctx context.Context, st styler, p *plugin.Plugin) {
	v := p.Version(ctx)
	fmt.Println(st.title(p.Label(ctx)))
	fmt.Printf("Maker:     %s\n", p.Maker(ctx))
	fmt.Printf("License:   %s\n", p.License(ctx))
	fmt.Printf("Version:   %d.%d.%d\n", v>>16, v>>8&0xFF, v&0xFF)
	fmt.Printf("Unique ID: %#x\n", p.UniqueID(ctx))
	fmt.Printf("Max block: %d frames\n", p.MaxFrames())

	fmt.Printf("\nParameters:\n")
	for _, prm := range p.Parameters(ctx) {
		fmt.Printf("  %2d %-16s %s [%g..%g] default %g (%s)\n",
			prm.Index, st.name(prm.Name),
			st.value(fmt.Sprintf("%g", p.ParameterValue(ctx, prm.Index))),
			prm.Min, prm.Max, prm.Default, prm.Hints)
	}

	if progs := p.Programs(ctx); len(progs) > 0 {
		fmt.Printf("\nPrograms:\n")
		for i, name := range progs {
			fmt.Printf("  %2d %s\n", i, st.name(name))
		}
	}

	if states := p.States(ctx); len(states) > 0 {
		fmt.Printf("\nStates:\n")
		for _, s := range states {
			fmt.Printf("  %s = %s\n", st.name(s.Key), st.value(fmt.Sprintf("%q", s.Default)))
		}
	}
	fmt.Println()
}

func printRender(st styler, p *plugin.Plugin, o renderOpts, res renderResult) {
	fmt.Printf("Rendered %d blocks of %d frames at %g Hz\n", o.blocks, o.frames, p.SampleRate())
	for c, ch := range res.channels {
		fmt.Printf("  out %d: peak %s rms %s\n", c,
			st.value(fmt.Sprintf("%.4f", ch.peak)),
			st.value(fmt.Sprintf("%.4f", ch.rms())))
	}
	if res.failed > 0 {
		fmt.Println(st.err(fmt.Sprintf("  %d blocks failed (engine %s)", res.failed, p.State())))
	}
	if len(res.midi) > 0 || res.dropped > 0 {
		events := make([]string, len(res.midi))
		for i, e := range res.midi {
			events[i] = e.String()
		}
		fmt.Printf("  midi out: %s", strings.Join(events, ", "))
		if res.dropped > 0 {
			fmt.Printf(" (%d dropped)", res.dropped)
		}
		fmt.Println()
	}
}
