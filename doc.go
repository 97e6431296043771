// Package wasmdsp hosts a sandboxed WebAssembly module as the DSP core of an
// audio plugin.
//
// The guest can only exchange 32/64-bit integers and floats with the host.
// Everything else (strings, parameter descriptors, audio blocks, MIDI events)
// travels through guest linear memory, addressed by exported globals that act
// as a mailbox. This module implements the host side of that contract.
//
// # Architecture Overview
//
//	wasmdsp/            Root package with the tagged scalar Value
//	├── engine/         Guest lifecycle on wazero: load, link, call, slots, memory views
//	├── abi/            Export/import/global names and signatures of the DSP ABI
//	├── midi/           MIDI event type and the {frame,size,data} record codec
//	├── bridge/         Per-block audio and MIDI marshalling
//	├── plugin/         Shell-facing facade: metadata, parameters, programs, state, run
//	├── errors/         Structured error types
//	├── internal/       In-process module encoder and the demo guest
//	└── cmd/dsphost/    CLI to inspect, render and tweak a guest module
//
// # Quick Start
//
//	p := plugin.New(plugin.Config{
//	    ModulePath:     "/usr/lib/myplugin/dsp/plugin.wasm",
//	    Inputs:         2,
//	    Outputs:        2,
//	    ParameterCount: 1,
//	    SampleRate:     48000,
//	})
//	if err := p.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close(ctx)
//
//	fmt.Println(p.Label(ctx))
//	p.Activate(ctx)
//	if err := p.Run(ctx, inputs, outputs, frames, nil, nil); err != nil {
//	    // outputs hold silence for this block
//	}
//
// # Thread Safety
//
// Nothing in this module is safe for concurrent calls into the same guest.
// The audio callback is expected to be the sole caller while processing is
// active; control-context calls must be serialized by the shell.
//
// # Memory Model
//
// Guest pointers are untrusted offsets. Every dereference goes through
// engine.MemoryView, which checks bounds against the current memory size.
package wasmdsp
