package plugin

import (
	"github.com/wippyai/wasm-dsp/abi"
	"github.com/wippyai/wasm-dsp/engine"
)

// DefaultSampleRate is reported to the guest until SetSampleRate is called.
const DefaultSampleRate = 44100

// Config describes one plugin instance. Everything here is fixed for the
// lifetime of the plugin.
type Config struct {
	// ModulePath locates the guest. Relative paths are resolved against
	// ResourceDir.
	ModulePath  string
	ResourceDir string

	// Module holds an embedded guest. When set, ModulePath is only used as
	// the module name.
	Module []byte

	Inputs  int
	Outputs int

	// ParameterCount, ProgramCount and StateCount bound the indices passed
	// to the guest. 0 disables the check.
	ParameterCount int
	ProgramCount   int
	StateCount     int

	Capabilities abi.Capabilities

	// SampleRate is the initial sample rate. 0 means DefaultSampleRate.
	SampleRate float64

	// BlockBytes and MidiBlockBytes size the guest's audio and MIDI regions.
	// 0 means the abi defaults.
	BlockBytes     uint32
	MidiBlockBytes uint32

	Engine engine.Config
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.BlockBytes == 0 {
		c.BlockBytes = abi.DefaultBlockBytes
	}
	if c.MidiBlockBytes == 0 {
		c.MidiBlockBytes = abi.DefaultMidiBlockBytes
	}
	if c.Engine.ResourceDir == "" {
		c.Engine.ResourceDir = c.ResourceDir
	}
	return c
}
