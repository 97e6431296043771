package engine

import (
	"path/filepath"
	"time"

	wasmdsp "github.com/wippyai/wasm-dsp"
)

const (
	// DefaultImportModule is the module name guests import host functions from.
	DefaultImportModule = "env"

	// DefaultMaxConsecutiveFaults is the number of call failures in a row
	// after which the engine gives up on the guest.
	DefaultMaxConsecutiveFaults = 16
)

// Config holds configuration for engine creation
type Config struct {
	// ImportModule is the module name under which host imports are
	// registered. Empty means DefaultImportModule.
	ImportModule string

	// ResourceDir resolves relative module paths passed to Start.
	ResourceDir string

	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// MaxStringLength bounds C string scans in addition to the memory size.
	// 0 means the memory size is the only bound.
	MaxStringLength uint32

	// MaxConsecutiveFaults moves the engine to Failed after this many call
	// failures in a row. 0 means DefaultMaxConsecutiveFaults, a negative
	// value keeps retrying forever.
	MaxConsecutiveFaults int

	// CallTimeout bounds every guest call. The guest instance is closed when
	// the deadline passes, which is fatal to the engine. 0 disables it.
	// Each bounded call allocates a context, so leave it off for real-time use
	// unless the guest is untrusted enough to warrant it.
	CallTimeout time.Duration

	// EnableWASI instantiates wasi_snapshot_preview1 for guests built by
	// WASI toolchains.
	EnableWASI bool
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ImportModule:         DefaultImportModule,
		MaxConsecutiveFaults: DefaultMaxConsecutiveFaults,
	}
}

func (c Config) withDefaults() Config {
	if c.ImportModule == "" {
		c.ImportModule = DefaultImportModule
	}
	if c.MaxConsecutiveFaults == 0 {
		c.MaxConsecutiveFaults = DefaultMaxConsecutiveFaults
	}
	return c
}

func (c Config) resolvePath(p string) string {
	if c.ResourceDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ResourceDir, p)
}

// ExportSpec declares a guest export the engine resolves at Start.
type ExportSpec struct {
	Name     string
	Params   []wasmdsp.ValueKind
	Results  []wasmdsp.ValueKind
	Optional bool
}

// GlobalSpec declares a guest global the engine resolves at Start.
type GlobalSpec struct {
	Name     string
	Kind     wasmdsp.ValueKind
	Optional bool
}

// Contract is the set of exports and globals a guest must provide.
// Anything the guest exports outside the contract is not reachable.
type Contract struct {
	Exports []ExportSpec
	Globals []GlobalSpec
}
