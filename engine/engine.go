package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	wasmdsp "github.com/wippyai/wasm-dsp"
	"github.com/wippyai/wasm-dsp/errors"
)

const wasiModule = "wasi_snapshot_preview1"

// Engine owns one guest module: its wazero runtime, linked imports, cached
// export handles, resolved global slots and linear memory.
type Engine struct {
	runtime  wazero.Runtime
	module   api.Module
	memory   api.Memory
	exports  map[string]*Func
	slots    *SlotTable
	imports  *ImportTable
	contract Contract
	name     string
	cfg      Config
	faults   int
	state    atomic.Int32
}

// New creates an engine in the NotStarted state.
func New(cfg Config, contract Contract) *Engine {
	return &Engine{
		cfg:      cfg.withDefaults(),
		contract: contract,
	}
}

// State returns the lifecycle state. Safe to call from any goroutine.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Name is the module name the guest was started under.
func (e *Engine) Name() string {
	return e.name
}

// Start loads the module at modulePath (relative paths are resolved against
// Config.ResourceDir), links imports, and resolves the contract.
func (e *Engine) Start(ctx context.Context, modulePath string, imports *ImportTable) error {
	if st := e.State(); st != NotStarted {
		return errors.InvalidInput(errors.PhaseRuntime, "engine already "+st.String())
	}

	path := e.cfg.resolvePath(modulePath)
	wasm, err := os.ReadFile(path)
	if err != nil {
		return e.fail(ctx, errors.Load("read module "+path, err))
	}
	return e.start(ctx, path, wasm, imports)
}

// StartBytes is Start for a module already in memory.
func (e *Engine) StartBytes(ctx context.Context, name string, wasm []byte, imports *ImportTable) error {
	if st := e.State(); st != NotStarted {
		return errors.InvalidInput(errors.PhaseRuntime, "engine already "+st.String())
	}
	return e.start(ctx, name, wasm, imports)
}

func (e *Engine) start(ctx context.Context, name string, wasm []byte, imports *ImportTable) error {
	if imports == nil {
		imports = NewImportTable()
	}
	e.imports = imports
	e.name = name

	runtimeCfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(e.cfg.CallTimeout > 0)
	if e.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return e.fail(ctx, errors.Load("compile "+name, err))
	}

	if err := e.checkImports(compiled); err != nil {
		return e.fail(ctx, err)
	}

	if e.cfg.EnableWASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
			return e.fail(ctx, errors.New(errors.PhaseLink, errors.KindLink).
				Name(wasiModule).
				Detail("instantiate WASI").
				Cause(err).
				Build())
		}
	}

	if err := e.instantiateHost(ctx); err != nil {
		return e.fail(ctx, err)
	}

	// Reactor mode: never run _start, call _initialize if present.
	modCfg := wazero.NewModuleConfig().WithName(name).WithStartFunctions()
	mod, err := e.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return e.fail(ctx, errors.New(errors.PhaseLink, errors.KindLink).
			Name(name).
			Detail("instantiate guest").
			Cause(err).
			Build())
	}
	e.module = mod

	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			return e.fail(ctx, errors.New(errors.PhaseLink, errors.KindLink).
				Name("_initialize").
				Detail("guest initialization trapped").
				Cause(err).
				Build())
		}
	}

	e.memory = mod.Memory()
	if e.memory == nil {
		return e.fail(ctx, errors.Link("memory", "guest defines no linear memory"))
	}

	if err := e.resolveExports(); err != nil {
		return e.fail(ctx, err)
	}
	if err := e.resolveGlobals(); err != nil {
		return e.fail(ctx, err)
	}

	e.state.Store(int32(Started))
	Logger().Info("guest started",
		zap.String("module", name),
		zap.Int("exports", len(e.exports)),
		zap.Int("slots", e.slots.Len()),
		zap.Uint32("memory_bytes", e.memory.Size()))
	return nil
}

// checkImports verifies every function the guest imports is in the table
// with an identical signature.
func (e *Engine) checkImports(compiled wazero.CompiledModule) error {
	if mems := compiled.ImportedMemories(); len(mems) > 0 {
		mod, name, _ := mems[0].Import()
		return errors.Link(mod+"."+name, "imported memory is not supported")
	}

	var missing []errors.MissingImport
	for _, def := range compiled.ImportedFunctions() {
		modName, fnName, _ := def.Import()
		if modName == wasiModule && e.cfg.EnableWASI {
			continue
		}
		if modName != e.cfg.ImportModule {
			missing = append(missing, errors.MissingImport{Module: modName, Function: fnName})
			continue
		}
		imp, ok := e.imports.Lookup(fnName)
		if !ok {
			missing = append(missing, errors.MissingImport{Module: modName, Function: fnName})
			continue
		}
		if !wasmdsp.SameKinds(imp.Params, def.ParamTypes()) || !wasmdsp.SameKinds(imp.Results, def.ResultTypes()) {
			return errors.New(errors.PhaseLink, errors.KindLink).
				Name(modName + "." + fnName).
				Detail("host provides %s, guest imports %s",
					signature(imp.Params, imp.Results),
					typesSignature(def.ParamTypes(), def.ResultTypes())).
				Build()
		}
	}
	if len(missing) > 0 {
		return &errors.MissingImportsError{Imports: missing}
	}
	return nil
}

func (e *Engine) instantiateHost(ctx context.Context) error {
	if e.imports.Len() == 0 {
		return nil
	}
	builder := e.runtime.NewHostModuleBuilder(e.cfg.ImportModule)
	for _, imp := range e.imports.imports {
		builder = builder.NewFunctionBuilder().
			WithGoFunction(api.GoFunc(imp.Func), wasmdsp.ValueTypes(imp.Params), wasmdsp.ValueTypes(imp.Results)).
			WithName(imp.Name).
			Export(imp.Name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.New(errors.PhaseLink, errors.KindLink).
			Name(e.cfg.ImportModule).
			Detail("instantiate host imports").
			Cause(err).
			Build()
	}
	return nil
}

func (e *Engine) resolveExports() error {
	e.exports = make(map[string]*Func, len(e.contract.Exports))
	for _, spec := range e.contract.Exports {
		fn := e.module.ExportedFunction(spec.Name)
		if fn == nil {
			if spec.Optional {
				continue
			}
			return errors.Link(spec.Name, "export not found")
		}
		def := fn.Definition()
		if !wasmdsp.SameKinds(spec.Params, def.ParamTypes()) || !wasmdsp.SameKinds(spec.Results, def.ResultTypes()) {
			return errors.New(errors.PhaseLink, errors.KindLink).
				Name(spec.Name).
				Detail("want %s, got %s",
					signature(spec.Params, spec.Results),
					typesSignature(def.ParamTypes(), def.ResultTypes())).
				Build()
		}
		e.exports[spec.Name] = &Func{
			eng:     e,
			fn:      fn,
			name:    spec.Name,
			params:  spec.Params,
			results: spec.Results,
			stack:   make([]uint64, stackSize(len(spec.Params), len(spec.Results))),
		}
	}
	return nil
}

func (e *Engine) resolveGlobals() error {
	e.slots = newSlotTable()
	for _, spec := range e.contract.Globals {
		g := e.module.ExportedGlobal(spec.Name)
		if g == nil {
			if spec.Optional {
				continue
			}
			return errors.Link(spec.Name, "global not found")
		}
		if g.Type() != spec.Kind.ValueType() {
			return errors.New(errors.PhaseLink, errors.KindLink).
				Name(spec.Name).
				Detail("want %s global, got %s", spec.Kind, api.ValueTypeName(g.Type())).
				Build()
		}
		e.slots.add(newSlot(spec.Name, spec.Kind, g))
	}
	return nil
}

// fail moves the engine to Failed and releases the runtime.
func (e *Engine) fail(ctx context.Context, err error) error {
	e.state.Store(int32(Failed))
	Logger().Error("guest start failed", zap.String("module", e.name), zap.Error(err))
	e.release(ctx)
	return err
}

func (e *Engine) release(ctx context.Context) {
	if e.runtime == nil {
		return
	}
	if err := e.runtime.Close(ctx); err != nil {
		Logger().Warn("failed to close runtime", zap.Error(err))
	}
	e.runtime = nil
	e.module = nil
	e.memory = nil
}

// Close releases the guest. The engine ends in Failed and cannot be restarted.
func (e *Engine) Close(ctx context.Context) error {
	e.state.Store(int32(Failed))
	if e.runtime == nil {
		return nil
	}
	err := e.runtime.Close(ctx)
	e.runtime = nil
	e.module = nil
	e.memory = nil
	return err
}

// Has reports whether the export was resolved at Start.
func (e *Engine) Has(name string) bool {
	_, ok := e.exports[name]
	return ok
}

// Exports returns the resolved export names, sorted.
func (e *Engine) Exports() []string {
	names := make([]string, 0, len(e.exports))
	for n := range e.exports {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Func returns the cached handle for a resolved export.
func (e *Engine) Func(name string) (*Func, error) {
	if st := e.State(); st != Started {
		return nil, errors.NotStarted(st.String())
	}
	f, ok := e.exports[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "export", name)
	}
	return f, nil
}

// Call invokes a resolved export with typed arguments.
func (e *Engine) Call(ctx context.Context, name string, args ...wasmdsp.Value) ([]wasmdsp.Value, error) {
	f, err := e.Func(name)
	if err != nil {
		return nil, err
	}
	return f.Call(ctx, args...)
}

func (e *Engine) invoke(ctx context.Context, f *Func, stack []uint64) (err error) {
	if st := e.State(); st != Started {
		return errors.NotStarted(st.String())
	}
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = e.callFailed(f.name, fmt.Errorf("host panic: %v", r))
		}
	}()

	if callErr := f.fn.CallWithStack(ctx, stack); callErr != nil {
		return e.callFailed(f.name, callErr)
	}
	e.faults = 0
	return nil
}

func (e *Engine) callFailed(name string, cause error) error {
	err := errors.Call(name, cause)

	var exit *sys.ExitError
	if stderrors.As(cause, &exit) {
		e.state.Store(int32(Failed))
		Logger().Error("guest instance closed during call",
			zap.String("export", name),
			zap.Uint32("exit_code", exit.ExitCode()),
			zap.Error(cause))
		return err
	}

	e.faults++
	if limit := e.cfg.MaxConsecutiveFaults; limit > 0 && e.faults >= limit {
		e.state.Store(int32(Failed))
		Logger().Error("guest faulted too many times in a row",
			zap.String("export", name),
			zap.Int("faults", e.faults),
			zap.Error(cause))
		return err
	}
	Logger().Debug("guest call failed",
		zap.String("export", name),
		zap.Int("consecutive", e.faults),
		zap.Error(cause))
	return err
}

// Faults returns the number of consecutive failed calls.
func (e *Engine) Faults() int {
	return e.faults
}

// Slots returns the slot table resolved at Start.
func (e *Engine) Slots() *SlotTable {
	return e.slots
}

// Slot returns the accessor for a resolved global.
func (e *Engine) Slot(name string) (*Slot, error) {
	if st := e.State(); st != Started {
		return nil, errors.NotStarted(st.String())
	}
	return e.slots.Lookup(name)
}

// Global reads a resolved global.
func (e *Engine) Global(name string) (wasmdsp.Value, error) {
	s, err := e.Slot(name)
	if err != nil {
		return wasmdsp.Value{}, err
	}
	return s.Get(), nil
}

// SetGlobal writes a resolved global.
func (e *Engine) SetGlobal(name string, v wasmdsp.Value) error {
	s, err := e.Slot(name)
	if err != nil {
		return err
	}
	return s.Set(v)
}

// Memory returns a view of guest memory rooted at base.
func (e *Engine) Memory(base uint32) (MemoryView, error) {
	if st := e.State(); st != Started {
		return MemoryView{}, errors.NotStarted(st.String())
	}
	return NewMemoryView(e.memory, base)
}

// MemorySize returns the current guest memory size in bytes.
func (e *Engine) MemorySize() uint32 {
	if e.memory == nil {
		return 0
	}
	return e.memory.Size()
}

// ReadCString reads the NUL-terminated string ptr points to. The scan is
// bounded by the memory size and Config.MaxStringLength.
func (e *Engine) ReadCString(ptr wasmdsp.Value) (string, error) {
	if ptr.Kind() != wasmdsp.KindI32 {
		return "", errors.TypeMismatch(errors.PhaseMemory, "string pointer", wasmdsp.KindI32.String(), ptr.Kind().String())
	}
	if ptr.U32() == 0 {
		return "", errors.NilPointer(errors.PhaseMemory, "string pointer")
	}
	view, err := e.Memory(ptr.U32())
	if err != nil {
		return "", err
	}
	return view.CString(0, e.cfg.MaxStringLength)
}

// WriteCString copies s and a terminator into the guest buffer at ptr.
// capacity is the buffer size, terminator included.
func (e *Engine) WriteCString(ptr wasmdsp.Value, s string, capacity uint32) error {
	if ptr.Kind() != wasmdsp.KindI32 {
		return errors.TypeMismatch(errors.PhaseMemory, "string pointer", wasmdsp.KindI32.String(), ptr.Kind().String())
	}
	if ptr.U32() == 0 {
		return errors.NilPointer(errors.PhaseMemory, "string pointer")
	}
	view, err := e.Memory(ptr.U32())
	if err != nil {
		return err
	}
	return view.PutCString(0, s, capacity)
}
