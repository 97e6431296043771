package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	wasmdsp "github.com/wippyai/wasm-dsp"
	"github.com/wippyai/wasm-dsp/abi"
	"github.com/wippyai/wasm-dsp/engine"
	"github.com/wippyai/wasm-dsp/errors"
	"github.com/wippyai/wasm-dsp/internal/demo"
	"github.com/wippyai/wasm-dsp/internal/wasmbuild"
)

var fullCaps = abi.Capabilities{Programs: true, State: true, FullState: true, MidiInput: true, MidiOutput: true}

func demoImports(t *testing.T) *engine.ImportTable {
	t.Helper()
	imports := engine.NewImportTable()
	for _, imp := range []engine.Import{
		{
			Name:    abi.ImportGetSampleRate,
			Results: []wasmdsp.ValueKind{wasmdsp.KindF32},
			Func:    func(_ context.Context, stack []uint64) { stack[0] = api.EncodeF32(44100) },
		},
		{
			Name:    abi.ImportWriteMidiEvent,
			Results: []wasmdsp.ValueKind{wasmdsp.KindI32},
			Func:    func(_ context.Context, stack []uint64) { stack[0] = 0 },
		},
	} {
		if err := imports.Register(imp); err != nil {
			t.Fatalf("register %s: %v", imp.Name, err)
		}
	}
	return imports
}

func startDemo(t *testing.T, cfg engine.Config, opts demo.Options) *engine.Engine {
	t.Helper()
	eng := engine.New(cfg, fullCaps.Contract())
	if err := eng.StartBytes(context.Background(), "demo", demo.Build(opts), demoImports(t)); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { eng.Close(context.Background()) })
	return eng
}

func TestStart(t *testing.T) {
	eng := startDemo(t, engine.Config{}, demo.Options{})

	if eng.State() != engine.Started {
		t.Fatalf("State = %s", eng.State())
	}
	if eng.Name() != "demo" {
		t.Errorf("Name = %q", eng.Name())
	}
	for _, name := range []string{abi.ExportRun, abi.ExportGetState, abi.ExportInitProgramName} {
		if !eng.Has(name) {
			t.Errorf("export %s not resolved", name)
		}
	}
	if len(eng.Exports()) != len(fullCaps.Contract().Exports) {
		t.Errorf("Exports = %v", eng.Exports())
	}
	if !eng.Slots().Has(abi.RoleFloat.Slot(4)) || eng.Slots().Len() == 0 {
		t.Errorf("slots = %v", eng.Slots().Names())
	}
	if eng.MemorySize() != 3*65536 {
		t.Errorf("MemorySize = %d", eng.MemorySize())
	}
}

func TestStartFromFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "demo.wasm"), demo.Module(), 0o644); err != nil {
		t.Fatal(err)
	}

	eng := engine.New(engine.Config{ResourceDir: dir}, fullCaps.Contract())
	defer eng.Close(context.Background())
	if err := eng.Start(context.Background(), "demo.wasm", demoImports(t)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if eng.Name() != filepath.Join(dir, "demo.wasm") {
		t.Errorf("Name = %q", eng.Name())
	}
}

func TestStartLoadErrors(t *testing.T) {
	ctx := context.Background()

	eng := engine.New(engine.Config{}, fullCaps.Contract())
	err := eng.Start(ctx, filepath.Join(t.TempDir(), "nope.wasm"), demoImports(t))
	if !errors.Is(err, errors.ErrLoad) {
		t.Fatalf("missing file: expected load error, got %v", err)
	}
	if eng.State() != engine.Failed {
		t.Errorf("State = %s", eng.State())
	}
	if err := eng.Start(ctx, "demo.wasm", demoImports(t)); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("restart: got %v", err)
	}

	eng = engine.New(engine.Config{}, fullCaps.Contract())
	err = eng.StartBytes(ctx, "garbage", []byte("\x00asm\x01\x00\x00\x00\xff"), demoImports(t))
	if !errors.Is(err, errors.ErrLoad) {
		t.Errorf("malformed module: expected load error, got %v", err)
	}
}

func TestStartLinkErrors(t *testing.T) {
	ctx := context.Background()

	wrongRate := engine.NewImportTable()
	wrongRate.Register(engine.Import{
		Name:    abi.ImportGetSampleRate,
		Results: []wasmdsp.ValueKind{wasmdsp.KindI32},
		Func:    func(context.Context, []uint64) {},
	})
	wrongRate.Register(engine.Import{
		Name:    abi.ImportWriteMidiEvent,
		Results: []wasmdsp.ValueKind{wasmdsp.KindI32},
		Func:    func(context.Context, []uint64) {},
	})

	mismatched := fullCaps.Contract()
	for i := range mismatched.Globals {
		if mismatched.Globals[i].Name == abi.RoleFloat.Slot(1) {
			mismatched.Globals[i].Kind = wasmdsp.KindI32
		}
	}

	tests := []struct {
		name     string
		wasm     []byte
		imports  *engine.ImportTable
		contract engine.Contract
		contains string
	}{
		{"missing _run", demo.Build(demo.Options{OmitRun: true}), demoImports(t), fullCaps.Contract(), abi.ExportRun},
		{"missing imports", demo.Module(), engine.NewImportTable(), fullCaps.Contract(), abi.ImportGetSampleRate},
		{"import signature", demo.Module(), wrongRate, fullCaps.Contract(), "f32"},
		{"global kind", demo.Module(), demoImports(t), mismatched, abi.RoleFloat.Slot(1)},
		{"no memory", wasmbuild.New().Bytes(), nil, engine.Contract{}, "memory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := engine.New(engine.Config{}, tt.contract)
			err := eng.StartBytes(ctx, tt.name, tt.wasm, tt.imports)
			if !errors.Is(err, errors.ErrLink) {
				t.Fatalf("expected link error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q should mention %q", err, tt.contains)
			}
			if eng.State() != engine.Failed {
				t.Errorf("State = %s", eng.State())
			}
		})
	}
}

func TestMissingImportsListed(t *testing.T) {
	eng := engine.New(engine.Config{}, fullCaps.Contract())
	err := eng.StartBytes(context.Background(), "demo", demo.Module(), nil)

	var missing *errors.MissingImportsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingImportsError, got %T %v", err, err)
	}
	if len(missing.Imports) != 2 {
		t.Errorf("Imports = %v", missing.Imports)
	}
	if missing.Imports[0].Module != engine.DefaultImportModule {
		t.Errorf("module = %q", missing.Imports[0].Module)
	}
}

func TestStartLogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	engine.SetLogger(zap.New(core))
	defer engine.SetLogger(zap.NewNop())

	eng := engine.New(engine.Config{}, fullCaps.Contract())
	eng.StartBytes(context.Background(), "broken", []byte("nope"), nil)

	entries := logs.FilterMessage("guest start failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one failure log, got %d", len(entries))
	}
	if entries[0].ContextMap()["module"] != "broken" {
		t.Errorf("fields = %v", entries[0].ContextMap())
	}
}

func TestInitializeRuns(t *testing.T) {
	m := wasmbuild.New()
	m.Memory(1)
	m.ExportMemory("memory")
	ready := m.GlobalI32(0, true)
	m.ExportGlobal("ready", ready)
	m.ExportFunc("_initialize", m.Func(nil, nil, nil, wasmbuild.NewCode().I32Const(1).GlobalSet(ready)))
	m.ExportFunc("_start", m.Func(nil, nil, nil, wasmbuild.NewCode().Unreachable()))

	contract := engine.Contract{Globals: []engine.GlobalSpec{{Name: "ready", Kind: wasmdsp.KindI32}}}
	eng := engine.New(engine.Config{}, contract)
	defer eng.Close(context.Background())
	if err := eng.StartBytes(context.Background(), "reactor", m.Bytes(), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if v, _ := eng.Global("ready"); v.I32() != 1 {
		t.Errorf("_initialize did not run, ready = %d", v.I32())
	}
}

func TestWASI(t *testing.T) {
	build := func() []byte {
		m := wasmbuild.New()
		m.ImportFunc("wasi_snapshot_preview1", "random_get",
			[]wasmbuild.ValType{wasmbuild.I32, wasmbuild.I32}, []wasmbuild.ValType{wasmbuild.I32})
		m.Memory(1)
		m.ExportMemory("memory")
		return m.Bytes()
	}
	ctx := context.Background()

	eng := engine.New(engine.Config{}, engine.Contract{})
	if err := eng.StartBytes(ctx, "wasi", build(), nil); !errors.Is(err, errors.ErrLink) {
		t.Errorf("without WASI: expected link error, got %v", err)
	}

	eng = engine.New(engine.Config{EnableWASI: true}, engine.Contract{})
	defer eng.Close(ctx)
	if err := eng.StartBytes(ctx, "wasi", build(), nil); err != nil {
		t.Errorf("with WASI: %v", err)
	}
}

func TestCall(t *testing.T) {
	ctx := context.Background()
	eng := startDemo(t, engine.Config{}, demo.Options{})

	if _, err := eng.Call(ctx, abi.ExportSetParameterValue, wasmdsp.I32(0), wasmdsp.F32(1.5)); err != nil {
		t.Fatalf("set: %v", err)
	}
	res, err := eng.Call(ctx, abi.ExportGetParameterValue, wasmdsp.I32(0))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(res) != 1 || res[0].Kind() != wasmdsp.KindF32 || res[0].F32() != 1.5 {
		t.Errorf("result = %v", res)
	}

	res, err = eng.Call(ctx, abi.ExportGetUniqueID)
	if err != nil || res[0].I64() != demo.UniqueID {
		t.Errorf("unique id = %v, %v", res, err)
	}

	if _, err := eng.Call(ctx, abi.ExportGetParameterValue); !errors.Is(err, errors.ErrTypeMismatch) {
		t.Errorf("missing argument: got %v", err)
	}
	if _, err := eng.Call(ctx, abi.ExportGetParameterValue, wasmdsp.F32(0)); !errors.Is(err, errors.ErrTypeMismatch) {
		t.Errorf("wrong kind: got %v", err)
	}
	if _, err := eng.Call(ctx, "_missing"); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("unknown export: got %v", err)
	}
}

func TestCallBeforeStart(t *testing.T) {
	eng := engine.New(engine.Config{}, fullCaps.Contract())
	if _, err := eng.Call(context.Background(), abi.ExportGetLabel); !errors.Is(err, errors.ErrNotStarted) {
		t.Errorf("Call: got %v", err)
	}
	if _, err := eng.Global(abi.GlobalNumInputs); !errors.Is(err, errors.ErrNotStarted) {
		t.Errorf("Global: got %v", err)
	}
	if _, err := eng.Memory(0); !errors.Is(err, errors.ErrNotStarted) {
		t.Errorf("Memory: got %v", err)
	}
	if _, err := eng.ReadCString(wasmdsp.Pointer(1024)); !errors.Is(err, errors.ErrNotStarted) {
		t.Errorf("ReadCString: got %v", err)
	}
}

func TestCallWithStack(t *testing.T) {
	ctx := context.Background()
	eng := startDemo(t, engine.Config{}, demo.Options{})

	fn, err := eng.Func(abi.ExportSetParameterValue)
	if err != nil {
		t.Fatal(err)
	}
	if fn.StackSize() != 2 {
		t.Errorf("StackSize = %d", fn.StackSize())
	}
	if err := fn.CallWithStack(ctx, make([]uint64, 1)); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("short stack: got %v", err)
	}

	stack := []uint64{0, api.EncodeF32(0.75)}
	if err := fn.CallWithStack(ctx, stack); err != nil {
		t.Fatal(err)
	}
	get, _ := eng.Func(abi.ExportGetParameterValue)
	stack = stack[:get.StackSize()]
	stack[0] = 0
	if err := get.CallWithStack(ctx, stack); err != nil {
		t.Fatal(err)
	}
	if got := api.DecodeF32(stack[0]); got != 0.75 {
		t.Errorf("got %v", got)
	}
}

func TestTrapIsolation(t *testing.T) {
	ctx := context.Background()
	eng := startDemo(t, engine.Config{}, demo.Options{RunTraps: true})

	_, err := eng.Call(ctx, abi.ExportRun, wasmdsp.I32(16), wasmdsp.I32(0))
	if !errors.Is(err, errors.ErrCall) {
		t.Fatalf("expected call error, got %v", err)
	}
	if eng.State() != engine.Started || eng.Faults() != 1 {
		t.Fatalf("state %s faults %d", eng.State(), eng.Faults())
	}

	// Out-of-bounds parameter access traps as well.
	if _, err := eng.Call(ctx, abi.ExportGetParameterValue, wasmdsp.I32(0x3FFFFFF)); !errors.Is(err, errors.ErrCall) {
		t.Errorf("expected trap, got %v", err)
	}
	if eng.Faults() != 2 {
		t.Errorf("faults = %d", eng.Faults())
	}

	if _, err := eng.Call(ctx, abi.ExportGetVersion); err != nil {
		t.Fatalf("call after trap: %v", err)
	}
	if eng.Faults() != 0 {
		t.Errorf("success should reset faults, got %d", eng.Faults())
	}
}

func TestFaultPolicy(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		limit  int
		calls  int
		failed bool
	}{
		{"limit reached", 3, 3, true},
		{"below limit", 3, 2, false},
		{"disabled", -1, 40, false},
		{"default", 0, engine.DefaultMaxConsecutiveFaults, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := startDemo(t, engine.Config{MaxConsecutiveFaults: tt.limit}, demo.Options{RunTraps: true})
			for i := 0; i < tt.calls; i++ {
				if _, err := eng.Call(ctx, abi.ExportRun, wasmdsp.I32(1), wasmdsp.I32(0)); !errors.Is(err, errors.ErrCall) {
					t.Fatalf("call %d: %v", i, err)
				}
			}
			if got := eng.State() == engine.Failed; got != tt.failed {
				t.Fatalf("failed = %v, want %v", got, tt.failed)
			}
			if tt.failed {
				if _, err := eng.Call(ctx, abi.ExportGetVersion); !errors.Is(err, errors.ErrNotStarted) {
					t.Errorf("call after failure: %v", err)
				}
			}
		})
	}
}

func TestCallTimeout(t *testing.T) {
	m := wasmbuild.New()
	m.Memory(1)
	m.ExportMemory("memory")
	m.ExportFunc("spin", m.Func(nil, nil, nil, wasmbuild.NewCode().Loop().Br(0).End()))
	m.ExportFunc("noop", m.Func(nil, nil, nil, wasmbuild.NewCode()))

	contract := engine.Contract{Exports: []engine.ExportSpec{{Name: "spin"}, {Name: "noop"}}}
	eng := engine.New(engine.Config{CallTimeout: 20 * time.Millisecond}, contract)
	defer eng.Close(context.Background())
	if err := eng.StartBytes(context.Background(), "spin", m.Bytes(), nil); err != nil {
		t.Fatal(err)
	}

	if _, err := eng.Call(context.Background(), "noop"); err != nil {
		t.Fatalf("noop: %v", err)
	}
	if _, err := eng.Call(context.Background(), "spin"); !errors.Is(err, errors.ErrCall) {
		t.Fatalf("expected call error, got %v", err)
	}
	if eng.State() != engine.Failed {
		t.Errorf("a guest closed by its deadline is gone, state %s", eng.State())
	}
}

func TestHostPanicBecomesCallError(t *testing.T) {
	imports := engine.NewImportTable()
	imports.Register(engine.Import{
		Name:    abi.ImportGetSampleRate,
		Results: []wasmdsp.ValueKind{wasmdsp.KindF32},
		Func:    func(context.Context, []uint64) { panic("host bug") },
	})
	imports.Register(engine.Import{
		Name:    abi.ImportWriteMidiEvent,
		Results: []wasmdsp.ValueKind{wasmdsp.KindI32},
		Func:    func(context.Context, []uint64) {},
	})

	eng := engine.New(engine.Config{}, fullCaps.Contract())
	defer eng.Close(context.Background())
	if err := eng.StartBytes(context.Background(), "demo", demo.Module(), imports); err != nil {
		t.Fatal(err)
	}
	_, err := eng.Call(context.Background(), abi.ExportActivate)
	if !errors.Is(err, errors.ErrCall) {
		t.Fatalf("expected call error, got %v", err)
	}
	if !strings.Contains(err.Error(), "host bug") {
		t.Errorf("cause lost: %v", err)
	}
	if eng.State() != engine.Started {
		t.Errorf("State = %s", eng.State())
	}
}

func TestSlots(t *testing.T) {
	eng := startDemo(t, engine.Config{}, demo.Options{})

	if err := eng.SetGlobal(abi.GlobalNumInputs, wasmdsp.I32(2)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := eng.Global(abi.GlobalNumInputs); v.I32() != 2 {
		t.Errorf("read back %v", v)
	}

	tests := []struct {
		name  string
		slot  string
		value wasmdsp.Value
		want  error
	}{
		{"read-only prefix", abi.RoleString.Slot(1), wasmdsp.I32(1), errors.ErrReadOnly},
		{"immutable global", abi.GlobalInputBlock, wasmdsp.I32(1), errors.ErrReadOnly},
		{"kind mismatch", abi.RoleFloat.Slot(1), wasmdsp.I32(1), errors.ErrTypeMismatch},
		{"unknown", "_rw_int_9", wasmdsp.I32(1), errors.ErrUnknownSlot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := eng.SetGlobal(tt.slot, tt.value); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	slot, err := eng.Slot(abi.GlobalInputBlock)
	if err != nil {
		t.Fatal(err)
	}
	if slot.Writable() || slot.Pointer() != demo.InputBlock || slot.Kind() != wasmdsp.KindI32 {
		t.Errorf("input block slot: writable %v pointer %#x", slot.Writable(), slot.Pointer())
	}
	if _, err := eng.Global("_rw_unknown"); !errors.Is(err, errors.ErrUnknownSlot) {
		t.Errorf("unknown read: got %v", err)
	}
}

func TestCStrings(t *testing.T) {
	ctx := context.Background()
	eng := startDemo(t, engine.Config{MaxStringLength: 8}, demo.Options{})

	res, err := eng.Call(ctx, abi.ExportGetLicense)
	if err != nil {
		t.Fatal(err)
	}
	if s, err := eng.ReadCString(res[0]); err != nil || s != demo.License {
		t.Errorf("license = %q, %v", s, err)
	}

	res, _ = eng.Call(ctx, abi.ExportGetLabel)
	if _, err := eng.ReadCString(res[0]); !errors.Is(err, errors.ErrCapacity) {
		t.Errorf("label longer than MaxStringLength: got %v", err)
	}

	if _, err := eng.ReadCString(wasmdsp.Pointer(0)); errors.KindOf(err) != errors.KindNilPointer {
		t.Errorf("nil pointer: got %v", err)
	}
	if _, err := eng.ReadCString(wasmdsp.Pointer(eng.MemorySize() + 16)); !errors.Is(err, errors.ErrOutOfBounds) {
		t.Errorf("pointer past memory: got %v", err)
	}
	if _, err := eng.ReadCString(wasmdsp.F32(1)); !errors.Is(err, errors.ErrTypeMismatch) {
		t.Errorf("float pointer: got %v", err)
	}

	buf, _ := eng.Global(abi.RoleStringBuffer.Slot(1))
	if err := eng.WriteCString(buf, "key", abi.StringBufferSize); err != nil {
		t.Fatal(err)
	}
	if s, _ := eng.ReadCString(buf); s != "key" {
		t.Errorf("round trip = %q", s)
	}
	if err := eng.WriteCString(buf, strings.Repeat("k", 4), 4); !errors.Is(err, errors.ErrCapacity) {
		t.Errorf("no room for terminator: got %v", err)
	}
}

func TestImportTable(t *testing.T) {
	table := engine.NewImportTable()
	noop := func(context.Context, []uint64) {}

	if err := table.Register(engine.Import{Name: "a", Func: noop}); err != nil {
		t.Fatal(err)
	}
	if err := table.Register(engine.Import{Name: "b", Func: noop}); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []engine.Import{
		{Name: "", Func: noop},
		{Name: "c"},
		{Name: "a", Func: noop},
	} {
		if err := table.Register(bad); errors.KindOf(err) != errors.KindInvalidInput {
			t.Errorf("Register(%q): got %v", bad.Name, err)
		}
	}
	if table.Len() != 2 {
		t.Errorf("Len = %d", table.Len())
	}
	if names := table.Names(); names[0] != "a" || names[1] != "b" {
		t.Errorf("Names = %v", names)
	}
	if _, ok := table.Lookup("b"); !ok {
		t.Error("Lookup(b) failed")
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[engine.State]string{
		engine.NotStarted: "not started",
		engine.Started:    "started",
		engine.Failed:     "failed",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d: got %q, want %q", state, got, want)
		}
	}
}
