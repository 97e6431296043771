package wasmbuild

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestLEB128(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"u32 0", appendU32(nil, 0), []byte{0x00}},
		{"u32 127", appendU32(nil, 127), []byte{0x7F}},
		{"u32 128", appendU32(nil, 128), []byte{0x80, 0x01}},
		{"u32 624485", appendU32(nil, 624485), []byte{0xE5, 0x8E, 0x26}},
		{"s32 -1", appendS32(nil, -1), []byte{0x7F}},
		{"s32 63", appendS32(nil, 63), []byte{0x3F}},
		{"s32 64", appendS32(nil, 64), []byte{0xC0, 0x00}},
		{"s32 -123456", appendS32(nil, -123456), []byte{0xC0, 0xBB, 0x78}},
	}
	for _, tt := range tests {
		if !bytes.Equal(tt.got, tt.want) {
			t.Errorf("%s: got % X, want % X", tt.name, tt.got, tt.want)
		}
	}
}

func TestEmptyModule(t *testing.T) {
	want := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	if got := New().Bytes(); !bytes.Equal(got, want) {
		t.Errorf("got % X", got)
	}
}

func TestModuleRuns(t *testing.T) {
	ctx := context.Background()

	m := New()
	double := m.ImportFunc("env", "double", []ValType{I32}, []ValType{I32})
	m.Memory(1)
	m.ExportMemory("memory")
	counter := m.GlobalI32(0, true)
	m.ExportGlobal("counter", counter)
	m.GlobalF32(1.5, false)
	m.Data(16, []byte("hi\x00"))

	// add3(x) = double(x) + 3, counter++
	add := m.Func([]ValType{I32}, []ValType{I32}, []ValType{I32}, NewCode().
		GlobalGet(counter).I32Const(1).I32Add().GlobalSet(counter).
		LocalGet(0).Call(double).LocalSet(1).
		LocalGet(1).I32Const(3).I32Add())
	m.ExportFunc("add3", add)

	// store(addr, v) then load it back
	store := m.Func([]ValType{I32, F32}, []ValType{F32}, nil, NewCode().
		LocalGet(0).LocalGet(1).F32Store(0).
		LocalGet(0).F32Load(0))
	m.ExportFunc("store", store)

	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithGoFunction(api.GoFunc(func(_ context.Context, stack []uint64) {
			stack[0] = stack[0] * 2
		}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("double").
		Instantiate(ctx)
	if err != nil {
		t.Fatalf("host module: %v", err)
	}

	mod, err := r.Instantiate(ctx, m.Bytes())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	res, err := mod.ExportedFunction("add3").Call(ctx, 20)
	if err != nil {
		t.Fatalf("add3: %v", err)
	}
	if res[0] != 43 {
		t.Errorf("add3(20) = %d, want 43", res[0])
	}
	if got := mod.ExportedGlobal("counter").Get(); got != 1 {
		t.Errorf("counter = %d, want 1", got)
	}

	res, err = mod.ExportedFunction("store").Call(ctx, 64, api.EncodeF32(0.25))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if got := api.DecodeF32(res[0]); got != 0.25 {
		t.Errorf("store returned %v", got)
	}

	b, ok := mod.Memory().Read(16, 3)
	if !ok || string(b) != "hi\x00" {
		t.Errorf("data segment not applied: %q", b)
	}
}
