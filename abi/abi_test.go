package abi

import (
	"testing"

	wasmdsp "github.com/wippyai/wasm-dsp"
	"github.com/wippyai/wasm-dsp/engine"
)

func TestRoleNames(t *testing.T) {
	want := []string{"_rw_float_1", "_rw_float_2", "_rw_float_3", "_rw_float_4"}
	got := RoleFloat.Names()
	if len(got) != len(want) {
		t.Fatalf("Names = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if s := RoleStringBuffer.Slot(2); s != "_rw_string_2" {
		t.Errorf("Slot(2) = %q", s)
	}
	if RoleString.Prefix != "_ro_string_" {
		t.Errorf("guest strings must be read-only slots, got %q", RoleString.Prefix)
	}
}

func TestSignature(t *testing.T) {
	tests := []struct {
		name    string
		params  []wasmdsp.ValueKind
		results []wasmdsp.ValueKind
	}{
		{ExportGetUniqueID, nil, []wasmdsp.ValueKind{wasmdsp.KindI64}},
		{ExportSetParameterValue, []wasmdsp.ValueKind{wasmdsp.KindI32, wasmdsp.KindF32}, nil},
		{ExportGetState, []wasmdsp.ValueKind{wasmdsp.KindI32}, []wasmdsp.ValueKind{wasmdsp.KindI32}},
		{ExportRun, []wasmdsp.ValueKind{wasmdsp.KindI32, wasmdsp.KindI32}, nil},
		{ExportActivate, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, results, ok := Signature(tt.name)
			if !ok {
				t.Fatal("unknown export")
			}
			if !equalKinds(params, tt.params) || !equalKinds(results, tt.results) {
				t.Errorf("Signature = %v -> %v, want %v -> %v", params, results, tt.params, tt.results)
			}
		})
	}
	if _, _, ok := Signature("_process"); ok {
		t.Error("unknown export has a signature")
	}
}

func TestContract(t *testing.T) {
	tests := []struct {
		name     string
		caps     Capabilities
		required []string
		optional []string
	}{
		{
			name:     "minimal",
			required: []string{ExportRun, ExportInitParameter, GlobalInputBlock, "_rw_int_1", "_rw_float_3", "_ro_string_1"},
			optional: []string{ExportLoadProgram, ExportSetState, ExportGetState, GlobalMidiBlock, "_rw_int_2", "_rw_float_4", "_ro_string_2", "_rw_string_1"},
		},
		{
			name:     "programs and state",
			caps:     Capabilities{Programs: true, State: true},
			required: []string{ExportLoadProgram, ExportInitState, ExportSetState, "_ro_string_2", "_rw_string_1", "_rw_string_2"},
			optional: []string{ExportInitProgramName, ExportGetState, "_ro_string_3"},
		},
		{
			name:     "full state and midi out",
			caps:     Capabilities{State: true, FullState: true, MidiOutput: true},
			required: []string{ExportGetState, GlobalMidiBlock},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := optionality(tt.caps.Contract())
			for _, name := range tt.required {
				if o, ok := opt[name]; !ok || o {
					t.Errorf("%s should be required (present=%v)", name, ok)
				}
			}
			for _, name := range tt.optional {
				if o, ok := opt[name]; !ok || !o {
					t.Errorf("%s should be optional (present=%v)", name, ok)
				}
			}
		})
	}
}

func TestContractExportSignatures(t *testing.T) {
	for _, e := range (Capabilities{}).Contract().Exports {
		params, results, _ := Signature(e.Name)
		if !equalKinds(e.Params, params) || !equalKinds(e.Results, results) {
			t.Errorf("%s: contract signature differs from Signature", e.Name)
		}
	}
}

func optionality(ct engine.Contract) map[string]bool {
	m := make(map[string]bool)
	for _, e := range ct.Exports {
		m[e.Name] = e.Optional
	}
	for _, g := range ct.Globals {
		m[g.Name] = g.Optional
	}
	return m
}

func equalKinds(a, b []wasmdsp.ValueKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
