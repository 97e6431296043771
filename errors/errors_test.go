package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseLink,
				Kind:   KindLink,
				Name:   "_run",
				Detail: "export not found",
			},
			contains: []string{"[link]", "link", "_run", "export not found"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseMemory,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[memory]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseCall,
				Kind:   KindCall,
				Detail: "guest trapped",
				Cause:  errors.New("wasm error: unreachable"),
			},
			contains: []string{"[call]", "call", "guest trapped", "caused by", "unreachable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Call("_run", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{Phase: PhaseAudio, Kind: KindCapacity}

	if !err.Is(&Error{Phase: PhaseAudio, Kind: KindCapacity}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseMIDI, Kind: KindCapacity}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseAudio, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrCapacity) {
		t.Error("sentinel without phase should match any phase")
	}

	wrapped := fmt.Errorf("run block: %w", err)
	if !errors.Is(wrapped, ErrCapacity) {
		t.Error("errors.Is should see through fmt wrapping")
	}
	if KindOf(wrapped) != KindCapacity {
		t.Errorf("KindOf = %q, want %q", KindOf(wrapped), KindCapacity)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf of a plain error should be empty")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLink, KindLink).
		Name("_rw_input_block").
		Value(42).
		Cause(cause).
		Detail("want %s, got %s", "i32", "f32").
		Build()

	if err.Phase != PhaseLink {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLink)
	}
	if err.Kind != KindLink {
		t.Errorf("Kind = %v, want %v", err.Kind, KindLink)
	}
	if err.Name != "_rw_input_block" {
		t.Errorf("Name = %v", err.Name)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "want i32, got f32" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		sentinel *Error
	}{
		{"Load", Load("read module", errors.New("enoent")), ErrLoad},
		{"Link", Link("_run", "export not found"), ErrLink},
		{"NotStarted", NotStarted("failed"), ErrNotStarted},
		{"Call", Call("_run", errors.New("trap")), ErrCall},
		{"Capacity", Capacity(PhaseAudio, 20000, 16384), ErrCapacity},
		{"OutOfBounds", OutOfBounds(70000, 4, 65536), ErrOutOfBounds},
		{"UnknownSlot", UnknownSlot("_rw_int_9"), ErrUnknownSlot},
		{"TypeMismatch", TypeMismatch(PhaseSlot, "_rw_float_1", "f32", "i32"), ErrTypeMismatch},
		{"ReadOnly", ReadOnly("_ro_string_1"), ErrReadOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("%v does not match sentinel %v", tt.err, tt.sentinel.Kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}

	if d := Capacity(PhaseAudio, 20000, 16384).Detail; !strings.Contains(d, "20000") || !strings.Contains(d, "16384") {
		t.Errorf("Capacity detail = %q", d)
	}
	if d := OutOfBounds(70000, 4, 65536).Detail; !strings.Contains(d, "65536") {
		t.Errorf("OutOfBounds detail = %q", d)
	}
}

func TestMissingImportsError(t *testing.T) {
	err := &MissingImportsError{Imports: []MissingImport{
		{Module: "env", Function: "_write_midi_event"},
		{Module: "wasi_snapshot_preview1", Function: "fd_write"},
	}}

	msg := err.Error()
	for _, s := range []string{"missing 2", "env._write_midi_event", "wasi_snapshot_preview1.fd_write"} {
		if !strings.Contains(msg, s) {
			t.Errorf("message %q does not contain %q", msg, s)
		}
	}
	if !errors.Is(err, ErrLink) {
		t.Error("MissingImportsError should match ErrLink")
	}

	var mie *MissingImportsError
	if !errors.As(fmt.Errorf("start: %w", err), &mie) {
		t.Fatal("errors.As failed")
	}
	if len(mie.Imports) != 2 {
		t.Errorf("Imports = %d, want 2", len(mie.Imports))
	}

	empty := &MissingImportsError{}
	if empty.Error() == "" {
		t.Error("empty MissingImportsError should still render")
	}
}
