package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // module read and validation
	PhaseLink    Phase = "link"    // import/export/global resolution
	PhaseCall    Phase = "call"    // guest invocation
	PhaseMemory  Phase = "memory"  // guest memory access
	PhaseSlot    Phase = "slot"    // mailbox global access
	PhaseAudio   Phase = "audio"   // audio block marshalling
	PhaseMIDI    Phase = "midi"    // MIDI record marshalling
	PhaseRuntime Phase = "runtime" // lifecycle
)

// Kind categorizes the error
type Kind string

const (
	KindLoad         Kind = "load"
	KindLink         Kind = "link"
	KindNotStarted   Kind = "not_started"
	KindCall         Kind = "call"
	KindCapacity     Kind = "capacity"
	KindOutOfBounds  Kind = "out_of_bounds"
	KindUnknownSlot  Kind = "unknown_slot"
	KindTypeMismatch Kind = "type_mismatch"
	KindInvalidInput Kind = "invalid_input"
	KindNotFound     Kind = "not_found"
	KindNilPointer   Kind = "nil_pointer"
	KindReadOnly     Kind = "read_only"
)

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrLoad         = &Error{Kind: KindLoad}
	ErrLink         = &Error{Kind: KindLink}
	ErrNotStarted   = &Error{Kind: KindNotStarted}
	ErrCall         = &Error{Kind: KindCall}
	ErrCapacity     = &Error{Kind: KindCapacity}
	ErrOutOfBounds  = &Error{Kind: KindOutOfBounds}
	ErrUnknownSlot  = &Error{Kind: KindUnknownSlot}
	ErrTypeMismatch = &Error{Kind: KindTypeMismatch}
	ErrReadOnly     = &Error{Kind: KindReadOnly}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Name   string // export, import or slot the error refers to
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Name != "" {
		b.WriteString(" ")
		b.WriteString(e.Name)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target with an empty
// Phase matches any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Phase == "" || t.Phase == e.Phase
}

// Is forwards to the standard library so callers need a single import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As forwards to the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Name sets the export, import or slot name
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLoad,
		Detail: detail,
		Cause:  cause,
	}
}

// Link creates a linking error for a named import, export or global
func Link(name, detail string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindLink,
		Name:   name,
		Detail: detail,
	}
}

// NotStarted creates an error for operations attempted outside the Started state
func NotStarted(state string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindNotStarted,
		Detail: fmt.Sprintf("engine is %s", state),
	}
}

// Call creates a guest call failure (trap, host panic, deadline)
func Call(name string, cause error) *Error {
	return &Error{
		Phase: PhaseCall,
		Kind:  KindCall,
		Name:  name,
		Cause: cause,
	}
}

// Capacity creates an error for payloads exceeding a negotiated region size
func Capacity(phase Phase, need, capacity uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCapacity,
		Detail: fmt.Sprintf("need %d, capacity %d", need, capacity),
		Value:  need,
	}
}

// OutOfBounds creates an error for guest memory access outside the current extent
func OutOfBounds(offset, length uint64, size uint32) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("offset %d length %d exceeds memory size %d", offset, length, size),
		Value:  offset,
	}
}

// UnknownSlot creates an error for a global slot not resolved at link time
func UnknownSlot(name string) *Error {
	return &Error{
		Phase: PhaseSlot,
		Kind:  KindUnknownSlot,
		Name:  name,
	}
}

// TypeMismatch creates a value kind mismatch error
func TypeMismatch(phase Phase, name, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Name:   name,
		Detail: fmt.Sprintf("want %s, got %s", want, got),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Name:   name,
		Detail: what + " not found",
	}
}

// NilPointer creates an error for a null guest pointer
func NilPointer(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Name:   name,
		Detail: "null guest pointer",
	}
}

// ReadOnly creates an error for a host write to a guest-published slot
func ReadOnly(name string) *Error {
	return &Error{
		Phase:  PhaseSlot,
		Kind:   KindReadOnly,
		Name:   name,
		Detail: "slot is guest-published",
	}
}

// MissingImport represents a single guest import the host table cannot satisfy
type MissingImport struct {
	Module   string // e.g., "env"
	Function string // e.g., "_write_midi_event"
}

// MissingImportsError is returned when linking fails due to missing host functions
type MissingImportsError struct {
	Imports []MissingImport
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] link: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[link] link: missing %d host function(s):", len(e.Imports))
	for _, imp := range e.Imports {
		b.WriteString("\n  - ")
		b.WriteString(imp.Module)
		b.WriteByte('.')
		b.WriteString(imp.Function)
	}
	return b.String()
}

// Is reports whether target matches this error type. It also matches ErrLink.
func (e *MissingImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingImportsError:
		return true
	case *Error:
		return t.Kind == KindLink && (t.Phase == "" || t.Phase == PhaseLink)
	}
	return false
}
