package engine

import (
	"context"
	"strings"

	"github.com/tetratelabs/wazero/api"

	wasmdsp "github.com/wippyai/wasm-dsp"
	"github.com/wippyai/wasm-dsp/errors"
)

// HostFunc is the body of a host import. stack holds the arguments on entry
// and must hold the results on return, in wazero's uint64 encoding.
// Panicking aborts the guest call that invoked the import.
type HostFunc func(ctx context.Context, stack []uint64)

// Import is a host function the guest may call.
type Import struct {
	Func    HostFunc
	Name    string
	Params  []wasmdsp.ValueKind
	Results []wasmdsp.ValueKind
}

// ImportTable holds host imports in registration order.
type ImportTable struct {
	index   map[string]int
	imports []Import
}

func NewImportTable() *ImportTable {
	return &ImportTable{index: make(map[string]int)}
}

// Register adds imp to the table. Names must be unique.
func (t *ImportTable) Register(imp Import) error {
	if imp.Name == "" {
		return errors.InvalidInput(errors.PhaseLink, "import name cannot be empty")
	}
	if imp.Func == nil {
		return errors.InvalidInput(errors.PhaseLink, "import "+imp.Name+" has no handler")
	}
	if _, dup := t.index[imp.Name]; dup {
		return errors.InvalidInput(errors.PhaseLink, "import "+imp.Name+" registered twice")
	}
	t.index[imp.Name] = len(t.imports)
	t.imports = append(t.imports, imp)
	return nil
}

// Lookup returns the import registered under name.
func (t *ImportTable) Lookup(name string) (Import, bool) {
	i, ok := t.index[name]
	if !ok {
		return Import{}, false
	}
	return t.imports[i], true
}

func (t *ImportTable) Len() int {
	return len(t.imports)
}

// Names returns import names in registration order.
func (t *ImportTable) Names() []string {
	names := make([]string, len(t.imports))
	for i, imp := range t.imports {
		names[i] = imp.Name
	}
	return names
}

// Func is a cached handle to a guest export.
type Func struct {
	eng     *Engine
	fn      api.Function
	name    string
	params  []wasmdsp.ValueKind
	results []wasmdsp.ValueKind
	stack   []uint64
}

func (f *Func) Name() string                 { return f.name }
func (f *Func) Params() []wasmdsp.ValueKind  { return f.params }
func (f *Func) Results() []wasmdsp.ValueKind { return f.results }

// StackSize is the minimum stack length CallWithStack accepts.
func (f *Func) StackSize() int {
	return len(f.stack)
}

// CallWithStack invokes the export without allocating. stack holds the
// encoded arguments on entry and the encoded results on return.
func (f *Func) CallWithStack(ctx context.Context, stack []uint64) error {
	if len(stack) < len(f.stack) {
		return errors.InvalidInput(errors.PhaseCall, "stack too small for "+f.name)
	}
	return f.eng.invoke(ctx, f, stack)
}

// Call invokes the export with typed arguments.
func (f *Func) Call(ctx context.Context, args ...wasmdsp.Value) ([]wasmdsp.Value, error) {
	if len(args) != len(f.params) {
		return nil, errors.TypeMismatch(errors.PhaseCall, f.name, signature(f.params, f.results), argKinds(args))
	}
	for i, a := range args {
		if a.Kind() != f.params[i] {
			return nil, errors.TypeMismatch(errors.PhaseCall, f.name, signature(f.params, f.results), argKinds(args))
		}
		f.stack[i] = a.Raw()
	}
	if err := f.eng.invoke(ctx, f, f.stack); err != nil {
		return nil, err
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	out := make([]wasmdsp.Value, len(f.results))
	for i, k := range f.results {
		out[i] = wasmdsp.FromRaw(k, f.stack[i])
	}
	return out, nil
}

func signature(params, results []wasmdsp.ValueKind) string {
	var b strings.Builder
	writeKinds(&b, params)
	b.WriteString("->")
	writeKinds(&b, results)
	return b.String()
}

func typesSignature(params, results []api.ValueType) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, t := range params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(api.ValueTypeName(t))
	}
	b.WriteString(")->(")
	for i, t := range results {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(api.ValueTypeName(t))
	}
	b.WriteByte(')')
	return b.String()
}

func writeKinds(b *strings.Builder, kinds []wasmdsp.ValueKind) {
	b.WriteByte('(')
	for i, k := range kinds {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k.String())
	}
	b.WriteByte(')')
}

func argKinds(args []wasmdsp.Value) string {
	kinds := make([]wasmdsp.ValueKind, len(args))
	for i, a := range args {
		kinds[i] = a.Kind()
	}
	var b strings.Builder
	writeKinds(&b, kinds)
	return b.String()
}

func stackSize(params, results int) int {
	n := max(params, results)
	if n == 0 {
		n = 1
	}
	return n
}
