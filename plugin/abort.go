package plugin

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"

	wasmdsp "github.com/wippyai/wasm-dsp"
	"github.com/wippyai/wasm-dsp/abi"
	"github.com/wippyai/wasm-dsp/engine"
	"github.com/wippyai/wasm-dsp/errors"
)

// maxAbortString bounds the UTF-16 payload read for abort messages.
const maxAbortString = 4096

// abortImport serves env.abort(msg, file, line, column), which AssemblyScript
// guests call on assertion failures. The message is logged and the guest call
// is aborted with a CallError.
func (p *Plugin) abortImport() engine.Import {
	i32 := wasmdsp.KindI32
	return engine.Import{
		Name:   abi.ImportAbort,
		Params: []wasmdsp.ValueKind{i32, i32, i32, i32},
		Func: func(_ context.Context, stack []uint64) {
			msg := p.readUTF16(api.DecodeU32(stack[0]))
			file := p.readUTF16(api.DecodeU32(stack[1]))
			line, col := api.DecodeU32(stack[2]), api.DecodeU32(stack[3])

			Logger().Error("guest aborted",
				zap.String("message", msg),
				zap.String("file", file),
				zap.Uint32("line", line),
				zap.Uint32("column", col))

			panic(errors.New(errors.PhaseCall, errors.KindCall).
				Name(abi.ImportAbort).
				Detail("%s at %s:%d:%d", msg, file, line, col).
				Build())
		},
	}
}

// readUTF16 decodes an AssemblyScript string: UTF-16LE code units preceded by
// their byte length at ptr-4.
func (p *Plugin) readUTF16(ptr uint32) string {
	if ptr < 4 {
		return ""
	}
	view, err := p.eng.Memory(ptr - 4)
	if err != nil {
		return ""
	}
	n, err := view.ReadU32(0)
	if err != nil {
		return ""
	}
	n = min(n, maxAbortString) &^ 1
	raw, err := view.Bytes(4, n)
	if err != nil {
		return ""
	}
	s, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return ""
	}
	return string(s)
}
