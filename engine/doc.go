// Package engine drives a single sandboxed guest module on wazero.
//
// The guest's functions only exchange scalars, so the engine exposes three
// tables that together form the bridge ABI:
//
//	ImportTable  host closures the guest may call, registered before Start
//	Func         cached handles to guest exports, resolved once at Start
//	SlotTable    exported guest globals used as a typed mailbox
//
// Structured data lives in guest linear memory. MemoryView is the only way to
// touch it and every access is checked against the current memory size.
//
// # Lifecycle
//
//	NotStarted --Start ok--> Started --fatal fault--> Failed
//	NotStarted --Start err--> Failed
//
// Failed is terminal. A guest trap during a call is reported as a call error
// and leaves the engine Started, unless Config.MaxConsecutiveFaults traps
// happen in a row or the guest instance was closed by a call deadline.
//
// # Usage
//
//	imports := engine.NewImportTable()
//	imports.Register(engine.Import{
//	    Name:    "_get_sample_rate",
//	    Results: []wasmdsp.ValueKind{wasmdsp.KindF32},
//	    Func: func(_ context.Context, stack []uint64) {
//	        stack[0] = api.EncodeF32(48000)
//	    },
//	})
//
//	eng := engine.New(engine.DefaultConfig(), contract)
//	if err := eng.Start(ctx, "/path/plugin.wasm", imports); err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	res, err := eng.Call(ctx, "_get_label")
//	label, err := eng.ReadCString(res[0])
//
// # Thread Safety
//
// Engine is NOT safe for concurrent calls. State may be read from any
// goroutine.
package engine
