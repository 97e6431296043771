// Package errors provides structured error types for the DSP bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The bridge surfaces these kinds:
//
//	load           missing or malformed guest module (fatal to the engine)
//	link           missing or mismatched import, export or global (fatal)
//	not_started    operation attempted outside the Started state
//	call           guest trap or host panic during a call (recoverable)
//	capacity       audio/MIDI payload exceeds a negotiated region
//	out_of_bounds  guest pointer outside the current memory extent
//	unknown_slot   global slot not resolved at link time
//
// Use the sentinels with errors.Is; they match by Kind:
//
//	if errors.Is(err, errors.ErrCapacity) { ... }
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindLink).
//		Name("_run").
//		Detail("want (i32,i32)->(), got (i32)->()").
//		Build()
package errors
