// Package errors provides structured error types for the hot-reload host.
//
// Errors are categorized by Phase (where in the host lifecycle the error
// occurred) and Kind (error category). The Error type carries the artifact
// path, module version, entry point name and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindSignatureMismatch).
//		Path("hotreload/app_3.wasm").
//		Version(3).
//		EntryPoint("MainLoop").
//		Detail("want (i32) -> i32").
//		Build()
//
// Or use convenience constructors for the host's failure classes:
//
//	err := errors.Locked("lock.tmp")
//	err := errors.InitFailure(version, nil)
//	err := errors.QueueOverflow(256)
//
// LoadFailure and UnloadFailure are retried or logged by the host; InitFailure
// during startup or a full reset ends the frame loop. The IsLoadFailure,
// IsInitFailure, IsQueueOverflow and IsUnloadFailure predicates classify any
// wrapped error. All errors implement the standard error interface and
// support errors.Is/As.
package errors
