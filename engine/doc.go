// Package engine loads application modules on the wazero WebAssembly runtime.
//
// An application module is a core WebAssembly module that exports the six
// entry points of the host contract together with its linear memory:
//
//	Export          Signature            Notes
//	────────────────────────────────────────────────────────────────
//	MemorySize      () -> i32 | i64      state bytes required
//	InitAll         (state i32) -> i32   nonzero on success
//	InitPartial     (state i32) -> ()    an i32 result is ignored
//	DeInitAll       (state i32) -> ()
//	DeInitPartial   (state i32) -> ()
//	MainLoop        (state i32) -> i32   nonzero requests shutdown
//	memory          memory
//	AllocState      (size i32) -> i32    optional
//
// # Load Flow
//
//  1. WazeroEngine.LoadModule() compiles the bytes
//  2. Every entry point is resolved by name and its signature checked;
//     all problems are reported together as errors.MissingEntryPointsError
//  3. The module is instantiated under the configured name, with WASI
//     preview1 and the env host module available for import
//  4. MemorySize is called and a state window is placed in linear memory,
//     through AllocState when exported, otherwise by growing memory
//
// # State Window
//
// The host owns the State bytes. Each entry point call copies the State into
// the window, passes the window offset as the single argument, and copies the
// window back when the call returns. A trapped call leaves the State as it was
// before the call. This keeps the State valid across module versions that
// live in separate linear memories.
//
// # Host Imports
//
//	env.log(ptr, len i32)    write a message to the engine logger
//	env.now_ms() -> i64      wall clock in Unix milliseconds
//
// # Thread Safety
//
// WazeroEngine is safe for concurrent use. WazeroModule is NOT thread-safe
// and should be used by a single goroutine.
//
// # Known Limitations
//
// Memory64 is not supported by wazero (v1.10.1), so state windows are limited
// to 32-bit offsets even when MemorySize returns i64.
package engine
