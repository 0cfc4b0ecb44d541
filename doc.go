// Package hotreload keeps a long-running interactive process alive while the
// application logic, compiled into a WebAssembly module, is rebuilt and
// swapped in without losing accumulated in-memory state.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	hotreload/          Root package with the Memory interfaces
//	├── module/         Function table contract, Descriptor, State blob, RetirementList
//	├── engine/         wazero integration: compile, resolve entry points, state window
//	├── loader/         Build-lock check, versioned copies, Descriptor construction
//	├── host/           Reload orchestrator and frame loop
//	├── queue/          Lock-free work queue, worker pool, swap handles
//	├── build/          Background artifact rebuilds through the work queue
//	├── config/         HCL configuration file and defaults
//	├── errors/         Structured error types
//	└── cmd/hotreload/  CLI and terminal dashboard
//
// # Quick Start
//
//	eng, err := engine.NewWazeroEngine(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	ld := loader.New(eng, loader.Config{
//	    Artifact:  "app.wasm",
//	    ReloadDir: "hotreload",
//	    LockFile:  "lock.tmp",
//	})
//
//	h := host.New(ld, host.WithLogger(logger))
//	if err := h.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Module Contract
//
// A module exports six functions and its linear memory:
//
//	MemorySize    () -> i32       bytes of application state required
//	InitAll       (i32) -> i32    initialize zeroed state, non-zero on success
//	InitPartial   (i32)           re-attach after an incremental reload
//	DeInitAll     (i32)           release everything
//	DeInitPartial (i32)           release version-bound resources
//	MainLoop      (i32) -> i32    run one frame, non-zero requests quit
//
// The i32 argument points at the application state inside guest memory. The
// host owns the state; it survives incremental reloads untouched and is
// reallocated only when MemorySize changes.
//
// # Thread Safety
//
// The Host and the State are driven by a single goroutine. The work queue is
// safe for concurrent producers and consumers.
package hotreload
