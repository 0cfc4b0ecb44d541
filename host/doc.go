// Package host runs an application module in a frame loop and swaps in new
// versions of it while it runs.
//
// # Lifecycle
//
//	Start      load version 0, allocate a zeroed State, InitAll
//	Step       poll the artifact, reload if it changed, run one MainLoop frame
//	Run        Start, Step until quit / fatal error / ctx done, Shutdown
//	Shutdown   drain the work queue, DeInitAll, release every module, free State
//
// # Reloads
//
// Each frame the host compares the artifact modification time with the one
// recorded for the active module. When it changed, the next version is
// loaded. A failed load is logged and retried on the next frame; the active
// module keeps running and the version counter does not advance.
//
// A successful load is installed one of two ways, chosen only by the State
// size the new module reports:
//
//	same size        incremental: DeInitPartial(old), retire old,
//	                 InitPartial(new) on the untouched State
//	different size   full reset: drain queue, DeInitAll(old), release every
//	                 retired and the outgoing module, fresh zeroed State,
//	                 InitAll(new)
//
// Retired modules stay loaded until the next full reset or shutdown, since
// work started by an older version may still reference them. InitAll failure
// at startup or at a full reset is fatal. A trapping MainLoop skips the frame.
//
// # Observation
//
// Host emits an Event for each lifecycle transition to an Observer and
// publishes a Stats snapshot after each frame that other goroutines can read.
//
// Host is driven from a single goroutine. Stats and Session are safe to call
// from any goroutine.
package host
