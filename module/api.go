package module

import (
	"context"
)

// Entry point names resolved from a loaded module.
const (
	EntryMemorySize    = "MemorySize"
	EntryInitAll       = "InitAll"
	EntryInitPartial   = "InitPartial"
	EntryDeInitAll     = "DeInitAll"
	EntryDeInitPartial = "DeInitPartial"
	EntryMainLoop      = "MainLoop"
)

// EntryPoints lists the required entry points in resolution order.
var EntryPoints = []string{
	EntryMemorySize,
	EntryInitAll,
	EntryInitPartial,
	EntryDeInitAll,
	EntryDeInitPartial,
	EntryMainLoop,
}

// API is the function table of one loaded application module.
//
// All methods are called from the host's frame-loop goroutine only.
type API interface {
	// MemorySize reports the bytes of State the module requires. It must
	// return the same value for the lifetime of a loaded module.
	MemorySize(ctx context.Context) (uint32, error)

	// InitAll initializes a zeroed State. false reports failure.
	InitAll(ctx context.Context, state *State) (bool, error)

	// InitPartial re-attaches to a populated State after an incremental reload.
	InitPartial(ctx context.Context, state *State) error

	// DeInitAll releases everything the module created.
	DeInitAll(ctx context.Context, state *State) error

	// DeInitPartial releases resources tied to this module version only.
	DeInitPartial(ctx context.Context, state *State) error

	// MainLoop runs one frame. true requests shutdown.
	MainLoop(ctx context.Context, state *State) (bool, error)
}

// Unloader is implemented by APIs that hold resources which must be released
// when their Descriptor is retired.
type Unloader interface {
	Unload(ctx context.Context) error
}
