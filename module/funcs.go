package module

import (
	"context"

	"github.com/wippyai/wasm-hotreload/errors"
)

// Funcs is a Go-native function table.
type Funcs struct {
	MemorySize    func() uint32
	InitAll       func(state *State) bool
	InitPartial   func(state *State)
	DeInitAll     func(state *State)
	DeInitPartial func(state *State)
	MainLoop      func(state *State) bool
}

// FromFuncs validates f and returns it as an API.
// Every entry point must be set.
func FromFuncs(f Funcs) (API, error) {
	var missing []errors.MissingEntryPoint
	check := func(name string, set bool) {
		if !set {
			missing = append(missing, errors.MissingEntryPoint{Name: name, Reason: "nil function"})
		}
	}
	check(EntryMemorySize, f.MemorySize != nil)
	check(EntryInitAll, f.InitAll != nil)
	check(EntryInitPartial, f.InitPartial != nil)
	check(EntryDeInitAll, f.DeInitAll != nil)
	check(EntryDeInitPartial, f.DeInitPartial != nil)
	check(EntryMainLoop, f.MainLoop != nil)

	if len(missing) > 0 {
		return nil, &errors.MissingEntryPointsError{EntryPoints: missing}
	}
	return &funcsAPI{f: f}, nil
}

type funcsAPI struct {
	f Funcs
}

func (a *funcsAPI) MemorySize(context.Context) (uint32, error) {
	return a.f.MemorySize(), nil
}

func (a *funcsAPI) InitAll(_ context.Context, state *State) (bool, error) {
	return a.f.InitAll(state), nil
}

func (a *funcsAPI) InitPartial(_ context.Context, state *State) error {
	a.f.InitPartial(state)
	return nil
}

func (a *funcsAPI) DeInitAll(_ context.Context, state *State) error {
	a.f.DeInitAll(state)
	return nil
}

func (a *funcsAPI) DeInitPartial(_ context.Context, state *State) error {
	a.f.DeInitPartial(state)
	return nil
}

func (a *funcsAPI) MainLoop(_ context.Context, state *State) (bool, error) {
	return a.f.MainLoop(state), nil
}
