package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-hotreload/errors"
	"github.com/wippyai/wasm-hotreload/module"
)

const (
	// ExportMemory is the linear memory every application module must export.
	ExportMemory = "memory"

	// ExportAllocState optionally places the state window: (size i32) -> ptr i32.
	ExportAllocState = "AllocState"

	pageSize = 65536
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// signature lists the accepted shapes of one entry point.
type signature struct {
	params  []api.ValueType
	results [][]api.ValueType
}

var entrySignatures = map[string]signature{
	module.EntryMemorySize:    {nil, [][]api.ValueType{{i32}, {i64}}},
	module.EntryInitAll:       {[]api.ValueType{i32}, [][]api.ValueType{{i32}}},
	module.EntryInitPartial:   {[]api.ValueType{i32}, [][]api.ValueType{nil, {i32}}},
	module.EntryDeInitAll:     {[]api.ValueType{i32}, [][]api.ValueType{nil}},
	module.EntryDeInitPartial: {[]api.ValueType{i32}, [][]api.ValueType{nil}},
	module.EntryMainLoop:      {[]api.ValueType{i32}, [][]api.ValueType{{i32}}},
}

var allocStateSignature = signature{[]api.ValueType{i32}, [][]api.ValueType{{i32}}}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s signature) accepts(def api.FunctionDefinition) bool {
	if !sameTypes(s.params, def.ParamTypes()) {
		return false
	}
	for _, r := range s.results {
		if sameTypes(r, def.ResultTypes()) {
			return true
		}
	}
	return false
}

func formatTypes(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return "(" + strings.Join(names, ", ") + ")"
}

func (s signature) String() string {
	variants := make([]string, len(s.results))
	for i, r := range s.results {
		variants[i] = formatTypes(s.params) + " -> " + formatTypes(r)
	}
	return strings.Join(variants, " or ")
}

// resolveExports checks every entry point and the memory export. It reports
// all problems at once.
func resolveExports(compiled wazero.CompiledModule, path string) (map[string]api.FunctionDefinition, error) {
	fns := compiled.ExportedFunctions()
	resolved := make(map[string]api.FunctionDefinition, len(module.EntryPoints))
	var missing []errors.MissingEntryPoint

	for _, name := range module.EntryPoints {
		def, ok := fns[name]
		if !ok {
			missing = append(missing, errors.MissingEntryPoint{Name: name, Reason: "not exported"})
			continue
		}
		sig := entrySignatures[name]
		if !sig.accepts(def) {
			missing = append(missing, errors.MissingEntryPoint{
				Name: name,
				Reason: fmt.Sprintf("want %s, got %s -> %s",
					sig, formatTypes(def.ParamTypes()), formatTypes(def.ResultTypes())),
				Kind: errors.KindSignatureMismatch,
			})
			continue
		}
		resolved[name] = def
	}

	if _, ok := compiled.ExportedMemories()[ExportMemory]; !ok {
		missing = append(missing, errors.MissingEntryPoint{Name: ExportMemory, Reason: "memory not exported"})
	}

	if len(missing) > 0 {
		return nil, &errors.MissingEntryPointsError{Path: path, EntryPoints: missing}
	}

	if def, ok := fns[ExportAllocState]; ok && allocStateSignature.accepts(def) {
		resolved[ExportAllocState] = def
	}
	return resolved, nil
}

// WazeroModule is one instantiated application module. It implements
// module.API by copying the host State into a window of the module's linear
// memory before each call and back out afterwards.
//
// A WazeroModule is not safe for concurrent use.
type WazeroModule struct {
	compiled  wazero.CompiledModule
	instance  api.Module
	memory    *WazeroMemory
	funcs     map[string]api.Function
	path      string
	statePtr  uint32
	stateSize uint32
	size64    bool
	closed    bool
}

var (
	_ module.API      = (*WazeroModule)(nil)
	_ module.Unloader = (*WazeroModule)(nil)
)

func newWazeroModule(compiled wazero.CompiledModule, instance api.Module, defs map[string]api.FunctionDefinition, path string) *WazeroModule {
	m := &WazeroModule{
		compiled: compiled,
		instance: instance,
		memory:   &WazeroMemory{mem: instance.ExportedMemory(ExportMemory)},
		funcs:    make(map[string]api.Function, len(defs)),
		path:     path,
	}
	for name := range defs {
		m.funcs[name] = instance.ExportedFunction(name)
	}
	if def := defs[module.EntryMemorySize]; def != nil {
		m.size64 = def.ResultTypes()[0] == i64
	}
	return m
}

// placeState queries MemorySize and reserves the state window.
func (m *WazeroModule) placeState(ctx context.Context) error {
	res, err := m.funcs[module.EntryMemorySize].Call(ctx)
	if err != nil {
		return m.loadError(errors.KindTrap, module.EntryMemorySize, "", err)
	}

	size := res[0]
	if !m.size64 {
		size = uint64(api.DecodeU32(size))
	}
	if size > math.MaxUint32 {
		return m.loadError(errors.KindInvalidData, module.EntryMemorySize,
			fmt.Sprintf("state size %d exceeds 4GiB", size), nil)
	}
	if size == 0 {
		return m.loadError(errors.KindInvalidData, module.EntryMemorySize, "module requires zero bytes of state", nil)
	}
	m.stateSize = uint32(size)

	if alloc, ok := m.funcs[ExportAllocState]; ok {
		res, err := alloc.Call(ctx, api.EncodeU32(m.stateSize))
		if err != nil {
			return m.loadError(errors.KindTrap, ExportAllocState, "", err)
		}
		m.statePtr = api.DecodeU32(res[0])
	} else {
		pages := (m.stateSize + pageSize - 1) / pageSize
		prev, ok := m.memory.mem.Grow(pages)
		if !ok {
			return m.loadError(errors.KindAllocation, "",
				fmt.Sprintf("grow memory by %d pages", pages), nil)
		}
		m.statePtr = prev * pageSize
	}

	if uint64(m.statePtr)+uint64(m.stateSize) > uint64(m.memory.Size()) {
		return m.loadError(errors.KindAllocation, ExportAllocState,
			fmt.Sprintf("state window [%d, %d) outside memory of %d bytes",
				m.statePtr, uint64(m.statePtr)+uint64(m.stateSize), m.memory.Size()), nil)
	}
	return nil
}

func (m *WazeroModule) loadError(kind errors.Kind, entry, detail string, cause error) *errors.Error {
	return errors.New(errors.PhaseLoad, kind).
		Path(m.path).
		EntryPoint(entry).
		Detail("%s", detail).
		Cause(cause).
		Build()
}

// call runs entry with the state window populated from state. On success the
// window is copied back; a trapped call leaves state untouched.
func (m *WazeroModule) call(ctx context.Context, phase errors.Phase, entry string, state *module.State) ([]uint64, error) {
	if m.closed {
		return nil, errors.NotInitialized(phase, "module "+m.Name())
	}
	if state == nil {
		return nil, errors.NotInitialized(phase, "state")
	}
	if state.Size() != m.stateSize {
		return nil, errors.New(phase, errors.KindInvalidInput).
			Path(m.path).
			EntryPoint(entry).
			Detail("state is %d bytes, module requires %d", state.Size(), m.stateSize).
			Build()
	}

	if err := m.memory.Write(m.statePtr, state.Bytes()); err != nil {
		return nil, err
	}

	res, err := m.funcs[entry].Call(ctx, api.EncodeU32(m.statePtr))
	if err != nil {
		trap := errors.Trap(phase, entry, err)
		trap.Path = m.path
		return nil, trap
	}

	window, err := m.memory.Read(m.statePtr, m.stateSize)
	if err != nil {
		return nil, err
	}
	copy(state.Bytes(), window)
	return res, nil
}

// Name returns the wazero instance name.
func (m *WazeroModule) Name() string {
	return m.instance.Name()
}

// Memory exposes the module's linear memory.
func (m *WazeroModule) Memory() *WazeroMemory {
	return m.memory
}

// StatePointer returns the offset of the state window in linear memory.
func (m *WazeroModule) StatePointer() uint32 {
	return m.statePtr
}

// MemorySize returns the state size reported when the module was loaded.
func (m *WazeroModule) MemorySize(context.Context) (uint32, error) {
	return m.stateSize, nil
}

func (m *WazeroModule) InitAll(ctx context.Context, state *module.State) (bool, error) {
	res, err := m.call(ctx, errors.PhaseInit, module.EntryInitAll, state)
	if err != nil {
		return false, err
	}
	return api.DecodeU32(res[0]) != 0, nil
}

func (m *WazeroModule) InitPartial(ctx context.Context, state *module.State) error {
	_, err := m.call(ctx, errors.PhaseInit, module.EntryInitPartial, state)
	return err
}

func (m *WazeroModule) DeInitAll(ctx context.Context, state *module.State) error {
	_, err := m.call(ctx, errors.PhaseRuntime, module.EntryDeInitAll, state)
	return err
}

func (m *WazeroModule) DeInitPartial(ctx context.Context, state *module.State) error {
	_, err := m.call(ctx, errors.PhaseRuntime, module.EntryDeInitPartial, state)
	return err
}

func (m *WazeroModule) MainLoop(ctx context.Context, state *module.State) (bool, error) {
	res, err := m.call(ctx, errors.PhaseFrame, module.EntryMainLoop, state)
	if err != nil {
		return false, err
	}
	return api.DecodeU32(res[0]) != 0, nil
}

// Unload closes the instance and its compiled code. Safe to call more than once.
func (m *WazeroModule) Unload(ctx context.Context) error {
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if err := m.instance.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.compiled.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	m.funcs = nil
	return stderrors.Join(errs...)
}
