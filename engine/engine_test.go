package engine

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hotreload "github.com/wippyai/wasm-hotreload"
	"github.com/wippyai/wasm-hotreload/errors"
	"github.com/wippyai/wasm-hotreload/internal/wasmgen"
	"github.com/wippyai/wasm-hotreload/module"
)

func newEngine(t *testing.T, cfg *Config) *WazeroEngine {
	t.Helper()
	ctx := context.Background()
	e, err := NewWazeroEngineWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func TestNewWazeroEngineWithConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{MemoryLimitPages: 1024}, "64MB limit"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := NewWazeroEngineWithConfig(ctx, tc.cfg)
			require.NoError(t, err)
			defer engine.Close(ctx)

			assert.NotNil(t, engine.runtime)
		})
	}
}

func TestLoadModule_Lifecycle(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var logs []string
	e := newEngine(t, &Config{LogSink: func(_, msg string) {
		mu.Lock()
		logs = append(logs, msg)
		mu.Unlock()
	}})

	wasm := wasmgen.App{StateSize: 40, Generation: 2, QuitAfter: 2, Greeting: "ready"}.Build()
	m, err := e.LoadModule(ctx, wasm, &InstanceConfig{Name: "app_0.wasm", Path: "hotreload/app_0.wasm"})
	require.NoError(t, err)
	defer m.Unload(ctx)

	assert.Equal(t, "app_0.wasm", m.Name())
	size, _ := m.MemorySize(ctx)
	require.Equal(t, uint32(40), size)
	// no AllocState: window starts at the old end of the single page
	assert.Equal(t, uint32(65536), m.StatePointer())

	state := module.NewState(size)
	ok, err := m.InitAll(ctx, state)
	require.NoError(t, err)
	require.True(t, ok)
	gen, _ := state.ReadU32(wasmgen.OffsetGeneration)
	assert.Equal(t, uint32(2), gen)
	mu.Lock()
	assert.Equal(t, []string{"ready"}, logs)
	mu.Unlock()

	quit, err := m.MainLoop(ctx, state)
	require.NoError(t, err)
	require.False(t, quit, "frame 1")
	quit, err = m.MainLoop(ctx, state)
	require.NoError(t, err)
	require.True(t, quit, "frame 2")
	frames, _ := state.ReadU32(wasmgen.OffsetFrames)
	assert.Equal(t, uint32(2), frames)

	require.NoError(t, m.DeInitPartial(ctx, state))
	require.NoError(t, m.InitPartial(ctx, state))
	require.NoError(t, m.DeInitAll(ctx, state))
	for _, off := range []uint32{wasmgen.OffsetInitPartial, wasmgen.OffsetDeInitPartial, wasmgen.OffsetDeInitAll} {
		v, _ := state.ReadU32(off)
		assert.Equal(t, uint32(1), v, "counter at %d", off)
	}
}

func TestLoadModule_StateSurvivesVersions(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	v0, err := e.LoadModule(ctx, wasmgen.App{StateSize: 32, Generation: 0}.Build(), &InstanceConfig{Name: "v0"})
	require.NoError(t, err)
	v1, err := e.LoadModule(ctx, wasmgen.App{StateSize: 32, Generation: 1}.Build(), &InstanceConfig{Name: "v1"})
	require.NoError(t, err)
	defer v0.Unload(ctx)
	defer v1.Unload(ctx)

	state := module.NewState(32)
	_, err = v0.InitAll(ctx, state)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := v0.MainLoop(ctx, state)
		require.NoError(t, err)
	}

	require.NoError(t, v1.InitPartial(ctx, state))
	_, err = v1.MainLoop(ctx, state)
	require.NoError(t, err)

	frames, _ := state.ReadU32(wasmgen.OffsetFrames)
	gen, _ := state.ReadU32(wasmgen.OffsetGeneration)
	assert.Equal(t, uint32(4), frames)
	assert.Equal(t, uint32(1), gen)
}

func TestLoadModule_AllocState(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	m, err := e.LoadModule(ctx, wasmgen.App{StateSize: 64, AllocStateAt: 1024, MemorySize64: true}.Build(), nil)
	require.NoError(t, err)
	defer m.Unload(ctx)

	assert.Equal(t, uint32(1024), m.StatePointer())
	assert.Equal(t, uint32(65536), m.Memory().Size(), "memory should not grow")

	state := module.NewState(64)
	_, err = m.InitAll(ctx, state)
	require.NoError(t, err)

	raw, err := m.Memory().Read(1024+wasmgen.OffsetInitAll, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(raw), "window InitAll counter")
}

func TestLoadModule_AllocStateOutsideMemory(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	_, err := e.LoadModule(ctx, wasmgen.App{StateSize: 64, AllocStateAt: 65530}.Build(), &InstanceConfig{Path: "edge.wasm"})
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindAllocation})
	assert.Contains(t, err.Error(), "outside memory")
}

func TestLoadModule_MissingEntryPoints(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	wasm := wasmgen.App{
		Omit:           []string{module.EntryInitPartial},
		WrongSignature: []string{module.EntryMainLoop},
		HideMemory:     true,
	}.Build()
	_, err := e.LoadModule(ctx, wasm, &InstanceConfig{Path: "bad.wasm"})

	var missing *errors.MissingEntryPointsError
	require.True(t, stderrors.As(err, &missing), "err = %v, want MissingEntryPointsError", err)
	assert.Equal(t, []string{module.EntryInitPartial, module.EntryMainLoop, ExportMemory}, missing.Names())
	assert.Equal(t, "bad.wasm", missing.Path)
	assert.True(t, errors.IsLoadFailure(err))
}

func TestLoadModule_SignatureMismatchKind(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	mismatch := &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindSignatureMismatch}
	missingKind := &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindMissingEntryPoint}

	_, err := e.LoadModule(ctx, wasmgen.App{WrongSignature: []string{module.EntryMainLoop}}.Build(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, mismatch)
	assert.ErrorIs(t, err, missingKind)

	var missing *errors.MissingEntryPointsError
	require.ErrorAs(t, err, &missing)
	require.Len(t, missing.EntryPoints, 1)
	assert.Equal(t, errors.KindSignatureMismatch, missing.EntryPoints[0].Kind)

	_, err = e.LoadModule(ctx, wasmgen.App{Omit: []string{module.EntryMainLoop}}.Build(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, missingKind)
	assert.NotErrorIs(t, err, mismatch, "an absent export is not a signature mismatch")
}

func TestLoadError_DetailKeptVerbatim(t *testing.T) {
	m := &WazeroModule{path: "hotreload/app_1.wasm"}

	err := m.loadError(errors.KindAllocation, ExportAllocState, "window 100% full", nil)
	assert.Equal(t, "window 100% full", err.Detail)
	assert.Equal(t, "hotreload/app_1.wasm", err.Path)
	assert.Equal(t, ExportAllocState, err.EntryPoint)
	assert.NotContains(t, err.Error(), "%!")
}

func TestLoadModule_InvalidBytes(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	_, err := e.LoadModule(ctx, []byte("not wasm"), &InstanceConfig{Path: "junk.wasm"})
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInvalidData})
}

func TestLoadModule_DuplicateNameFails(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	wasm := wasmgen.App{}.Build()
	m, err := e.LoadModule(ctx, wasm, &InstanceConfig{Name: "dup"})
	require.NoError(t, err)
	_, err = e.LoadModule(ctx, wasm, &InstanceConfig{Name: "dup"})
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInstantiation})

	// the name is free again once the first module is unloaded
	require.NoError(t, m.Unload(ctx))
	again, err := e.LoadModule(ctx, wasm, &InstanceConfig{Name: "dup"})
	require.NoError(t, err, "reload after unload")
	_ = again.Unload(ctx)
}

func TestMainLoop_TrapLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	m, err := e.LoadModule(ctx, wasmgen.App{TrapOnFrame: 2}.Build(), nil)
	require.NoError(t, err)
	defer m.Unload(ctx)

	size, _ := m.MemorySize(ctx)
	state := module.NewState(size)
	_, err = m.MainLoop(ctx, state)
	require.NoError(t, err)

	_, err = m.MainLoop(ctx, state)
	require.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseFrame, Kind: errors.KindTrap})
	frames, _ := state.ReadU32(wasmgen.OffsetFrames)
	assert.Equal(t, uint32(1), frames)
}

func TestInitAll_ReportsFailure(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	m, err := e.LoadModule(ctx, wasmgen.App{InitFails: true}.Build(), nil)
	require.NoError(t, err)
	defer m.Unload(ctx)

	size, _ := m.MemorySize(ctx)
	ok, err := m.InitAll(ctx, module.NewState(size))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCall_StateSizeMismatch(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	m, err := e.LoadModule(ctx, wasmgen.App{StateSize: 32}.Build(), nil)
	require.NoError(t, err)
	defer m.Unload(ctx)

	_, err = m.MainLoop(ctx, module.NewState(16))
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseFrame, Kind: errors.KindInvalidInput})
	_, err = m.MainLoop(ctx, nil)
	assert.Error(t, err, "nil state should fail")
}

func TestUnload_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	m, err := e.LoadModule(ctx, wasmgen.App{}.Build(), nil)
	require.NoError(t, err)
	require.NoError(t, m.Unload(ctx))
	assert.NoError(t, m.Unload(ctx), "second Unload")
	_, err = m.MainLoop(ctx, module.NewState(wasmgen.MinStateSize))
	assert.Error(t, err, "calls after Unload should fail")
}

func TestWazeroMemory_Bounds(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	m, err := e.LoadModule(ctx, wasmgen.App{AllocStateAt: 256}.Build(), nil)
	require.NoError(t, err)
	defer m.Unload(ctx)

	mem := m.Memory()
	_, typed := any(mem).(hotreload.TypedMemory)
	assert.False(t, typed, "guest memory only moves the state window")
	_, typed = any(module.NewState(8)).(hotreload.TypedMemory)
	assert.True(t, typed)

	require.NoError(t, mem.Write(8, []byte{1, 2, 3, 4}))
	got, err := mem.Read(8, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	// reads are copies
	got[0] = 9
	again, _ := mem.Read(8, 1)
	assert.Equal(t, byte(1), again[0])

	_, err = mem.Read(mem.Size()-2, 4)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindOutOfBounds})
	assert.Error(t, mem.Write(mem.Size(), []byte{1}), "write past end should fail")
	_, err = mem.Read(0xffffffff, 2)
	assert.Error(t, err, "offset overflow should fail")
}
