package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-hotreload/engine"
	"github.com/wippyai/wasm-hotreload/errors"
	"github.com/wippyai/wasm-hotreload/internal/wasmgen"
	"github.com/wippyai/wasm-hotreload/module"
)

type fixture struct {
	dir      string
	artifact string
	lock     string
	reload   string
	loader   *Loader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	eng, err := engine.NewWazeroEngine(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close(ctx) })

	dir := t.TempDir()
	f := &fixture{
		dir:      dir,
		artifact: filepath.Join(dir, "app.wasm"),
		lock:     filepath.Join(dir, "lock.tmp"),
		reload:   filepath.Join(dir, "hotreload"),
	}
	f.loader = New(eng, Config{
		Artifact:  f.artifact,
		ReloadDir: f.reload,
		LockFile:  f.lock,
	})
	return f
}

func (f *fixture) write(t *testing.T, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.artifact, data, 0o644))
}

func TestLoad_CopiesAndResolves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, wasmgen.App{StateSize: 48}.Build())

	d, err := f.loader.Load(ctx, 0)
	require.NoError(t, err)

	want := filepath.Join(f.reload, "app_0.wasm")
	assert.Equal(t, want, d.Path)
	assert.FileExists(t, want, "versioned copy")
	assert.Equal(t, 0, d.Version)
	assert.Equal(t, uint32(48), d.MemorySize)
	mt, ok := f.loader.ModTime()
	require.True(t, ok)
	assert.True(t, mt.Equal(d.ModTime), "ModTime = %v, descriptor %v", mt, d.ModTime)

	require.NoError(t, f.loader.Unload(ctx, d))
	assert.NoFileExists(t, want, "copy should be deleted after Unload")
}

func TestLoad_TwoVersionsCoexist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, wasmgen.App{Generation: 1}.Build())

	d0, err := f.loader.Load(ctx, 0)
	require.NoError(t, err)
	defer f.loader.Unload(ctx, d0)

	f.write(t, wasmgen.App{Generation: 2}.Build())
	d1, err := f.loader.Load(ctx, 1)
	require.NoError(t, err)
	defer f.loader.Unload(ctx, d1)

	state := module.NewState(d1.MemorySize)
	_, err = d0.API.InitAll(ctx, state)
	require.NoError(t, err)
	gen, _ := state.ReadU32(wasmgen.OffsetGeneration)
	assert.Equal(t, uint32(1), gen, "v0 generation")

	require.NoError(t, d1.API.InitPartial(ctx, state))
	gen, _ = state.ReadU32(wasmgen.OffsetGeneration)
	assert.Equal(t, uint32(2), gen, "v1 generation")
}

func TestLoad_LockedHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, wasmgen.App{}.Build())
	require.NoError(t, os.WriteFile(f.lock, nil, 0o644))

	_, err := f.loader.Load(ctx, 0)
	require.True(t, errors.IsLocked(err), "err = %v, want locked", err)
	assert.NoDirExists(t, f.reload, "reload dir should not be created while locked")

	_ = os.Remove(f.lock)
	d, err := f.loader.Load(ctx, 0)
	require.NoError(t, err, "Load after unlock")
	_ = f.loader.Unload(ctx, d)
}

func TestLoad_MissingOrEmptyArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.loader.Load(ctx, 3)
	require.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindNotFound})
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.True(t, e.HasVersion)
	assert.Equal(t, 3, e.Version)
	_, ok := f.loader.ModTime()
	assert.False(t, ok, "ModTime ok for missing artifact")

	f.write(t, nil)
	_, err = f.loader.Load(ctx, 0)
	assert.True(t, errors.IsLoadFailure(err), "empty: err = %v", err)
	_, ok = f.loader.ModTime()
	assert.False(t, ok, "ModTime ok for empty artifact")
}

func TestLoad_InvalidModuleDeletesCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("definitely not wasm")},
		{"missing entry point", wasmgen.App{Omit: []string{module.EntryMainLoop}}.Build()},
		{"wrong signature", wasmgen.App{WrongSignature: []string{module.EntryInitAll}}.Build()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.write(t, tt.data)
			_, err := f.loader.Load(ctx, 5)
			require.True(t, errors.IsLoadFailure(err), "err = %v, want load failure", err)
			assert.NoFileExists(t, f.loader.CopyPath(5), "copy should be deleted on failure")
		})
	}

	// the version slot can be reused after a failure
	f.write(t, wasmgen.App{}.Build())
	d, err := f.loader.Load(ctx, 5)
	require.NoError(t, err, "retry")
	_ = f.loader.Unload(ctx, d)
}

func TestCopyPath_Extension(t *testing.T) {
	l := New(nil, Config{Artifact: "build/app", ReloadDir: "hr"})
	assert.Equal(t, filepath.Join("hr", "app_7.wasm"), l.CopyPath(7))
	l = New(nil, Config{Artifact: "build/app.so", ReloadDir: "hr"})
	assert.Equal(t, filepath.Join("hr", "app_1.so"), l.CopyPath(1))
}

func TestModTime_TracksRewrite(t *testing.T) {
	f := newFixture(t)
	f.write(t, wasmgen.App{}.Build())
	before, _ := f.loader.ModTime()

	later := before.Add(2 * time.Second)
	require.NoError(t, os.Chtimes(f.artifact, later, later))
	after, ok := f.loader.ModTime()
	require.True(t, ok)
	assert.True(t, after.Equal(later), "ModTime = %v, want %v", after, later)
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	frames := 0
	s := NewStatic(module.Funcs{
		MemorySize:    func() uint32 { return 8 },
		InitAll:       func(*module.State) bool { return true },
		InitPartial:   func(*module.State) {},
		DeInitAll:     func(*module.State) {},
		DeInitPartial: func(*module.State) {},
		MainLoop:      func(*module.State) bool { frames++; return false },
	})

	d, err := s.Load(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), d.MemorySize)
	assert.Empty(t, d.Path)
	_, ok := s.ModTime()
	assert.False(t, ok, "static loader must never report a modtime")
	_, err = d.API.MainLoop(ctx, module.NewState(8))
	assert.NoError(t, err)
	assert.Equal(t, 1, frames)
	assert.NoError(t, s.Unload(ctx, d))

	_, err = NewStatic(module.Funcs{}).Load(ctx, 0)
	assert.Error(t, err, "empty Funcs should fail")
}
