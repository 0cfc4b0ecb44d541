package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-hotreload/errors"
)

// WazeroEngine compiles and instantiates application modules on one shared
// wazero runtime. Every loaded version of the application lives in the same
// runtime under its own instance name.
type WazeroEngine struct {
	runtime      wazero.Runtime
	cfg          Config
	hostInitMu   sync.Mutex
	hostInitDone atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// Stdout and Stderr receive guest WASI output. nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// LogSink, when set, receives every env.log message in addition to the
	// engine logger.
	LogSink func(module, message string)

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32
}

// InstanceConfig holds configuration for one module load
type InstanceConfig struct {
	// Name is the wazero instance name. It must be unique among live modules;
	// empty instantiates anonymously.
	Name string

	// Path is reported in errors.
	Path string
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	e := &WazeroEngine{}
	if cfg != nil {
		e.cfg = *cfg
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
	}

	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return e, nil
}

// LoadModule compiles wasmBytes, checks the entry point contract, instantiates
// the module and places the state window in its linear memory.
//
// All returned errors are load failures. Nothing stays allocated in the
// runtime when LoadModule fails.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte, cfg *InstanceConfig) (*WazeroModule, error) {
	if cfg == nil {
		cfg = &InstanceConfig{}
	}

	if err := e.initHostModules(ctx); err != nil {
		return nil, errors.LoadFailure(errors.KindInstantiation, cfg.Path, "host modules", err)
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.LoadFailure(errors.KindInvalidData, cfg.Path, "compile failed", err)
	}

	sigs, err := resolveExports(compiled, cfg.Path)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	modConfig := wazero.NewModuleConfig().
		WithName(cfg.Name).
		WithStartFunctions("_initialize").
		WithSysWalltime().
		WithSysNanotime()
	if e.cfg.Stdout != nil {
		modConfig = modConfig.WithStdout(e.cfg.Stdout)
	}
	if e.cfg.Stderr != nil {
		modConfig = modConfig.WithStderr(e.cfg.Stderr)
	}

	instance, err := e.runtime.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.LoadFailure(errors.KindInstantiation, cfg.Path, "instantiate failed", err)
	}

	m := newWazeroModule(compiled, instance, sigs, cfg.Path)
	if err := m.placeState(ctx); err != nil {
		_ = m.Unload(ctx)
		return nil, err
	}

	Logger().Debug("module loaded",
		zapName(instance.Name()),
		zapPath(cfg.Path))
	return m, nil
}

// Close releases the runtime and every module still instantiated in it.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// initHostModules instantiates WASI and the env import module once per runtime.
// Safe for concurrent calls.
func (e *WazeroEngine) initHostModules(ctx context.Context) error {
	if e.hostInitDone.Load() {
		return nil
	}

	e.hostInitMu.Lock()
	defer e.hostInitMu.Unlock()

	if e.hostInitDone.Load() {
		return nil
	}

	if e.runtime.Module(wasiModuleName) == nil {
		if _, err := InstantiateWASI(ctx, e.runtime); err != nil {
			return fmt.Errorf("instantiate WASI: %w", err)
		}
	}
	if e.runtime.Module(envModuleName) == nil {
		if _, err := instantiateEnv(ctx, e.runtime, e.cfg.LogSink); err != nil {
			return fmt.Errorf("instantiate env: %w", err)
		}
	}

	e.hostInitDone.Store(true)
	return nil
}
