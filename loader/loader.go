package loader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-hotreload/engine"
	"github.com/wippyai/wasm-hotreload/errors"
	"github.com/wippyai/wasm-hotreload/module"
)

const defaultExt = ".wasm"

// Engine compiles and instantiates module bytes.
type Engine interface {
	LoadModule(ctx context.Context, wasmBytes []byte, cfg *engine.InstanceConfig) (*engine.WazeroModule, error)
}

// Config holds loader paths
type Config struct {
	// Artifact is the build output watched for changes.
	Artifact string

	// ReloadDir receives versioned copies. Created on first load.
	ReloadDir string

	// LockFile suppresses loading while it exists. Empty disables the check.
	LockFile string

	Logger *zap.Logger
}

// Loader loads versioned copies of the artifact through an Engine.
type Loader struct {
	engine Engine
	cfg    Config
	log    *zap.Logger
}

// New creates a Loader.
func New(eng Engine, cfg Config) *Loader {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		engine: eng,
		cfg:    cfg,
		log:    log.Named("loader"),
	}
}

// CopyPath returns the versioned copy path for version.
func (l *Loader) CopyPath(version int) string {
	ext := filepath.Ext(l.cfg.Artifact)
	if ext == "" {
		ext = defaultExt
	}
	return filepath.Join(l.cfg.ReloadDir, fmt.Sprintf("app_%d%s", version, ext))
}

func (l *Loader) stat() (time.Time, error) {
	info, err := os.Stat(l.cfg.Artifact)
	if err != nil {
		return time.Time{}, err
	}
	if info.IsDir() {
		return time.Time{}, fmt.Errorf("%s is a directory", l.cfg.Artifact)
	}
	if info.Size() == 0 {
		return time.Time{}, fmt.Errorf("%s is empty", l.cfg.Artifact)
	}
	return info.ModTime(), nil
}

// ModTime reports the artifact's modification time. ok is false when the
// artifact is missing, unreadable or empty.
func (l *Loader) ModTime() (time.Time, bool) {
	t, err := l.stat()
	return t, err == nil
}

// Locked reports whether the build-lock marker is present.
func (l *Loader) Locked() bool {
	if l.cfg.LockFile == "" {
		return false
	}
	_, err := os.Stat(l.cfg.LockFile)
	return err == nil
}

// Load copies the artifact to the versioned path for version and loads it.
// On any failure after the copy is made the module is closed and the copy
// deleted; a Descriptor is returned only when every entry point resolved.
func (l *Loader) Load(ctx context.Context, version int) (*module.Descriptor, error) {
	if l.Locked() {
		return nil, errors.Locked(l.cfg.LockFile)
	}

	modTime, err := l.stat()
	if err != nil {
		kind := errors.KindIO
		if stderrors.Is(err, os.ErrNotExist) {
			kind = errors.KindNotFound
		}
		return nil, withVersion(errors.LoadFailure(kind, l.cfg.Artifact, "stat artifact", err), version)
	}

	if err := os.MkdirAll(l.cfg.ReloadDir, 0o755); err != nil {
		return nil, withVersion(errors.LoadFailure(errors.KindIO, l.cfg.ReloadDir, "create reload directory", err), version)
	}

	copyPath := l.CopyPath(version)
	if err := copyFile(l.cfg.Artifact, copyPath); err != nil {
		_ = os.Remove(copyPath)
		return nil, withVersion(errors.LoadFailure(errors.KindIO, copyPath, "copy artifact", err), version)
	}

	d, err := l.loadCopy(ctx, copyPath, version, modTime)
	if err != nil {
		if rmErr := os.Remove(copyPath); rmErr != nil && !os.IsNotExist(rmErr) {
			l.log.Warn("failed to delete versioned copy",
				zap.String("path", copyPath),
				zap.Error(rmErr))
		}
		return nil, err
	}

	l.log.Info("module loaded",
		zap.Int("version", version),
		zap.String("path", copyPath),
		zap.Uint32("memory_size", d.MemorySize))
	return d, nil
}

func (l *Loader) loadCopy(ctx context.Context, copyPath string, version int, modTime time.Time) (*module.Descriptor, error) {
	wasmBytes, err := os.ReadFile(copyPath)
	if err != nil {
		return nil, withVersion(errors.LoadFailure(errors.KindIO, copyPath, "read copy", err), version)
	}

	mod, err := l.engine.LoadModule(ctx, wasmBytes, &engine.InstanceConfig{
		Name: filepath.Base(copyPath),
		Path: copyPath,
	})
	if err != nil {
		return nil, withVersion(err, version)
	}

	d, err := module.NewDescriptor(ctx, mod, version, modTime, copyPath)
	if err != nil {
		if uerr := mod.Unload(ctx); uerr != nil {
			l.log.Warn("failed to unload rejected module", zap.Error(uerr))
		}
		return nil, err
	}
	return d, nil
}

// Unload releases d and deletes its versioned copy.
func (l *Loader) Unload(ctx context.Context, d *module.Descriptor) error {
	err := d.Release(ctx)
	if err == nil {
		l.log.Debug("module released",
			zap.Int("version", d.Version),
			zap.String("path", d.Path))
	}
	return err
}

func withVersion(err error, version int) error {
	var e *errors.Error
	if stderrors.As(err, &e) && !e.HasVersion {
		e.Version = version
		e.HasVersion = true
	}
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
