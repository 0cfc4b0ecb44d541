package build

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-hotreload/errors"
)

// Compiler turns a source file into module bytes.
type Compiler interface {
	Compile(ctx context.Context, source string) ([]byte, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(ctx context.Context, source string) ([]byte, error)

func (f CompilerFunc) Compile(ctx context.Context, source string) ([]byte, error) {
	return f(ctx, source)
}

// Config holds build paths.
type Config struct {
	Source   string
	Artifact string

	// LockFile is created before compiling and removed once the artifact is
	// in place. Empty skips the marker.
	LockFile string

	Logger *zap.Logger
}

// Build compiles cfg.Source and replaces cfg.Artifact with the result. The
// artifact is written to a temporary file and renamed into place; on failure
// the previous artifact is left untouched.
func Build(ctx context.Context, c Compiler, cfg Config) error {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Source == "" || cfg.Artifact == "" {
		return errors.InvalidInput(errors.PhaseBuild, "source and artifact must be set")
	}

	dir := filepath.Dir(cfg.Artifact)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(errors.PhaseBuild, errors.KindIO).Path(dir).Detail("create artifact directory").Cause(err).Build()
	}

	if cfg.LockFile != "" {
		if err := os.WriteFile(cfg.LockFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			return errors.New(errors.PhaseBuild, errors.KindIO).Path(cfg.LockFile).Detail("write build lock").Cause(err).Build()
		}
		defer func() {
			if err := os.Remove(cfg.LockFile); err != nil && !os.IsNotExist(err) {
				log.Warn("failed to remove build lock", zap.String("path", cfg.LockFile), zap.Error(err))
			}
		}()
	}

	wasm, err := c.Compile(ctx, cfg.Source)
	if err != nil {
		return errors.New(errors.PhaseBuild, errors.KindInvalidData).Path(cfg.Source).Detail("compile").Cause(err).Build()
	}
	if len(wasm) == 0 {
		return errors.New(errors.PhaseBuild, errors.KindInvalidData).Path(cfg.Source).Detail("compiler produced no output").Build()
	}

	if err := writeAtomic(cfg.Artifact, wasm); err != nil {
		return errors.New(errors.PhaseBuild, errors.KindIO).Path(cfg.Artifact).Detail("write artifact").Cause(err).Build()
	}

	log.Info("artifact built",
		zap.String("source", cfg.Source),
		zap.String("artifact", cfg.Artifact),
		zap.Int("size", len(wasm)))
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}
