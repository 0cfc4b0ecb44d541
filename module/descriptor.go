package module

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/wippyai/wasm-hotreload/errors"
)

// Descriptor is one loaded module: its function table, where it came from and
// its version. A Descriptor exclusively owns its API.
type Descriptor struct {
	API        API
	ModTime    time.Time
	Path       string
	Version    int
	MemorySize uint32
	released   bool
}

// NewDescriptor queries the module's required memory size and wraps api.
// path is the versioned copy the module was loaded from, or empty.
func NewDescriptor(ctx context.Context, api API, version int, modTime time.Time, path string) (*Descriptor, error) {
	if api == nil {
		return nil, errors.NotInitialized(errors.PhaseLoad, "module API")
	}

	size, err := api.MemorySize(ctx)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindTrap).
			Path(path).
			Version(version).
			EntryPoint(EntryMemorySize).
			Cause(err).
			Build()
	}
	if size == 0 {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Path(path).
			Version(version).
			EntryPoint(EntryMemorySize).
			Detail("module requires zero bytes of state").
			Build()
	}

	return &Descriptor{
		API:        api,
		ModTime:    modTime,
		Path:       path,
		Version:    version,
		MemorySize: size,
	}, nil
}

// Released reports whether Release has run.
func (d *Descriptor) Released() bool {
	return d.released
}

// Release unloads the module and deletes its versioned copy. Safe to call more
// than once; only the first call does work. Failures are UnloadFailure errors.
func (d *Descriptor) Release(ctx context.Context) error {
	if d.released {
		return nil
	}
	d.released = true

	var errs []error
	if u, ok := d.API.(Unloader); ok {
		if err := u.Unload(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unload: %w", err))
		}
	}
	if d.Path != "" {
		if err := os.Remove(d.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("delete copy: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.UnloadFailure(d.Path, d.Version, stderrors.Join(errs...))
	}
	return nil
}

func (d *Descriptor) String() string {
	if d.Path == "" {
		return fmt.Sprintf("v%d (static, %d bytes)", d.Version, d.MemorySize)
	}
	return fmt.Sprintf("v%d (%s, %d bytes)", d.Version, d.Path, d.MemorySize)
}
