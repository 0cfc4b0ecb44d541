package loader

import (
	"context"
	"time"

	"github.com/wippyai/wasm-hotreload/module"
)

// Static loads a Go-native function table. It never reports a modification
// time, so a host driving it never reloads.
type Static struct {
	funcs module.Funcs
}

// NewStatic wraps funcs.
func NewStatic(funcs module.Funcs) *Static {
	return &Static{funcs: funcs}
}

func (s *Static) Load(ctx context.Context, version int) (*module.Descriptor, error) {
	api, err := module.FromFuncs(s.funcs)
	if err != nil {
		return nil, err
	}
	return module.NewDescriptor(ctx, api, version, time.Time{}, "")
}

func (s *Static) ModTime() (time.Time, bool) {
	return time.Time{}, false
}

func (s *Static) Unload(ctx context.Context, d *module.Descriptor) error {
	return d.Release(ctx)
}
