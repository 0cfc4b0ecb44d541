package build

import (
	"context"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/wippyai/wasm-hotreload/config"
	"github.com/wippyai/wasm-hotreload/errors"
	"github.com/wippyai/wasm-hotreload/internal/wasmgen"
)

// DemoSource is a starting point for DemoCompiler sources.
const DemoSource = `# Edit and save while the host runs. Changing state_size forces a full
# reset; anything else reloads in place and keeps the frame counter.
app {
  state_size = 64
  generation = 1
  greeting   = "hello from generation 1"

  # quit_after     = 600
  # trap_on_frame  = 0
  # alloc_state_at = 0
}
`

type demoFile struct {
	App demoApp `hcl:"app,block"`
}

type demoApp struct {
	StateSize    uint32 `hcl:"state_size,optional"`
	Generation   uint32 `hcl:"generation,optional"`
	QuitAfter    uint32 `hcl:"quit_after,optional"`
	TrapOnFrame  uint32 `hcl:"trap_on_frame,optional"`
	AllocStateAt uint32 `hcl:"alloc_state_at,optional"`
	Greeting     string `hcl:"greeting,optional"`
	InitFails    bool   `hcl:"init_fails,optional"`
}

// DemoCompiler builds modules from an HCL app block. Environment variables
// are available as env.NAME.
type DemoCompiler struct{}

// Compile reads and compiles the source file.
func (DemoCompiler) Compile(_ context.Context, source string) ([]byte, error) {
	src, err := os.ReadFile(source)
	if err != nil {
		return nil, errors.New(errors.PhaseBuild, errors.KindIO).Path(source).Detail("read source").Cause(err).Build()
	}
	app, err := ParseDemo(src, source)
	if err != nil {
		return nil, err
	}
	return app.Build(), nil
}

// ParseDemo decodes an app block.
func ParseDemo(src []byte, filename string) (wasmgen.App, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return wasmgen.App{}, errors.New(errors.PhaseBuild, errors.KindInvalidData).
			Path(filename).
			Detail("parse source").
			Cause(diags).
			Build()
	}

	var f demoFile
	if diags := gohcl.DecodeBody(file.Body, config.EvalContext(), &f); diags.HasErrors() {
		return wasmgen.App{}, errors.New(errors.PhaseBuild, errors.KindInvalidData).
			Path(filename).
			Detail("decode source").
			Cause(diags).
			Build()
	}

	a := f.App
	if a.StateSize > 0 && a.StateSize < wasmgen.MinStateSize {
		return wasmgen.App{}, errors.New(errors.PhaseBuild, errors.KindInvalidInput).
			Path(filename).
			Detail("state_size must be at least %d, got %d", wasmgen.MinStateSize, a.StateSize).
			Build()
	}

	return wasmgen.App{
		Greeting:     a.Greeting,
		StateSize:    a.StateSize,
		Generation:   a.Generation,
		QuitAfter:    a.QuitAfter,
		TrapOnFrame:  a.TrapOnFrame,
		AllocStateAt: a.AllocStateAt,
		InitFails:    a.InitFails,
	}, nil
}
