package build

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wippyai/wasm-hotreload/errors"
)

// CommandCompiler runs an external toolchain. Command is split on white
// space; the placeholders {source} and {out} are replaced in every argument.
// Quoting is not supported.
//
//	tinygo build -o {out} -target wasi {source}
type CommandCompiler struct {
	Command string

	// Dir is the working directory. Empty uses the current one.
	Dir string
}

// Compile runs the command and returns the bytes it wrote to {out}.
func (c CommandCompiler) Compile(ctx context.Context, source string) ([]byte, error) {
	fields := strings.Fields(c.Command)
	if len(fields) == 0 {
		return nil, errors.InvalidInput(errors.PhaseBuild, "empty build command")
	}

	tmp, err := os.MkdirTemp("", "hotreload-build-*")
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBuild, errors.KindIO, err, "create build directory")
	}
	defer os.RemoveAll(tmp)
	out := filepath.Join(tmp, "out.wasm")

	r := strings.NewReplacer("{source}", source, "{out}", out)
	args := make([]string, len(fields))
	for i, f := range fields {
		args[i] = r.Replace(f)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = c.Dir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return nil, errors.New(errors.PhaseBuild, errors.KindInvalidData).
			Path(source).
			Detail("%s: %s", args[0], strings.TrimSpace(output.String())).
			Cause(err).
			Build()
	}

	wasm, err := os.ReadFile(out)
	if err != nil {
		return nil, errors.New(errors.PhaseBuild, errors.KindNotFound).
			Path(source).
			Detail("command did not write {out}").
			Cause(err).
			Build()
	}
	return wasm, nil
}
