package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-hotreload/build"
)

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return &ExitError{Code: 0}
		}
		return &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() > 0 {
		return &ExitError{Code: 2, Message: fmt.Sprintf("unexpected argument %q", fs.Arg(0))}
	}
	return nil
}

func compilerFor(command string) build.Compiler {
	if command != "" {
		return build.CommandCompiler{Command: command}
	}
	return build.DemoCompiler{}
}

func buildCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("hotreload build", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		source   = fs.String("source", "app.hcl", "source file")
		out      = fs.String("out", "app.wasm", "artifact to write")
		lock     = fs.String("lock", "", "build-lock marker; default lock.tmp next to -out")
		buildCmd = fs.String("build-cmd", "", "compiler command with {source} and {out}; empty uses the HCL demo compiler")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	lockPath := *lock
	if lockPath == "" {
		lockPath = filepath.Join(filepath.Dir(*out), "lock.tmp")
	}

	cfg := build.Config{Source: *source, Artifact: *out, LockFile: lockPath}
	if err := build.Build(ctx, compilerFor(*buildCmd), cfg); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "built %s\n", *out)
	return nil
}

func demoCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("hotreload demo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		out   = fs.String("out", "demo", "directory for app.hcl and app.wasm")
		force = fs.Bool("force", false, "overwrite an existing app.hcl")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}
	source := filepath.Join(*out, "app.hcl")
	artifact := filepath.Join(*out, "app.wasm")

	if _, err := os.Stat(source); err == nil && !*force {
		return &ExitError{Code: 1, Message: source + " exists; use -force to overwrite"}
	}
	if err := os.WriteFile(source, []byte(build.DemoSource), 0o644); err != nil {
		return err
	}

	cfg := build.Config{
		Source:   source,
		Artifact: artifact,
		LockFile: filepath.Join(*out, "lock.tmp"),
		Logger:   zap.NewNop(),
	}
	if err := build.Build(ctx, build.DemoCompiler{}, cfg); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "wrote %s and %s\n\nrun it with:\n  hotreload run -artifact %s -source %s -reload-dir %s -i\n",
		source, artifact, artifact, source, filepath.Join(*out, "hotreload"))
	return nil
}
