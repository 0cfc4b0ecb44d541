package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-hotreload/build"
	"github.com/wippyai/wasm-hotreload/config"
	"github.com/wippyai/wasm-hotreload/engine"
	"github.com/wippyai/wasm-hotreload/errors"
	"github.com/wippyai/wasm-hotreload/host"
	"github.com/wippyai/wasm-hotreload/loader"
	"github.com/wippyai/wasm-hotreload/queue"
)

// LogFileName receives host logs while the dashboard owns the terminal.
const LogFileName = "host.log"

type runOptions struct {
	cfg         *config.Config
	interactive bool
}

func parseRunFlags(args []string, output io.Writer) (*runOptions, error) {
	def := config.Default()
	fs := flag.NewFlagSet("hotreload run", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, "Usage: hotreload run [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	var (
		configPath     = fs.String("config", "", "HCL config file; flags override its values")
		artifact       = fs.String("artifact", def.Artifact, "application module to load and watch")
		reloadDir      = fs.String("reload-dir", def.ReloadDir, "directory for versioned module copies")
		lockFile       = fs.String("lock", def.LockFile, "build-lock marker; loading is skipped while it exists")
		workers        = fs.Int("workers", def.Workers, "work queue workers")
		queueCapacity  = fs.Int("queue-capacity", def.QueueCapacity, "work queue ring size")
		fps            = fs.Int("fps", int(time.Second/def.FrameInterval), "frame rate limit, 0 runs unpaced")
		memoryLimit    = fs.Uint("memory-limit-pages", 0, "per-module memory limit in 64KiB pages, 0 for the engine default")
		source         = fs.String("source", "", "source to rebuild the artifact from when it changes")
		buildCmd       = fs.String("build-cmd", "", "compiler command with {source} and {out}; empty uses the HCL demo compiler")
		noReload       = fs.Bool("no-reload", false, "load once and never reload")
		singleInstance = fs.Bool("single-instance", def.SingleInstance, "exit if another host uses the reload directory")
		interactive    = fs.Bool("i", false, "interactive dashboard")
		logLevel       = fs.String("log-level", def.LogLevel, "debug, info, warn or error")
		logFormat      = fs.String("log-format", "", "console or json; default depends on the terminal")
	)

	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	cfg := def
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "artifact":
			cfg.Artifact = *artifact
		case "reload-dir":
			cfg.ReloadDir = *reloadDir
		case "lock":
			cfg.LockFile = *lockFile
		case "workers":
			cfg.Workers = *workers
		case "queue-capacity":
			cfg.QueueCapacity = *queueCapacity
		case "fps":
			cfg.SetFPS(*fps)
		case "memory-limit-pages":
			cfg.MemoryLimitPages = uint32(*memoryLimit)
		case "source":
			cfg.Source = *source
		case "build-cmd":
			cfg.BuildCommand = *buildCmd
		case "no-reload":
			cfg.NoReload = *noReload
		case "single-instance":
			cfg.SingleInstance = *singleInstance
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return &runOptions{cfg: cfg, interactive: *interactive}, nil
}

func runCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseRunFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg := opts.cfg

	var (
		sink zapcore.WriteSyncer = zapcore.AddSync(stderr)
		tty  bool
	)
	if f, ok := stderr.(*os.File); ok {
		tty = isTerminal(f)
	}
	if opts.interactive {
		if f, ok := stdout.(*os.File); !ok || !isTerminal(f) {
			return &ExitError{Code: 2, Message: "-i needs a terminal"}
		}
		if err := os.MkdirAll(cfg.ReloadDir, 0o755); err != nil {
			return err
		}
		logFile, err := os.OpenFile(filepath.Join(cfg.ReloadDir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer logFile.Close()
		sink, tty = zapcore.AddSync(logFile), false
	}

	log, err := newLogger(cfg.LogLevel, cfg.LogFormat, sink, tty)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	defer func() { _ = log.Sync() }()
	engine.SetLogger(log)

	if cfg.SingleInstance {
		lock, err := host.AcquireInstanceLock(cfg.ReloadDir)
		if err != nil {
			if errors.IsAlreadyRunning(err) {
				log.Info("host already running, exiting", zap.String("lock", host.InstanceLockPath(cfg.ReloadDir)))
				return nil
			}
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				log.Warn("release instance lock", zap.Error(err))
			}
		}()
	}

	r, err := newRunner(ctx, cfg, log, stdout, stderr, opts.interactive)
	if err != nil {
		return err
	}
	defer r.close(ctx)

	if opts.interactive {
		err = r.runDashboard(ctx)
	} else {
		err = r.host.Run(ctx)
	}
	return describeRunError(err)
}

// describeRunError names the fatal failure classes of a run.
func describeRunError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.IsLoadFailure(err):
		return &ExitError{Code: 1, Message: "application module could not be loaded: " + err.Error()}
	case errors.IsInitFailure(err):
		return &ExitError{Code: 1, Message: "application failed to initialize: " + err.Error()}
	}
	return err
}

// runner wires the engine, queue, loader, rebuilder and host for one run.
type runner struct {
	cfg       *config.Config
	log       *zap.Logger
	engine    *engine.WazeroEngine
	queue     *queue.Queue
	pool      *queue.Pool
	rebuilder *build.Rebuilder
	host      *host.Host

	events chan host.Event
	guest  chan string
}

func newRunner(ctx context.Context, cfg *config.Config, log *zap.Logger, stdout, stderr io.Writer, interactive bool) (*runner, error) {
	r := &runner{cfg: cfg, log: log}

	engCfg := &engine.Config{
		Stdout:           stdout,
		Stderr:           stderr,
		MemoryLimitPages: cfg.MemoryLimitPages,
	}
	if interactive {
		r.events = make(chan host.Event, 64)
		r.guest = make(chan string, 64)
		engCfg.Stdout, engCfg.Stderr = io.Discard, io.Discard
		engCfg.LogSink = func(_, message string) {
			select {
			case r.guest <- message:
			default:
			}
		}
	}

	eng, err := engine.NewWazeroEngineWithConfig(ctx, engCfg)
	if err != nil {
		return nil, err
	}
	r.engine = eng

	q, err := queue.New(queue.WithCapacity(cfg.QueueCapacity), queue.WithLogger(log))
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}
	r.queue = q
	r.pool = queue.NewPool(q, cfg.Workers, queue.WithPoolLogger(log))

	lockPath := cfg.LockPath()
	ld := loader.New(eng, loader.Config{
		Artifact:  cfg.Artifact,
		ReloadDir: cfg.ReloadDir,
		LockFile:  lockPath,
		Logger:    log,
	})

	hostOpts := []host.Option{
		host.WithLogger(log),
		host.WithQueue(q),
		host.WithFrameInterval(cfg.FrameInterval),
	}
	if cfg.NoReload {
		hostOpts = append(hostOpts, host.WithoutReload())
	}
	if r.events != nil {
		hostOpts = append(hostOpts, host.WithObserver(func(ev host.Event) {
			select {
			case r.events <- ev:
			default:
			}
		}))
	}

	if cfg.Source != "" {
		var c build.Compiler = build.DemoCompiler{}
		if cfg.BuildCommand != "" {
			c = build.CommandCompiler{Command: cfg.BuildCommand}
		}
		bcfg := build.Config{
			Source:   cfg.Source,
			Artifact: cfg.Artifact,
			LockFile: lockPath,
			Logger:   log,
		}
		if _, err := os.Stat(cfg.Artifact); os.IsNotExist(err) {
			if err := build.Build(ctx, c, bcfg); err != nil {
				r.close(ctx)
				return nil, err
			}
		}
		r.rebuilder = build.NewRebuilder(bcfg, c, q)
		if !cfg.NoReload {
			hostOpts = append(hostOpts, host.WithFrameHook(r.rebuilder.Poll))
		}
	}

	r.host = host.New(ld, hostOpts...)
	return r, nil
}

// close stops the workers and the engine. The host has drained the queue by
// then.
func (r *runner) close(ctx context.Context) {
	if r.pool != nil {
		r.pool.Close()
	}
	if r.engine != nil {
		if err := r.engine.Close(context.WithoutCancel(ctx)); err != nil {
			r.log.Warn("close engine", zap.Error(err))
		}
	}
}
