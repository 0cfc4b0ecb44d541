package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/wippyai/wasm-hotreload/errors"
)

// Defaults.
const (
	DefaultArtifact      = "app.wasm"
	DefaultReloadDir     = "hotreload"
	DefaultLockFile      = "lock.tmp"
	DefaultWorkers       = 2
	DefaultQueueCapacity = 256
	DefaultFPS           = 60
	DefaultLogLevel      = "info"
)

// Config holds host settings.
type Config struct {
	Artifact     string
	ReloadDir    string
	LockFile     string
	Source       string
	BuildCommand string
	LogLevel     string
	LogFormat    string // console, json, or empty to pick by terminal

	FrameInterval    time.Duration
	Workers          int
	QueueCapacity    int
	MemoryLimitPages uint32

	NoReload       bool
	SingleInstance bool
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Artifact:       DefaultArtifact,
		ReloadDir:      DefaultReloadDir,
		LockFile:       DefaultLockFile,
		Workers:        DefaultWorkers,
		QueueCapacity:  DefaultQueueCapacity,
		FrameInterval:  time.Second / DefaultFPS,
		LogLevel:       DefaultLogLevel,
		SingleInstance: true,
	}
}

// SetFPS sets FrameInterval from a frame rate. 0 disables pacing.
func (c *Config) SetFPS(fps int) {
	if fps <= 0 {
		c.FrameInterval = 0
		return
	}
	c.FrameInterval = time.Second / time.Duration(fps)
}

// fileConfig mirrors Config with optional attributes.
type fileConfig struct {
	Artifact         *string `hcl:"artifact,optional"`
	ReloadDir        *string `hcl:"reload_dir,optional"`
	LockFile         *string `hcl:"lock_file,optional"`
	Source           *string `hcl:"source,optional"`
	BuildCommand     *string `hcl:"build_command,optional"`
	LogLevel         *string `hcl:"log_level,optional"`
	LogFormat        *string `hcl:"log_format,optional"`
	FrameInterval    *string `hcl:"frame_interval,optional"`
	FPS              *int    `hcl:"fps,optional"`
	Workers          *int    `hcl:"workers,optional"`
	QueueCapacity    *int    `hcl:"queue_capacity,optional"`
	MemoryLimitPages *uint32 `hcl:"memory_limit_pages,optional"`
	NoReload         *bool   `hcl:"no_reload,optional"`
	SingleInstance   *bool   `hcl:"single_instance,optional"`
}

// EvalContext exposes the process environment as env.NAME.
func EvalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

// Load reads the HCL file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindIO).
			Path(path).
			Detail("read config").
			Cause(err).
			Build()
	}

	cfg, err := Parse(src, path)
	if err != nil {
		return nil, err
	}
	cfg.resolve(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes HCL source over the defaults. filename is used in
// diagnostics. Paths are left as written.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(filename).
			Detail("parse config").
			Cause(diags).
			Build()
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, EvalContext(), &fc)
	if diags.HasErrors() {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(filename).
			Detail("decode config").
			Cause(diags).
			Build()
	}

	cfg := Default()
	setString(&cfg.Artifact, fc.Artifact)
	setString(&cfg.ReloadDir, fc.ReloadDir)
	setString(&cfg.LockFile, fc.LockFile)
	setString(&cfg.Source, fc.Source)
	setString(&cfg.BuildCommand, fc.BuildCommand)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	if fc.FPS != nil {
		cfg.SetFPS(*fc.FPS)
	}
	if fc.FrameInterval != nil {
		d, err := time.ParseDuration(*fc.FrameInterval)
		if err != nil {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(filename).
				Detail("frame_interval").
				Cause(err).
				Build()
		}
		cfg.FrameInterval = d
	}
	if fc.Workers != nil {
		cfg.Workers = *fc.Workers
	}
	if fc.QueueCapacity != nil {
		cfg.QueueCapacity = *fc.QueueCapacity
	}
	if fc.MemoryLimitPages != nil {
		cfg.MemoryLimitPages = *fc.MemoryLimitPages
	}
	if fc.NoReload != nil {
		cfg.NoReload = *fc.NoReload
	}
	if fc.SingleInstance != nil {
		cfg.SingleInstance = *fc.SingleInstance
	}
	return cfg, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// resolve makes relative paths relative to dir.
func (c *Config) resolve(dir string) {
	for _, p := range []*string{&c.Artifact, &c.ReloadDir, &c.LockFile, &c.Source} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// LockPath returns the build-lock marker path. A bare file name is placed next
// to the artifact.
func (c *Config) LockPath() string {
	if c.LockFile == "" || filepath.IsAbs(c.LockFile) || strings.ContainsRune(c.LockFile, filepath.Separator) {
		return c.LockFile
	}
	return filepath.Join(filepath.Dir(c.Artifact), c.LockFile)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf(format, args...)))
	}

	if c.Artifact == "" {
		invalid("artifact must be set")
	}
	if c.ReloadDir == "" {
		invalid("reload_dir must be set")
	}
	if c.Workers < 1 {
		invalid("workers must be at least 1, got %d", c.Workers)
	}
	if c.QueueCapacity < 2 {
		invalid("queue_capacity must be at least 2, got %d", c.QueueCapacity)
	}
	if c.FrameInterval < 0 {
		invalid("frame_interval must not be negative, got %s", c.FrameInterval)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		invalid("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		invalid("log_format must be console or json, got %q", c.LogFormat)
	}
	if c.BuildCommand != "" && c.Source == "" {
		invalid("build_command requires source")
	}

	return stderrors.Join(errs...)
}
