package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-hotreload/build"
	"github.com/wippyai/wasm-hotreload/config"
	"github.com/wippyai/wasm-hotreload/errors"
	"github.com/wippyai/wasm-hotreload/host"
)

func TestExecute_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, execute(context.Background(), nil, &stdout, &stderr), "no args")
	assert.Contains(t, stderr.String(), "Usage")
	assert.Equal(t, 2, execute(context.Background(), []string{"fly"}, &stdout, &stderr), "unknown command")
	assert.Equal(t, 0, execute(context.Background(), []string{"help"}, &stdout, &stderr), "help")
}

func TestParseRunFlags_Defaults(t *testing.T) {
	opts, err := parseRunFlags(nil, &bytes.Buffer{})
	require.NoError(t, err)
	def := config.Default()
	assert.Equal(t, def.Artifact, opts.cfg.Artifact)
	assert.Equal(t, def.Workers, opts.cfg.Workers)
	assert.Equal(t, def.FrameInterval, opts.cfg.FrameInterval)
	assert.False(t, opts.interactive, "interactive by default")
}

func TestParseRunFlags_Overrides(t *testing.T) {
	opts, err := parseRunFlags([]string{
		"-artifact", "x.wasm", "-workers", "3", "-fps", "0", "-no-reload", "-i",
		"-queue-capacity", "8", "-log-format", "json", "-single-instance=false",
	}, &bytes.Buffer{})
	require.NoError(t, err)
	c := opts.cfg
	assert.Equal(t, "x.wasm", c.Artifact)
	assert.Equal(t, 3, c.Workers)
	assert.Equal(t, time.Duration(0), c.FrameInterval)
	assert.True(t, c.NoReload)
	assert.Equal(t, 8, c.QueueCapacity)
	assert.Equal(t, "json", c.LogFormat)
	assert.False(t, c.SingleInstance)
	assert.True(t, opts.interactive)
}

func TestParseRunFlags_ConfigFileThenFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host.hcl")
	require.NoError(t, os.WriteFile(path, []byte("workers = 5\nqueue_capacity = 32\n"), 0o644))

	opts, err := parseRunFlags([]string{"-config", path, "-workers", "7"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 7, opts.cfg.Workers, "flag should win")
	assert.Equal(t, 32, opts.cfg.QueueCapacity, "file value lost")
	assert.Equal(t, filepath.Join(dir, config.DefaultArtifact), opts.cfg.Artifact)
}

func TestParseRunFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"help", []string{"-h"}, 0},
		{"unknown flag", []string{"-turbo"}, 2},
		{"extra argument", []string{"app.wasm"}, 2},
		{"invalid value", []string{"-workers", "0"}, 2},
		{"negative capacity", []string{"-queue-capacity", "-1"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRunFlags(tt.args, &bytes.Buffer{})
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, tt.code, exitErr.Code)
		})
	}
}

func TestDescribeRunError(t *testing.T) {
	assert.NoError(t, describeRunError(nil))

	tests := []struct {
		name   string
		err    error
		prefix string
	}{
		{"load", errors.LoadFailure(errors.KindNotFound, "app.wasm", "stat artifact", nil), "application module could not be loaded: "},
		{"missing entry points", &errors.MissingEntryPointsError{Path: "app.wasm"}, "application module could not be loaded: "},
		{"init", errors.InitFailure(0, nil), "application failed to initialize: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := describeRunError(tt.err)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 1, exitErr.Code)
			assert.Equal(t, tt.prefix+tt.err.Error(), exitErr.Message)
		})
	}

	other := errors.Trap(errors.PhaseFrame, "MainLoop", stderrors.New("unreachable"))
	assert.Same(t, other, describeRunError(other), "other failures pass through")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger("warn", "", zapcore.AddSync(&buf), false)
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown")
	_ = log.Sync()
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	_, err = newLogger("loud", "", zapcore.AddSync(&buf), false)
	assert.Error(t, err, "bad level accepted")
	_, err = newLogger("info", "xml", zapcore.AddSync(&buf), false)
	assert.Error(t, err, "bad format accepted")

	buf.Reset()
	log, err = newLogger("info", "console", zapcore.AddSync(&buf), false)
	require.NoError(t, err)
	log.Info("plain")
	assert.Contains(t, buf.String(), "INFO")
	assert.NotContains(t, buf.String(), "{")
}

func writeSource(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "app.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDemoCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "demo")
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, execute(context.Background(), []string{"demo", "-out", dir}, &stdout, &stderr), stderr.String())
	for _, name := range []string{"app.hcl", "app.wasm"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.NoFileExists(t, filepath.Join(dir, "lock.tmp"), "build lock left behind")
	assert.Contains(t, stdout.String(), "hotreload run")

	assert.Equal(t, 1, execute(context.Background(), []string{"demo", "-out", dir}, &stdout, &stderr), "second demo without -force")
}

func TestBuildAndRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := writeSource(t, dir, `app {
  state_size = 32
  generation = 1
  quit_after = 3
}`)
	art := filepath.Join(dir, "out", "app.wasm")
	reloadDir := filepath.Join(dir, "hotreload")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, execute(ctx, []string{"build", "-source", src, "-out", art}, &stdout, &stderr), stderr.String())

	code := execute(ctx, []string{
		"run", "-artifact", art, "-reload-dir", reloadDir,
		"-fps", "0", "-log-level", "error",
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	copies, _ := filepath.Glob(filepath.Join(reloadDir, "app_*.wasm"))
	assert.Empty(t, copies, "versioned copies left behind")
}

func TestRun_BuildsMissingArtifact(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, `app { quit_after = 2 }`)
	art := filepath.Join(dir, "app.wasm")

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{
		"run", "-artifact", art, "-source", src, "-reload-dir", filepath.Join(dir, "hr"),
		"-fps", "0", "-log-level", "error", "-single-instance=false",
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.FileExists(t, art, "artifact not built")
}

func TestRun_MissingArtifact(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{
		"run", "-artifact", filepath.Join(dir, "none.wasm"), "-reload-dir", filepath.Join(dir, "hr"),
		"-log-level", "error",
	}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "application module could not be loaded")
}

func TestRun_InitFailureExits(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, `app { init_fails = true }`)
	art := filepath.Join(dir, "app.wasm")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, execute(context.Background(), []string{"build", "-source", src, "-out", art}, &stdout, &stderr), stderr.String())

	code := execute(context.Background(), []string{
		"run", "-artifact", art, "-reload-dir", filepath.Join(dir, "hr"),
		"-fps", "0", "-log-level", "error",
	}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "application failed to initialize")
}

func TestRun_SecondInstanceExits(t *testing.T) {
	dir := t.TempDir()
	reloadDir := filepath.Join(dir, "hr")
	lock, err := host.AcquireInstanceLock(reloadDir)
	require.NoError(t, err)
	defer lock.Release()

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{
		"run", "-artifact", filepath.Join(dir, "none.wasm"), "-reload-dir", reloadDir,
		"-log-level", "error",
	}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
}

func TestDashboardModel(t *testing.T) {
	events := make(chan host.Event, 4)
	guest := make(chan string, 4)
	done := make(chan struct{})
	var cancelled int

	stats := host.Stats{Session: "abc", Version: 2, Frames: 40, Reloads: 2, Resets: 1, Running: true, MemorySize: 64}
	rebuild := func() (bool, build.Result) {
		return false, build.Result{Seq: 3, Duration: 12 * time.Millisecond}
	}
	m := newDashboardModel("app.wasm", "hotreload/host.log",
		func() host.Stats { return stats }, rebuild, events, guest, done, func() { cancelled++ })

	require.NotNil(t, m.Init(), "Init returned no command")

	m.Update(tickMsg(time.Now()))
	m.Update(eventMsg(host.Event{Kind: host.EventReloaded, Version: 2, Time: time.Now()}))
	m.Update(eventMsg(host.Event{Kind: host.EventLoadFailed, Version: 3, Time: time.Now(), Err: stderrors.New("broken module")}))
	m.Update(guestMsg("hello from generation 2"))

	view := m.View()
	for _, s := range []string{"running", "abc", "v2", "40", "2 (1 resets)", "#3 ok", "reloaded", "broken module", "hello from generation 2", "hotreload/host.log"} {
		assert.Contains(t, view, s)
	}

	for i := 0; i < maxEvents+3; i++ {
		m.Update(eventMsg(host.Event{Kind: host.EventFrameTrap}))
	}
	assert.Len(t, m.recent, maxEvents)

	q := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}
	m.Update(q)
	m.Update(q)
	assert.Equal(t, 1, cancelled)
	assert.Contains(t, m.View(), "stopping")

	_, cmd := m.Update(doneMsg{})
	assert.NotNil(t, cmd, "done should quit")
	assert.Contains(t, m.View(), "stopped")
}

func TestDashboardModel_WaitEventDone(t *testing.T) {
	done := make(chan struct{})
	close(done)
	m := newDashboardModel("app.wasm", "host.log", func() host.Stats { return host.Stats{} }, nil,
		make(chan host.Event), make(chan string), done, func() {})
	_, ok := m.waitEvent().(doneMsg)
	assert.True(t, ok, "waitEvent should report done")
	assert.Contains(t, m.View(), "starting")
}
