package host

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-hotreload/errors"
	"github.com/wippyai/wasm-hotreload/module"
	"github.com/wippyai/wasm-hotreload/queue"
)

// Loader produces module Descriptors for the host.
type Loader interface {
	// Load loads the current artifact as version.
	Load(ctx context.Context, version int) (*module.Descriptor, error)

	// ModTime reports the artifact's modification time; false when it cannot
	// be read.
	ModTime() (time.Time, bool)

	// Unload releases a Descriptor obtained from Load.
	Unload(ctx context.Context, d *module.Descriptor) error
}

// FrameHook runs at the start of every frame, before the reload check.
type FrameHook func(ctx context.Context)

// Host owns the active module, the State and the retired modules.
type Host struct {
	loader   Loader
	queue    *queue.Queue
	log      *zap.Logger
	observer Observer
	hooks    []FrameHook
	stats    *queue.Handle[Stats]
	session  string

	active  *module.Descriptor
	state   *module.State
	retired module.RetirementList

	lastModTime   time.Time
	failedModTime time.Time
	startedAt     time.Time
	lastReload    time.Time

	frameInterval time.Duration
	nextVersion   int
	frames        uint64
	reloads       int
	resets        int
	loadFailures  int
	traps         int

	noReload   bool
	started    bool
	stopped    bool
	initFailed bool
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.log = l
		}
	}
}

// WithQueue sets the work queue drained at full reset and shutdown.
func WithQueue(q *queue.Queue) Option {
	return func(h *Host) {
		h.queue = q
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(h *Host) {
		h.observer = o
	}
}

// WithFrameInterval paces Run to at most one frame per d. 0 runs frames back
// to back.
func WithFrameInterval(d time.Duration) Option {
	return func(h *Host) {
		h.frameInterval = d
	}
}

// WithoutReload disables the per-frame reload check.
func WithoutReload() Option {
	return func(h *Host) {
		h.noReload = true
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(h *Host) {
		h.session = id
	}
}

// WithFrameHook adds a hook run at the start of every frame.
func WithFrameHook(fn FrameHook) Option {
	return func(h *Host) {
		h.hooks = append(h.hooks, fn)
	}
}

// New creates a Host that loads modules through loader.
func New(loader Loader, opts ...Option) *Host {
	h := &Host{
		loader: loader,
		log:    zap.NewNop(),
		stats:  queue.NewHandle(Stats{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.session == "" {
		h.session = uuid.NewString()
	}
	h.log = h.log.Named("host").With(zap.String("session", h.session))
	return h
}

// Session returns the session id carried on every log line.
func (h *Host) Session() string {
	return h.session
}

// State returns the current State, nil before Start and after Shutdown.
func (h *Host) State() *module.State {
	return h.state
}

// Active returns the active Descriptor.
func (h *Host) Active() *module.Descriptor {
	return h.active
}

// Retired returns the number of retired Descriptors.
func (h *Host) Retired() int {
	return h.retired.Len()
}

// RetiredVersions returns the retired versions, oldest first.
func (h *Host) RetiredVersions() []int {
	return h.retired.Versions()
}

// Stats returns the last published snapshot. Safe for concurrent use.
func (h *Host) Stats() Stats {
	return h.stats.Load()
}

// Start loads version 0 and initializes it on a zeroed State. Any failure is
// fatal and leaves nothing loaded.
func (h *Host) Start(ctx context.Context) error {
	if h.started {
		return errors.New(errors.PhaseRuntime, errors.KindAlreadyRunning).
			Detail("host already started").
			Build()
	}

	d, err := h.loader.Load(ctx, 0)
	if err != nil {
		h.log.Error("initial load failed", zap.Error(err))
		return err
	}

	state := module.NewState(d.MemorySize)
	ok, err := d.API.InitAll(ctx, state)
	if err != nil || !ok {
		if uerr := h.loader.Unload(ctx, d); uerr != nil {
			h.log.Warn("release after failed init", zap.Error(uerr))
		}
		state.Free()
		ierr := errors.InitFailure(d.Version, err)
		h.log.Error("initialization failed", zap.Int("version", d.Version), zap.Error(ierr))
		return ierr
	}

	h.active = d
	h.state = state
	h.lastModTime = d.ModTime
	h.nextVersion = d.Version + 1
	h.started = true
	h.startedAt = time.Now()

	h.log.Info("host started",
		zap.Int("version", d.Version),
		zap.Uint32("memory_size", d.MemorySize),
		zap.Bool("reload", !h.noReload))
	h.emit(Event{Kind: EventStarted, Version: d.Version, MemorySize: d.MemorySize})
	h.publish()
	return nil
}

// Step runs one frame: frame hooks, the reload check, then MainLoop. quit is
// true when the module requested shutdown or a fatal error occurred.
func (h *Host) Step(ctx context.Context) (quit bool, err error) {
	if !h.started || h.stopped || h.initFailed {
		return true, errors.NotInitialized(errors.PhaseFrame, "host")
	}

	for _, hook := range h.hooks {
		hook(ctx)
	}

	if !h.noReload {
		if _, err := h.CheckReload(ctx); err != nil {
			return true, err
		}
	}

	quit, err = h.active.API.MainLoop(ctx, h.state)
	if err != nil {
		h.traps++
		h.log.Error("frame trapped",
			zap.Int("version", h.active.Version),
			zap.Uint64("frame", h.frames),
			zap.Error(err))
		h.emit(Event{Kind: EventFrameTrap, Version: h.active.Version, Err: err})
		h.publish()
		return false, nil
	}

	h.frames++
	h.publish()
	if quit {
		h.log.Info("module requested shutdown",
			zap.Int("version", h.active.Version),
			zap.Uint64("frames", h.frames))
	}
	return quit, nil
}

// Run starts the host and runs frames until the module requests shutdown, a
// fatal error occurs or ctx is done, then shuts down. It returns the fatal
// error, if any.
func (h *Host) Run(ctx context.Context) error {
	if err := h.Start(ctx); err != nil {
		return err
	}

	var ticker *time.Ticker
	if h.frameInterval > 0 {
		ticker = time.NewTicker(h.frameInterval)
		defer ticker.Stop()
	}

	var runErr error
loop:
	for {
		if ctx.Err() != nil {
			h.log.Info("termination requested", zap.Error(context.Cause(ctx)))
			break
		}

		quit, err := h.Step(ctx)
		if err != nil {
			runErr = err
			break
		}
		if quit {
			break
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				h.log.Info("termination requested", zap.Error(context.Cause(ctx)))
				break loop
			}
		}
	}

	if err := h.Shutdown(context.WithoutCancel(ctx)); err != nil {
		if errors.IsUnloadFailure(err) {
			h.log.Warn("shutdown left modules behind", zap.Error(err))
		} else {
			h.log.Error("shutdown completed with errors", zap.Error(err))
		}
	}
	return runErr
}

// Shutdown drains the work queue, runs DeInitAll on the active module,
// releases every retired module oldest first, releases the active module and
// frees the State. Release failures are logged and returned joined; they do
// not stop the sequence. Safe to call more than once.
func (h *Host) Shutdown(ctx context.Context) error {
	if !h.started || h.stopped {
		return nil
	}
	h.stopped = true

	h.drainQueue(ctx)

	var errs []error
	version := h.active.Version
	if !h.initFailed {
		if err := h.active.API.DeInitAll(ctx, h.state); err != nil {
			h.log.Error("DeInitAll failed", zap.Int("version", version), zap.Error(err))
			errs = append(errs, err)
		}
	}

	errs = append(errs, h.releaseRetired(ctx)...)
	if err := h.loader.Unload(ctx, h.active); err != nil {
		h.log.Warn("release failed", zap.Int("version", version), zap.Error(err))
		errs = append(errs, err)
	}

	h.state.Free()
	h.state = nil
	h.active = nil

	h.log.Info("host stopped",
		zap.Int("version", version),
		zap.Uint64("frames", h.frames),
		zap.Int("reloads", h.reloads),
		zap.Int("resets", h.resets))
	h.emit(Event{Kind: EventShutdown, Version: version})
	h.publish()
	return stderrors.Join(errs...)
}

func (h *Host) drainQueue(ctx context.Context) {
	if h.queue == nil {
		return
	}
	if n := h.queue.Pending(); n > 0 {
		h.log.Debug("draining work queue", zap.Int64("pending", n))
	}
	h.queue.Drain(ctx)
}

func (h *Host) releaseRetired(ctx context.Context) []error {
	if h.retired.Len() == 0 {
		return nil
	}
	versions := h.retired.Versions()
	errs := h.retired.ReleaseAll(ctx)
	for _, err := range errs {
		h.log.Warn("release of retired module failed", zap.Error(err))
	}
	h.log.Debug("retired modules released", zap.Ints("versions", versions))
	return errs
}

func (h *Host) emit(ev Event) {
	if h.observer == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	ev.Retired = h.retired.Len()
	h.observer(ev)
}

func (h *Host) publish() {
	s := Stats{
		Session:      h.session,
		Started:      h.startedAt,
		LastReload:   h.lastReload,
		Frames:       h.frames,
		Reloads:      h.reloads,
		Resets:       h.resets,
		LoadFailures: h.loadFailures,
		Traps:        h.traps,
		Retired:      h.retired.Len(),
		Running:      h.started && !h.stopped,
	}
	if h.active != nil {
		s.Version = h.active.Version
		s.MemorySize = h.active.MemorySize
	}
	if h.queue != nil {
		s.QueuePending = h.queue.Pending()
	}
	h.stats.Swap(s)
}
