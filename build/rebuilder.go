package build

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-hotreload/errors"
	"github.com/wippyai/wasm-hotreload/queue"
)

// Result describes the latest finished rebuild.
type Result struct {
	Seq           uint64 // 1 for the first rebuild
	SourceModTime time.Time
	Finished      time.Time
	Duration      time.Duration
	Err           error
}

// Rebuilder recompiles the artifact on a work queue when the source changes.
// Poll runs on the frame goroutine; at most one rebuild is in flight.
type Rebuilder struct {
	cfg      Config
	compiler Compiler
	queue    *queue.Queue
	log      *zap.Logger

	recompiling queue.Flag
	result      *queue.Handle[Result]
	seq         atomic.Uint64

	// frame goroutine only
	seen time.Time
}

// NewRebuilder creates a Rebuilder submitting to q.
func NewRebuilder(cfg Config, c Compiler, q *queue.Queue) *Rebuilder {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("rebuilder")
	cfg.Logger = log
	return &Rebuilder{
		cfg:      cfg,
		compiler: c,
		queue:    q,
		log:      log,
		result:   queue.NewHandle(Result{}),
	}
}

// Poll submits a rebuild when the source changed since the last submitted
// one and no rebuild is running. A source that is not newer than an existing
// artifact is not rebuilt on the first poll.
func (r *Rebuilder) Poll(ctx context.Context) {
	info, err := os.Stat(r.cfg.Source)
	if err != nil {
		return
	}
	mod := info.ModTime()
	if mod.Equal(r.seen) {
		return
	}

	if r.seen.IsZero() {
		if art, err := os.Stat(r.cfg.Artifact); err == nil && !art.ModTime().Before(mod) {
			r.seen = mod
			return
		}
	}

	if !r.recompiling.TrySet() {
		return
	}
	if err := r.queue.TrySubmit(r.rebuild, mod); err != nil {
		r.recompiling.Clear()
		if errors.IsQueueOverflow(err) {
			r.log.Debug("work queue full, rebuild retried next frame")
			return
		}
		r.log.Warn("rebuild not submitted", zap.Error(err))
		return
	}
	r.seen = mod
	r.log.Debug("rebuild submitted", zap.Time("source_mtime", mod))
}

func (r *Rebuilder) rebuild(ctx context.Context, data any) {
	defer r.recompiling.Clear()

	mod, _ := data.(time.Time)
	start := time.Now()
	err := Build(ctx, r.compiler, r.cfg)
	res := Result{
		Seq:           r.seq.Add(1),
		SourceModTime: mod,
		Finished:      time.Now(),
		Duration:      time.Since(start),
		Err:           err,
	}
	r.result.Swap(res)

	if err != nil {
		r.log.Warn("rebuild failed", zap.Uint64("seq", res.Seq), zap.Error(err))
		return
	}
	r.log.Info("rebuild finished", zap.Uint64("seq", res.Seq), zap.Duration("duration", res.Duration))
}

// Last returns the latest finished rebuild. Seq is 0 before the first one.
func (r *Rebuilder) Last() Result {
	return r.result.Load()
}

// InFlight reports whether a rebuild is queued or running.
func (r *Rebuilder) InFlight() bool {
	return r.recompiling.IsSet()
}
