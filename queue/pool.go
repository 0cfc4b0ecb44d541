package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DefaultWorkers is the worker count used when none is configured.
const DefaultWorkers = 2

type workerKey struct{}

// WorkerIndex returns the index of the pool worker running ctx's callback.
func WorkerIndex(ctx context.Context) (int, bool) {
	i, ok := ctx.Value(workerKey{}).(int)
	return i, ok
}

// Pool runs a fixed number of worker goroutines against a Queue.
type Pool struct {
	q      *Queue
	log    *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	n      int
	once   sync.Once
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l *zap.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// NewPool starts n workers. n <= 0 uses DefaultWorkers.
func NewPool(q *Queue, n int, opts ...PoolOption) *Pool {
	if n <= 0 {
		n = DefaultWorkers
	}
	p := &Pool{
		q:   q,
		n:   n,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Named("pool")

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker(context.WithValue(ctx, workerKey{}, i), i)
	}
	p.log.Debug("workers started", zap.Int("workers", n))
	return p
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.log.Debug("worker started", zap.Int("worker", id))

	for ctx.Err() == nil {
		if p.q.TryTakeOne(ctx) {
			if !p.q.Wait(ctx) {
				break
			}
		}
	}
	p.log.Debug("worker stopped", zap.Int("worker", id))
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return p.n
}

// Close stops the workers after their current entry and waits for them.
// Unclaimed entries stay in the queue. Safe to call more than once.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
	})
}
