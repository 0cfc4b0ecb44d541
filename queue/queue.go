package queue

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-hotreload/errors"
)

// DefaultCapacity is the slot count used when none is configured.
const DefaultCapacity = 256

// Callback is the work function of one entry.
type Callback func(ctx context.Context, data any)

type entry struct {
	fn   Callback
	data any
}

// Queue is a fixed-capacity MPMC work queue. All methods except Drain are
// safe for concurrent use.
type Queue struct {
	slots []atomic.Pointer[entry]
	wake  chan struct{}
	log   *zap.Logger

	read    atomic.Uint64
	_       [56]byte
	write   atomic.Uint64
	_       [56]byte
	reserve atomic.Uint64
	_       [56]byte

	goal  atomic.Int64
	count atomic.Int64

	size     int
	capacity uint64
}

// Option configures a Queue.
type Option func(*Queue)

// WithCapacity sets the slot count. The queue holds capacity-1 entries.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		q.size = n
	}
}

// WithLogger sets the logger used for recovered callback panics.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// New creates a Queue. The capacity must be at least 2.
func New(opts ...Option) (*Queue, error) {
	q := &Queue{
		size: DefaultCapacity,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.size < 2 {
		return nil, errors.New(errors.PhaseQueue, errors.KindInvalidInput).
			Value(q.size).
			Detail("capacity must be at least 2, got %d", q.size).
			Build()
	}
	q.capacity = uint64(q.size)
	q.slots = make([]atomic.Pointer[entry], q.capacity)
	q.wake = make(chan struct{}, q.capacity)
	q.log = q.log.Named("queue")
	return q, nil
}

// Capacity returns the slot count.
func (q *Queue) Capacity() int {
	return int(q.capacity)
}

// Submit adds an entry and signals one waiter. It never blocks. A full queue
// is a programming error and panics with a QueueOverflow *errors.Error.
func (q *Queue) Submit(fn Callback, data any) {
	if err := q.TrySubmit(fn, data); err != nil {
		panic(err)
	}
}

// TrySubmit adds an entry and signals one waiter, or returns a QueueOverflow
// error when the queue is full.
func (q *Queue) TrySubmit(fn Callback, data any) error {
	if fn == nil {
		return errors.InvalidInput(errors.PhaseQueue, "nil callback")
	}

	var idx uint64
	for {
		r := q.read.Load()
		idx = q.reserve.Load()
		if idx+1-r >= q.capacity {
			return errors.QueueOverflow(int(q.capacity))
		}
		if q.reserve.CompareAndSwap(idx, idx+1) {
			break
		}
	}

	q.slots[idx%q.capacity].Store(&entry{fn: fn, data: data})
	q.goal.Add(1)

	// publish in reservation order
	for !q.write.CompareAndSwap(idx, idx+1) {
		runtime.Gosched()
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// TryTakeOne claims and runs at most one entry. It reports true when the
// caller should sleep: the queue was empty, or another consumer claimed the
// entry first.
func (q *Queue) TryTakeOne(ctx context.Context) (shouldSleep bool) {
	r := q.read.Load()
	if r == q.write.Load() {
		return true
	}

	slot := &q.slots[r%q.capacity]
	e := slot.Load()
	if !q.read.CompareAndSwap(r, r+1) {
		return true
	}
	slot.CompareAndSwap(e, nil)

	q.run(ctx, e)
	q.count.Add(1)
	return false
}

func (q *Queue) run(ctx context.Context, e *entry) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("work item panicked",
				zap.Any("panic", r),
				zap.String("data", fmt.Sprintf("%T", e.data)))
		}
	}()
	e.fn(ctx, e.data)
}

// Wait blocks until an entry may be available or ctx is done. It returns
// false when ctx is done.
func (q *Queue) Wait(ctx context.Context) bool {
	select {
	case <-q.wake:
		return true
	case <-ctx.Done():
		return false
	}
}

// Drain runs entries on the calling goroutine until every submitted entry has
// completed, then resets the completion counters to zero. Entries claimed by
// other consumers are waited for, not cancelled.
func (q *Queue) Drain(ctx context.Context) {
	for q.goal.Load() != q.count.Load() {
		if q.TryTakeOne(ctx) {
			runtime.Gosched()
		}
	}
	q.goal.Store(0)
	q.count.Store(0)
}

// Pending returns submitted entries that have not completed.
func (q *Queue) Pending() int64 {
	return q.goal.Load() - q.count.Load()
}

// Len returns published entries not yet claimed.
func (q *Queue) Len() int {
	return int(q.write.Load() - q.read.Load())
}

// Goal returns the completion goal.
func (q *Queue) Goal() int64 {
	return q.goal.Load()
}

// Completed returns the completion count.
func (q *Queue) Completed() int64 {
	return q.count.Load()
}
