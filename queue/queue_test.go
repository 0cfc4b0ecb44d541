package queue

import (
	"context"
	stderrors "errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-hotreload/errors"
)

func newQueue(t *testing.T, capacity int) *Queue {
	t.Helper()
	q, err := New(WithCapacity(capacity))
	require.NoError(t, err)
	return q
}

func TestNew_Defaults(t *testing.T) {
	q, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultCapacity, q.Capacity())
	assert.Zero(t, q.Len())
	assert.Zero(t, q.Pending())
}

func TestNew_RejectsTinyCapacity(t *testing.T) {
	for _, n := range []int{math.MinInt, -1, 0, 1} {
		var (
			q   *Queue
			err error
		)
		require.NotPanics(t, func() { q, err = New(WithCapacity(n)) }, "capacity %d", n)
		require.Error(t, err)
		assert.Nil(t, q)
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseQueue, Kind: errors.KindInvalidInput})

		var e *errors.Error
		require.True(t, stderrors.As(err, &e))
		assert.Equal(t, n, e.Value)
	}
}

func TestNew_SmallestCapacity(t *testing.T) {
	q := newQueue(t, 2)
	assert.Equal(t, 2, q.Capacity())
	require.NoError(t, q.TrySubmit(func(context.Context, any) {}, nil))
	assert.True(t, errors.IsQueueOverflow(q.TrySubmit(func(context.Context, any) {}, nil)))
}

func TestTryTakeOne_EmptySleeps(t *testing.T) {
	q := newQueue(t, 4)
	assert.True(t, q.TryTakeOne(context.Background()))
}

func TestSubmit_GoalMinusCountIsOutstanding(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, 16)

	var ran int
	for i := 0; i < 5; i++ {
		q.Submit(func(context.Context, any) { ran++ }, nil)
	}
	assert.EqualValues(t, 5, q.Pending())
	assert.Equal(t, 5, q.Len())

	require.False(t, q.TryTakeOne(ctx))
	require.False(t, q.TryTakeOne(ctx))
	assert.EqualValues(t, 3, q.Pending())
	assert.EqualValues(t, 5, q.Goal())
	assert.EqualValues(t, 2, q.Completed())
	assert.Equal(t, 2, ran)
}

func TestSubmit_PassesData(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, 4)

	var got any
	q.Submit(func(_ context.Context, data any) { got = data }, "payload")
	require.False(t, q.TryTakeOne(ctx))
	assert.Equal(t, "payload", got)
}

func TestSubmit_OverflowPanics(t *testing.T) {
	q := newQueue(t, 4)
	noop := func(context.Context, any) {}

	// a ring of 4 slots holds 3 entries
	for i := 0; i < 3; i++ {
		q.Submit(noop, nil)
	}

	defer func() {
		r := recover()
		require.NotNil(t, r, "Submit on a full queue must panic")
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.IsQueueOverflow(err))
	}()
	q.Submit(noop, nil)
}

func TestTrySubmit_Overflow(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, 2)
	noop := func(context.Context, any) {}

	require.NoError(t, q.TrySubmit(noop, nil))
	err := q.TrySubmit(noop, nil)
	assert.True(t, errors.IsQueueOverflow(err))

	// room again once an entry is claimed
	require.False(t, q.TryTakeOne(ctx))
	assert.NoError(t, q.TrySubmit(noop, nil))
}

func TestTrySubmit_NilCallback(t *testing.T) {
	q := newQueue(t, 4)
	assert.Error(t, q.TrySubmit(nil, nil))
	assert.Zero(t, q.Pending())
}

func TestQueue_WrapsAround(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, 4)

	var sum int
	for round := 0; round < 10; round++ {
		for i := 1; i <= 3; i++ {
			v := i
			q.Submit(func(context.Context, any) { sum += v }, nil)
		}
		q.Drain(ctx)
	}
	assert.Equal(t, 60, sum)
}

func TestDrain_ResetsCounters(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, 64)

	var ran atomic.Int64
	for i := 0; i < 40; i++ {
		q.Submit(func(context.Context, any) { ran.Add(1) }, nil)
	}
	q.Drain(ctx)

	assert.EqualValues(t, 40, ran.Load())
	assert.Zero(t, q.Goal())
	assert.Zero(t, q.Completed())
	assert.Zero(t, q.Pending())
	assert.Zero(t, q.Len())
}

func TestDrain_EmptyReturns(t *testing.T) {
	q := newQueue(t, 4)
	done := make(chan struct{})
	go func() {
		q.Drain(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Drain on an empty queue blocked")
	}
}

func TestDrain_WaitsForClaimedEntries(t *testing.T) {
	q := newQueue(t, 8)
	pool := NewPool(q, 1)
	defer pool.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	var finished atomic.Bool
	q.Submit(func(context.Context, any) {
		close(started)
		<-release
		finished.Store(true)
	}, nil)
	<-started

	drained := make(chan struct{})
	go func() {
		q.Drain(context.Background())
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("Drain returned while an entry was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("Drain did not return")
	}
	assert.True(t, finished.Load())
}

func TestCallbackPanicCountsAsCompleted(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, 4)
	q.Submit(func(context.Context, any) { panic("boom") }, nil)

	require.NotPanics(t, func() { q.TryTakeOne(ctx) })
	assert.Zero(t, q.Pending())
}

func TestConcurrentProducersConsumers_ExactlyOnce(t *testing.T) {
	const (
		producers   = 8
		perProducer = 500
		total       = producers * perProducer
	)
	q := newQueue(t, total+1)
	pool := NewPool(q, 4)
	defer pool.Close()

	seen := make([]atomic.Int32, total)
	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Submit(func(_ context.Context, data any) {
					seen[data.(int)].Add(1)
				}, p*perProducer+i)
			}
		}(p)
	}
	wg.Wait()
	q.Drain(context.Background())

	for i := range seen {
		require.EqualValues(t, 1, seen[i].Load(), "entry %d", i)
	}
	assert.Zero(t, q.Pending())
}

func TestPool_WorkerIndexInContext(t *testing.T) {
	q := newQueue(t, 8)
	pool := NewPool(q, 3)
	defer pool.Close()
	assert.Equal(t, 3, pool.Size())

	got := make(chan int, 1)
	q.Submit(func(ctx context.Context, _ any) {
		i, ok := WorkerIndex(ctx)
		if !ok {
			i = -1
		}
		got <- i
	}, nil)

	select {
	case i := <-got:
		assert.True(t, i >= 0 && i < 3, "worker index %d", i)
	case <-time.After(time.Second):
		t.Fatal("entry was not run by the pool")
	}

	_, ok := WorkerIndex(context.Background())
	assert.False(t, ok)
}

func TestPool_DefaultSizeAndIdempotentClose(t *testing.T) {
	q := newQueue(t, 4)
	pool := NewPool(q, 0)
	assert.Equal(t, DefaultWorkers, pool.Size())
	pool.Close()
	pool.Close()

	// nothing consumes after Close
	q.Submit(func(context.Context, any) {}, nil)
	time.Sleep(10 * time.Millisecond)
	assert.EqualValues(t, 1, q.Pending())
}

func TestWait_ContextDone(t *testing.T) {
	q := newQueue(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, q.Wait(ctx))

	q.Submit(func(context.Context, any) {}, nil)
	assert.True(t, q.Wait(context.Background()))
}

func TestHandle_Swap(t *testing.T) {
	h := NewHandle("v0")
	assert.Equal(t, "v0", h.Load())

	old := h.Swap("v1")
	assert.Equal(t, "v0", old)
	assert.Equal(t, "v1", h.Load())
	assert.EqualValues(t, 1, h.Swaps())
}

func TestHandle_ConcurrentSwapLoad(t *testing.T) {
	h := NewHandle(0)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				h.Swap(i)
				_ = h.Load()
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 4000, h.Swaps())
}

func TestFlag(t *testing.T) {
	var f Flag
	assert.False(t, f.IsSet())
	assert.True(t, f.TrySet())
	assert.False(t, f.TrySet())
	assert.True(t, f.IsSet())
	f.Clear()
	assert.True(t, f.TrySet())
}
