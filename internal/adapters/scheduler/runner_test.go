package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainjob "github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

type fakeQueue struct {
	cycles   atomic.Int32
	drained  atomic.Bool
	drainErr error
	result   model.CycleResult

	mu          sync.Mutex
	hadDeadline bool
	drainCtxErr error
}

func (q *fakeQueue) RunCycle(context.Context) model.CycleResult {
	q.cycles.Add(1)
	return q.result
}

func (q *fakeQueue) Drain(ctx context.Context) error {
	q.mu.Lock()
	_, q.hadDeadline = ctx.Deadline()
	q.drainCtxErr = ctx.Err()
	q.mu.Unlock()
	q.drained.Store(true)
	return q.drainErr
}

func (q *fakeQueue) InFlight() int { return 0 }

func TestNewRunner_RequiresQueue(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)

	r, err := NewRunner(RunnerOptions{Queue: &fakeQueue{}})
	require.NoError(t, err)
	assert.Equal(t, defaultInterval, r.interval)
	assert.Equal(t, defaultDrainTimeout, r.drainTimeout)
}

func TestRunner_TicksAndDrainsOnCancel(t *testing.T) {
	q := &fakeQueue{result: model.CycleResult{Selected: 1, Dispatched: 1, Completed: 1}}
	rec := statsd.NewRecorder()
	r, err := NewRunner(RunnerOptions{Queue: q, Interval: 5 * time.Millisecond, Metrics: rec})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return q.cycles.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}

	assert.True(t, q.drained.Load())
	q.mu.Lock()
	hasDeadline := q.hadDeadline
	drainErr := q.drainCtxErr
	q.mu.Unlock()
	assert.True(t, hasDeadline)
	assert.NoError(t, drainErr, "drain context must outlive the cancelled run context")

	assert.NotEmpty(t, rec.Named("cycle"))
	assert.NotEmpty(t, rec.Named("last_cycle_epoch"))
}

func TestRunner_WakesOnNotify(t *testing.T) {
	q := &fakeQueue{}
	notifier := domainjob.NewNotifier()
	r, err := NewRunner(RunnerOptions{Queue: q, Interval: time.Hour, Notifier: notifier})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		notifier.Notify()
		return q.cycles.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	// A stopped notifier must not spin the loop.
	notifier.StopAll()
	before := q.cycles.Load()
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, q.cycles.Load(), before+1)

	cancel()
	require.NoError(t, <-done)
}

func TestRunner_DrainError(t *testing.T) {
	q := &fakeQueue{drainErr: context.DeadlineExceeded}
	r, err := NewRunner(RunnerOptions{Queue: q, Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = r.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
