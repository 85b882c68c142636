package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

func TestEmitJobLifecycle(t *testing.T) {
	t.Run("nil sink is ignored", func(_ *testing.T) {
		EmitJobLifecycle(nil, JobMetric{JobType: "x"})
	})

	t.Run("success emits transition and duration", func(t *testing.T) {
		rec := statsd.NewRecorder()
		EmitJobLifecycle(rec, JobMetric{
			JobType:    "email",
			Transition: TransitionCompleted,
			Result:     ResultSuccess,
			Duration:   time.Second,
		})

		trans := rec.Named("job.transition")
		require.Len(t, trans, 1)
		assert.Equal(t, map[string]string{"job_type": "email", "transition": "completed", "result": "success"}, trans[0].Tags)
		assert.Len(t, rec.Named("job.duration"), 1)
		assert.Empty(t, rec.Named("job.error"))
	})

	t.Run("error emits classified reason", func(t *testing.T) {
		rec := statsd.NewRecorder()
		EmitJobLifecycle(rec, JobMetric{
			JobType:    "email",
			Transition: TransitionFailed,
			Result:     ResultError,
			Err:        errors.New("boom"),
		})
		errs := rec.Named("job.error")
		require.Len(t, errs, 1)
		assert.Equal(t, "errors_errorstring", errs[0].Tags["reason"])
	})

	t.Run("explicit reason wins", func(t *testing.T) {
		rec := statsd.NewRecorder()
		EmitJobLifecycle(rec, JobMetric{JobType: "email", Transition: TransitionRetrying, Result: ResultError, Reason: "timeout"})
		assert.Equal(t, "timeout", rec.Named("job.error")[0].Tags["reason"])
	})
}

func TestEmitCycle(t *testing.T) {
	rec := statsd.NewRecorder()
	at := time.Unix(1700000000, 0)

	EmitCycle(rec, CycleMetric{Result: model.CycleResult{Selected: 2, Dispatched: 2, Duration: time.Millisecond}, InFlight: 0, At: at})
	EmitCycle(rec, CycleMetric{At: at})

	cycles := rec.Named("cycle")
	require.Len(t, cycles, 2)
	assert.Equal(t, ResultSuccess, cycles[0].Tags["result"])
	assert.Equal(t, ResultNoop, cycles[1].Tags["result"])

	epochs := rec.Named("last_cycle_epoch")
	require.Len(t, epochs, 2)
	assert.InDelta(t, float64(at.Unix()), epochs[0].Value, 0)
}

func TestJobMetricsObserver(t *testing.T) {
	assert.Nil(t, NewJobMetricsObserver(nil))

	rec := statsd.NewRecorder()
	obs := NewJobMetricsObserver(rec)
	ctx := context.Background()
	job := model.Job{Type: "email", Attempts: 1, MaxAttempts: 3}

	obs.JobTransitioned(ctx, core.JobTransition{Job: job, To: model.JobStatusPending})
	obs.JobTransitioned(ctx, core.JobTransition{Job: job, From: model.JobStatusPending, To: model.JobStatusProcessing})
	obs.JobTransitioned(ctx, core.JobTransition{Job: job, From: model.JobStatusProcessing, To: model.JobStatusRetrying, Reason: "handler"})
	obs.QueueCleared(ctx, 3)

	trans := rec.Named("job.transition")
	require.Len(t, trans, 3)
	assert.Equal(t, TransitionSubmitted, trans[0].Tags["transition"])
	assert.Equal(t, TransitionStarted, trans[1].Tags["transition"])
	assert.Equal(t, TransitionRetrying, trans[2].Tags["transition"])
	assert.Equal(t, "handler", rec.Named("job.error")[0].Tags["reason"])
	assert.Len(t, rec.Named("job.attempt"), 1)
	assert.Len(t, rec.Named("queue.cleared"), 1)
}
