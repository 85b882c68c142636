package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	obserrors "github.com/target/mmk-jobqueue/internal/observability/errors"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names used for the transition tag.
const (
	TransitionSubmitted = "submitted"
	TransitionStarted   = "started"
	TransitionCompleted = "completed"
	TransitionRetrying  = "retrying"
	TransitionFailed    = "failed"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	JobType    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
	Reason     string // overrides the classification derived from Err
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type":   in.JobType,
		"transition": in.Transition,
		"result":     in.Result,
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}

	if in.Result != ResultError {
		return
	}
	reason := in.Reason
	if reason == "" {
		reason = obserrors.Classify(in.Err)
	}
	if reason == "" {
		reason = "unknown"
	}
	sink.Count("job.error", 1, map[string]string{
		"job_type":   in.JobType,
		"transition": in.Transition,
		"reason":     reason,
	})
}

// CycleMetric captures the outcome of one processing cycle.
type CycleMetric struct {
	Result   model.CycleResult
	InFlight int
	At       time.Time
	Err      error
}

// EmitCycle emits scheduler cycle metrics.
func EmitCycle(sink statsd.Sink, in CycleMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Result.Dispatched == 0 && in.Result.Selected == 0:
		result = ResultNoop
	}

	tags := map[string]string{"result": result}
	sink.Count("cycle", 1, tags)
	sink.Timing("cycle_duration", in.Result.Duration, CloneTags(tags))
	sink.Gauge("inflight", float64(in.InFlight), nil)
	sink.Gauge("cycle_dispatched", float64(in.Result.Dispatched), nil)

	if in.Err == nil && !in.At.IsZero() {
		sink.Gauge("last_cycle_epoch", float64(in.At.Unix()), nil)
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// JobMetricsObserver forwards queue transitions to a statsd sink.
type JobMetricsObserver struct {
	Sink statsd.Sink
}

var _ core.JobObserver = (*JobMetricsObserver)(nil)

// NewJobMetricsObserver returns nil when sink is nil so callers can skip registration.
func NewJobMetricsObserver(sink statsd.Sink) *JobMetricsObserver {
	if sink == nil {
		return nil
	}
	return &JobMetricsObserver{Sink: sink}
}

// JobTransitioned implements core.JobObserver.
func (o *JobMetricsObserver) JobTransitioned(_ context.Context, tr core.JobTransition) {
	if o == nil {
		return
	}
	m := JobMetric{
		JobType:  string(tr.Job.Type),
		Duration: tr.Duration,
		Reason:   tr.Reason,
	}
	switch tr.To {
	case model.JobStatusPending:
		m.Transition, m.Result = TransitionSubmitted, ResultNoop
	case model.JobStatusProcessing:
		m.Transition, m.Result = TransitionStarted, ResultNoop
	case model.JobStatusCompleted:
		m.Transition, m.Result = TransitionCompleted, ResultSuccess
	case model.JobStatusRetrying:
		m.Transition, m.Result = TransitionRetrying, ResultError
	case model.JobStatusFailed:
		m.Transition, m.Result = TransitionFailed, ResultError
	default:
		return
	}
	EmitJobLifecycle(o.Sink, m)
	if tr.To == model.JobStatusProcessing {
		o.Sink.Gauge("job.attempt", float64(tr.Job.Attempts), map[string]string{
			"job_type":     m.JobType,
			"max_attempts": strconv.Itoa(tr.Job.MaxAttempts),
		})
	}
}

// QueueCleared implements core.JobObserver.
func (o *JobMetricsObserver) QueueCleared(context.Context, uint64) {
	if o == nil {
		return
	}
	o.Sink.Count("queue.cleared", 1, nil)
}
