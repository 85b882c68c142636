// Package scheduler provides the driver loop that owns calling the queue's processing cycle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainjob "github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
)

const (
	defaultInterval     = time.Second
	defaultDrainTimeout = 30 * time.Second
)

// Queue is the subset of service.JobQueueService driven by the runner.
type Queue interface {
	RunCycle(ctx context.Context) model.CycleResult
	Drain(ctx context.Context) error
	InFlight() int
}

// Runner calls Queue.RunCycle on a fixed interval and whenever the notifier signals that
// new work was submitted. On shutdown it stops starting cycles and drains the queue.
type Runner struct {
	queue        Queue
	interval     time.Duration
	drainTimeout time.Duration
	notifier     domainjob.Notifier
	logger       *slog.Logger
	metrics      statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Queue        Queue
	Interval     time.Duration
	DrainTimeout time.Duration

	// Optional
	Notifier domainjob.Notifier
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// NewRunner creates a new runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}
	return &Runner{
		queue:        opts.Queue,
		interval:     opts.Interval,
		drainTimeout: opts.DrainTimeout,
		notifier:     opts.Notifier,
		logger:       opts.Logger.With("component", "queue_runner"),
		metrics:      opts.Metrics,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Queue == nil {
		return errors.New("queue is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run drives processing cycles until ctx is cancelled, then drains in-flight work.
// Cancellation is a clean stop and returns nil; a drain that exceeds the timeout is an error.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting queue runner", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if r.notifier != nil {
		unsub, ch := r.notifier.Subscribe()
		defer unsub()
		wake = ch
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "queue runner stopping", "reason", ctx.Err())
			return r.drain(ctx)

		case _, ok := <-wake:
			if !ok {
				// Notifier stopped; fall back to the ticker alone.
				wake = nil
				continue
			}
			r.cycle(ctx)

		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r *Runner) cycle(ctx context.Context) {
	res := r.queue.RunCycle(ctx)
	metrics.EmitCycle(r.metrics, metrics.CycleMetric{
		Result:   res,
		InFlight: r.queue.InFlight(),
		At:       time.Now(),
	})
	if res.Selected > 0 {
		r.logger.DebugContext(ctx, "cycle finished",
			"selected", res.Selected,
			"completed", res.Completed,
			"retried", res.Retried,
			"failed", res.Failed,
		)
	}
}

func (r *Runner) drain(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.drainTimeout)
	defer cancel()

	if err := r.queue.Drain(dctx); err != nil {
		return fmt.Errorf("drain queue: %w", err)
	}
	return nil
}
