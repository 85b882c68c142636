package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-jobqueue/internal/core"
	domainjob "github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	obserrors "github.com/target/mmk-jobqueue/internal/observability/errors"
)

// Failure reasons attached to transitions for metrics and notifications.
const (
	ReasonHandlerMissing  = "handler_missing"
	ReasonHandler         = "handler"
	ReasonPanic           = "panic"
	ReasonTimeout         = "timeout"
	ReasonPayloadMismatch = "payload_mismatch"
)

const (
	timeoutMessage  = "job timeout"
	fallbackMessage = "unknown error"
)

var (
	// ErrQueueClosed is returned once Drain has been called.
	ErrQueueClosed = errors.New("job queue is draining")
	// ErrJobNotFound is returned when a job id is not held by the queue.
	ErrJobNotFound = errors.New("job not found")
)

// QueueSettings is the queue-level configuration fixed at construction.
type QueueSettings struct {
	Concurrency int           // max simultaneous in-flight jobs
	MaxRetries  int           // default MaxAttempts for submissions
	RetryDelay  time.Duration // linear backoff unit
	Timeout     time.Duration // per-execution ceiling
}

func (s QueueSettings) validate() error {
	switch {
	case s.Concurrency < 1:
		return errors.New("concurrency must be >= 1")
	case s.MaxRetries < 1:
		return errors.New("max retries must be >= 1")
	case s.RetryDelay < 0:
		return errors.New("retry delay must not be negative")
	case s.Timeout <= 0:
		return errors.New("timeout must be positive")
	}
	return nil
}

// JobQueueServiceOptions groups dependencies for JobQueueService.
type JobQueueServiceOptions struct {
	Settings  QueueSettings      // Required: queue configuration
	Registry  *HandlerRegistry   // Optional: shared handler registry; a new one is created when nil
	Logger    *slog.Logger       // Optional: structured logger
	Clock     core.TimeProvider  // Optional: defaults to wall-clock time
	Observers []core.JobObserver // Optional: transition listeners (metrics, archive, snapshots, alerts)
	Notifier  domainjob.Notifier // Optional: woken when an immediately eligible job is submitted
}

// JobQueueService holds jobs in memory, selects eligible work on each processing cycle and
// drives each job through execution, timeout and retry transitions.
//
// All job records are guarded by a single mutex and every read returns a copy.
type JobQueueService struct {
	settings  QueueSettings
	retry     *domainjob.RetryPolicy
	registry  *HandlerRegistry
	logger    *slog.Logger
	clock     core.TimeProvider
	observers []core.JobObserver
	notifier  domainjob.Notifier

	mu       sync.Mutex
	jobs     map[string]*model.Job
	order    []*model.Job // submission order
	inFlight map[string]struct{}
	seq      uint64 // last transition sequence number handed to observers
	closed   bool
	cycles   sync.WaitGroup
}

// NewJobQueueService constructs a new JobQueueService.
func NewJobQueueService(opts JobQueueServiceOptions) (*JobQueueService, error) {
	if err := opts.Settings.validate(); err != nil {
		return nil, fmt.Errorf("invalid queue settings: %w", err)
	}

	retry, err := domainjob.NewRetryPolicy(opts.Settings.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("create retry policy: %w", err)
	}

	registry := opts.Registry
	if registry == nil {
		registry = NewHandlerRegistry()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "job_queue")

	var clock core.TimeProvider = systemClock{}
	if opts.Clock != nil {
		clock = opts.Clock
	}

	observers := make([]core.JobObserver, 0, len(opts.Observers))
	for _, o := range opts.Observers {
		if o != nil {
			observers = append(observers, o)
		}
	}

	return &JobQueueService{
		settings:  opts.Settings,
		retry:     retry,
		registry:  registry,
		logger:    logger,
		clock:     clock,
		observers: observers,
		notifier:  opts.Notifier,
		jobs:      make(map[string]*model.Job),
		inFlight:  make(map[string]struct{}),
	}, nil
}

// MustNewJobQueueService constructs a new JobQueueService and panics on error.
func MustNewJobQueueService(opts JobQueueServiceOptions) *JobQueueService {
	svc, err := NewJobQueueService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobQueueService: %v", err))
	}
	return svc
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Settings returns the queue configuration.
func (s *JobQueueService) Settings() QueueSettings {
	return s.settings
}

// Registry returns the handler registry used by the queue.
func (s *JobQueueService) Registry() *HandlerRegistry {
	return s.registry
}

// RegisterHandler associates h with jobType. Duplicate registrations are rejected.
func (s *JobQueueService) RegisterHandler(jobType model.JobType, h Handler) error {
	if err := s.registry.Register(jobType, h); err != nil {
		return fmt.Errorf("register handler: %w", err)
	}
	s.logger.Debug("handler registered", "job_type", jobType)
	return nil
}

// Submit creates a pending job and returns a copy of it.
func (s *JobQueueService) Submit(
	ctx context.Context,
	jobType model.JobType,
	payload any,
	opts model.SubmitOptions,
) (model.Job, error) {
	if strings.TrimSpace(string(jobType)) == "" {
		return model.Job{}, fmt.Errorf("%w: job type is required", model.ErrInvalidJob)
	}
	if err := opts.Validate(); err != nil {
		return model.Job{}, err
	}

	now := s.clock.Now()
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = s.settings.MaxRetries
	}
	scheduledFor := now
	if opts.ScheduledFor != nil {
		scheduledFor = *opts.ScheduledFor
	}

	job := &model.Job{
		ID:           uuid.NewString(),
		Type:         jobType,
		Payload:      payload,
		Status:       model.JobStatusPending,
		Priority:     opts.Priority,
		MaxAttempts:  maxAttempts,
		CreatedAt:    now,
		ScheduledFor: &scheduledFor,
		PartitionKey: opts.PartitionKey,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job)
	snap := job.Clone()
	seq := s.nextSeq()
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "job submitted",
		"job_id", snap.ID,
		"job_type", snap.Type,
		"priority", snap.Priority,
		"max_attempts", snap.MaxAttempts,
		"partition_key", snap.PartitionKey,
	)
	s.observe(ctx, core.JobTransition{Job: snap, To: model.JobStatusPending, Seq: seq})

	if s.notifier != nil && snap.EligibleAt(now) {
		s.notifier.Notify()
	}
	return snap, nil
}

// claim is a job that was marked in flight by the current cycle.
type claim struct {
	rec      *model.Job
	handler  Handler
	snapshot model.Job
	from     model.JobStatus
	seq      uint64
}

type missingHandler struct {
	job  model.Job
	from model.JobStatus
	seq  uint64
}

// attemptResult is the settled outcome of one execution.
type attemptResult struct {
	outcome model.Outcome
	message string
	reason  string
}

// RunCycle selects eligible jobs, dispatches up to the free concurrency slots and waits
// until every dispatched job has settled.
func (s *JobQueueService) RunCycle(ctx context.Context) model.CycleResult {
	start := time.Now()
	claims, missing, selected, err := s.claimEligible()
	if err != nil {
		s.logger.DebugContext(ctx, "processing cycle skipped", "error", err)
		return model.CycleResult{}
	}
	defer s.cycles.Done()

	for _, m := range missing {
		s.logger.WarnContext(ctx, "job failed: no handler registered",
			"job_id", m.job.ID,
			"job_type", m.job.Type,
		)
		s.observe(ctx, core.JobTransition{
			Job:    m.job,
			From:   m.from,
			To:     model.JobStatusFailed,
			Reason: ReasonHandlerMissing,
			Seq:    m.seq,
		})
	}

	statuses := make([]model.JobStatus, len(claims))
	var wg sync.WaitGroup
	for i, c := range claims {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = s.execute(ctx, c)
		}()
	}
	wg.Wait()

	res := model.CycleResult{
		Selected:   selected,
		Dispatched: len(claims),
		Failed:     len(missing),
	}
	for _, st := range statuses {
		switch st {
		case model.JobStatusCompleted:
			res.Completed++
		case model.JobStatusRetrying:
			res.Retried++
		case model.JobStatusFailed:
			res.Failed++
		}
	}
	res.Duration = time.Since(start)

	if res.Selected > 0 {
		s.logger.DebugContext(ctx, "processing cycle finished",
			"selected", res.Selected,
			"dispatched", res.Dispatched,
			"completed", res.Completed,
			"retried", res.Retried,
			"failed", res.Failed,
			"duration", res.Duration,
		)
	}
	return res
}

// claimEligible performs selection and the in-flight claim under the store lock, so a
// concurrent cycle can never pick the same job.
func (s *JobQueueService) claimEligible() ([]claim, []missingHandler, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, 0, ErrQueueClosed
	}
	s.cycles.Add(1)

	free := s.settings.Concurrency - len(s.inFlight)
	if free <= 0 {
		return nil, nil, 0, nil
	}

	now := s.clock.Now()
	var candidates []*model.Job
	for _, j := range s.order {
		if _, busy := s.inFlight[j.ID]; busy {
			continue
		}
		if j.EligibleAt(now) {
			candidates = append(candidates, j)
		}
	}

	// s.order is submission order, so a stable sort keeps FIFO among equal priorities.
	slices.SortStableFunc(candidates, func(a, b *model.Job) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	if len(candidates) > free {
		candidates = candidates[:free]
	}

	var (
		claims  []claim
		missing []missingHandler
	)
	for _, j := range candidates {
		h, ok := s.registry.Lookup(j.Type)
		if !ok {
			from := j.Status
			msg := fmt.Sprintf("no handler registered for job type %q", j.Type)
			ts := now
			j.Status = model.JobStatusFailed
			j.Error = &msg
			j.CompletedAt = &ts
			missing = append(missing, missingHandler{job: j.Clone(), from: from, seq: s.nextSeq()})
			continue
		}

		started := now
		from := j.Status
		s.inFlight[j.ID] = struct{}{}
		j.Status = model.JobStatusProcessing
		j.Attempts++
		j.StartedAt = &started
		claims = append(claims, claim{rec: j, handler: h, snapshot: j.Clone(), from: from, seq: s.nextSeq()})
	}

	return claims, missing, len(candidates), nil
}

// execute runs one claimed job to a settled state and returns its new status.
func (s *JobQueueService) execute(ctx context.Context, c claim) model.JobStatus {
	defer s.release(c.rec.ID)

	s.observe(ctx, core.JobTransition{
		Job:  c.snapshot,
		From: c.from,
		To:   model.JobStatusProcessing,
		Seq:  c.seq,
	})

	begin := time.Now()
	res := s.invoke(ctx, c)
	elapsed := time.Since(begin)

	return s.settle(ctx, c, res, elapsed)
}

// invoke races the handler against the queue timeout. The handler context carries the
// same deadline and is detached from ctx cancellation so shutdown drains rather than aborts.
func (s *JobQueueService) invoke(ctx context.Context, c claim) attemptResult {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settings.Timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.ErrorContext(ctx, "job handler panicked",
					"job_id", c.snapshot.ID,
					"job_type", c.snapshot.Type,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				done <- attemptResult{message: panicMessage(r), reason: ReasonPanic}
			}
		}()
		out := c.handler(hctx, c.snapshot)
		done <- attemptResult{outcome: out, message: out.Error, reason: failureReason(out)}
	}()

	select {
	case res := <-done:
		if !res.outcome.Success && res.reason != ReasonPanic && errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return attemptResult{message: timeoutMessage, reason: ReasonTimeout}
		}
		return res
	case <-hctx.Done():
		return attemptResult{message: timeoutMessage, reason: ReasonTimeout}
	}
}

func failureReason(out model.Outcome) string {
	if out.Success {
		return ""
	}
	var r obserrors.Reasoner
	if errors.As(out.Cause, &r) {
		return r.Reason()
	}
	return ReasonHandler
}

func panicMessage(v any) string {
	switch p := v.(type) {
	case error:
		return p.Error()
	case string:
		return p
	default:
		return fmt.Sprintf("job handler panicked: %v", p)
	}
}

// settle applies the attempt result to the stored job.
func (s *JobQueueService) settle(ctx context.Context, c claim, res attemptResult, elapsed time.Duration) model.JobStatus {
	s.mu.Lock()
	delete(s.inFlight, c.rec.ID)
	if s.jobs[c.rec.ID] != c.rec {
		// Cleared while executing.
		s.mu.Unlock()
		return ""
	}

	now := s.clock.Now()
	j := c.rec
	reason := ""
	if res.outcome.Success {
		j.Status = model.JobStatusCompleted
		j.Result = res.outcome.Result
		j.CompletedAt = &now
	} else {
		msg := res.message
		if strings.TrimSpace(msg) == "" {
			msg = fallbackMessage
		}
		reason = res.reason
		j.Error = &msg
		decision := s.retry.Decide(now, j.Attempts, j.MaxAttempts)
		j.Status = decision.Status
		if decision.Retry() {
			j.ScheduledFor = decision.NextRunAt
		} else {
			j.CompletedAt = &now
		}
	}
	snap := j.Clone()
	seq := s.nextSeq()
	s.mu.Unlock()

	s.logSettled(ctx, snap, elapsed)
	s.observe(ctx, core.JobTransition{
		Job:      snap,
		From:     model.JobStatusProcessing,
		To:       snap.Status,
		Duration: elapsed,
		Reason:   reason,
		Seq:      seq,
	})
	return snap.Status
}

func (s *JobQueueService) logSettled(ctx context.Context, j model.Job, elapsed time.Duration) {
	attrs := []any{
		"job_id", j.ID,
		"job_type", j.Type,
		"attempts", j.Attempts,
		"max_attempts", j.MaxAttempts,
		"duration", elapsed,
	}
	switch j.Status {
	case model.JobStatusCompleted:
		s.logger.InfoContext(ctx, "job completed", attrs...)
	case model.JobStatusRetrying:
		attrs = append(attrs, "error", j.ErrorMessage())
		if j.ScheduledFor != nil {
			attrs = append(attrs, "next_run_at", *j.ScheduledFor)
		}
		s.logger.WarnContext(ctx, "job attempt failed, retry scheduled", attrs...)
	default:
		s.logger.ErrorContext(ctx, "job failed", append(attrs, "error", j.ErrorMessage())...)
	}
}

func (s *JobQueueService) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// nextSeq must be called with s.mu held.
func (s *JobQueueService) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func (s *JobQueueService) observe(ctx context.Context, tr core.JobTransition) {
	if len(s.observers) == 0 {
		return
	}
	octx := context.WithoutCancel(ctx)
	for _, o := range s.observers {
		o.JobTransitioned(octx, tr)
	}
}

// GetJob returns a copy of the job with the given id.
func (s *JobQueueService) GetJob(id string) (model.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return j.Clone(), true
}

// GetJobsByType returns copies of every job of the given type in submission order.
func (s *JobQueueService) GetJobsByType(jobType model.JobType) []model.Job {
	return s.ListJobs(model.JobListOptions{Type: &jobType})
}

// GetJobsByStatus returns copies of every job in the given status in submission order.
func (s *JobQueueService) GetJobsByStatus(status model.JobStatus) []model.Job {
	return s.ListJobs(model.JobListOptions{Status: &status})
}

// ListJobs returns copies of the jobs matching opts in submission order.
func (s *JobQueueService) ListJobs(opts model.JobListOptions) []model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Job, 0)
	skipped := 0
	for _, j := range s.order {
		if !opts.Matches(j) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, j.Clone())
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out
}

// GetStats returns per-status counts and their total.
func (s *JobQueueService) GetStats() model.JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats model.JobStats
	for _, j := range s.order {
		stats.Add(j.Status)
	}
	return stats
}

// InFlight returns the number of jobs currently executing.
func (s *JobQueueService) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Clear drops every held job and resets the in-flight set. Executions still running
// when Clear is called finish without writing back.
func (s *JobQueueService) Clear(ctx context.Context) {
	s.mu.Lock()
	s.jobs = make(map[string]*model.Job)
	s.order = nil
	s.inFlight = make(map[string]struct{})
	seq := s.seq
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "job queue cleared")
	octx := context.WithoutCancel(ctx)
	for _, o := range s.observers {
		o.QueueCleared(octx, seq)
	}
}

// Drain stops accepting new cycles and waits for running cycles to settle, then for
// observers with background work to flush, or for ctx to end.
func (s *JobQueueService) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	inFlight := len(s.inFlight)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "draining job queue", "in_flight", inFlight)

	done := make(chan struct{})
	go func() {
		s.cycles.Wait()
		for _, o := range s.observers {
			if w, ok := o.(interface{ Wait() }); ok {
				w.Wait()
			}
		}
		close(done)
	}()

	select {
	case <-done:
		s.logger.InfoContext(ctx, "job queue drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain job queue: %w", ctx.Err())
	}
}

// Closed reports whether Drain has been called.
func (s *JobQueueService) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
