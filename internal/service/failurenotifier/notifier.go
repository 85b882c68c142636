// Package failurenotifier fans terminal job failures out to the configured alert sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/mmk-jobqueue/internal/observability/notify"
)

// SinkRegistration names a sink for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// SkipJobTypes lists job types whose failures are never notified.
	SkipJobTypes []string
	// WarningReasons lists failure reasons reported at warning rather than critical severity.
	WarningReasons []string
}

// Service dispatches failure events to every registered sink concurrently.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	skip    map[string]struct{}
	warning map[string]struct{}
}

// NewService constructs a failure notifier. Registrations without a sink are dropped.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}

	sinks := make([]SinkRegistration, 0, len(opts.Sinks))
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger:  logger,
		sinks:   sinks,
		skip:    toSet(opts.SkipJobTypes),
		warning: toSet(opts.WarningReasons),
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// NotifyJobFailure delivers payload to all sinks and returns once each has finished.
// Delivery errors are logged; one failing sink does not affect the others.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if !s.Enabled() {
		return
	}
	if _, skip := s.skip[payload.JobType]; skip {
		s.logger.DebugContext(ctx, "skipping failure notification",
			"job_id", payload.JobID,
			"job_type", payload.JobType,
		)
		return
	}

	payload.Severity = s.severity(payload)

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			if err := entry.Sink.SendJobFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"job_type", payload.JobType,
					"error", err,
				)
				return
			}
			s.logger.DebugContext(ctx, "failure notification delivered",
				"sink", entry.Name,
				"job_id", payload.JobID,
				"elapsed", time.Since(start),
			)
		}()
	}
	wg.Wait()
}

func (s *Service) severity(payload notify.JobFailurePayload) string {
	if _, ok := s.warning[payload.ErrorClass]; ok {
		return notify.SeverityWarning
	}
	if payload.Severity == "" {
		return notify.SeverityCritical
	}
	return payload.Severity
}

// SinkNames lists the active sinks in registration order.
func (s *Service) SinkNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.sinks))
	for _, entry := range s.sinks {
		names = append(names, entry.Name)
	}
	return names
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
