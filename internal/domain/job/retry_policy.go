package job

import (
	"errors"
	"time"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// ErrInvalidRetryUnit indicates the configured backoff unit is negative.
var ErrInvalidRetryUnit = errors.New("retry delay must not be negative")

// RetryPolicy computes linear backoff: the delay before the next attempt is Unit × attempts.
// There is no jitter and no upper bound.
type RetryPolicy struct {
	unit time.Duration
}

// NewRetryPolicy constructs a RetryPolicy with the provided backoff unit.
func NewRetryPolicy(unit time.Duration) (*RetryPolicy, error) {
	if unit < 0 {
		return nil, ErrInvalidRetryUnit
	}
	return &RetryPolicy{unit: unit}, nil
}

// Unit returns the configured backoff unit.
func (p *RetryPolicy) Unit() time.Duration {
	if p == nil {
		return 0
	}
	return p.unit
}

// Delay returns the wait before the next attempt after attempts failures.
func (p *RetryPolicy) Delay(attempts int) time.Duration {
	if p == nil || attempts < 1 {
		return 0
	}
	return p.unit * time.Duration(attempts)
}

// RetryDecision captures what happens to a job after a failed attempt.
type RetryDecision struct {
	Status    model.JobStatus
	NextRunAt *time.Time
}

// Retry reports whether the job goes back into the queue.
func (d RetryDecision) Retry() bool {
	return d.Status == model.JobStatusRetrying
}

// Decide resolves the post-failure status for a job that has used attempts of maxAttempts.
func (p *RetryPolicy) Decide(now time.Time, attempts, maxAttempts int) RetryDecision {
	if attempts >= maxAttempts {
		return RetryDecision{Status: model.JobStatusFailed}
	}
	next := now.Add(p.Delay(attempts))
	return RetryDecision{Status: model.JobStatusRetrying, NextRunAt: &next}
}
