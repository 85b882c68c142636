// Package notify delivers terminal job failures to paging and chat sinks.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Severities understood by every sink.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// JobFailurePayload describes a job that reached the failed state.
type JobFailurePayload struct {
	JobID        string
	JobType      string
	PartitionKey string
	Error        string
	ErrorClass   string
	Attempts     int
	MaxAttempts  int
	Severity     string
	OccurredAt   time.Time
	Metadata     map[string]string
}

// Summary is a one-line description for alert titles.
func (p JobFailurePayload) Summary() string {
	return fmt.Sprintf("Job %s (%s) failed after %d attempt(s)",
		Fallback(p.JobID, "unknown"), Fallback(p.JobType, "unknown"), p.Attempts)
}

// AttemptsLabel renders "attempts/max", or "" when the ceiling is unknown.
func (p JobFailurePayload) AttemptsLabel() string {
	if p.MaxAttempts <= 0 {
		return ""
	}
	return strconv.Itoa(p.Attempts) + "/" + strconv.Itoa(p.MaxAttempts)
}

// NormalizedSeverity lowercases Severity and defaults it to critical.
func (p JobFailurePayload) NormalizedSeverity() string {
	return Fallback(strings.ToLower(strings.TrimSpace(p.Severity)), SeverityCritical)
}

// Timestamp returns OccurredAt in UTC, or now when unset.
func (p JobFailurePayload) Timestamp() time.Time {
	if p.OccurredAt.IsZero() {
		return time.Now().UTC()
	}
	return p.OccurredAt.UTC()
}

// Sink consumes job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to Sink. A nil SinkFunc drops every payload.
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure calls f.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
