// Package model defines the core data types used throughout the job queue.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType identifies which handler processes a job.
type JobType string

// JobStatus represents the current status of a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a job is currently being executed.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusRetrying indicates a job failed and waits for its next attempt.
	JobStatusRetrying JobStatus = "retrying"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has exhausted its attempts or cannot be handled.
	JobStatusFailed JobStatus = "failed"
)

// ErrInvalidJob is returned when a submission fails validation.
var ErrInvalidJob = errors.New("invalid job")

// AllJobStatuses lists every status in lifecycle order.
func AllJobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusPending,
		JobStatusProcessing,
		JobStatusRetrying,
		JobStatusCompleted,
		JobStatusFailed,
	}
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusRetrying, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions can happen from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Runnable reports whether a job in status s may be selected by a processing cycle.
func (s JobStatus) Runnable() bool {
	return s == JobStatusPending || s == JobStatusRetrying
}

// UnmarshalText implements encoding.TextUnmarshaler so statuses can be parsed from env and query strings.
func (s *JobStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseJobStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseJobStatus parses a case-insensitive status string.
func ParseJobStatus(raw string) (JobStatus, error) {
	st := JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !st.Valid() {
		return "", fmt.Errorf("invalid JobStatus: %q", raw)
	}
	return st, nil
}

// Job represents a unit of work held by the queue.
type Job struct {
	ID           string     `json:"id"`
	Type         JobType    `json:"type"`
	Payload      any        `json:"payload,omitempty"`
	Status       JobStatus  `json:"status"`
	Priority     int        `json:"priority"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	Error        *string    `json:"error,omitempty"`
	Result       any        `json:"result,omitempty"`
	PartitionKey string     `json:"partition_key,omitempty"`
}

// Clone returns a copy of j that shares no timestamp or error pointers with the original.
// Payload and Result are opaque; byte slices are copied, other values are shared.
func (j *Job) Clone() Job {
	out := *j
	out.StartedAt = cloneTime(j.StartedAt)
	out.CompletedAt = cloneTime(j.CompletedAt)
	out.ScheduledFor = cloneTime(j.ScheduledFor)
	if j.Error != nil {
		msg := *j.Error
		out.Error = &msg
	}
	out.Payload = cloneOpaque(j.Payload)
	out.Result = cloneOpaque(j.Result)
	return out
}

// ErrorMessage returns the last failure message or an empty string.
func (j *Job) ErrorMessage() string {
	if j.Error == nil {
		return ""
	}
	return *j.Error
}

// EligibleAt reports whether the job may be selected at now.
func (j *Job) EligibleAt(now time.Time) bool {
	if !j.Status.Runnable() {
		return false
	}
	return j.ScheduledFor == nil || !j.ScheduledFor.After(now)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneOpaque(v any) any {
	switch b := v.(type) {
	case json.RawMessage:
		return append(json.RawMessage(nil), b...)
	case []byte:
		return append([]byte(nil), b...)
	default:
		return v
	}
}

// SubmitOptions carries the optional parameters of a submission.
type SubmitOptions struct {
	// Priority orders selection; higher runs first. Defaults to 0.
	Priority int
	// MaxAttempts caps execution attempts. Zero means the queue default.
	MaxAttempts int
	// ScheduledFor delays eligibility. Nil means now.
	ScheduledFor *time.Time
	// PartitionKey is an opaque grouping tag such as a tenant id.
	PartitionKey string
}

// Validate checks the submission parameters.
func (o SubmitOptions) Validate() error {
	if o.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must be >= 0", ErrInvalidJob)
	}
	return nil
}

// SubmitJobRequest is the wire form of a submission.
type SubmitJobRequest struct {
	Type         JobType         `json:"type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Priority     int             `json:"priority,omitempty"`
	MaxAttempts  int             `json:"max_attempts,omitempty"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	PartitionKey string          `json:"partition_key,omitempty"`
}

// Validate validates the SubmitJobRequest fields.
func (r *SubmitJobRequest) Validate() error {
	if strings.TrimSpace(string(r.Type)) == "" {
		return fmt.Errorf("%w: job type is required", ErrInvalidJob)
	}
	if len(r.Payload) > 0 && !json.Valid(r.Payload) {
		return fmt.Errorf("%w: payload must be valid JSON", ErrInvalidJob)
	}
	return r.Options().Validate()
}

// Options converts the request into SubmitOptions.
func (r *SubmitJobRequest) Options() SubmitOptions {
	return SubmitOptions{
		Priority:     r.Priority,
		MaxAttempts:  r.MaxAttempts,
		ScheduledFor: r.ScheduledFor,
		PartitionKey: r.PartitionKey,
	}
}

// JobStats represents counts of jobs per status.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Retrying   int `json:"retrying"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// Add counts one job in status s.
func (s *JobStats) Add(st JobStatus) {
	switch st {
	case JobStatusPending:
		s.Pending++
	case JobStatusProcessing:
		s.Processing++
	case JobStatusRetrying:
		s.Retrying++
	case JobStatusCompleted:
		s.Completed++
	case JobStatusFailed:
		s.Failed++
	default:
		return
	}
	s.Total++
}

// CycleResult summarises one processing cycle.
type CycleResult struct {
	Selected   int           `json:"selected"`
	Dispatched int           `json:"dispatched"`
	Completed  int           `json:"completed"`
	Retried    int           `json:"retried"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration_ns"`
}
