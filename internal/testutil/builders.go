// Package testutil provides testing utilities and helpers for the job queue.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// JobBuilder provides a fluent interface for building model.Job values for repository tests.
type JobBuilder struct {
	job model.Job
}

// NewJob creates a new JobBuilder with sensible defaults: a pending noop job with a fresh id.
func NewJob() *JobBuilder {
	created := TestTime()
	return &JobBuilder{
		job: model.Job{
			ID:           uuid.NewString(),
			Type:         "noop",
			Payload:      json.RawMessage(`{"url": "https://example.com"}`),
			Status:       model.JobStatusPending,
			MaxAttempts:  3,
			CreatedAt:    created,
			ScheduledFor: &created,
		},
	}
}

// WithType sets the job type.
func (b *JobBuilder) WithType(jobType model.JobType) *JobBuilder {
	b.job.Type = jobType
	return b
}

// WithPriority sets the job priority.
func (b *JobBuilder) WithPriority(priority int) *JobBuilder {
	b.job.Priority = priority
	return b
}

// WithPayloadString sets the job payload from a JSON string.
func (b *JobBuilder) WithPayloadString(payload string) *JobBuilder {
	b.job.Payload = json.RawMessage(payload)
	return b
}

// WithPartitionKey sets the partition key.
func (b *JobBuilder) WithPartitionKey(key string) *JobBuilder {
	b.job.PartitionKey = key
	return b
}

// Completed marks the job completed after one attempt with the given result.
func (b *JobBuilder) Completed(result any) *JobBuilder {
	b.finish(model.JobStatusCompleted, 1)
	b.job.Result = result
	return b
}

// Failed marks the job failed after exhausting its attempts.
func (b *JobBuilder) Failed(msg string) *JobBuilder {
	b.finish(model.JobStatusFailed, b.job.MaxAttempts)
	b.job.Error = &msg
	return b
}

func (b *JobBuilder) finish(status model.JobStatus, attempts int) {
	started := b.job.CreatedAt.Add(time.Second)
	completed := started.Add(time.Second)
	b.job.Status = status
	b.job.Attempts = attempts
	b.job.StartedAt = &started
	b.job.CompletedAt = &completed
}

// Build returns the constructed job.
func (b *JobBuilder) Build() model.Job {
	return b.job.Clone()
}
