package core

import (
	"context"
	"time"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// This file contains the ports the queue engine depends on. Adapters in internal/data,
// internal/observability and internal/service implement them.

// TimeProvider supplies the current time; tests substitute a controllable clock.
type TimeProvider interface {
	Now() time.Time
}

// JobTransition describes a single status change of a job.
type JobTransition struct {
	Job      model.Job
	From     model.JobStatus
	To       model.JobStatus
	Duration time.Duration // execution time for transitions out of processing
	Reason   string        // failure classification, empty on success

	// Seq is assigned under the queue lock and increases with every transition of
	// every job. Observers may see transitions out of order; a higher Seq is newer.
	Seq uint64
}

// JobObserver is notified after every status change and when the queue is cleared.
//
// Callbacks run synchronously on the goroutine that made the change: the Submit caller,
// or the cycle goroutine executing the job. Time spent in an observer is added to the
// submit latency or the cycle duration, so observers that perform I/O hand it to a
// background goroutine and expose a Wait method that the queue calls while draining.
type JobObserver interface {
	JobTransitioned(ctx context.Context, tr JobTransition)
	// QueueCleared reports a clear. seq is the last Seq assigned before the clear;
	// transitions at or below it belong to jobs that no longer exist.
	QueueCleared(ctx context.Context, seq uint64)
}

// JobArchive persists jobs that reached a terminal status.
type JobArchive interface {
	Archive(ctx context.Context, job model.Job) error
	List(ctx context.Context, q model.JobHistoryQuery) ([]model.JobHistoryRecord, error)
}

// JobSnapshotStore mirrors the latest state of each job to an external store.
type JobSnapshotStore interface {
	Save(ctx context.Context, job model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	Purge(ctx context.Context) (int, error)
}
