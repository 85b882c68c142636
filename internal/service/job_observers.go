package service

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/observability/notify"
)

const defaultObserverTimeout = 5 * time.Second

// ArchiveObserver writes jobs to a JobArchive once they reach a terminal status.
// Writes run in the background; Wait blocks until they finish.
type ArchiveObserver struct {
	archive core.JobArchive
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

var _ core.JobObserver = (*ArchiveObserver)(nil)

// NewArchiveObserver returns nil when archive is nil.
func NewArchiveObserver(archive core.JobArchive, logger *slog.Logger) *ArchiveObserver {
	if archive == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveObserver{
		archive: archive,
		logger:  logger.With("component", "job_archive_observer"),
		timeout: defaultObserverTimeout,
	}
}

// JobTransitioned implements core.JobObserver.
func (o *ArchiveObserver) JobTransitioned(ctx context.Context, tr core.JobTransition) {
	if o == nil || !tr.To.IsTerminal() {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		actx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		if err := o.archive.Archive(actx, tr.Job); err != nil {
			o.logger.ErrorContext(ctx, "failed to archive job",
				"job_id", tr.Job.ID,
				"job_type", tr.Job.Type,
				"status", tr.To,
				"error", err,
			)
		}
	}()
}

// QueueCleared implements core.JobObserver. Archived history survives a clear.
func (o *ArchiveObserver) QueueCleared(context.Context, uint64) {}

// Wait blocks until every pending archive write has finished or timed out.
func (o *ArchiveObserver) Wait() {
	if o == nil {
		return
	}
	o.wg.Wait()
}

// SnapshotObserver mirrors the latest state of every job to a JobSnapshotStore.
//
// Each job has at most one writer goroutine. Transitions that arrive while a save is in
// flight replace the queued one, and a transition whose Seq is not newer than what was
// already queued or written is dropped, so the store always converges on the newest state.
// A clear waits for in-flight saves before purging, and transitions from before the
// clear are never written afterwards.
type SnapshotObserver struct {
	store   core.JobSnapshotStore
	logger  *slog.Logger
	timeout time.Duration

	// purgeMu is held shared by every save and exclusively by a purge.
	purgeMu sync.RWMutex

	mu      sync.Mutex
	slots   map[string]*snapshotSlot
	cleared uint64 // Seq of the last clear
	wg      sync.WaitGroup
}

// snapshotSlot tracks the write state of one job. Guarded by SnapshotObserver.mu.
type snapshotSlot struct {
	queued  *core.JobTransition
	written uint64
	running bool
}

var _ core.JobObserver = (*SnapshotObserver)(nil)

// NewSnapshotObserver returns nil when store is nil.
func NewSnapshotObserver(store core.JobSnapshotStore, logger *slog.Logger) *SnapshotObserver {
	if store == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotObserver{
		store:   store,
		logger:  logger.With("component", "job_snapshot_observer"),
		timeout: defaultObserverTimeout,
		slots:   make(map[string]*snapshotSlot),
	}
}

// JobTransitioned implements core.JobObserver.
func (o *SnapshotObserver) JobTransitioned(ctx context.Context, tr core.JobTransition) {
	if o == nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if tr.Seq != 0 && tr.Seq <= o.cleared {
		return
	}
	slot, ok := o.slots[tr.Job.ID]
	if !ok {
		slot = &snapshotSlot{}
		o.slots[tr.Job.ID] = slot
	}
	if tr.Seq != 0 {
		if tr.Seq <= slot.written || (slot.queued != nil && tr.Seq <= slot.queued.Seq) {
			return
		}
	}
	slot.queued = &tr
	if slot.running {
		return
	}
	slot.running = true
	o.wg.Add(1)
	go o.flush(ctx, tr.Job.ID, slot)
}

// flush writes the queued transition of one job until none is left.
func (o *SnapshotObserver) flush(ctx context.Context, id string, slot *snapshotSlot) {
	defer o.wg.Done()
	for {
		o.mu.Lock()
		tr := slot.queued
		if tr == nil || o.slots[id] != slot {
			slot.running = false
			o.mu.Unlock()
			return
		}
		slot.queued = nil
		o.mu.Unlock()

		o.save(ctx, tr)

		o.mu.Lock()
		if tr.Seq > slot.written {
			slot.written = tr.Seq
		}
		o.mu.Unlock()
	}
}

func (o *SnapshotObserver) save(ctx context.Context, tr *core.JobTransition) {
	o.purgeMu.RLock()
	defer o.purgeMu.RUnlock()

	o.mu.Lock()
	stale := tr.Seq != 0 && tr.Seq <= o.cleared
	o.mu.Unlock()
	if stale {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := o.store.Save(sctx, tr.Job); err != nil {
		o.logger.WarnContext(ctx, "failed to save job snapshot",
			"job_id", tr.Job.ID,
			"status", tr.To,
			"error", err,
		)
	}
}

// QueueCleared implements core.JobObserver. It blocks until in-flight saves finish and
// the store is purged.
func (o *SnapshotObserver) QueueCleared(ctx context.Context, seq uint64) {
	if o == nil {
		return
	}
	o.purgeMu.Lock()
	defer o.purgeMu.Unlock()

	o.mu.Lock()
	if seq > o.cleared {
		o.cleared = seq
	}
	o.slots = make(map[string]*snapshotSlot)
	o.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	n, err := o.store.Purge(sctx)
	if err != nil {
		o.logger.WarnContext(ctx, "failed to purge job snapshots", "error", err)
		return
	}
	o.logger.DebugContext(ctx, "purged job snapshots", "count", n)
}

// Wait blocks until every queued snapshot has been written or dropped.
func (o *SnapshotObserver) Wait() {
	if o == nil {
		return
	}
	o.wg.Wait()
}

// FailureNotifier is the subset of failurenotifier.Service used by FailureNotifyObserver.
type FailureNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload)
	Enabled() bool
}

// FailureNotifyObserver raises a notification for every job that fails terminally.
// Delivery runs in the background so sinks never hold up the processing cycle.
type FailureNotifyObserver struct {
	notifier FailureNotifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

var _ core.JobObserver = (*FailureNotifyObserver)(nil)

// NewFailureNotifyObserver returns nil when notifier is nil or has no sinks.
func NewFailureNotifyObserver(notifier FailureNotifier, timeout time.Duration) *FailureNotifyObserver {
	if notifier == nil || !notifier.Enabled() {
		return nil
	}
	if timeout <= 0 {
		timeout = defaultObserverTimeout
	}
	return &FailureNotifyObserver{notifier: notifier, timeout: timeout}
}

// JobTransitioned implements core.JobObserver.
func (o *FailureNotifyObserver) JobTransitioned(ctx context.Context, tr core.JobTransition) {
	if o == nil || tr.To != model.JobStatusFailed {
		return
	}
	payload := failurePayload(tr)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		nctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		o.notifier.NotifyJobFailure(nctx, payload)
	}()
}

// QueueCleared implements core.JobObserver.
func (o *FailureNotifyObserver) QueueCleared(context.Context, uint64) {}

// Wait blocks until every pending notification has been delivered or timed out.
func (o *FailureNotifyObserver) Wait() {
	if o == nil {
		return
	}
	o.wg.Wait()
}

func failurePayload(tr core.JobTransition) notify.JobFailurePayload {
	occurred := time.Now().UTC()
	if tr.Job.CompletedAt != nil {
		occurred = tr.Job.CompletedAt.UTC()
	}
	meta := map[string]string{
		"created_at": tr.Job.CreatedAt.UTC().Format(time.RFC3339),
		"priority":   strconv.Itoa(tr.Job.Priority),
	}
	if tr.Duration > 0 {
		meta["duration"] = tr.Duration.String()
	}
	return notify.JobFailurePayload{
		JobID:        tr.Job.ID,
		JobType:      string(tr.Job.Type),
		PartitionKey: tr.Job.PartitionKey,
		Error:        tr.Job.ErrorMessage(),
		ErrorClass:   tr.Reason,
		Attempts:     tr.Job.Attempts,
		MaxAttempts:  tr.Job.MaxAttempts,
		Severity:     notify.SeverityCritical,
		OccurredAt:   occurred,
		Metadata:     meta,
	}
}
