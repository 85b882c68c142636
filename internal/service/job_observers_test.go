package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/mocks"
	"github.com/target/mmk-jobqueue/internal/observability/notify"
	"github.com/target/mmk-jobqueue/internal/service/failurenotifier"
	"go.uber.org/mock/gomock"
)

func TestArchiveObserver(t *testing.T) {
	ctrl := gomock.NewController(t)
	archive := mocks.NewMockJobArchive(ctrl)
	obs := NewArchiveObserver(archive, nil)

	job := model.Job{ID: "j1", Type: "email", Status: model.JobStatusCompleted}
	archive.EXPECT().Archive(gomock.Any(), job).Return(nil)
	obs.JobTransitioned(context.Background(), core.JobTransition{Job: job, From: model.JobStatusProcessing, To: model.JobStatusCompleted})

	// Non-terminal transitions are not archived.
	obs.JobTransitioned(context.Background(), core.JobTransition{Job: job, To: model.JobStatusRetrying})
	obs.JobTransitioned(context.Background(), core.JobTransition{Job: job, To: model.JobStatusProcessing})

	failed := model.Job{ID: "j2", Type: "email", Status: model.JobStatusFailed}
	archive.EXPECT().Archive(gomock.Any(), failed).Return(errors.New("db down"))
	assert.NotPanics(t, func() {
		obs.JobTransitioned(context.Background(), core.JobTransition{Job: failed, To: model.JobStatusFailed})
	})

	obs.Wait()
	obs.QueueCleared(context.Background(), 0)
}

func TestNewObservers_NilDependencies(t *testing.T) {
	assert.Nil(t, NewArchiveObserver(nil, nil))
	assert.Nil(t, NewSnapshotObserver(nil, nil))
	assert.Nil(t, NewFailureNotifyObserver(nil, 0))
	assert.Nil(t, NewFailureNotifyObserver(failurenotifier.NewService(failurenotifier.Options{}), 0))

	var archive *ArchiveObserver
	var snapshot *SnapshotObserver
	var failure *FailureNotifyObserver
	assert.NotPanics(t, func() {
		archive.JobTransitioned(context.Background(), core.JobTransition{To: model.JobStatusFailed})
		snapshot.JobTransitioned(context.Background(), core.JobTransition{})
		snapshot.QueueCleared(context.Background(), 0)
		failure.JobTransitioned(context.Background(), core.JobTransition{To: model.JobStatusFailed})
		archive.Wait()
		snapshot.Wait()
		failure.Wait()
	})
}

func TestSnapshotObserver(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockJobSnapshotStore(ctrl)
	obs := NewSnapshotObserver(store, nil)

	job := model.Job{ID: "j1", Status: model.JobStatusPending}
	other := model.Job{ID: "j2", Status: model.JobStatusPending}
	gomock.InOrder(
		store.EXPECT().Save(gomock.Any(), job).Return(nil),
		store.EXPECT().Purge(gomock.Any()).Return(3, nil),
	)
	store.EXPECT().Save(gomock.Any(), other).Return(errors.New("redis unavailable"))
	store.EXPECT().Purge(gomock.Any()).Return(0, errors.New("redis unavailable"))

	obs.JobTransitioned(context.Background(), core.JobTransition{Job: job, To: model.JobStatusPending, Seq: 1})
	obs.Wait()
	// Already written.
	obs.JobTransitioned(context.Background(), core.JobTransition{Job: job, To: model.JobStatusPending, Seq: 1})
	obs.Wait()
	obs.QueueCleared(context.Background(), 1)

	obs.JobTransitioned(context.Background(), core.JobTransition{Job: other, To: model.JobStatusPending, Seq: 2})
	obs.Wait()
	obs.QueueCleared(context.Background(), 2)
}

// gatedSnapshotStore is an in-memory JobSnapshotStore whose saves of one status can be
// held until the test releases them.
type gatedSnapshotStore struct {
	gateOn  model.JobStatus
	entered chan struct{}
	release chan struct{}

	mu   sync.Mutex
	jobs map[string]model.Job
	ops  []string
}

func newGatedSnapshotStore(gateOn model.JobStatus) *gatedSnapshotStore {
	return &gatedSnapshotStore{
		gateOn:  gateOn,
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
		jobs:    make(map[string]model.Job),
	}
}

func (s *gatedSnapshotStore) Save(_ context.Context, job model.Job) error {
	if job.Status == s.gateOn {
		s.entered <- struct{}{}
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.ops = append(s.ops, "save "+job.ID+" "+string(job.Status))
	return nil
}

func (s *gatedSnapshotStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

func (s *gatedSnapshotStore) Purge(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.jobs)
	s.jobs = make(map[string]model.Job)
	s.ops = append(s.ops, "purge")
	return n, nil
}

func (s *gatedSnapshotStore) stored(t *testing.T, id string) model.Job {
	t.Helper()
	j, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, j, "no snapshot for %s", id)
	return *j
}

func (s *gatedSnapshotStore) history() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func TestSnapshotObserver_SlowPendingSaveDoesNotOverwriteCompleted(t *testing.T) {
	store := newGatedSnapshotStore(model.JobStatusPending)
	obs := NewSnapshotObserver(store, nil)
	svc := MustNewJobQueueService(JobQueueServiceOptions{
		Settings:  QueueSettings{Concurrency: 1, MaxRetries: 1, Timeout: time.Second},
		Observers: []core.JobObserver{obs},
	})
	require.NoError(t, svc.RegisterHandler("work", okHandler("ok")))

	submitted := make(chan model.Job, 1)
	go func() {
		job, err := svc.Submit(context.Background(), "work", nil, model.SubmitOptions{})
		assert.NoError(t, err)
		submitted <- job
	}()
	job := <-submitted

	// The pending save is now stuck in the store while the job runs to completion.
	<-store.entered
	res := svc.RunCycle(context.Background())
	require.Equal(t, 1, res.Completed)

	close(store.release)
	obs.Wait()

	assert.Equal(t, model.JobStatusCompleted, store.stored(t, job.ID).Status)
}

func TestSnapshotObserver_DropsOlderTransitions(t *testing.T) {
	store := newGatedSnapshotStore("")
	obs := NewSnapshotObserver(store, nil)
	ctx := context.Background()

	job := model.Job{ID: "j1"}
	completed := job
	completed.Status = model.JobStatusCompleted
	pending := job
	pending.Status = model.JobStatusPending

	obs.JobTransitioned(ctx, core.JobTransition{Job: completed, To: model.JobStatusCompleted, Seq: 3})
	obs.Wait()
	obs.JobTransitioned(ctx, core.JobTransition{Job: pending, To: model.JobStatusPending, Seq: 1})
	obs.Wait()

	assert.Equal(t, model.JobStatusCompleted, store.stored(t, "j1").Status)
	assert.Equal(t, []string{"save j1 completed"}, store.history())
}

func TestSnapshotObserver_ClearWaitsForInFlightSave(t *testing.T) {
	store := newGatedSnapshotStore(model.JobStatusProcessing)
	obs := NewSnapshotObserver(store, nil)
	ctx := context.Background()

	old := model.Job{ID: "old", Status: model.JobStatusProcessing}
	obs.JobTransitioned(ctx, core.JobTransition{Job: old, To: model.JobStatusProcessing, Seq: 4})
	<-store.entered

	cleared := make(chan struct{})
	go func() {
		obs.QueueCleared(ctx, 5)
		close(cleared)
	}()
	select {
	case <-cleared:
		t.Fatal("purge ran while a save was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	<-cleared

	// Late transitions of jobs from before the clear are dropped.
	done := old
	done.Status = model.JobStatusCompleted
	obs.JobTransitioned(ctx, core.JobTransition{Job: done, To: model.JobStatusCompleted, Seq: 5})
	fresh := model.Job{ID: "new", Status: model.JobStatusPending}
	obs.JobTransitioned(ctx, core.JobTransition{Job: fresh, To: model.JobStatusPending, Seq: 6})
	obs.Wait()

	assert.Equal(t, []string{"save old processing", "purge", "save new pending"}, store.history())
	j, err := store.Get(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestJobQueueService_SeqIncreasesPerJob(t *testing.T) {
	h := newQueueHarness(t, nil)
	require.NoError(t, h.svc.RegisterHandler("work", okHandler(nil)))
	job := h.submit(t, "work", nil, model.SubmitOptions{})
	h.svc.RunCycle(context.Background())

	trs := h.observer.forJob(job.ID)
	require.Len(t, trs, 3)
	for i := 1; i < len(trs); i++ {
		assert.Greater(t, trs[i].Seq, trs[i-1].Seq)
	}
}

func TestFailureNotifyObserver(t *testing.T) {
	var (
		mu       sync.Mutex
		received []notify.JobFailurePayload
	)
	svc := failurenotifier.NewService(failurenotifier.Options{
		Sinks: []failurenotifier.SinkRegistration{{
			Name: "capture",
			Sink: notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
				mu.Lock()
				defer mu.Unlock()
				received = append(received, p)
				return nil
			}),
		}},
	})
	obs := NewFailureNotifyObserver(svc, time.Second)
	require.NotNil(t, obs)

	msg := "job timeout"
	completed := queueEpoch.Add(time.Minute)
	job := model.Job{
		ID:           "j1",
		Type:         "webhook.deliver",
		Status:       model.JobStatusFailed,
		Priority:     2,
		Attempts:     3,
		MaxAttempts:  3,
		CreatedAt:    queueEpoch,
		CompletedAt:  &completed,
		Error:        &msg,
		PartitionKey: "tenant-a",
	}

	obs.JobTransitioned(context.Background(), core.JobTransition{Job: job, To: model.JobStatusRetrying})
	obs.JobTransitioned(context.Background(), core.JobTransition{
		Job:      job,
		From:     model.JobStatusProcessing,
		To:       model.JobStatusFailed,
		Duration: 30 * time.Second,
		Reason:   ReasonTimeout,
	})
	obs.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	p := received[0]
	assert.Equal(t, "j1", p.JobID)
	assert.Equal(t, "webhook.deliver", p.JobType)
	assert.Equal(t, "tenant-a", p.PartitionKey)
	assert.Equal(t, "job timeout", p.Error)
	assert.Equal(t, ReasonTimeout, p.ErrorClass)
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, notify.SeverityCritical, p.Severity)
	assert.Equal(t, completed, p.OccurredAt)
	assert.Equal(t, "30s", p.Metadata["duration"])
	assert.Equal(t, "2", p.Metadata["priority"])
}

func TestJobQueueService_WithObservers(t *testing.T) {
	ctrl := gomock.NewController(t)
	archive := mocks.NewMockJobArchive(ctrl)
	store := mocks.NewMockJobSnapshotStore(ctrl)

	svc := MustNewJobQueueService(JobQueueServiceOptions{
		Settings: QueueSettings{Concurrency: 1, MaxRetries: 1, Timeout: time.Second},
		Observers: []core.JobObserver{
			NewArchiveObserver(archive, nil),
			NewSnapshotObserver(store, nil),
		},
	})
	require.NoError(t, svc.RegisterHandler("work", okHandler("ok")))

	var (
		mu   sync.Mutex
		last model.JobStatus
	)
	// Saves of pending and processing may be superseded before they are written.
	store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, job model.Job) error {
		mu.Lock()
		defer mu.Unlock()
		last = job.Status
		return nil
	}).MinTimes(1).MaxTimes(3)
	archive.EXPECT().Archive(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, job model.Job) error {
		assert.Equal(t, model.JobStatusCompleted, job.Status)
		assert.Equal(t, "ok", job.Result)
		return nil
	})

	_, err := svc.Submit(context.Background(), "work", nil, model.SubmitOptions{})
	require.NoError(t, err)
	svc.RunCycle(context.Background())

	// Drain flushes the background writes of both observers.
	require.NoError(t, svc.Drain(context.Background()))
	mu.Lock()
	assert.Equal(t, model.JobStatusCompleted, last)
	mu.Unlock()

	store.EXPECT().Purge(gomock.Any()).Return(1, nil)
	svc.Clear(context.Background())
}
