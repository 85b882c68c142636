package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/adapters/jobrunner"
	"github.com/target/mmk-jobqueue/internal/data"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
	"github.com/target/mmk-jobqueue/internal/observability/notify"
	"github.com/target/mmk-jobqueue/internal/service"
)

func testAppConfig(services string) *config.AppConfig {
	return &config.AppConfig{
		Services: services,
		Queue: config.QueueConfig{
			Concurrency:   2,
			MaxRetries:    2,
			RetryDelay:    0,
			Timeout:       time.Second,
			CycleInterval: 10 * time.Millisecond,
			DrainTimeout:  time.Second,
		},
		HTTP: config.HTTPConfig{
			Addr:            "127.0.0.1:0",
			ShutdownTimeout: time.Second,
		},
	}
}

func TestNewServices_Defaults(t *testing.T) {
	cfg := testAppConfig("worker")

	svc, err := NewServices(&ServiceDeps{Config: cfg})
	require.NoError(t, err)

	require.NotNil(t, svc.Queue)
	require.NotNil(t, svc.Runner)
	require.NotNil(t, svc.Notifier)
	assert.Nil(t, svc.History, "archive must stay disabled without a database")
	assert.Nil(t, svc.Snapshots, "snapshots must stay disabled without redis")
	assert.Nil(t, svc.Observability.MetricsSink)
	assert.Nil(t, svc.Observability.Sink())
	assert.Nil(t, svc.Observability.FailureObserver)

	assert.Equal(t, []model.JobType{jobrunner.JobTypeNoop}, svc.Queue.Registry().Types())
	assert.Equal(t, service.QueueSettings{
		Concurrency: 2,
		MaxRetries:  2,
		RetryDelay:  0,
		Timeout:     time.Second,
	}, svc.Queue.Settings())
}

func TestNewServices_WebhookEnabled(t *testing.T) {
	cfg := testAppConfig("worker")
	cfg.Webhook = config.WebhookConfig{
		Enabled:        true,
		Timeout:        time.Second,
		AllowedDomains: []string{"example.com"},
	}

	svc, err := NewServices(&ServiceDeps{Config: cfg})
	require.NoError(t, err)

	assert.Equal(t,
		[]model.JobType{jobrunner.JobTypeNoop, jobrunner.JobTypeWebhook},
		svc.Queue.Registry().Types(),
	)
}

func TestNewServices_RequiresConfig(t *testing.T) {
	_, err := NewServices(nil)
	require.Error(t, err)

	_, err = NewServices(&ServiceDeps{})
	require.Error(t, err)
}

func TestWebhookOptions(t *testing.T) {
	assert.Nil(t, webhookOptions(config.WebhookConfig{}, nil))

	opts := webhookOptions(config.WebhookConfig{
		Enabled: true,
		Timeout: 2 * time.Second,
		OAuth: config.WebhookOAuthConfig{
			TokenURL: "https://login.example.com/token",
			ClientID: "id",
			Scopes:   []string{"hooks"},
		},
	}, nil)
	require.NotNil(t, opts)
	assert.Equal(t, 2*time.Second, opts.Timeout)
	require.NotNil(t, opts.OAuth)
	assert.Equal(t, "https://login.example.com/token", opts.OAuth.TokenURL)
	assert.Equal(t, []string{"hooks"}, opts.OAuth.Scopes)
}

func TestBuildObservers(t *testing.T) {
	t.Run("nothing configured", func(t *testing.T) {
		assert.Empty(t, buildObservers(nil, ObservabilityContainer{}, storageBackends{}))
	})

	t.Run("fixed order", func(t *testing.T) {
		fo := service.NewFailureNotifyObserver(alwaysEnabledNotifier{}, time.Second)
		require.NotNil(t, fo)

		observers := buildObservers(nil, ObservabilityContainer{FailureObserver: fo}, storageBackends{
			history:   data.NewJobHistoryRepo(nil),
			snapshots: data.NewRedisJobSnapshotRepo(nil, data.RedisJobSnapshotRepoOptions{}),
		})
		require.Len(t, observers, 3)
		assert.IsType(t, &service.ArchiveObserver{}, observers[0])
		assert.IsType(t, &service.SnapshotObserver{}, observers[1])
		assert.Same(t, fo, observers[2])

		for _, o := range observers {
			_, isMetrics := o.(*metrics.JobMetricsObserver)
			assert.False(t, isMetrics, "metrics observer requires a sink")
		}
	})
}

func TestGetEnabledServices(t *testing.T) {
	assert.Equal(t, []string{"http", "worker"}, GetEnabledServices(testAppConfig("worker,http")))
	assert.Equal(t, []string{"worker"}, GetEnabledServices(testAppConfig("worker")))
	assert.Empty(t, GetEnabledServices(testAppConfig("bogus")))
	assert.Empty(t, GetEnabledServices(nil))

	require.NoError(t, ValidateServiceConfig(testAppConfig("http")))
	require.Error(t, ValidateServiceConfig(testAppConfig("")))
	require.Error(t, ValidateServiceConfig(nil))
}

func TestRunServices_WorkerProcessesAndStops(t *testing.T) {
	cfg := testAppConfig("worker")
	svc, err := NewServices(&ServiceDeps{Config: cfg})
	require.NoError(t, err)

	job, err := svc.Queue.Submit(context.Background(), jobrunner.JobTypeNoop, "ping", model.SubmitOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServices(ctx, &ServiceOrchestrationConfig{Config: cfg, Services: svc})
	}()

	require.Eventually(t, func() bool {
		j, ok := svc.Queue.GetJob(job.ID)
		return ok && j.Status == model.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("services did not stop")
	}
	assert.True(t, svc.Queue.Closed(), "runner must drain the queue on shutdown")
}

func TestRunServices_HTTPAndWorker(t *testing.T) {
	cfg := testAppConfig("http,worker")
	svc, err := NewServices(&ServiceDeps{Config: cfg})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServices(ctx, &ServiceOrchestrationConfig{Config: cfg, Services: svc})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("services did not stop")
	}
}

func TestRunServices_HTTPOnlyWarnsWithoutWorker(t *testing.T) {
	cfg := testAppConfig("http")
	svc, err := NewServices(&ServiceDeps{Config: cfg})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServices(ctx, &ServiceOrchestrationConfig{Config: cfg, Services: svc, Logger: logger})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("services did not stop")
	}
	assert.Contains(t, buf.String(), "worker disabled; submitted jobs run only via POST /api/jobs/cycle")
}

func TestRunServices_WorkerWithoutRunner(t *testing.T) {
	err := runServices(context.Background(), &ServiceOrchestrationConfig{
		Config: testAppConfig("worker"),
	})
	require.Error(t, err)
}

func TestRunServicesWithShutdown_RequiresConfig(t *testing.T) {
	require.Error(t, RunServicesWithShutdown(nil))
	require.Error(t, RunServicesWithShutdown(&ServiceOrchestrationConfig{}))
}

func TestShutdownHTTPServer_NilServer(t *testing.T) {
	require.NoError(t, ShutdownHTTPServer(ShutdownConfig{}))
}

func TestNewHTTPServer(t *testing.T) {
	cfg := testAppConfig("http")
	cfg.HTTP.Addr = ""
	svc, err := NewServices(&ServiceDeps{Config: cfg})
	require.NoError(t, err)

	server := NewHTTPServer(&HTTPServerConfig{Config: cfg, Services: svc})
	require.NotNil(t, server)
	assert.Equal(t, ":8080", server.Addr)
	assert.Equal(t, 30*time.Second, server.ReadTimeout)
	assert.Equal(t, 30*time.Second, server.WriteTimeout)
	assert.Equal(t, 120*time.Second, server.IdleTimeout)

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/handlers", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"job_types":["noop"]}`, rec.Body.String())

	assert.Nil(t, NewHTTPServer(nil))
}

type alwaysEnabledNotifier struct{}

func (alwaysEnabledNotifier) NotifyJobFailure(context.Context, notify.JobFailurePayload) {}
func (alwaysEnabledNotifier) Enabled() bool                                          { return true }
