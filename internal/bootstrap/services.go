package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/adapters/jobrunner"
	"github.com/target/mmk-jobqueue/internal/adapters/scheduler"
	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/data"
	domainjob "github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/observability/metrics"
	"github.com/target/mmk-jobqueue/internal/observability/notify/pagerduty"
	"github.com/target/mmk-jobqueue/internal/observability/notify/slack"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
	"github.com/target/mmk-jobqueue/internal/service"
	"github.com/target/mmk-jobqueue/internal/service/failurenotifier"
	"golang.org/x/sync/errgroup"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Queue    *service.JobQueueService
	Runner   *scheduler.Runner
	Notifier *domainjob.DefaultNotifier

	// History and Snapshots are nil when their backend is disabled.
	History   core.JobArchive
	Snapshots core.JobSnapshotStore

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	FailureObserver *service.FailureNotifyObserver
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// Sink returns the metrics sink, or nil when metrics are disabled.
//
//nolint:ireturn // callers take the interface so a missing client stays a nil interface.
func (o ObservabilityContainer) Sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceDeps holds the dependencies for creating services.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB               // Optional: enables the job history archive
	RedisClient redis.UniversalClient // Optional: enables job snapshots
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	failureNotifier := buildFailureNotifier(obsLogger, cfg.Notifications)

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: failureNotifier,
		FailureObserver: service.NewFailureNotifyObserver(failureNotifier, cfg.Notifications.Timeout),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:         cfg.Slack.WebhookURL,
			Channel:            cfg.Slack.Channel,
			Username:           cfg.Slack.Username,
			Timeout:            cfg.Timeout,
			RetryLimit:         cfg.RetryLimit,
			PartitionURLPrefix: cfg.Slack.PartitionURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	svc := failurenotifier.NewService(failurenotifier.Options{
		Logger:         baseLogger.With("component", "failure_notifier"),
		Sinks:          sinks,
		SkipJobTypes:   cfg.SkipJobTypes,
		WarningReasons: cfg.WarningReasons,
	})
	baseLogger.Info("failure notifications configured", "sinks", svc.SinkNames())
	return svc
}

// storageBackends holds the optional archive and snapshot repositories.
type storageBackends struct {
	history   *data.JobHistoryRepo
	snapshots *data.RedisJobSnapshotRepo
}

func buildStorage(deps *ServiceDeps) storageBackends {
	var b storageBackends
	if deps.DB != nil {
		b.history = data.NewJobHistoryRepo(deps.DB)
	}
	if deps.RedisClient != nil {
		b.snapshots = data.NewRedisJobSnapshotRepo(deps.RedisClient, data.RedisJobSnapshotRepoOptions{
			KeyPrefix: deps.Config.Redis.SnapshotKeyPrefix,
			TTL:       deps.Config.Redis.SnapshotTTL,
		})
	}
	return b
}

// buildObservers assembles the queue's transition listeners in a fixed order:
// metrics first, then the durable mirrors, then alerting.
func buildObservers(logger *slog.Logger, obs ObservabilityContainer, store storageBackends) []core.JobObserver {
	observers := make([]core.JobObserver, 0, 4)
	if mo := metrics.NewJobMetricsObserver(obs.Sink()); mo != nil {
		observers = append(observers, mo)
	}
	if store.history != nil {
		observers = append(observers, service.NewArchiveObserver(store.history, logger))
	}
	if store.snapshots != nil {
		observers = append(observers, service.NewSnapshotObserver(store.snapshots, logger))
	}
	if obs.FailureObserver != nil {
		observers = append(observers, obs.FailureObserver)
	}
	return observers
}

func webhookOptions(cfg config.WebhookConfig, logger *slog.Logger) *jobrunner.WebhookOptions {
	if !cfg.Enabled {
		return nil
	}
	opts := &jobrunner.WebhookOptions{
		Timeout:        cfg.Timeout,
		AllowedDomains: cfg.AllowedDomains,
		Logger:         logger,
	}
	if cfg.OAuth.Enabled() {
		opts.OAuth = &jobrunner.OAuthConfig{
			TokenURL:     cfg.OAuth.TokenURL,
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Scopes:       cfg.OAuth.Scopes,
		}
	}
	return opts
}

// NewServices wires the queue, its observers, the built-in handlers and the runner.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability := buildObservability(logger, cfg.Observability)
	store := buildStorage(deps)
	notifier := domainjob.NewNotifier()

	queue, err := service.NewJobQueueService(service.JobQueueServiceOptions{
		Settings: service.QueueSettings{
			Concurrency: cfg.Queue.Concurrency,
			MaxRetries:  cfg.Queue.MaxRetries,
			RetryDelay:  cfg.Queue.RetryDelay,
			Timeout:     cfg.Queue.Timeout,
		},
		Logger:    logger,
		Clock:     &data.RealTimeProvider{},
		Observers: buildObservers(logger, observability, store),
		Notifier:  notifier,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job queue: %w", err)
	}

	if err = jobrunner.RegisterBuiltinHandlers(queue.Registry(), jobrunner.BuiltinOptions{
		Logger:  logger,
		Webhook: webhookOptions(cfg.Webhook, logger),
	}); err != nil {
		return ServiceContainer{}, err
	}

	runner, err := scheduler.NewRunner(scheduler.RunnerOptions{
		Queue:        queue,
		Interval:     cfg.Queue.CycleInterval,
		DrainTimeout: cfg.Queue.DrainTimeout,
		Notifier:     notifier,
		Logger:       logger,
		Metrics:      observability.Sink(),
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create queue runner: %w", err)
	}

	container := ServiceContainer{
		Queue:         queue,
		Runner:        runner,
		Notifier:      notifier,
		Observability: observability,
	}
	// Assign through the concrete pointers so a disabled backend stays a nil interface.
	if store.history != nil {
		container.History = store.history
	}
	if store.snapshots != nil {
		container.Snapshots = store.snapshots
	}
	return container, nil
}

// ServiceOrchestrationConfig contains dependencies for running services.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// It blocks until SIGINT/SIGTERM arrives or a service fails, then shuts everything down.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServices(ctx, cfg)
}

// runServices runs the enabled services until ctx ends or one of them fails.
func runServices(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	runner := cfg.Services.Runner
	if enabled[config.ServiceModeWorker] && runner == nil {
		return errors.New("worker enabled without a queue runner")
	}
	if enabled[config.ServiceModeHTTP] && !enabled[config.ServiceModeWorker] {
		logger.WarnContext(ctx, "worker disabled; submitted jobs run only via POST /api/jobs/cycle",
			"services", cfg.Config.Services,
		)
	}

	group, gctx := errgroup.WithContext(ctx)

	if enabled[config.ServiceModeHTTP] {
		server := NewHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
		})
		group.Go(func() error {
			return serveHTTP(gctx, server, cfg.Config.HTTP, logger)
		})
	}

	if enabled[config.ServiceModeWorker] {
		group.Go(func() error {
			logger.InfoContext(gctx, "background service started", "service", "worker")
			if err := runner.Run(gctx); err != nil {
				return fmt.Errorf("worker failed: %w", err)
			}
			logger.InfoContext(gctx, "worker stopped")
			return nil
		})
	}

	err = group.Wait()

	if cfg.Services.Notifier != nil {
		cfg.Services.Notifier.StopAll()
	}
	// Give in-flight failure notifications a chance to reach their sinks.
	cfg.Services.Observability.FailureObserver.Wait()
	if sink := cfg.Services.Observability.MetricsSink; sink != nil {
		if cerr := sink.Close(); cerr != nil {
			logger.Warn("close statsd client", "error", cerr)
		}
	}

	if err != nil {
		logger.Error("service error", "error", err)
		return err
	}
	logger.Info("services stopped")
	return nil
}

// serveHTTP runs server until ctx ends, then shuts it down gracefully.
func serveHTTP(ctx context.Context, server *http.Server, cfg config.HTTPConfig, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		return ShutdownHTTPServer(ShutdownConfig{
			Context: context.WithoutCancel(ctx),
			Server:  server,
			Timeout: cfg.ShutdownTimeout,
			Logger:  logger,
		})
	}
}
