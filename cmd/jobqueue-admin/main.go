package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/bootstrap"
	"github.com/target/mmk-jobqueue/internal/data"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
	defaultHistoryLimit     = 20
	maxHistoryLimit         = 500
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	logger = bootstrap.ConfigureLogger(&cfg)

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Apply job history database migrations",
			run:         runMigrations,
		},
		"history": {
			name:        "history",
			description: "List archived terminal jobs from Postgres",
			run:         runHistory,
		},
		"prune-history": {
			name:        "prune-history",
			description: "Delete archived jobs older than a retention window",
			run:         runPruneHistory,
		},
		"snapshot": {
			name:        "snapshot",
			description: "Show the Redis snapshot for a single job",
			run:         runSnapshot,
		},
		"purge-snapshots": {
			name:        "purge-snapshots",
			description: "Delete every job snapshot from Redis",
			run:         runPurgeSnapshots,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: jobqueue-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(os.Stdout, "  %-24s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
}

type historyOptions struct {
	Type      string
	Status    string
	Partition string
	Limit     int
	JSON      bool
}

type snapshotOptions struct {
	ID string
}

type purgeOptions struct {
	Yes bool
}

type pruneOptions struct {
	OlderThan time.Duration
	BatchSize int
	Yes       bool
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := connectDB(ctx, cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runHistory(cmdCtx *commandContext, args []string) error {
	opts, err := parseHistoryFlags(args)
	if err != nil {
		return err
	}
	query, err := opts.query()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(ctx, cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	records, err := data.NewJobHistoryRepo(db).List(ctx, query)
	if err != nil {
		return err
	}
	if opts.JSON {
		return writeJSON(os.Stdout, records)
	}
	return printHistory(os.Stdout, records)
}

func runPruneHistory(cmdCtx *commandContext, args []string) error {
	opts, err := parsePruneFlags(args)
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().Add(-opts.OlderThan)
	if !opts.Yes {
		return fmt.Errorf("refusing to delete jobs completed before %s without --yes", cutoff.Format(time.RFC3339))
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultMigrationTimeout)
	defer cancel()

	db, err := connectDB(ctx, cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	n, err := data.NewJobHistoryRepo(db).Prune(ctx, cutoff, opts.BatchSize)
	if err != nil {
		return err
	}
	cmdCtx.Logger.Info("job history prune complete", "rows_deleted", n, "cutoff", cutoff)
	return nil
}

func runSnapshot(cmdCtx *commandContext, args []string) error {
	opts, err := parseSnapshotFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	repo, closeFn, err := openSnapshotRepo(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer closeFn()

	job, err := repo.Get(ctx, opts.ID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("no snapshot for job %s (key %s)", opts.ID, repo.Key(opts.ID))
	}
	return writeJSON(os.Stdout, job)
}

func runPurgeSnapshots(cmdCtx *commandContext, args []string) error {
	opts, err := parsePurgeFlags(args)
	if err != nil {
		return err
	}
	if !opts.Yes {
		return errors.New("refusing to purge snapshots without --yes")
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	repo, closeFn, err := openSnapshotRepo(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := repo.Purge(ctx)
	if err != nil {
		return fmt.Errorf("purge snapshots: %w", err)
	}
	cmdCtx.Logger.Info("snapshot purge complete", "keys_deleted", n, "prefix", cmdCtx.Config.Redis.SnapshotKeyPrefix)
	return nil
}

func openSnapshotRepo(ctx context.Context, cmdCtx *commandContext) (*data.RedisJobSnapshotRepo, func(), error) {
	client, err := connectRedis(ctx, cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return nil, nil, err
	}
	repo := data.NewRedisJobSnapshotRepo(client, data.RedisJobSnapshotRepoOptions{
		KeyPrefix: cmdCtx.Config.Redis.SnapshotKeyPrefix,
		TTL:       cmdCtx.Config.Redis.SnapshotTTL,
	})
	closeFn := func() {
		if closeErr := client.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}
	return repo, closeFn, nil
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseHistoryFlags(args []string) (historyOptions, error) {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := historyOptions{}
	fs.StringVar(&opts.Type, "type", "", "Only show jobs of this type")
	fs.StringVar(&opts.Status, "status", "", "Only show jobs with this terminal status")
	fs.StringVar(&opts.Partition, "partition", "", "Only show jobs with this partition key")
	fs.IntVar(&opts.Limit, "limit", defaultHistoryLimit, "Maximum number of records to show")
	fs.BoolVar(&opts.JSON, "json", false, "Print records as JSON")

	if err := fs.Parse(args); err != nil {
		return historyOptions{}, err
	}
	if opts.Limit <= 0 || opts.Limit > maxHistoryLimit {
		return historyOptions{}, fmt.Errorf("--limit must be between 1 and %d", maxHistoryLimit)
	}
	return opts, nil
}

func (o historyOptions) query() (model.JobHistoryQuery, error) {
	q := model.JobHistoryQuery{Limit: o.Limit}
	if o.Type != "" {
		t := model.JobType(o.Type)
		q.Type = &t
	}
	if o.Status != "" {
		st, err := model.ParseJobStatus(o.Status)
		if err != nil {
			return model.JobHistoryQuery{}, err
		}
		if !st.IsTerminal() {
			return model.JobHistoryQuery{}, fmt.Errorf("--status %q is not terminal; only completed and failed jobs are archived", o.Status)
		}
		q.Status = &st
	}
	if o.Partition != "" {
		p := o.Partition
		q.PartitionKey = &p
	}
	return q, nil
}

func parseSnapshotFlags(args []string) (snapshotOptions, error) {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := snapshotOptions{}
	fs.StringVar(&opts.ID, "id", "", "Job ID to look up (required)")

	if err := fs.Parse(args); err != nil {
		return snapshotOptions{}, err
	}
	if opts.ID == "" {
		return snapshotOptions{}, errors.New("--id is required")
	}
	return opts, nil
}

func parsePurgeFlags(args []string) (purgeOptions, error) {
	fs := flag.NewFlagSet("purge-snapshots", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := purgeOptions{}
	fs.BoolVar(&opts.Yes, "yes", false, "Confirm the purge")

	if err := fs.Parse(args); err != nil {
		return purgeOptions{}, err
	}
	return opts, nil
}

func parsePruneFlags(args []string) (pruneOptions, error) {
	fs := flag.NewFlagSet("prune-history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := pruneOptions{}
	fs.DurationVar(&opts.OlderThan, "older-than", 30*24*time.Hour, "Delete jobs completed longer ago than this")
	fs.IntVar(&opts.BatchSize, "batch", 1000, "Rows deleted per statement (0 deletes in one statement)")
	fs.BoolVar(&opts.Yes, "yes", false, "Confirm the deletion")

	if err := fs.Parse(args); err != nil {
		return pruneOptions{}, err
	}
	if opts.OlderThan <= 0 {
		return pruneOptions{}, errors.New("--older-than must be greater than zero")
	}
	if opts.BatchSize < 0 {
		return pruneOptions{}, errors.New("--batch must not be negative")
	}
	return opts, nil
}
