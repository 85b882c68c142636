package data

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/target/mmk-jobqueue/internal/migrate"
)

// RunMigrations creates or upgrades the job_history schema and returns the versions applied.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) ([]string, error) {
	return migrate.Run(ctx, db, logger)
}
