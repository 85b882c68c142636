package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/data"
)

const pingTimeout = 5 * time.Second

// DatabaseConfig contains configuration for the optional archive and snapshot backends.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// PostgresDSN renders the connection string for cfg. Credentials are escaped by url.URL.
func PostgresDSN(cfg config.DBConfig) string {
	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	return (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}).String()
}

// ConnectDB opens the job history database, applies pool limits and pings it.
func ConnectDB(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	pool := cfg.DBConfig
	pool.Sanitize()

	db, err := sql.Open("pgx", PostgresDSN(pool))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := ping(ctx, db.PingContext, db.Close); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "database connected",
			"host", pool.Host,
			"port", pool.Port,
			"database", pool.Name,
			"max_open_conns", pool.MaxOpenConns)
	}
	return db, nil
}

// ping checks a freshly opened backend and closes it when unreachable.
func ping(ctx context.Context, check func(context.Context) error, closeFn func() error) error {
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := check(pctx)
	if err == nil {
		return nil
	}
	if cerr := closeFn(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close after failed ping: %w", cerr))
	}
	return err
}

// RunMigrations creates or upgrades the job_history schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	applied, err := data.RunMigrations(ctx, db, logger)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed", "applied", len(applied), "versions", applied)
	}
	return nil
}
