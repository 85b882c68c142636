package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/mmk-jobqueue/internal/data/database"
	"github.com/target/mmk-jobqueue/internal/data/pgxutil"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
)

const (
	jobHistoryTable        = "job_history"
	defaultHistoryLimit    = 50
	maxHistoryLimit        = 500
	jobHistoryUpsertClause = `
		INSERT INTO job_history (
			id, type, status, priority, attempts, max_attempts, partition_key,
			payload, result, last_error, created_at, started_at, completed_at, archived_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			attempts = EXCLUDED.attempts,
			max_attempts = EXCLUDED.max_attempts,
			partition_key = EXCLUDED.partition_key,
			payload = EXCLUDED.payload,
			result = EXCLUDED.result,
			last_error = EXCLUDED.last_error,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			archived_at = now()`
)

var jobHistoryColumns = []string{
	"id", "type", "status", "priority", "attempts", "max_attempts", "partition_key",
	"payload", "result", "last_error", "created_at", "started_at", "completed_at", "archived_at",
}

// JobHistoryRepo archives terminal jobs in Postgres. It implements core.JobArchive.
type JobHistoryRepo struct {
	DB *sql.DB
}

// NewJobHistoryRepo constructs a JobHistoryRepo.
func NewJobHistoryRepo(db *sql.DB) *JobHistoryRepo {
	return &JobHistoryRepo{DB: db}
}

// Archive upserts a completed or failed job. Re-archiving the same id overwrites the row.
func (r *JobHistoryRepo) Archive(ctx context.Context, job model.Job) error {
	if r == nil || r.DB == nil {
		return ErrArchiveNotConfigured
	}
	if job.ID == "" {
		return ErrJobIDRequired
	}
	if !job.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", ErrJobNotTerminal, job.ID, job.Status)
	}

	payload, err := encodeOpaque(job.Payload)
	if err != nil {
		return fmt.Errorf("encode payload for job %s: %w", job.ID, err)
	}
	result, err := encodeOpaque(job.Result)
	if err != nil {
		return fmt.Errorf("encode result for job %s: %w", job.ID, err)
	}

	var partition *string
	if job.PartitionKey != "" {
		partition = &job.PartitionKey
	}

	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, jobHistoryUpsertClause,
			job.ID,
			string(job.Type),
			string(job.Status),
			job.Priority,
			job.Attempts,
			job.MaxAttempts,
			partition,
			payload,
			result,
			job.Error,
			job.CreatedAt,
			job.StartedAt,
			job.CompletedAt,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("archive job %s: %w", job.ID, apperrors.MapDBError(err))
	}
	return nil
}

// List returns archived jobs, most recently completed first.
func (r *JobHistoryRepo) List(ctx context.Context, q model.JobHistoryQuery) ([]model.JobHistoryRecord, error) {
	if r == nil || r.DB == nil {
		return nil, ErrArchiveNotConfigured
	}

	query, args := database.BuildListQuery(buildHistoryQueryOptions(q))

	var out []model.JobHistoryRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.JobHistoryRecord])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list job history: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// Prune deletes archived jobs that completed before cutoff and returns how many rows were removed.
// Rows are deleted in batches of batchSize inside one transaction; batchSize <= 0 deletes all at once.
func (r *JobHistoryRepo) Prune(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if r == nil || r.DB == nil {
		return 0, ErrArchiveNotConfigured
	}

	var total int64
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			if batchSize <= 0 {
				tag, err := tx.Exec(ctx, `DELETE FROM job_history WHERE completed_at < $1`, cutoff)
				if err != nil {
					return err
				}
				total = tag.RowsAffected()
				return nil
			}
			for {
				tag, err := tx.Exec(ctx, `
					DELETE FROM job_history WHERE id IN (
						SELECT id FROM job_history WHERE completed_at < $1 LIMIT $2
					)`, cutoff, batchSize)
				if err != nil {
					return err
				}
				total += tag.RowsAffected()
				if tag.RowsAffected() < int64(batchSize) {
					return nil
				}
			}
		},
	})
	if err != nil {
		return 0, fmt.Errorf("prune job history: %w", apperrors.MapDBError(err))
	}
	return total, nil
}

func buildHistoryQueryOptions(q model.JobHistoryQuery) *database.ListQueryOptions {
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	opts := []database.ListQueryOption{
		database.WithColumns(jobHistoryColumns...),
		database.WithOrderBy("completed_at", "DESC"),
		database.WithOrderBy("id", "ASC"),
		database.WithLimit(limit),
	}
	if q.Type != nil {
		opts = append(opts, database.WithCondition(database.WhereCond("type", database.Equal, string(*q.Type))))
	}
	if q.Status != nil {
		opts = append(opts, database.WithCondition(database.WhereCond("status", database.Equal, string(*q.Status))))
	}
	if q.PartitionKey != nil {
		opts = append(opts, database.WithCondition(database.WhereCond("partition_key", database.Equal, *q.PartitionKey)))
	}
	return database.NewListQueryOptions(jobHistoryTable, opts...)
}

// encodeOpaque renders a payload or result as JSON for a JSONB column. Bytes that are
// already valid JSON are stored as-is; other bytes are stored as a JSON string.
func encodeOpaque(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return encodeBytes(b)
	case []byte:
		return encodeBytes(b)
	default:
		return json.Marshal(v)
	}
}

func encodeBytes(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if json.Valid(b) {
		return b, nil
	}
	return json.Marshal(string(b))
}
