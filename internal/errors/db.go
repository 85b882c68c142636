package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// keyFieldRE pulls the column out of "Key (field)=(value) already exists.".
var keyFieldRE = regexp.MustCompile(`Key \(([^)]+)\)=`)

const msgUnavailable = "Database is unavailable."

// MapDBError converts driver and context errors into AppErrors so callers can pick a status
// without importing pgx. Errors it does not recognize pass through unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	var (
		pgErr   *pgconn.PgError
		connErr *pgconn.ConnectError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "Database request timed out.")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "Database request was canceled.")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "Resource not found")
	case errors.As(err, &pgErr):
		return fromPgError(pgErr)
	case errors.As(err, &connErr):
		return Wrap(err, ErrCodeUnavailable, msgUnavailable)
	default:
		return err
	}
}

func fromPgError(pgErr *pgconn.PgError) *AppError {
	out := &AppError{Code: ErrCodeInternal, Message: "A database error occurred.", Cause: pgErr}

	switch code := pgErr.Code; {
	case code == pgerrcode.UniqueViolation:
		out.Code, out.Message = ErrCodeConflict, "This value already exists."
		out.Field = pgErr.ColumnName
		if out.Field == "" {
			if m := keyFieldRE.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
				out.Field = m[1]
			}
		}
	case code == pgerrcode.CheckViolation:
		out.Code, out.Message = ErrCodeValidation, checkViolationMessage(pgErr.ConstraintName)
		out.Field = pgErr.ColumnName
	case code == pgerrcode.NotNullViolation:
		out.Code, out.Message = ErrCodeValidation, "This field is required."
		out.Field = pgErr.ColumnName
	case pgerrcode.IsConnectionException(code), code == pgerrcode.AdminShutdown, code == pgerrcode.CannotConnectNow:
		out.Code, out.Message = ErrCodeUnavailable, msgUnavailable
	}
	return out
}

// checkViolationMessage names the job_history constraint that rejected a row.
func checkViolationMessage(constraint string) string {
	switch {
	case strings.Contains(constraint, "attempts"):
		return "Attempts must be between zero and the attempt ceiling."
	case strings.Contains(constraint, "status"):
		return "Only completed or failed jobs can be archived."
	default:
		return "Invalid data. Please check your input."
	}
}
