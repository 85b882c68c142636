package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobIDRequired is returned when a job without an id is written or read.
	ErrJobIDRequired = errors.New("job id is required")
	// ErrJobNotTerminal is returned when a job that can still change is archived.
	ErrJobNotTerminal = errors.New("only terminal jobs can be archived")
	// ErrArchiveNotConfigured is returned by a repository constructed without a database.
	ErrArchiveNotConfigured = errors.New("job history archive not configured")
)
