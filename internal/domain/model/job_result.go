package model

import (
	"encoding/json"
	"time"
)

// JobHistoryRecord is the archived form of a job that reached a terminal status.
type JobHistoryRecord struct {
	ID           string          `json:"id"                      db:"id"`
	Type         JobType         `json:"type"                    db:"type"`
	Status       JobStatus       `json:"status"                  db:"status"`
	Priority     int             `json:"priority"                db:"priority"`
	Attempts     int             `json:"attempts"                db:"attempts"`
	MaxAttempts  int             `json:"max_attempts"            db:"max_attempts"`
	PartitionKey *string         `json:"partition_key,omitempty" db:"partition_key"`
	Payload      json.RawMessage `json:"payload,omitempty"       db:"payload"`
	Result       json.RawMessage `json:"result,omitempty"        db:"result"`
	LastError    *string         `json:"last_error,omitempty"    db:"last_error"`
	CreatedAt    time.Time       `json:"created_at"              db:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"    db:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"  db:"completed_at"`
	ArchivedAt   time.Time       `json:"archived_at"             db:"archived_at"`
}
