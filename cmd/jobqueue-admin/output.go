package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/util"
)

func printHistory(out io.Writer, records []model.JobHistoryRecord) error {
	if len(records) == 0 {
		return writeln(out, "No archived jobs found.")
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(w, "ID\tTYPE\tSTATUS\tATTEMPTS\tPARTITION\tCOMPLETED\tDURATION\tERROR"); err != nil {
		return fmt.Errorf("write history header: %w", err)
	}
	for i := range records {
		rec := &records[i]
		if err := writef(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\t%s\n",
			rec.ID,
			rec.Type,
			rec.Status,
			rec.Attempts,
			rec.MaxAttempts,
			derefOr(rec.PartitionKey, "-"),
			formatTime(rec.CompletedAt),
			util.FormatJobDuration(rec.StartedAt, rec.CompletedAt),
			derefOr(rec.LastError, ""),
		); err != nil {
			return fmt.Errorf("write history row %s: %w", rec.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush history: %w", err)
	}
	return writef(out, "\n%d record(s)\n", len(records))
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
