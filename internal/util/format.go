package util //nolint:revive // package name util hosts shared formatting helpers used by CLI output

import "time"

// FormatJobDuration renders the time a job spent running. Jobs that never started or
// have not finished render as "-".
func FormatJobDuration(started, completed *time.Time) string {
	if started == nil || completed == nil {
		return "-"
	}
	d := completed.Sub(*started)
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}
