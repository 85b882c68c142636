package httpx

import (
	"io"
	"net/http"
)

const (
	healthResponse   = `{"status":"ok"}`
	drainingResponse = `{"status":"draining"}`
)

// drainReporter is satisfied by service.JobQueueService.
type drainReporter interface {
	Closed() bool
}

// healthHandler reports 200 while the queue accepts work and 503 once it is draining.
func healthHandler(queue drainReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, healthResponse
		if queue != nil && queue.Closed() {
			status, body = http.StatusServiceUnavailable, drainingResponse
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, body)
		}
	}
}
