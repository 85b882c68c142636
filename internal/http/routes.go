package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Queue   *service.JobQueueService
	History core.JobArchive // Optional: enables GET /api/jobs/history
	Logger  *slog.Logger    // Optional
}

// NewRouter creates the API router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	var queue drainReporter
	if services.Queue != nil {
		queue = services.Queue
		registerJobRoutes(mux, &JobHandlers{
			Queue:   services.Queue,
			History: services.History,
			Logger:  services.Logger,
		})
	}

	health := healthHandler(queue)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)

	return mux
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /api/jobs", h.SubmitJob)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/stats", h.Stats)
	mux.HandleFunc("GET /api/jobs/history", h.JobHistory)
	mux.HandleFunc("POST /api/jobs/cycle", h.RunCycle)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("GET /api/handlers", h.ListHandlers)
}
