// Package httpx provides the HTTP API for submitting and inspecting queue jobs.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
	"github.com/target/mmk-jobqueue/internal/service"
)

const (
	defaultListLimit    = 100
	maxListLimit        = 1000
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Queue   *service.JobQueueService
	History core.JobArchive // Optional: nil disables the history endpoint
	Logger  *slog.Logger
}

// SubmitJob handles POST /api/jobs.
func (h *JobHandlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		WriteServiceError(w, err)
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}

	job, err := h.Queue.Submit(r.Context(), req.Type, payload, req.Options())
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	job, ok := h.Queue.GetJob(id)
	if !ok {
		WriteServiceError(w, apperrors.NotFoundf("job %s not found", id))
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	opts, err := parseJobListOptions(r)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.Queue.ListJobs(opts))
}

// Stats handles GET /api/jobs/stats.
func (h *JobHandlers) Stats(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.Queue.GetStats())
}

// RunCycle handles POST /api/jobs/cycle by running one processing cycle synchronously.
func (h *JobHandlers) RunCycle(w http.ResponseWriter, r *http.Request) {
	if h.Queue.Closed() {
		WriteServiceError(w, service.ErrQueueClosed)
		return
	}
	res := h.Queue.RunCycle(r.Context())
	h.logger().InfoContext(r.Context(), "manual cycle run",
		"selected", res.Selected,
		"completed", res.Completed,
		"retried", res.Retried,
		"failed", res.Failed,
	)
	WriteJSON(w, http.StatusOK, res)
}

// JobHistory handles GET /api/jobs/history.
func (h *JobHandlers) JobHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		WriteServiceError(w, apperrors.Unavailable("job history archive is disabled"))
		return
	}

	filters, err := parseJobFilters(r)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	limit, _ := ParseLimitOffset(r, defaultHistoryLimit, maxHistoryLimit)

	records, err := h.History.List(r.Context(), model.JobHistoryQuery{
		Type:         filters.jobType,
		Status:       filters.status,
		PartitionKey: filters.partitionKey,
		Limit:        limit,
	})
	if err != nil {
		h.logger().ErrorContext(r.Context(), "list job history failed", "error", err)
		WriteServiceError(w, err)
		return
	}
	if records == nil {
		records = []model.JobHistoryRecord{}
	}
	WriteJSON(w, http.StatusOK, records)
}

// ListHandlers handles GET /api/handlers.
func (h *JobHandlers) ListHandlers(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string][]model.JobType{"job_types": h.Queue.Registry().Types()})
}

func (h *JobHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// jobFilters are the query-string filters shared by the list and history endpoints.
type jobFilters struct {
	jobType      *model.JobType
	status       *model.JobStatus
	partitionKey *string
}

func parseJobFilters(r *http.Request) (jobFilters, error) {
	q := r.URL.Query()
	var f jobFilters

	if v := strings.TrimSpace(q.Get("type")); v != "" {
		jt := model.JobType(v)
		f.jobType = &jt
	}
	if v := q.Get("status"); v != "" {
		st, err := model.ParseJobStatus(v)
		if err != nil {
			return jobFilters{}, apperrors.ValidationField("status", err.Error())
		}
		f.status = &st
	}
	if v := strings.TrimSpace(q.Get("partition_key")); v != "" {
		f.partitionKey = &v
	}
	return f, nil
}

func parseJobListOptions(r *http.Request) (model.JobListOptions, error) {
	f, err := parseJobFilters(r)
	if err != nil {
		return model.JobListOptions{}, err
	}
	limit, offset := ParseLimitOffset(r, defaultListLimit, maxListLimit)
	return model.JobListOptions{
		Type:         f.jobType,
		Status:       f.status,
		PartitionKey: f.partitionKey,
		Limit:        limit,
		Offset:       offset,
	}, nil
}
