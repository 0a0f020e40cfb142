package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/oddsgrid/sportpipe/internal/domain/job"
	"github.com/oddsgrid/sportpipe/internal/domain/jobrun"
	"github.com/oddsgrid/sportpipe/internal/usecase"
)

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListJobs")
	defer span.End()

	if h.orchestrator == nil {
		writeError(ctx, w, fmt.Errorf("%w: job orchestrator is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	statuses := h.orchestrator.Jobs()
	out := make([]jobStatusDTO, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, jobStatusToDTO(status))
	}

	writeSuccess(ctx, w, http.StatusOK, out)
}

func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunJob")
	defer span.End()

	if h.orchestrator == nil {
		writeError(ctx, w, fmt.Errorf("%w: job orchestrator is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	jobName := strings.TrimSpace(r.PathValue("jobName"))
	run, err := h.orchestrator.Run(ctx, jobName)
	if err != nil {
		h.logger.WarnContext(ctx, "manual job run failed", "job_name", jobName, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, jobRunToDTO(run))
}

func (h *Handler) ListJobRuns(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListJobRuns")
	defer span.End()

	if h.orchestrator == nil {
		writeError(ctx, w, fmt.Errorf("%w: job orchestrator is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	jobName := strings.TrimSpace(r.PathValue("jobName"))
	from, err := parseTimeParam(r.URL.Query().Get("from"))
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid from timestamp: %v", usecase.ErrInvalidInput, err))
		return
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"))
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid to timestamp: %v", usecase.ErrInvalidInput, err))
		return
	}

	runs, err := h.orchestrator.History(ctx, jobName, from, to)
	if err != nil {
		h.logger.WarnContext(ctx, "list job runs failed", "job_name", jobName, "error", err)
		writeError(ctx, w, err)
		return
	}

	out := make([]jobRunDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, jobRunToDTO(run))
	}

	writeSuccess(ctx, w, http.StatusOK, out)
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

type jobStatusDTO struct {
	Name        string  `json:"name"`
	Adapter     string  `json:"adapter"`
	Schedule    string  `json:"schedule"`
	Concurrency int     `json:"concurrency"`
	RateLimit   float64 `json:"rateLimit,omitempty"`
	Enabled     bool    `json:"enabled"`
	Running     int     `json:"running"`
}

type jobRunDTO struct {
	ID          string `json:"id"`
	JobName     string `json:"jobName"`
	Status      string `json:"status"`
	StartedAt   string `json:"startedAt"`
	FinishedAt  string `json:"finishedAt,omitempty"`
	RecordsSeen int    `json:"recordsSeen"`
	Matched     int    `json:"matched"`
	Created     int    `json:"created"`
	Queued      int    `json:"queued"`
	Failed      int    `json:"failed"`
	Error       string `json:"error,omitempty"`
}

func jobStatusToDTO(status usecase.JobStatus) jobStatusDTO {
	return jobStatusDTO{
		Name:        status.Name,
		Adapter:     status.Adapter,
		Schedule:    scheduleLabel(status.Schedule),
		Concurrency: status.Concurrency,
		RateLimit:   status.RateLimit,
		Enabled:     status.Enabled,
		Running:     status.Running,
	}
}

func scheduleLabel(s job.Schedule) string {
	switch s.Kind {
	case job.ScheduleKindInterval:
		return "every " + s.Every.String()
	case job.ScheduleKindCron:
		return "cron " + s.Expr
	case job.ScheduleKindOnce:
		return "once"
	default:
		return string(s.Kind)
	}
}

func jobRunToDTO(run jobrun.Run) jobRunDTO {
	dto := jobRunDTO{
		ID:          run.ID,
		JobName:     run.JobName,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt.UTC().Format(time.RFC3339),
		RecordsSeen: run.RecordsSeen,
		Matched:     run.Matched,
		Created:     run.Created,
		Queued:      run.Queued,
		Failed:      run.Failed,
		Error:       run.Error,
	}
	if !run.FinishedAt.IsZero() {
		dto.FinishedAt = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	return dto
}
