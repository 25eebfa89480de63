package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"pixvid/internal/domain"
	"pixvid/internal/middleware"
	"pixvid/internal/scheduler"
)

type submitJobItem struct {
	SourceAssetKey string   `json:"source_asset_key"`
	ReferenceKeys  []string `json:"reference_keys,omitempty"`
}

type submitJobsRequest struct {
	Items    []submitJobItem    `json:"items"`
	Settings domain.JobSettings `json:"settings"`
}

type submitJobsResponse struct {
	JobIDs           []string `json:"job_ids"`
	RemainingCredits int      `json:"remaining_credits"`
}

type jobDTO struct {
	ID             string             `json:"id"`
	UserID         string             `json:"user_id"`
	SourceAssetKey string             `json:"source_asset_key"`
	ReferenceKeys  []string           `json:"reference_keys,omitempty"`
	Settings       domain.JobSettings `json:"settings"`
	Status         string             `json:"status"`
	Progress       int                `json:"progress"`
	CurrentStage   string             `json:"current_stage,omitempty"`
	RetryCount     int                `json:"retry_count"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	ResultKey      string             `json:"result_key,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

func toJobDTO(job *domain.Job) jobDTO {
	return jobDTO{
		ID:             job.ID,
		UserID:         job.UserID,
		SourceAssetKey: job.SourceAssetKey,
		ReferenceKeys:  job.ReferenceKeys,
		Settings:       job.Settings,
		Status:         string(job.Status),
		Progress:       job.Progress,
		CurrentStage:   job.CurrentStage,
		RetryCount:     job.RetryCount,
		ErrorMessage:   job.ErrorMessage,
		ResultKey:      job.ResultKey,
		CreatedAt:      job.CreatedAt,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
	}
}

// JobsSubmit accepts a batch of conversion requests sharing one settings block.
func (a *App) JobsSubmit(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req submitJobsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.Items) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "at least one item is required")
		return
	}

	// The token's plan claim gates capability up front, without a storage
	// round trip. The engine re-checks against the stored account, which
	// also covers credit counters; those never come from the claim.
	features := middleware.PlanFromContext(r.Context()).Features()
	if err := domain.ValidateSettings(req.Settings, features); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if !features.CanUseReferences {
		for _, item := range req.Items {
			if len(item.ReferenceKeys) > 0 {
				a.error(w, http.StatusBadRequest, "bad_request", "reference images require a paid plan")
				return
			}
		}
	}

	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "unknown account")
		return
	}
	settings := req.Settings
	settings.Watermark = user.Plan.Features().HasWatermark

	reqs := make([]scheduler.JobRequest, 0, len(req.Items))
	for _, item := range req.Items {
		reqs = append(reqs, scheduler.JobRequest{
			SourceAssetKey: item.SourceAssetKey,
			ReferenceKeys:  item.ReferenceKeys,
			Settings:       settings,
		})
	}

	ids, err := a.Engine.Submit(r.Context(), userID, reqs)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientCredits):
			a.error(w, http.StatusPaymentRequired, "insufficient_credits", err.Error())
		case errors.Is(err, domain.ErrInvalidJobRequest):
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		default:
			a.Logger.Error().Err(err).Str("user_id", userID).Msg("submit failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to queue jobs")
		}
		return
	}

	remaining := user.RemainingCredits()
	if remaining != domain.UnlimitedCredits {
		remaining -= len(ids)
		if remaining < 0 {
			remaining = 0
		}
	}
	a.json(w, http.StatusAccepted, submitJobsResponse{JobIDs: ids, RemainingCredits: remaining})
}

// JobStatus returns the live snapshot of one job.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.loadJobForUser(r, userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, toJobDTO(job))
}

// JobCancel cancels a queued job immediately, or flags a processing one.
func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.loadJobForUser(r, userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err := a.Engine.Cancel(r.Context(), job.ID); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyTerminal):
			a.error(w, http.StatusConflict, "conflict", "job already finished")
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		default:
			a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// JobRetry re-submits a terminally failed job with a fresh retry budget.
func (a *App) JobRetry(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.loadJobForUser(r, userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err := a.Engine.Retry(r.Context(), job.ID); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyTerminal), errors.Is(err, domain.ErrInvalidJobRequest):
			a.error(w, http.StatusConflict, "conflict", err.Error())
		case errors.Is(err, domain.ErrInsufficientCredits):
			a.error(w, http.StatusPaymentRequired, "insufficient_credits", err.Error())
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		default:
			a.error(w, http.StatusInternalServerError, "internal", "failed to retry job")
		}
		return
	}
	snapshot, err := a.Engine.GetStatus(job.ID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, toJobDTO(snapshot))
}

// JobsList returns the caller's jobs. With state=pending or state=inflight it
// reads the scheduler's live queues; otherwise it pages history from storage.
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var jobs []*domain.Job
	switch r.URL.Query().Get("state") {
	case "pending":
		jobs = filterByUser(a.Engine.ListPending(), userID)
	case "inflight":
		jobs = filterByUser(a.Engine.ListInFlight(), userID)
	case "":
		var err error
		jobs, err = a.Jobs.ListByUser(r.Context(), userID, a.pageLimit())
		if err != nil {
			a.Logger.Error().Err(err).Str("user_id", userID).Msg("list jobs failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
			return
		}
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "state must be pending or inflight")
		return
	}
	items := make([]jobDTO, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, toJobDTO(job))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// JobResult streams the rendered artifact for a completed job.
func (a *App) JobResult(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.loadJobForUser(r, userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if job.Status != domain.JobStatusCompleted || job.ResultKey == "" {
		a.error(w, http.StatusConflict, "conflict", "job has no result yet")
		return
	}
	data, err := a.Store.Read(r.Context(), job.ResultKey)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("read artifact failed")
		a.error(w, http.StatusNotFound, "not_found", "artifact not found")
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", "attachment; filename="+path.Base(job.ResultKey))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *App) loadJobForUser(r *http.Request, userID string) (*domain.Job, error) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		return nil, domain.ErrNotFound
	}
	job, err := a.Engine.GetStatus(jobID)
	if err != nil {
		// Finished jobs age out of the scheduler; fall back to storage.
		job, err = a.Jobs.GetByID(r.Context(), jobID)
		if err != nil {
			return nil, err
		}
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (a *App) pageLimit() int {
	if a.PageLimit > 0 {
		return a.PageLimit
	}
	return 50
}

func filterByUser(jobs []*domain.Job, userID string) []*domain.Job {
	out := jobs[:0]
	for _, job := range jobs {
		if job.UserID == userID {
			out = append(out, job)
		}
	}
	return out
}
