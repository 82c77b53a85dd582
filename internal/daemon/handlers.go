package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"sloppy/internal/api"
	"sloppy/internal/content"
	"sloppy/internal/jobs"
	"sloppy/internal/logging"
	"sloppy/internal/services"
)

const maxRequestBody = 1 << 20

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{Status: "ok", Database: "ok"}
	if err := s.daemon.store.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleListItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	include, err := api.ParseStates(query["state"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	exclude, err := api.ParseStates(query["exclude"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.daemon.workflow.List(r.Context(), content.Filter{States: include, Exclude: exclude})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemListResponse{Items: api.FromItems(items)})
}

func (s *apiServer) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.daemon.workflow.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemResponse{Item: api.FromItem(item)})
}

func (s *apiServer) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req api.CreateItemRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	item, err := s.daemon.workflow.Create(r.Context(), req.Prompt)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.ActionResponse{Item: api.FromItem(item), JobID: item.ActiveJobID})
}

func (s *apiServer) handleRender(w http.ResponseWriter, r *http.Request) {
	item, jobID, err := s.daemon.workflow.Render(r.Context(), chi.URLParam(r, "id"))
	s.writeAction(w, r, item, jobID, err)
}

func (s *apiServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	item, jobID, err := s.daemon.workflow.Publish(r.Context(), chi.URLParam(r, "id"))
	s.writeAction(w, r, item, jobID, err)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	item, jobID, err := s.daemon.workflow.Retry(r.Context(), chi.URLParam(r, "id"))
	s.writeAction(w, r, item, jobID, err)
}

func (s *apiServer) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req api.RollbackRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	item, err := s.daemon.workflow.Rollback(r.Context(), chi.URLParam(r, "id"), req.Reason)
	s.writeAction(w, r, item, "", err)
}

func (s *apiServer) writeAction(w http.ResponseWriter, r *http.Request, item *content.Item, jobID string, err error) {
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.ActionResponse{Item: api.FromItem(item), JobID: jobID})
}

func (s *apiServer) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := s.daemon.workflow.Delete(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{Removed: true})
}

func (s *apiServer) handleItemJobs(w http.ResponseWriter, r *http.Request) {
	records, err := s.daemon.workflow.Jobs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(records)})
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.workflow.Job(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

// handleOutcome receives executor callbacks. Unknown or repeated outcomes
// are acknowledged with 200 so executors do not retry them.
func (s *apiServer) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req api.OutcomeRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	outcome := jobs.Outcome{
		JobID:   chi.URLParam(r, "job_id"),
		ItemID:  strings.TrimSpace(req.ItemID),
		Success: req.Success,
		Result:  req.Result,
		Error:   req.Error,
	}
	res, err := s.daemon.workflow.ReportOutcome(r.Context(), outcome)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.OutcomeResponse{Result: string(res)})
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeFailure maps registry and store errors onto HTTP statuses.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, jobs.ErrConflict), errors.Is(err, jobs.ErrInvalidTransition):
		status = http.StatusConflict
	case jobs.IsSubmissionError(err):
		status = http.StatusBadGateway
	case errors.Is(err, jobs.ErrEmptyPrompt), errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(s.logger, "request failed", "api_request_failed",
			logging.Error(err),
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldErrorHint, "check content database access"),
		)
	}
	s.writeError(w, status, err.Error())
}
