package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/ilcdirac/pkg/model"
)

// sourcedReport is implemented by stores that keep the source of a status.
type sourcedReport interface {
	SetApplicationStatusFrom(ctx context.Context, jobID, status, source string) error
}

type statusRequest struct {
	Status string `json:"status"`
	Source string `json:"source"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	jobID := chi.URLParam(r, "id")

	var req statusRequest
	if !decodeBody(w, r, reqID, &req) {
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("status is required",
			model.FieldError{Field: "status", Message: "must not be empty"}))
		return
	}
	if !ReporterFromContext(r.Context()).CanReportAs(req.Source) {
		respondError(w, reqID, http.StatusForbidden, &model.APIError{
			Code:    model.ErrUnauthorized,
			Message: "key may not report as " + req.Source,
		})
		return
	}

	var err error
	if sr, ok := s.store.(sourcedReport); ok && req.Source != "" {
		err = sr.SetApplicationStatusFrom(r.Context(), jobID, req.Status, req.Source)
	} else {
		err = s.store.SetApplicationStatus(r.Context(), jobID, req.Status)
	}
	if err != nil {
		s.respondInternal(w, reqID, "set application status", err)
		return
	}
	if s.metrics != nil {
		s.metrics.ReportReceived("status")
	}
	s.logger.Debug("application status", "job_id", jobID, "status", req.Status, "source", req.Source)
	respondOK(w, reqID, map[string]string{"job_id": jobID, "status": req.Status})
}

func (s *Server) handleSetParameters(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	jobID := chi.URLParam(r, "id")

	var params map[string]string
	if !decodeBody(w, r, reqID, &params) {
		return
	}
	if len(params) == 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("no parameters given"))
		return
	}
	for name, value := range params {
		if name == "" {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("parameter name is empty"))
			return
		}
		if err := s.store.SetJobParameter(r.Context(), jobID, name, value); err != nil {
			s.respondInternal(w, reqID, "set job parameter", err)
			return
		}
		if s.metrics != nil {
			s.metrics.ReportReceived("parameter")
		}
	}
	respondOK(w, reqID, map[string]any{"job_id": jobID, "parameters": len(params)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	jobID := chi.URLParam(r, "id")

	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		s.respondInternal(w, reqID, "get job", err)
		return
	}
	if job == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job", jobID))
		return
	}
	respondOK(w, reqID, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.DefaultListOptions()
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid limit",
				model.FieldError{Field: "limit", Message: err.Error()}))
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid offset",
				model.FieldError{Field: "offset", Message: err.Error()}))
			return
		}
		opts.Offset = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid since",
				model.FieldError{Field: "since", Message: "want RFC 3339 time"}))
			return
		}
		opts.Since = t
	}
	opts.Status = q.Get("status")
	opts.Clamp()

	jobs, total, err := s.store.ListJobs(r.Context(), opts)
	if err != nil {
		s.respondInternal(w, reqID, "list jobs", err)
		return
	}
	respondList(w, reqID, jobs, opts.Page(len(jobs), total))
}
