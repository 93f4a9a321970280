package server

import (
	"net/http"

	"github.com/me/ilcdirac/internal/jdl"
	"github.com/me/ilcdirac/internal/jobpath"
	"github.com/me/ilcdirac/pkg/model"
)

type jobPathRequest struct {
	JobID      string `json:"job_id"`
	ConfigPath string `json:"config_path"`
	JDL        string `json:"jdl"`
}

type jobPathResponse struct {
	JobID string `json:"job_id"`
	Path  string `json:"path"`
}

func (s *Server) handleJobPath(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req jobPathRequest
	if !decodeBody(w, r, reqID, &req) {
		return
	}
	ad, err := jdl.Parse(req.JDL)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid JDL",
			model.FieldError{Field: "jdl", Message: err.Error()}))
		return
	}

	desc := map[string]any{
		jobpath.KeyJobID:   req.JobID,
		jobpath.KeyClassAd: ad,
	}
	if req.ConfigPath != "" {
		desc[jobpath.KeyConfigPath] = req.ConfigPath
	}
	path, err := s.jobpath.Resolve(desc)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.CodeOf(err),
			Message: err.Error(),
		})
		return
	}
	respondOK(w, reqID, jobPathResponse{JobID: req.JobID, Path: path})
}
