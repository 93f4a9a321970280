package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/me/ilcdirac/pkg/model"
)

func respondOK(w http.ResponseWriter, reqID string, data any) {
	writeEnvelope(w, http.StatusOK, model.Response{RequestID: reqID, Data: data})
}

func respondList(w http.ResponseWriter, reqID string, data any, pg *model.Pagination) {
	writeEnvelope(w, http.StatusOK, model.Response{RequestID: reqID, Data: data, Pagination: pg})
}

func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	writeEnvelope(w, status, model.Response{RequestID: reqID, Error: apiErr})
}

// respondInternal logs err and answers 500 without leaking it.
func (s *Server) respondInternal(w http.ResponseWriter, reqID, op string, err error) {
	s.logger.Error(op, "error", err, "request_id", reqID)
	respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
		Code:    model.ErrInternal,
		Message: op + " failed",
	})
}

// decodeBody decodes the JSON request body into dest, answering 400 on
// failure. It reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, reqID string, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

// writeEnvelope stamps resp and writes it. Status is derived from Error.
func writeEnvelope(w http.ResponseWriter, code int, resp model.Response) {
	resp.Timestamp = time.Now().UTC()
	resp.Status = model.StatusOK
	if resp.Error != nil {
		resp.Status = model.StatusError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
