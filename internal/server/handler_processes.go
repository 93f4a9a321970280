package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/ilcdirac/internal/processlist"
	"github.com/me/ilcdirac/pkg/model"
)

type processEntry struct {
	Name string `json:"name"`
	model.Process
}

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pl := s.ProcessList()

	procs := pl.Processes()
	out := make([]processEntry, 0, len(procs))
	for _, name := range pl.Names() {
		p, ok := procs[name]
		if !ok {
			continue
		}
		out = append(out, processEntry{Name: name, Process: p})
	}
	respondList(w, reqID, out, &model.Pagination{Total: len(out), Limit: len(out)})
}

func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	name := chi.URLParam(r, "name")

	p, ok := s.ProcessList().Lookup(name)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("process", name))
		return
	}
	respondOK(w, reqID, processEntry{Name: name, Process: p})
}

// handleUpdateProcesses merges the posted records into the registry and
// writes it back to its file.
func (s *Server) handleUpdateProcesses(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var records map[string]model.Process
	if !decodeBody(w, r, reqID, &records) {
		return
	}
	if len(records) == 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("no processes given"))
		return
	}
	for name := range records {
		if name == "" {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("process name is empty"))
			return
		}
	}

	pl := s.ProcessList()
	pl.Update(records)

	saved := false
	if pl.Path() != "" || s.config.ProcessListPath != "" {
		if err := pl.Save(s.config.ProcessListPath); err != nil {
			var se *processlist.SaveError
			if errors.As(err, &se) && se.TempPath != "" {
				s.logger.Error("process list left in temp file", "temp_path", se.TempPath)
			}
			s.respondInternal(w, reqID, "save process list", err)
			return
		}
		saved = true
	}
	s.logger.Info("process list updated", "records", len(records), "saved", saved)
	respondOK(w, reqID, map[string]any{"updated": len(records), "saved": saved})
}
