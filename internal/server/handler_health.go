package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/ilcdirac/pkg/model"
)

// Version is the API server version.
const Version = "0.1.0"

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	GoVersion   string `json:"go_version"`
	Uptime      string `json:"uptime"`
	Store       string `json:"store"`
	ProcessList string `json:"process_list"`
	Processes   int    `json:"processes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	storeState := "ok"
	if _, _, err := s.store.ListJobs(r.Context(), model.ListOptions{Limit: 1}); err != nil {
		s.logger.Warn("store health probe failed", "error", err)
		storeState = "unavailable"
	}
	pl := s.ProcessList()
	plState := "loaded"
	if !pl.OK() {
		plState = "missing"
	}

	respondOK(w, reqID, healthResponse{
		Status:      "healthy",
		Version:     Version,
		GoVersion:   runtime.Version(),
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
		Store:       storeState,
		ProcessList: plState,
		Processes:   len(pl.Names()),
	})
}
