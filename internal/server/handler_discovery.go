package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	endpoints := []endpointInfo{
		{"/api/v1/jobs", []string{"GET"}, "List reported jobs. Accepts ?status=, ?limit= and ?offset="},
		{"/api/v1/jobs/{id}", []string{"GET"}, "Status history and parameters of one job"},
		{"/api/v1/jobs/{id}/status", []string{"PUT"}, "Record an application status"},
		{"/api/v1/jobs/{id}/parameters", []string{"PUT"}, "Record job parameters"},
		{"/api/v1/processes", []string{"GET", "PUT"}, "ProcessList records; PUT merges and saves"},
		{"/api/v1/processes/{name}", []string{"GET"}, "Single ProcessList record"},
		{"/api/v1/jobpath", []string{"POST"}, "VO optimizer path for a JDL"},
		{"/api/v1/health", []string{"GET"}, "Server health and version"},
	}
	if s.metrics != nil {
		endpoints = append(endpoints, endpointInfo{"/metrics", []string{"GET"}, "Prometheus metrics"})
	}
	respondOK(w, reqID, discoveryResponse{
		Name:        "ILCDIRAC API",
		Version:     "v1",
		Description: "ILC job bookkeeping, ProcessList registry and job path policy",
		Endpoints:   endpoints,
	})
}
