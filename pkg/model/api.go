package model

import "time"

// Envelope status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Page size bounds for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Response is the envelope every reporting API answer is wrapped in.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination describes the slice of a list a response carries.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions selects a page of jobs. Status and Since are optional filters;
// Since keeps jobs updated at or after the given instant.
type ListOptions struct {
	Limit  int
	Offset int
	Status string
	Since  time.Time
}

func DefaultListOptions() ListOptions {
	return ListOptions{Limit: DefaultPageSize}
}

// Clamp brings Limit into [1, MaxPageSize] and Offset to at least zero.
func (o *ListOptions) Clamp() {
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultPageSize
	case o.Limit > MaxPageSize:
		o.Limit = MaxPageSize
	}
	o.Offset = max(o.Offset, 0)
}

// Page returns the pagination block for n items served out of total.
func (o ListOptions) Page(n, total int) *Pagination {
	return &Pagination{
		Total:   total,
		Limit:   o.Limit,
		Offset:  o.Offset,
		HasMore: o.Offset+n < total,
	}
}
