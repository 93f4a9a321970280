package model

import "time"

// FileMetadata is the bookkeeping record of one output file.
type FileMetadata struct {
	LFN        string `json:"lfn" yaml:"lfn"`
	Path       string `json:"path" yaml:"path"`
	WorkflowSE string `json:"workflowSE" yaml:"workflowSE"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty"`
	Size       int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Checksum   string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	GUID       string `json:"guid,omitempty" yaml:"guid,omitempty"`
}

// JobStatusRecord is one application status report for a job.
type JobStatusRecord struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// JobParameter is a named value reported for a job.
type JobParameter struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Job aggregates everything reported for one job.
type Job struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	History    []JobStatusRecord `json:"history"`
	Parameters []JobParameter    `json:"parameters"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// JobSummary is the list view of a Job.
type JobSummary struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}
