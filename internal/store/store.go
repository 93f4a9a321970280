package store

import (
	"context"

	"github.com/me/ilcdirac/internal/report"
	"github.com/me/ilcdirac/pkg/model"
)

// Store defines the persistence layer for job reports.
type Store interface {
	report.JobReport

	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.JobSummary, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
