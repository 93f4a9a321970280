package execution

import (
	"context"
	"log/slog"

	"github.com/me/ilcdirac/internal/report"
)

// Soft results of a report that was not sent.
const (
	ReportNoJobID = "JobID not defined"
	ReportNoTool  = "No reporting tool given"
)

// Reporter sends application status and job parameters for one job.
// Without a job ID nothing is sent and the call still succeeds, which is
// how workflows are run locally.
type Reporter struct {
	JobID  string
	Report report.JobReport
	Logger *slog.Logger
}

// NewReporter returns a Reporter for jobID.
func NewReporter(jobID string, r report.JobReport, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reporter{JobID: jobID, Report: r, Logger: logger}
}

// SetApplicationStatus reports status. The returned string is a soft
// message when nothing was sent.
func (r *Reporter) SetApplicationStatus(ctx context.Context, status string) (string, error) {
	if r == nil || r.JobID == "" {
		return ReportNoJobID, nil
	}
	r.Logger.Info("application status", "job_id", r.JobID, "status", status)
	if r.Report == nil {
		return ReportNoTool, nil
	}
	if err := r.Report.SetApplicationStatus(ctx, r.JobID, status); err != nil {
		return "", err
	}
	return "", nil
}

// SetJobParameter reports a job parameter.
func (r *Reporter) SetJobParameter(ctx context.Context, name, value string) (string, error) {
	if r == nil || r.JobID == "" {
		return ReportNoJobID, nil
	}
	r.Logger.Debug("job parameter", "job_id", r.JobID, "name", name, "value", value)
	if r.Report == nil {
		return ReportNoTool, nil
	}
	if err := r.Report.SetJobParameter(ctx, r.JobID, name, value); err != nil {
		return "", err
	}
	return "", nil
}
