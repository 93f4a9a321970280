package executor

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/me/ilcdirac/internal/execution"
	"github.com/me/ilcdirac/internal/storage"
	"github.com/me/ilcdirac/pkg/model"
)

// UploadedOutputDataParam is the job parameter listing the uploaded LFNs.
const UploadedOutputDataParam = "UploadedOutputData"

// UserJobFinalization uploads the user output data of a finished job to
// the first storage element accepting each file.
type UserJobFinalization struct {
	storage *storage.Registry
	logger  *slog.Logger
}

// NewUserJobFinalization returns a finalizer uploading through reg.
func NewUserJobFinalization(reg *storage.Registry, logger *slog.Logger) *UserJobFinalization {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &UserJobFinalization{storage: reg, logger: logger.With("component", "finalization")}
}

// UserLFN returns the catalog name of a user output file:
// /ilc/user/<initial>/<owner>/<outputPath>/<file>.
func UserLFN(owner, outputPath, file string) string {
	return path.Join("/ilc/user", owner[:1], owner, outputPath, path.Base(file))
}

// Finalize uploads job.UserOutputData and reports the uploaded LFNs. It is
// a no-op when the job declares no output data.
func (f *UserJobFinalization) Finalize(ctx context.Context, job *execution.JobContext) ([]*model.FileMetadata, error) {
	if len(job.UserOutputData) == 0 {
		return nil, nil
	}
	owner := job.Credentials.Owner
	if owner == "" {
		return nil, model.NewJobError(model.ErrInvalidArgument, "Finalize",
			"user output data needs the job owner", map[string]any{"outputData": job.UserOutputData})
	}
	ses := job.OutputSE
	if len(ses) == 0 && f.storage != nil {
		ses = f.storage.Names()
	}
	if len(ses) == 0 || f.storage == nil {
		return nil, model.NewJobError(model.ErrMalformedOutputSpec, "Finalize",
			"no storage element for user output data", map[string]any{"outputData": job.UserOutputData})
	}

	outputs := make([]map[string]string, 0, len(job.UserOutputData))
	lfns := make([]string, 0, len(job.UserOutputData))
	for _, file := range job.UserOutputData {
		name := execution.LocalName(file)
		outputs = append(outputs, map[string]string{
			execution.OutputFileKey:   name,
			execution.OutputDataSEKey: ses[0],
			execution.OutputPathKey:   job.OutputPath,
		})
		lfns = append(lfns, UserLFN(owner, job.OutputPath, name))
	}

	candidates, err := execution.GetCandidateFiles(outputs, lfns, job.WorkDir, job.IgnoreAppErrors)
	if err != nil {
		return nil, err
	}
	metadata, err := execution.GetFileMetadata(candidates)
	if err != nil {
		return nil, err
	}

	var uploaded, failed []string
	for _, m := range metadata {
		se, err := f.storage.PutFirst(ctx, m.Path, m.LFN, ses)
		if err != nil {
			f.logger.Error("upload failed", "lfn", m.LFN, "error", err)
			failed = append(failed, m.LFN)
			continue
		}
		m.WorkflowSE = se
		uploaded = append(uploaded, m.LFN)
	}

	if len(uploaded) > 0 {
		if _, err := job.Reporter.SetJobParameter(ctx, UploadedOutputDataParam, strings.Join(uploaded, ", ")); err != nil {
			f.logger.Warn("report uploaded output data", "error", err)
		}
	}
	if len(failed) > 0 {
		f.status(ctx, job, "Failed To Upload Output Data")
		return metadata, fmt.Errorf("upload failed for %s", strings.Join(failed, ", "))
	}
	f.status(ctx, job, "Output Data Uploaded")
	return metadata, nil
}

func (f *UserJobFinalization) status(ctx context.Context, job *execution.JobContext, status string) {
	if _, err := job.Reporter.SetApplicationStatus(ctx, status); err != nil {
		f.logger.Warn("report application status", "status", status, "error", err)
	}
}
