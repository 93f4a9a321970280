// Package jobpath holds the VO job path policy: the extra optimizers a job
// goes through before it is scheduled.
package jobpath

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/me/ilcdirac/pkg/model"
)

// InputDataStage is the optimizer handling input data requirements.
const InputDataStage = "InputData"

// Description keys read by the resolver.
const (
	KeyConfigPath = "ConfigPath"
	KeyJobID      = "JobID"
	KeyClassAd    = "ClassAd"
)

// Expressions is the part of a job description the policy reads.
type Expressions interface {
	GetExpression(name string) string
}

// Resolver applies the VO job path policy.
type Resolver struct {
	logger *slog.Logger
}

// New returns a Resolver.
func New(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{logger: logger.With("component", "jobpath")}
}

// Resolve returns the optimizer path to insert for the job described by
// desc, possibly empty. desc must carry a ConfigPath entry.
func (r *Resolver) Resolve(desc map[string]any) (string, error) {
	if _, ok := desc[KeyConfigPath]; !ok {
		r.logger.Warn("no CS ConfigPath defined")
		return "", model.NewJobError(model.ErrNoConfigPath, "Resolve",
			"job description has no ConfigPath", desc)
	}
	jobID := fmt.Sprint(desc[KeyJobID])

	var path string
	if ad, ok := desc[KeyClassAd].(Expressions); ok {
		if HasInputData(ad) {
			r.logger.Info("job has input data requirement", "job_id", jobID)
			path += InputDataStage
		}
	}
	if path == "" {
		r.logger.Debug("no VO specific optimizers to add", "job_id", jobID)
	}
	return path, nil
}

// HasInputData reports whether the InputData expression names anything
// once quotes and the Unknown placeholder are stripped.
func HasInputData(ad Expressions) bool {
	expr := ad.GetExpression("InputData")
	expr = strings.ReplaceAll(expr, `"`, "")
	expr = strings.ReplaceAll(expr, "Unknown", "")
	return expr != ""
}
