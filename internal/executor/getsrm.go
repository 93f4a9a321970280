package executor

import (
	"context"
	"fmt"

	"github.com/me/ilcdirac/internal/execution"
	"github.com/me/ilcdirac/internal/workflow"
	"github.com/me/ilcdirac/pkg/model"
)

// GetSRM stages the files of a retrieval step from the storage elements
// into the work directory. It runs in-process.
type GetSRM struct {
	app
}

func (g *GetSRM) records(sc *execution.StepContext) ([]workflow.SRMFile, error) {
	recs, err := workflow.ParseSRMRecords(sc.String("srmfiles"))
	if err != nil {
		return nil, model.NewJobError(model.ErrInvalidArgument, "Validate",
			fmt.Sprintf("srmfiles: %v", err), map[string]any{"srmfiles": sc.String("srmfiles")})
	}
	if len(recs) == 0 {
		return nil, model.NewJobError(model.ErrMissingInputFile, "Validate",
			"no files to retrieve", map[string]any{"step": sc.Step})
	}
	return recs, nil
}

func (g *GetSRM) Validate(_ context.Context, sc *execution.StepContext) error {
	if g.deps.Storage == nil {
		return fmt.Errorf("no storage elements configured")
	}
	_, err := g.records(sc)
	return err
}

func (g *GetSRM) Setup(context.Context, *execution.StepContext) (*execution.Script, error) {
	return nil, nil
}

func (g *GetSRM) Execute(ctx context.Context, sc *execution.StepContext) error {
	recs, err := g.records(sc)
	if err != nil {
		return err
	}
	for _, r := range recs {
		dest := sc.Path(execution.LocalName(r.File))
		if err := g.deps.Storage.Get(ctx, r.File, "", r.Site, dest); err != nil {
			return model.NewJobError(model.ErrMissingInputFile, "Execute",
				fmt.Sprintf("retrieve %s: %v", r.File, err), map[string]any{"file": r.File, "site": r.Site})
		}
		sc.Logger.Info("file staged", "file", r.File, "site", r.Site)
	}
	return nil
}
