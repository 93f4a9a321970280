package executor

import (
	"context"
	"path/filepath"

	"github.com/me/ilcdirac/internal/execution"
	"github.com/me/ilcdirac/pkg/model"
)

// stdhepLoop converts every stdhep file of the work directory to LCIO.
const stdhepLoop = `for STDHEPFILE in *.stdhep; do stdhepjob $STDHEPFILE ${STDHEPFILE%.stdhep}.slcio -1 || exit $?; done`

// StdHepConverter converts generator output to LCIO with the lcio tools.
type StdHepConverter struct {
	app
}

func (c *StdHepConverter) Validate(_ context.Context, sc *execution.StepContext) error {
	files, err := filepath.Glob(sc.Path("*.stdhep"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return model.NewJobError(model.ErrMissingInputFile, "Validate",
			"no stdhep file to convert in the work directory", map[string]any{"step": sc.Step})
	}
	return nil
}

func (c *StdHepConverter) Setup(_ context.Context, sc *execution.StepContext) (*execution.Script, error) {
	rel, err := c.release(sc)
	if err != nil {
		return nil, err
	}
	s, err := c.script(sc, rel, stdhepLoop)
	if err != nil {
		return nil, err
	}
	s.Env["LCIO"] = rel.Dir
	return s, nil
}
