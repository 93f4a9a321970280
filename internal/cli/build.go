package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/ilcdirac/internal/jdl"
	"github.com/me/ilcdirac/internal/jobfile"
	"github.com/me/ilcdirac/internal/processlist"
	"github.com/me/ilcdirac/internal/workflow"
	"github.com/me/ilcdirac/pkg/model"
)

// buildFromJobFile loads a job file and builds its workflow, with the
// ProcessList at plPath when set.
func buildFromJobFile(path, plPath string) (*model.Workflow, error) {
	def, err := jobfile.Load(path)
	if err != nil {
		return nil, err
	}
	opts := []workflow.Option{workflow.WithLogger(logger)}
	if plPath != "" {
		pl, err := processlist.Load(plPath)
		if err != nil {
			return nil, err
		}
		if !pl.OK() {
			return nil, fmt.Errorf("process list %s not found", plPath)
		}
		opts = append(opts, workflow.WithProcessList(pl))
	}
	logger.Debug("building workflow", "job", jobfile.Describe(def))
	return jobfile.Build(def, opts...)
}

func newBuildCmd() *cobra.Command {
	var (
		jobPath     string
		outPath     string
		jdlPath     string
		format      string
		processList string
	)

	cmd := &cobra.Command{
		Use:   "build [-f] <job.yaml>",
		Short: "Build a workflow from a job file",
		Long: `Build replays the steps of a job file through the workflow builder,
linking every step to the outputs of the steps before it, and writes the
resulting workflow description. With --jdl the job description is written too.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if jobPath != "" && jobPath != args[0] {
					return fmt.Errorf("job file given twice: %s and %s", jobPath, args[0])
				}
				jobPath = args[0]
			}
			if jobPath == "" {
				return fmt.Errorf("no job file given")
			}
			wf, err := buildFromJobFile(jobPath, processList)
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := workflow.Save(outPath, wf); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s: %d steps written to %s\n", wf.Name, wf.StepCount, outPath)
			} else {
				data, err := workflow.Marshal(wf, format)
				if err != nil {
					return err
				}
				cmd.OutOrStdout().Write(data)
			}

			if jdlPath != "" {
				ad := jdl.Render(wf, nil)
				if err := os.WriteFile(jdlPath, []byte(ad.String()), 0o644); err != nil {
					return fmt.Errorf("write JDL: %w", err)
				}
				logger.Info("JDL written", "path", jdlPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&jobPath, "file", "f", "", "Job file (alternative to the argument)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the workflow to this file instead of stdout")
	cmd.Flags().StringVar(&jdlPath, "jdl", "", "Also write the job description (JDL) to this file")
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format on stdout (yaml, json)")
	cmd.Flags().StringVar(&processList, "processlist", "", "ProcessList file used to resolve generator processes")

	return cmd
}
