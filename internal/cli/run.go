package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/ilcdirac/internal/config"
	"github.com/me/ilcdirac/internal/worker"
	"github.com/me/ilcdirac/internal/workflow"
	"github.com/me/ilcdirac/pkg/model"
)

func newRunCmd() *cobra.Command {
	var (
		configPath  string
		workDir     string
		isWorkflow  bool
		processList string
		quiet       bool
		job         worker.Job
	)

	cmd := &cobra.Command{
		Use:   "run <job.yaml>",
		Short: "Run a job on this node",
		Long: `Run builds the job file (or loads a workflow written by "build" with
--workflow) and executes its steps here, one after the other, the way a
worker node does. Statuses go where the worker configuration says.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				wf  *model.Workflow
				err error
			)
			if isWorkflow {
				wf, err = workflow.Load(args[0])
			} else {
				wf, err = buildFromJobFile(args[0], processList)
			}
			if err != nil {
				return err
			}

			cfg := config.DefaultWorkerConfig()
			if configPath != "" {
				if cfg, err = config.LoadWorkerConfig(configPath); err != nil {
					return err
				}
			}
			if workDir != "" {
				cfg.WorkDir = workDir
			}
			if job.ProxyPath == "" {
				job.ProxyPath = cfg.ProxyPath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := worker.Options{}
			if !quiet {
				opts.Echo = cmd.ErrOrStderr()
			}
			runner, err := worker.New(ctx, cfg, opts, logger)
			if err != nil {
				return fmt.Errorf("init worker: %w", err)
			}
			defer runner.Close()

			res, err := runner.Run(ctx, wf, job)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %s (%s) in %s\n", res.JobID, wf.Name, res.WorkDir)
			for _, sr := range res.Steps {
				fmt.Fprintf(out, "  %-24s %-10s exit=%d\n", sr.Step, sr.State, sr.ExitCode)
			}
			for _, f := range res.Uploaded {
				fmt.Fprintf(out, "  uploaded %s\n", f.LFN)
			}
			fmt.Fprintf(out, "Elapsed: %s\n", res.Elapsed.Round(time.Millisecond))
			if !res.OK() {
				return res.Err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Worker configuration file")
	cmd.Flags().StringVar(&workDir, "workdir", "", "Override the worker work directory")
	cmd.Flags().BoolVar(&isWorkflow, "workflow", false, "The argument is a built workflow, not a job file")
	cmd.Flags().StringVar(&processList, "processlist", "", "ProcessList file used to resolve generator processes")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not echo application output")
	cmd.Flags().StringVar(&job.ID, "job-id", "", "Job identifier (default: <name>-<unix time>)")
	cmd.Flags().StringVar(&job.Owner, "owner", os.Getenv("USER"), "Job owner, used for user output LFNs")
	cmd.Flags().StringVar(&job.Group, "group", "ilc_user", "Job owner group")
	cmd.Flags().StringVar(&job.ProxyPath, "proxy", "", "Grid proxy file")
	cmd.Flags().IntVar(&job.NumberOfEvents, "events", 0, "Override the event count of every step")

	return cmd
}
