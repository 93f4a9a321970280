package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/ilcdirac/internal/jdl"
	"github.com/me/ilcdirac/internal/jobpath"
)

func newJobPathCmd() *cobra.Command {
	var (
		configPath string
		jobID      string
		local      bool
	)

	cmd := &cobra.Command{
		Use:   "jobpath <job.jdl>",
		Short: "Show the VO optimizers a job goes through",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read JDL: %w", err)
			}

			var path string
			if local {
				ad, err := jdl.Parse(string(data))
				if err != nil {
					return err
				}
				desc := map[string]any{jobpath.KeyJobID: jobID, jobpath.KeyClassAd: ad}
				if configPath != "" {
					desc[jobpath.KeyConfigPath] = configPath
				}
				if path, err = jobpath.New(logger).Resolve(desc); err != nil {
					return err
				}
			} else {
				var res struct {
					Path string `json:"path"`
				}
				req := map[string]string{"job_id": jobID, "config_path": configPath, "jdl": string(data)}
				if _, err := client.Call(cmd.Context(), http.MethodPost, "/api/v1/jobpath", req, &res); err != nil {
					return fmt.Errorf("resolve job path: %w", err)
				}
				path = res.Path
			}

			if path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "(no VO specific optimizers)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config-path", "/Systems/WorkloadManagement/Production/Executors/Optimizers/JobPath", "Configuration section of the job path executor")
	cmd.Flags().StringVar(&jobID, "job-id", "0", "Job identifier used in log messages")
	cmd.Flags().BoolVar(&local, "local", false, "Evaluate the policy here instead of asking the server")

	return cmd
}
