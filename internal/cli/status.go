package cli

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/me/ilcdirac/pkg/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_id>",
		Short: "Show the reported statuses and parameters of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			var job model.Job
			if _, err := client.Call(cmd.Context(), http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, &job); err != nil {
				return fmt.Errorf("get job: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job:     %s\n", job.ID)
			fmt.Fprintf(out, "  Status:  %s\n", job.Status)
			fmt.Fprintf(out, "  Updated: %s\n", job.UpdatedAt.Format("2006-01-02 15:04:05"))

			if len(job.History) > 0 {
				fmt.Fprintln(out, "  History:")
				for _, h := range job.History {
					src := ""
					if h.Source != "" {
						src = " (" + h.Source + ")"
					}
					fmt.Fprintf(out, "    %s  %s%s\n", h.CreatedAt.Format("15:04:05"), h.Status, src)
				}
			}
			if len(job.Parameters) > 0 {
				fmt.Fprintln(out, "  Parameters:")
				for _, p := range job.Parameters {
					fmt.Fprintf(out, "    %s = %s\n", p.Name, p.Value)
				}
			}
			return nil
		},
	}
}
