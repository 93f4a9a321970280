package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/ilcdirac/pkg/model"
)

func newListCmd() *cobra.Command {
	var (
		status string
		limit  int
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reported jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			if status != "" {
				q.Set("status", status)
			}
			if since > 0 {
				q.Set("since", time.Now().Add(-since).UTC().Format(time.RFC3339))
			}
			var jobs []model.JobSummary
			page, err := client.Call(cmd.Context(), http.MethodGet, "/api/v1/jobs?"+q.Encode(), nil, &jobs)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs found.")
				return nil
			}

			fmt.Fprintf(out, "%-20s  %-40s  %s\n", "ID", "STATUS", "UPDATED")
			fmt.Fprintf(out, "%-20s  %-40s  %s\n", "--", "------", "-------")
			for _, j := range jobs {
				fmt.Fprintf(out, "%-20s  %-40s  %s\n", j.ID, j.Status, j.UpdatedAt.Format("2006-01-02 15:04:05"))
			}

			if page != nil && page.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(jobs), page.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only jobs whose last status is this")
	cmd.Flags().IntVar(&limit, "limit", model.DefaultPageSize, "Maximum number of jobs")
	cmd.Flags().DurationVar(&since, "since", 0, "Only jobs updated within this duration, e.g. 24h")

	return cmd
}
