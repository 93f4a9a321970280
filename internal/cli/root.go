// Package cli implements the ilcjob command line: building workflows from
// job files, running them locally and querying the bookkeeping server.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/ilcdirac/internal/logging"
)

var (
	flagServer    string
	flagKey       string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking ILCDIRAC_SERVER first.
func defaultServer() string {
	if s := os.Getenv("ILCDIRAC_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the ilcjob CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ilcjob",
		Short: "ILC production and analysis job tooling",
		Long:  "ilcjob builds ILC application workflows, runs them on a worker node and queries job bookkeeping.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(logging.Options{
				Level:  flagLogLevel,
				Format: flagLogFormat,
				Output: cmd.ErrOrStderr(),
				Source: flagDebug,
			})
			client = NewClient(flagServer, logger)
			client.Key = flagKey
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "ILCDIRAC server URL (or ILCDIRAC_SERVER env)")
	root.PersistentFlags().StringVar(&flagKey, "key", os.Getenv("ILCDIRAC_REPORTER_KEY"), "Reporter key for write requests (or ILCDIRAC_REPORTER_KEY env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newBuildCmd(),
		newRunCmd(),
		newStatusCmd(),
		newListCmd(),
		newProcessListCmd(),
		newJobPathCmd(),
	)

	return root
}
