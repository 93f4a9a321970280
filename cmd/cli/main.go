// Command ilcjob builds, runs and inspects ILC jobs.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/me/ilcdirac/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		// cobra has already printed it.
		os.Exit(1)
	}
}
