package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/me/ilcdirac/internal/config"
	"github.com/me/ilcdirac/internal/jobfile"
	"github.com/me/ilcdirac/internal/logging"
	"github.com/me/ilcdirac/internal/metrics"
	"github.com/me/ilcdirac/internal/worker"
	"github.com/me/ilcdirac/internal/workflow"
	"github.com/me/ilcdirac/pkg/model"
)

func main() {
	var job worker.Job

	configPath := flag.String("config", "", "Worker configuration file")
	wfPath := flag.String("workflow", "", "Built workflow to run")
	jobPath := flag.String("job", "", "Job file to build and run (instead of -workflow)")
	flag.StringVar(&job.ID, "job-id", os.Getenv("JOBID"), "Job identifier")
	flag.StringVar(&job.Owner, "owner", "", "Job owner, used for user output LFNs")
	flag.StringVar(&job.Group, "group", "ilc_user", "Job owner group")
	flag.StringVar(&job.ProxyPath, "proxy", os.Getenv("X509_USER_PROXY"), "Grid proxy file")
	flag.IntVar(&job.NumberOfEvents, "events", 0, "Override the event count of every step")

	var opts worker.Options
	flag.StringVar(&opts.TLS.CADir, "ca-dir", os.Getenv("X509_CERT_DIR"), "Grid trust directory")
	flag.StringVar(&opts.TLS.CACertPath, "ca-cert", "", "Extra CA bundle (PEM)")
	proxyAuth := flag.Bool("proxy-auth", false, "Present the grid proxy as TLS client certificate")
	flag.BoolVar(&opts.TLS.InsecureSkipVerify, "insecure", false, "Skip TLS verification (testing only)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while the job runs")

	// Logging flags.
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	if *debug {
		*logLevel = "debug"
	}
	logger := logging.New(logging.Options{Level: *logLevel, Format: *logFormat, Source: *debug})

	cfg := config.DefaultWorkerConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadWorkerConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	if job.ProxyPath == "" {
		job.ProxyPath = cfg.ProxyPath
	}
	if *proxyAuth {
		opts.TLS.ProxyPath = job.ProxyPath
	}

	wf, err := loadWorkflow(*wfPath, *jobPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts.Echo = os.Stdout
	if *metricsAddr != "" {
		opts.Metrics = metrics.New()
		go func() {
			if err := http.ListenAndServe(*metricsAddr, opts.Metrics.Handler()); err != nil {
				logger.Error("metrics listener", "error", err)
			}
		}()
	}

	runner, err := worker.New(ctx, cfg, opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init worker: %v\n", err)
		os.Exit(1)
	}
	defer runner.Close()

	logger.Info("starting job",
		"job_id", job.ID,
		"workflow", wf.Name,
		"steps", wf.StepCount,
		"workdir", cfg.WorkDir,
		"platform", cfg.Platform,
	)

	res, err := runner.Run(ctx, wf, job)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
	if !res.OK() {
		logger.Error("job failed", "error", res.Err, "code", model.CodeOf(res.Err), "elapsed", res.Elapsed)
		runner.Close()
		os.Exit(2)
	}
	logger.Info("job finished", "elapsed", res.Elapsed, "uploaded", len(res.Uploaded))
}

func loadWorkflow(wfPath, jobPath string) (*model.Workflow, error) {
	switch {
	case wfPath != "" && jobPath != "":
		return nil, fmt.Errorf("-workflow and -job are exclusive")
	case wfPath != "":
		return workflow.Load(wfPath)
	case jobPath != "":
		def, err := jobfile.Load(jobPath)
		if err != nil {
			return nil, err
		}
		return jobfile.Build(def)
	}
	return nil, fmt.Errorf("one of -workflow or -job is required")
}
