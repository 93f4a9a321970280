// Command server runs the ilcdirac bookkeeping server: job status reports,
// the ProcessList registry and the VO job path policy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/ilcdirac/internal/config"
	"github.com/me/ilcdirac/internal/logging"
	"github.com/me/ilcdirac/internal/metrics"
	"github.com/me/ilcdirac/internal/processlist"
	"github.com/me/ilcdirac/internal/server"
	"github.com/me/ilcdirac/internal/store"
)

func main() {
	cfg := config.DefaultServerConfig()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database for job reports")
	flag.StringVar(&cfg.ProcessListPath, "processlist", cfg.ProcessListPath, "ProcessList file served under /api/v1/processes")
	flag.StringVar(&cfg.ReporterKeys, "reporter-keys", cfg.ReporterKeys, "Reporter keys JSON file (or "+server.ReporterEnvVar+" env)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for -log-level=debug")
	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Source: *debug})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("database ready", "path", cfg.DBPath, "schema_version", store.SchemaVersion)

	opts := []server.Option{server.WithMetrics(metrics.New())}
	if cfg.ProcessListPath != "" {
		pl, err := processlist.Load(cfg.ProcessListPath)
		if err != nil {
			return err
		}
		if !pl.OK() {
			logger.Warn("ProcessList file missing, starting empty", "path", cfg.ProcessListPath)
		}
		logger.Info("ProcessList loaded", "path", cfg.ProcessListPath, "processes", len(pl.Names()))
		opts = append(opts, server.WithProcessList(pl))
	}
	keys, err := server.LoadReporterKeys(cfg.ReporterKeys)
	if err != nil {
		return err
	}
	if keys.IsEnabled() {
		logger.Info("reporter keys required for writes", "keys", len(keys.Keys))
		opts = append(opts, server.WithReporterKeys(keys))
	}

	srv := server.New(cfg, st, logger, opts...)
	srv.WatchProcessList(ctx)

	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	failed := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(sctx)
}
