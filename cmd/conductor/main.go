package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"conductor/internal/cerrors"
	"conductor/internal/config"
	"conductor/internal/health"
	"conductor/internal/metrics"
	"conductor/internal/metrics/datadog"
	"conductor/internal/metrics/prompush"

	// register all relational backends with the storage factory; the config
	// selects which one a run uses.
	_ "conductor/internal/storage/all"
)

// main loads and validates the run configuration, initializes the optional
// metrics backend, probes the configured health endpoints, and dispatches to
// the selected run mode. Wiring lives in run.go; this file stays flat
// flag-and-exit plumbing.
func main() {
	var (
		cfgPath  string
		mode     string
		filePath string
		fileList string
		validate bool
		progress bool
	)

	flag.StringVar(&cfgPath, "config", "configs/sample.json", "run config JSON path")
	flag.StringVar(&mode, "mode", config.ModeUpload, "run mode: upload, index, or reindex")
	flag.StringVar(&filePath, "file", "", "input file path (overrides source.file.path)")
	flag.StringVar(&fileList, "file-list", "", "manifest of input paths, one per line (overrides source.file.list)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&progress, "progress", true, "render a progress bar during file runs")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal(err, *verbose)
	}
	if filePath != "" {
		cfg.Source.File.Path = filePath
		cfg.Source.File.List = ""
	}
	if fileList != "" {
		cfg.Source.File.List = fileList
	}

	issues := config.Validate(cfg, mode)
	for _, iss := range issues {
		fmt.Fprintln(os.Stderr, iss.Error())
	}
	if len(config.Errors(issues)) > 0 {
		log.Printf("configuration is invalid: %s", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %s", cfgPath)
		os.Exit(0)
	}

	setupMetrics(cfg.Metrics, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx := context.Background()
	start := time.Now()

	if len(cfg.Health) > 0 {
		checks := make([]health.Check, len(cfg.Health))
		for i, h := range cfg.Health {
			checks[i] = health.Check{Name: h.Name, URL: h.URL}
		}
		if err := health.CheckAll(ctx, checks); err != nil {
			fatal(err, *verbose)
		}
	}

	var runErr error
	switch mode {
	case config.ModeUpload:
		runErr = runUpload(ctx, cfg, progress)
	case config.ModeIndex:
		runErr = runIndex(ctx, cfg, progress)
	case config.ModeReindex:
		runErr = runReindex(ctx, cfg)
	}
	if runErr != nil {
		fatal(runErr, *verbose)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// setupMetrics installs the configured metrics backend; the nop backend
// stays in place when none is configured or initialization fails.
func setupMetrics(m config.Metrics, verbose bool) {
	backendName := m.Backend
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}

	switch backendName {
	case "pushgateway":
		gwURL := m.PushgatewayURL
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(m.Job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init pushgateway backend: %v; metrics disabled", err)
			return
		}
		log.Printf("metrics: backend=pushgateway url=%s job=%s", gwURL, m.Job)
		metrics.SetBackend(b)

	case "datadog":
		addr := m.StatsdAddr
		if addr == "" {
			addr = os.Getenv("DD_AGENT_ADDR")
		}
		b, err := datadog.NewBackend(datadog.Config{Addr: addr})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; metrics disabled", err)
			return
		}
		log.Printf("metrics: backend=datadog addr=%s", addr)
		metrics.SetBackend(b)

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled")
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

// fatal prints a classified, user-facing error report and exits nonzero.
// A completed run with some failed records is not fatal; this path is only
// for errors that stopped the run.
func fatal(err error, verbose bool) {
	fmt.Fprint(os.Stderr, cerrors.Format(err, verbose))
	os.Exit(1)
}
