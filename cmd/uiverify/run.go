package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/v0xg/uiverify/internal/config"
	"github.com/v0xg/uiverify/internal/report"
	"github.com/v0xg/uiverify/internal/runner"
)

var (
	names             []string
	baseURL           string
	artifactsDir      string
	parallel          int
	timeout           time.Duration
	pollInterval      time.Duration
	metricsFile       string
	replay            bool
	successScreenshot bool
)

var errFailed = errors.New("verification failed")

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [scenario.yaml|dir]...",
		Short: "Run scenarios (built-in ones when no files are given)",
		RunE:  run,
	}
	f := cmd.Flags()
	f.StringSliceVarP(&names, "scenario", "s", nil, "Only run scenarios with these names")
	f.StringVar(&baseURL, "base-url", "", "Override every scenario's base_url")
	f.StringVarP(&artifactsDir, "artifacts", "o", "", "Artifacts directory")
	f.IntVarP(&parallel, "parallel", "p", 0, "Scenarios to run at once, each in its own browser")
	f.DurationVar(&timeout, "timeout", 0, "Default wait timeout")
	f.DurationVar(&pollInterval, "poll", 0, "Wait poll interval")
	f.StringVar(&metricsFile, "metrics-file", "", "Write prometheus textfile metrics here")
	f.BoolVar(&replay, "replay", false, "Write an animated GIF replay of each run's screenshots")
	f.BoolVar(&successScreenshot, "success-screenshot", false, "Capture passed.png for every passing scenario")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.Runner.BaseURL = baseURL
	}
	if flags.Changed("artifacts") {
		cfg.Runner.ArtifactsDir = artifactsDir
	}
	if flags.Changed("parallel") {
		cfg.Runner.Parallel = parallel
	}
	if flags.Changed("timeout") {
		cfg.Runner.DefaultTimeout = config.Duration(timeout)
	}
	if flags.Changed("poll") {
		cfg.Runner.PollInterval = config.Duration(pollInterval)
	}
	if flags.Changed("metrics-file") {
		cfg.Report.MetricsFile = metricsFile
	}
	if flags.Changed("replay") {
		cfg.Report.ReplayGIF = replay
	}
	if flags.Changed("success-screenshot") {
		cfg.Runner.SuccessScreenshot = successScreenshot
	}
	return cfg.Validate()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, &cfg); err != nil {
		return err
	}

	logger := newLogger()
	defer logger.Sync()

	scenarios, err := loadScenarios(args, names)
	if err != nil {
		return err
	}
	if cfg.Runner.BaseURL != "" {
		for _, s := range scenarios {
			s.BaseURL = cfg.Runner.BaseURL
		}
	}

	launcher, err := newLauncher(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	printer := report.NewPrinter(out, cfg.Runner.Parallel > 1 && len(scenarios) > 1)
	metrics := report.NewMetrics()

	r := runner.New(launcher, runner.Options{
		DefaultTimeout:    cfg.Runner.DefaultTimeout.Std(),
		NavigationTimeout: cfg.Runner.NavigationTimeout.Std(),
		PollInterval:      cfg.Runner.PollInterval.Std(),
		ArtifactsDir:      cfg.Runner.ArtifactsDir,
		SuccessScreenshot: cfg.Runner.SuccessScreenshot,
		Logger:            logger,
		Observer:          report.Tee(printer, metrics),
	})

	logger.Debug("starting run")
	results := r.RunAll(ctx, scenarios, cfg.Runner.Parallel)

	if cfg.Report.ReplayGIF {
		for _, res := range results {
			fmt.Fprintf(out, "→ Writing replay for %s... ", res.Scenario())
			path, size, err := writeReplay(res, cfg.Runner.ArtifactsDir)
			switch {
			case err != nil:
				fmt.Fprintln(out, "failed")
				logger.Sugar().Warnf("replay for %s skipped: %v", res.Scenario(), err)
			case path == "":
				fmt.Fprintln(out, "skipped (no screenshots)")
			default:
				fmt.Fprintf(out, "done (%s, %.1f KB)\n", path, float64(size)/1024)
			}
		}
	}

	printer.Summary(results)

	if cfg.Report.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Report.MetricsFile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	for _, res := range results {
		if !res.Passed() {
			return errFailed
		}
	}
	return nil
}
