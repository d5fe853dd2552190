package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/raffaelramalhorosa/epgmerge/internal/config"
	"github.com/raffaelramalhorosa/epgmerge/internal/fetcher"
	"github.com/raffaelramalhorosa/epgmerge/internal/metrics"
	"github.com/raffaelramalhorosa/epgmerge/internal/pipeline"
)

type options struct {
	configFile  string
	logLevel    string
	logFormat   string
	sources     []string
	baseURL     string
	output      string
	previous    string
	pastDays    int
	futureDays  int
	attempts    int
	concurrency int
	metricsFile string
	timeout     time.Duration
	backoff     time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "epgmerge",
		Short: "Merge XMLTV guides into one deduplicated, time-windowed file",
		Long: `Fetches every configured XMLTV source, keeps the first channel seen for each id
and the first copy of each programme that overlaps the retention window, and
writes the result as a gzip-compressed XMLTV file. When no source yields data
the previous published guide is reused.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.Flags(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "Path to YAML config file")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	f.StringArrayVar(&opts.sources, "source", nil, "Source URL (repeatable); replaces base-url + files")
	f.StringVar(&opts.baseURL, "base-url", "", "Base URL that configured files are joined to")
	f.StringVarP(&opts.output, "output", "o", "", "Output path of the merged guide")
	f.StringVar(&opts.previous, "previous", "", "Path of the last published guide used as fallback")
	f.IntVar(&opts.pastDays, "past-days", 0, "Days of past programmes to keep")
	f.IntVar(&opts.futureDays, "future-days", 0, "Days of future programmes to keep")
	f.IntVar(&opts.attempts, "attempts", 0, "Fetch attempts per source")
	f.IntVar(&opts.concurrency, "concurrency", 0, "Sources fetched in parallel")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
	f.DurationVar(&opts.timeout, "timeout", 0, "Per-request fetch timeout")
	f.DurationVar(&opts.backoff, "backoff", 0, "Backoff unit between fetch attempts")

	return cmd
}

func run(ctx context.Context, flags *pflag.FlagSet, opts options) error {
	logger, err := newLogger(opts.logLevel, opts.logFormat, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	applyFlags(cfg, flags, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewRun()
	f := fetcher.New(fetcher.Options{
		Timeout:     cfg.Fetch.Timeout,
		Attempts:    cfg.Fetch.Attempts,
		Backoff:     cfg.Fetch.Backoff,
		Concurrency: cfg.Fetch.Concurrency,
		UserAgent:   cfg.Fetch.UserAgent,
	}, logger).WithHooks(fetcher.Hooks{
		Attempt: func(_ string, _ int, err error) { m.ObserveAttempt(err) },
		Done:    func(_ string, elapsed time.Duration, err error) { m.ObserveFetch(elapsed, err) },
	})

	rep, err := pipeline.New(cfg, f, logger).WithMetrics(m).Run(ctx)
	if err != nil {
		return err
	}
	if rep.Outcome == pipeline.OutcomeFailed {
		return fmt.Errorf("run %s failed", rep.RunID)
	}
	return nil
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet, opts options) {
	if flags.Changed("source") {
		cfg.Sources = opts.sources
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = opts.baseURL
	}
	if flags.Changed("output") {
		cfg.Output = opts.output
	}
	if flags.Changed("previous") {
		cfg.Previous = opts.previous
	}
	if flags.Changed("past-days") {
		cfg.KeepPastDays = opts.pastDays
	}
	if flags.Changed("future-days") {
		cfg.KeepFutureDays = opts.futureDays
	}
	if flags.Changed("attempts") {
		cfg.Fetch.Attempts = opts.attempts
	}
	if flags.Changed("concurrency") {
		cfg.Fetch.Concurrency = opts.concurrency
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = opts.metricsFile
	}
	if flags.Changed("timeout") {
		cfg.Fetch.Timeout = opts.timeout
	}
	if flags.Changed("backoff") {
		cfg.Fetch.Backoff = opts.backoff
	}
}
