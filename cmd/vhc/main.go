package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maxysadm-GH/VHC/internal/pipeline"
	"github.com/maxysadm-GH/VHC/pkg/clients"
	"github.com/maxysadm-GH/VHC/pkg/config"
	"github.com/maxysadm-GH/VHC/pkg/databox"
	"github.com/maxysadm-GH/VHC/pkg/logger"
	"github.com/maxysadm-GH/VHC/pkg/metrics"
	"github.com/maxysadm-GH/VHC/pkg/shipstation"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "vhc",
		Short: "VHC - ShipStation to Databox sync pipeline",
		Long: `VHC syncs orders, order line items, and shipments from ShipStation
into Databox datasets. It runs either daily (today's data) or historically
over an explicit date range, one date at a time.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("VHC v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var configFile, startDate, endDate, logLevel string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a sync",
		Long: `Run a sync using the given YAML configuration.
Passing --start and --end overrides the configured mode with a historical
backfill over that inclusive range.

Example:
  vhc run --config sync.yaml
  vhc run --config sync.yaml --start 2026-01-01 --end 2026-01-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(configFile, startDate, endDate, logLevel)
		},
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file (required)")
	_ = runCmd.MarkFlagRequired("config")
	runCmd.Flags().StringVar(&startDate, "start", "", "Backfill start date (YYYY-MM-DD), switches to historical mode")
	runCmd.Flags().StringVar(&endDate, "end", "", "Backfill end date (YYYY-MM-DD), switches to historical mode")
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runSync loads and validates configuration, wires the clients, and runs
// the pipeline. Configuration errors are the only errors returned here;
// runtime failures are contained per unit of work inside the run.
func runSync(configFile, startDate, endDate, logLevel string) error {
	cfg := config.NewConfig()
	if err := config.Load(configFile, cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if startDate != "" || endDate != "" {
		cfg.Sync.Mode = config.ModeHistorical
		cfg.Sync.StartDate = startDate
		cfg.Sync.EndDate = endDate
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:    cfg.Logging.Level,
		Encoding: cfg.Logging.Encoding,
	}); err != nil {
		return fmt.Errorf("logger error: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.With(zap.String("component", "vhc-cli"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec := clients.NewExecutor(executorConfig(cfg.Reliability), logger.Get())
	source := shipstation.NewClient(cfg.Source, exec, logger.Get())
	sink := databox.NewClient(cfg.Sink, exec, logger.Get())

	report, err := pipeline.New(cfg, source, sink, logger.Get()).Run(ctx)
	if err != nil {
		return fmt.Errorf("run error: %w", err)
	}

	for _, entry := range report.Entries {
		log.Info("sync cycle",
			zap.String("date", entry.Date),
			zap.String("kind", string(entry.Kind)),
			zap.Int("fetched", entry.Outcome.Fetched),
			zap.Int("transformed", entry.Outcome.Transformed),
			zap.Int("receipts", entry.Outcome.Receipts))
	}
	log.Info("sync finished",
		zap.Time("started", report.Started),
		zap.Time("finished", report.Finished),
		zap.Int("records_fetched", report.TotalFetched()),
		zap.Int("records_transformed", report.TotalTransformed()))
	log.Info("metrics summary", zap.Any("totals", metrics.Summarize()))

	return nil
}

// executorConfig maps the reliability section onto the executor settings.
func executorConfig(r config.ReliabilityConfig) clients.ExecutorConfig {
	return clients.ExecutorConfig{
		MaxAttempts:       r.MaxRetries,
		InitialBackoff:    r.InitialBackoff,
		MaxBackoff:        r.MaxBackoff,
		RateLimitBuffer:   r.RateLimitBuffer,
		DefaultRetryAfter: r.DefaultRetryAfter,
		SourceQuotaFloor:  r.SourceQuotaFloor,
		SinkQuotaFloor:    r.SinkQuotaFloor,
		SinkQuotaPause:    r.SinkQuotaPause,
		RequestTimeout:    r.RequestTimeout,
	}
}
