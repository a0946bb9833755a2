package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/govdata/cms-search-sync/internal/app"
	"github.com/govdata/cms-search-sync/internal/config"
	"github.com/govdata/cms-search-sync/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, logLevel, reportDir, siteURL string
	var rate float64

	cmd := &cobra.Command{
		Use:           "searchsync-reindex",
		Short:         "Clear the search index and rebuild it from every indexable page",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("rate") {
				cfg.Reindex.RatePerSecond = rate
			}
			if cmd.Flags().Changed("site-url") {
				cfg.Reindex.SiteURL = siteURL
			}

			logger := logging.BuildLogger(cfg.LogLevel)
			defer func() { _ = logger.Sync() }()

			if err := run(cmd.Context(), cfg, reportDir, logger); err != nil {
				logger.Error("reindex failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config YAML")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "Directory for the run summary and failure log (overrides reindex.report_dir)")
	cmd.Flags().StringVar(&siteURL, "site-url", "", "Public site URL; writes a sitemap of indexed pages to the report directory")
	cmd.Flags().Float64Var(&rate, "rate", 0, "Maximum pages per second, 0 for unlimited")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, reportDir string, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	summary, err := a.Reindexer(reportDir).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("reindexed %d of %d pages (%d skipped, %d failed)\n",
		summary.Indexed, summary.Total, summary.Skipped, summary.Failed)
	return nil
}
