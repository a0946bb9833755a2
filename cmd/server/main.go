package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/govdata/cms-search-sync/internal/app"
	"github.com/govdata/cms-search-sync/internal/config"
	"github.com/govdata/cms-search-sync/internal/logging"
	"github.com/govdata/cms-search-sync/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, logLevel, addr string

	cmd := &cobra.Command{
		Use:           "searchsync-server",
		Short:         "Receive CMS notifications and keep the search index in sync",
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
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger := logging.BuildLogger(cfg.LogLevel)
			defer func() { _ = logger.Sync() }()

			if err := serve(cmd.Context(), cfg, logger); err != nil {
				logger.Error("server failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config YAML")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP bind address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(cfg, reg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	server := web.NewServer(a.Engine(), a.Searcher(), reg, logger.Named("web"))
	return server.ListenAndServe(ctx, cfg.Server.Addr)
}
