package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NasaVasa/cryptowatch/internal/app"
	"github.com/NasaVasa/cryptowatch/internal/config"
	"github.com/NasaVasa/cryptowatch/internal/infra/log"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:           "cryptowatch",
		Short:         "Scheduled crypto price reports over Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.AddCommand(serve, newPricesCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, the scheduler and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger, err := log.NewLogger(log.Options{
				Level:      cfg.LogLevel,
				File:       cfg.LogFile,
				MaxSizeMB:  cfg.LogMaxSizeMB,
				MaxBackups: cfg.LogMaxBackups,
				MaxAgeDays: cfg.LogMaxAgeDays,
			})
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize app: %w", err)
			}
			defer application.Shutdown()

			return application.Run(ctx)
		},
	}
}

func newPricesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prices [asset...]",
		Short: "Print current prices for the given assets (defaults when none)",
		Example: `  cryptowatch prices
  cryptowatch prices btc eth solana`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := log.NewConsole(cfg.LogLevel)
			defer func() { _ = logger.Sync() }()

			report, err := app.PriceReport(ctx, cfg, args, logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}
}
