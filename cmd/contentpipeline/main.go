package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ContentPipeline/internal/app"
	"ContentPipeline/internal/config"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/logging"
)

var (
	logLevel  string
	logFormat string

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "contentpipeline",
	Short: "Editorial pipeline from planned titles to published posts",
	Long: `contentpipeline moves planned articles through outline generation,
batch drafting, draft ingestion, image acquisition and publishing.

Each stage can be run on its own or scheduled by the daemon command.
Configuration is read from CONTENT_PIPELINE_CONFIG plus environment overrides.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if logFormat != "" {
			cfg.Logging.Format = logFormat
		}
		logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text or json)")

	rootCmd.AddCommand(
		migrateCmd,
		seedAuthorsCmd,
		outlinesCmd,
		submitCmd,
		ingestCmd,
		imagesCmd,
		publishCmd,
		footersCmd,
		statusCmd,
		daemonCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}
	if logger == nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if errors.Is(err, domain.ErrIntegrity) {
		logger.Error("integrity violation, aborting", "error", err)
		os.Exit(2)
	}
	logger.Error("command failed", "error", err)
	os.Exit(1)
}

// withApp opens the application for one command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(context.Context, *app.Application) error) error {
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("close application", "error", cerr)
		}
	}()
	return fn(ctx, a)
}
