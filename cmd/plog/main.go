package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/untoldecay/projectlog/internal/config"
	"github.com/untoldecay/projectlog/internal/logging"
)

var (
	// Version is the current version of plog (overridden by ldflags at build time)
	Version = "0.1.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
)

var (
	jsonOutput bool
	verbose    bool
	dbPath     string

	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "plog",
	Short: "Resolve project mentions in documents into a project registry",
	Long: `plog reads documents, finds the projects they mention and files each
mention under one canonical project record. Every decision is logged with
the model, confidence and the verbatim evidence that supported it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if cmd.Flags().Changed("db") {
			config.Set("db", dbPath)
		}

		var err error
		logger, logCloser, err = logging.New(loggingConfig())
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Also print info-level logs to stderr")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: .projectlog/plog.db)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "ingest", Title: "Processing:"},
		&cobra.Group{ID: "views", Title: "Viewing:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
