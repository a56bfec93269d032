package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bilancio/internal/cli"
	"bilancio/internal/config"
	"bilancio/internal/log"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bilancio-cli",
		Short: "Manage monthly bills and incomes from the command line",
		Long: `bilancio-cli materializes recurring bills and incomes into monthly documents
and records what was actually paid against them.

It reads the same configuration as the server (DATA_BACKEND, DATA_DIR, ...),
loading a .env file from the working directory when present.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			cli.LoadEnvFile()
		},
	}

	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("json", false, "print results as JSON")

	root.AddCommand(
		monthsCmd(),
		generateCmd(),
		syncCmd(),
		ensureCmd(),
		showCmd(),
		deleteCmd(),
		closeCmd(),
		reopenCmd(),
		splitCmd(),
		payCmd(),
		templatesCmd(),
		sourcesCmd(),
	)
	return root
}

// withApp builds the application for one command and releases it afterwards.
// Logs go to stderr so command output stays parseable.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *cli.App) error) error {
	level, _ := cmd.Flags().GetString("log-level")
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Component: log.ComponentCLI,
		Handler:   slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: log.ParseLevel(level)}),
	})

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	app, err := cli.NewApp(ctx, logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			logger.Error("Failed to release resources", log.FieldError, closeErr)
		}
	}()

	return fn(ctx, app)
}
