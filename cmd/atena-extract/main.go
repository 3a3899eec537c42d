// Command atena-extract runs the exercise extraction pipeline over exam
// booklets and keeps the results in a local SQLite database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atena-edu/enem-helper/internal/platform/config"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "atena-extract",
		Short:         "Extract ENEM exercises from exam booklets",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline progress to stderr")
	root.PersistentFlags().String("db", cfg.SQLite.Path, "SQLite database path")

	root.AddCommand(newRunCmd(cfg), newExportCmd(), newPatternsCmd())
	return root
}

func dbPath(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("db")
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("--db is required")
	}
	return path, nil
}
