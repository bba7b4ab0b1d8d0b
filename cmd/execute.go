package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ferret0/ferret/internal/log"
)

// Execute is the entry point called from main. It initializes logging,
// installs signal handling, and runs the root command.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	// Ctrl+C cancels the context; in-flight crawls and queries unwind.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd(logger)
	return rootCmd.ExecuteContext(ctx)
}
