// Package cmd provides the ferret CLI.
//
// Commands:
//   - index: crawl a website and ingest its pages into the corpus
//   - query: retrieve ranked context and citations for a question
//   - docs:  inspect and maintain the corpus (count, delete)
//   - version: show build information
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ferret0/ferret/internal/app"
	"github.com/ferret0/ferret/internal/config"
	"github.com/ferret0/ferret/internal/log"
)

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd(logger log.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ferret",
		Short: "Ferret - semantic search over crawled websites",
		Long: `Ferret crawls websites into a vector corpus and answers questions
with ranked, cited context retrieved by semantic similarity.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newIndexCmd(logger))
	rootCmd.AddCommand(newQueryCmd(logger))
	rootCmd.AddCommand(newDocsCmd(logger))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// withApp loads configuration, builds the application, runs fn, and tears
// everything down. Each command invocation owns its own App.
func withApp(ctx context.Context, logger log.Logger, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing application", "error", err)
		}
	}()

	return fn(ctx, a)
}
