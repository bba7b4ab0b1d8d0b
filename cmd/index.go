package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ferret0/ferret/internal/app"
	"github.com/ferret0/ferret/internal/crawler"
	"github.com/ferret0/ferret/internal/log"
)

func newIndexCmd(logger log.Logger) *cobra.Command {
	var (
		maxDepth int
		maxPages int
		include  []string
		exclude  []string
	)

	indexCmd := &cobra.Command{
		Use:   "index <url>",
		Short: "Crawl a website and ingest its pages into the corpus",
		Long: `Index crawls the given site breadth-first, staying on the seed's
hostname, and ingests every extracted page as a searchable document.

Crawl scope can be narrowed with --include/--exclude substring filters
and is always bounded by --max-depth and --max-pages.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), logger, func(ctx context.Context, a *app.App) error {
				return runIndex(ctx, a, args[0], crawler.Budget{
					MaxDepth: maxDepth,
					MaxPages: maxPages,
				}, crawler.Filters{
					Include: include,
					Exclude: exclude,
				})
			})
		},
	}

	indexCmd.Flags().IntVar(&maxDepth, "max-depth", 2, "maximum link distance from the seed")
	indexCmd.Flags().IntVar(&maxPages, "max-pages", 50, "maximum number of pages to ingest")
	indexCmd.Flags().StringSliceVar(&include, "include", nil, "only crawl URLs containing one of these substrings")
	indexCmd.Flags().StringSliceVar(&exclude, "exclude", nil, "skip URLs containing any of these substrings")

	return indexCmd
}

func runIndex(ctx context.Context, a *app.App, seed string, budget crawler.Budget, filters crawler.Filters) error {
	fmt.Printf("Indexing %s (max depth %d, max pages %d)...\n", seed, budget.MaxDepth, budget.MaxPages)

	report, err := a.Pipeline.IndexWebsite(ctx, seed, budget, filters)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d pages as %d documents.\n", report.PageCount, len(report.DocumentIDs))
	return nil
}
