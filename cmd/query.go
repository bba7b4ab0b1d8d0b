package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ferret0/ferret/internal/app"
	"github.com/ferret0/ferret/internal/log"
	"github.com/ferret0/ferret/internal/retrieval"
)

func newQueryCmd(logger log.Logger) *cobra.Command {
	var (
		topK       int
		threshold  float32
		noMetadata bool
	)

	queryCmd := &cobra.Command{
		Use:   "query <text>...",
		Short: "Retrieve ranked context and citations for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), logger, func(ctx context.Context, a *app.App) error {
				opts := a.QueryOptions()
				if cmd.Flags().Changed("top-k") {
					opts.TopK = topK
				}
				if cmd.Flags().Changed("threshold") {
					opts.SimilarityThreshold = threshold
				}
				opts.IncludeMetadata = !noMetadata

				return runQuery(ctx, a, strings.Join(args, " "), opts)
			})
		},
	}

	queryCmd.Flags().IntVar(&topK, "top-k", 5, "maximum number of matches")
	queryCmd.Flags().Float32Var(&threshold, "threshold", 0.7, "minimum cosine similarity in [0,1]")
	queryCmd.Flags().BoolVar(&noMetadata, "no-metadata", false, "omit document metadata from output")

	return queryCmd
}

func runQuery(ctx context.Context, a *app.App, text string, opts retrieval.Options) error {
	result, err := a.Pipeline.Query(ctx, text, opts)
	if err != nil {
		return err
	}

	if len(result.Matches) == 0 {
		fmt.Println("No matching documents.")
		return nil
	}

	fmt.Println(result.Context)
	fmt.Println()
	if len(result.Citations) > 0 {
		fmt.Println("Sources:")
		for _, citation := range result.Citations {
			fmt.Printf("  - %s\n", citation)
		}
	}
	fmt.Printf("Average similarity: %.3f (%d matches)\n", result.AverageSimilarity, len(result.Matches))
	return nil
}
