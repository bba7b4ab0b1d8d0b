package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ferret0/ferret/internal/app"
	"github.com/ferret0/ferret/internal/log"
)

func newDocsCmd(logger log.Logger) *cobra.Command {
	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "Inspect and maintain the document corpus",
	}

	docsCmd.AddCommand(newDocsCountCmd(logger))
	docsCmd.AddCommand(newDocsDeleteCmd(logger))

	return docsCmd
}

func newDocsCountCmd(logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Show the number of documents in the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), logger, func(ctx context.Context, a *app.App) error {
				count, err := a.Store.Count(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%d documents\n", count)
				return nil
			})
		},
	}
}

func newDocsDeleteCmd(logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its embedding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), logger, func(ctx context.Context, a *app.App) error {
				deleted, err := a.Store.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("no document with id %q", args[0])
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
