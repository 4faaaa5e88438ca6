package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/projectlog/internal/types"
	"github.com/untoldecay/projectlog/internal/ui"
)

var documentsCmd = &cobra.Command{
	Use:     "documents",
	GroupID: "views",
	Short:   "Browse processed documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered documents",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		store := openStore(ctx)
		defer func() { _ = store.Close() }()

		docs, err := store.ListDocuments(ctx, types.DocumentFilter{Status: status, Limit: limit})
		if err != nil {
			FatalError("listing documents: %v", err)
		}
		if jsonOutput {
			outputJSON(docs)
			return
		}
		ui.RenderDocuments(os.Stdout, docs, ui.GetWidth())
	},
}

func init() {
	documentsListCmd.Flags().String("status", "", "Only documents with this status (processed, failed, no_mentions, ...)")
	documentsListCmd.Flags().IntP("limit", "n", 0, "Maximum number of documents (0 = all)")
	documentsCmd.AddCommand(documentsListCmd)
	rootCmd.AddCommand(documentsCmd)
}
