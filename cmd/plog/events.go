package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/projectlog/internal/ingest"
	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/ui"
)

var eventsCmd = &cobra.Command{
	Use:     "events <document-id|path>",
	GroupID: "views",
	Short:   "Show the processing trail of a document",
	Long: `Show every recorded processing step for one document: scan results,
spotted mentions, each adjudication (with the raw model output when it was
rejected as invalid) and comprehensive extraction runs.

The document may be given by ID or by the path it was processed from.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		store := openStore(ctx)
		defer func() { _ = store.Close() }()

		id := args[0]
		if _, err := store.GetDocument(ctx, id); errors.Is(err, storage.ErrNotFound) {
			if _, statErr := os.Stat(id); statErr == nil {
				if derived, err := ingest.DocumentID(id); err == nil {
					id = derived
				}
			}
		}
		if _, err := store.GetDocument(ctx, id); err != nil {
			FatalError("document %q: %v", args[0], err)
		}

		events, err := store.GetEvents(ctx, id, limit)
		if err != nil {
			FatalError("loading events: %v", err)
		}
		if jsonOutput {
			outputJSON(events)
			return
		}
		ui.RenderEvents(os.Stdout, events, ui.GetWidth())
	},
}

func init() {
	eventsCmd.Flags().IntP("limit", "n", 0, "Maximum number of events (0 = all)")
	rootCmd.AddCommand(eventsCmd)
}
