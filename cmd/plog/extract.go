package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/projectlog/internal/extractor"
	"github.com/untoldecay/projectlog/internal/pipeline"
	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/types"
	"github.com/untoldecay/projectlog/internal/ui"
)

var extractCmd = &cobra.Command{
	Use:     "extract <file>",
	GroupID: "ingest",
	Short:   "Extract categorized facts from a document",
	Long: `Run the comprehensive extractor over one document and store the result on
its document record. The project registry is not touched.

Every fact is a verbatim excerpt; dates are also given in ISO form when
they can be read.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		doc, err := parsers().Parse(args[0])
		if err != nil {
			FatalError("%v", err)
		}

		eng := openEngine(ctx)
		defer func() { _ = eng.Close() }()

		if _, err := eng.Store().GetDocument(ctx, doc.ID); errors.Is(err, storage.ErrNotFound) {
			err = eng.Store().UpsertDocument(ctx, &types.Document{
				ID:          doc.ID,
				Path:        doc.Path,
				Name:        doc.Name,
				Type:        doc.Type,
				ContentHash: pipeline.ContentHash(doc.Text),
				Status:      types.DocPending,
				Text:        doc.Text,
			})
			if err != nil {
				FatalError("%v", err)
			}
		}

		rec, err := eng.ExtractComprehensive(ctx, doc.ID, doc.Text)
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(rec)
			return
		}
		printRecord(doc.Name, rec)
	},
}

func printRecord(name string, rec *extractor.Record) {
	fmt.Printf("%s %s\n", ui.TitleStyle.Render(name), ui.MutedStyle.Render(rec.DocumentID))
	if rec.FailedChunks > 0 {
		fmt.Println(ui.WarnStyle.Render(fmt.Sprintf("%d of %d chunk(s) failed", rec.FailedChunks, rec.Chunks)))
	}
	cats := make([]string, 0, len(rec.Categories))
	for c := range rec.Categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		facts := rec.Categories[c]
		if len(facts) == 0 {
			continue
		}
		fmt.Printf("\n%s\n", ui.LabelStyle.Render(strings.ReplaceAll(c, "_", " ")))
		for _, f := range facts {
			if f.Date != "" {
				fmt.Printf("  - %s %s\n", f.Text, ui.MutedStyle.Render("("+f.Date+")"))
			} else {
				fmt.Printf("  - %s\n", f.Text)
			}
		}
	}
	fmt.Printf("\n%d fact(s)\n", rec.Total())
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
