package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/projectlog"
	"github.com/untoldecay/projectlog/internal/config"
	"github.com/untoldecay/projectlog/internal/ingest"
	"github.com/untoldecay/projectlog/internal/types"
	"github.com/untoldecay/projectlog/internal/ui"
)

var processCmd = &cobra.Command{
	Use:     "process <dir|file>...",
	GroupID: "ingest",
	Short:   "Resolve project mentions in new or changed documents",
	Long: `Walk the given folders (or files), parse every supported document that
is new or changed since the last run and resolve its project mentions
against the registry.

Processed files are tracked in .projectlog/processed.json so re-running
only picks up what changed. Use --force to reprocess everything.

Examples:
  plog process ./reports
  plog process notes.md --comprehensive
  plog process ./reports --workers 4 --force`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		workers, _ := cmd.Flags().GetInt("workers")
		comprehensive, _ := cmd.Flags().GetBool("comprehensive")
		if !cmd.Flags().Changed("workers") {
			workers = config.GetInt("batch.workers")
		}

		ctx := cmd.Context()
		reg := parsers()
		manifest, err := ingest.LoadManifest(manifestPath())
		if err != nil {
			FatalError("%v", err)
		}

		var files []ingest.File
		for _, root := range args {
			found, err := ingest.Discover(root, reg, manifest, force)
			if err != nil {
				FatalError("%v", err)
			}
			files = append(files, found...)
		}
		pending := ingest.Pending(files)
		if !jsonOutput {
			fmt.Printf("Found %d document(s), %d to process\n", len(files), len(pending))
		}
		if len(pending) == 0 {
			if jsonOutput {
				outputJSON([]batchDocument{})
			}
			return
		}

		eng := openEngine(ctx)
		res := processFiles(ctx, eng, reg, manifest, pending, projectlog.BatchOptions{
			Workers:       workers,
			Comprehensive: comprehensive,
		})
		if err := eng.Close(); err != nil {
			logger.Warn("failed to close engine", "error", err)
		}
		if res.Failed() > 0 {
			os.Exit(1)
		}
	},
}

// batchDocument is the JSON shape of one processed document.
type batchDocument struct {
	Path       string         `json:"path"`
	DocumentID string         `json:"document_id,omitempty"`
	Summary    *types.Summary `json:"summary,omitempty"`
	Facts      int            `json:"comprehensive_facts,omitempty"`
	Error      string         `json:"error,omitempty"`
	Skipped    bool           `json:"skipped,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// processFiles runs files through the engine, prints progress and records
// the documents that finished in the manifest.
func processFiles(ctx context.Context, eng *projectlog.Engine, reg *ingest.Registry, manifest *ingest.Manifest, files []ingest.File, opts projectlog.BatchOptions) *projectlog.BatchResult {
	jobs := make([]projectlog.Job, len(files))
	modTimes := make(map[string]time.Time, len(files))
	for i, f := range files {
		jobs[i] = projectlog.Job{Path: f.Path, Load: func() (*types.SourceDocument, error) { return reg.Parse(f.Path) }}
		modTimes[f.Path] = f.ModTime
	}

	if !jsonOutput {
		opts.OnMention = func(r types.MentionResult) {
			fmt.Printf("  [%d/%d] %-9s %s\n", r.Index, r.Total, r.Outcome, r.Mention.Raw)
		}
		opts.OnDocument = func(r projectlog.DocumentResult) {
			switch {
			case r.Summary != nil:
				ui.RenderSummary(os.Stdout, r.Path, r.Summary)
			case r.Err != nil:
				fmt.Printf("%s %s: %v\n", ui.FailStyle.Render("✗"), r.Path, r.Err)
			}
			if r.Comprehensive != nil {
				fmt.Printf("  comprehensive: %d fact(s)\n", r.Comprehensive.Total())
			}
		}
	}

	res := eng.RunBatch(ctx, jobs, opts)

	entries := make(map[string]ingest.Entry)
	out := make([]batchDocument, 0, len(res.Documents))
	for _, d := range res.Documents {
		row := batchDocument{Path: d.Path, DocumentID: d.DocumentID, Summary: d.Summary, Skipped: d.Skipped, DurationMS: d.Duration.Milliseconds()}
		if d.Comprehensive != nil {
			row.Facts = d.Comprehensive.Total()
		}
		switch {
		case d.Err != nil:
			row.Error = d.Err.Error()
		case d.Summary != nil && d.Summary.ExtractionFailed:
			// retried on the next run
		default:
			entries[d.Path] = ingest.Entry{
				DocumentID:  d.DocumentID,
				ModTime:     modTimes[d.Path],
				ProcessedAt: res.Finished,
				Status:      documentStatus(d.Summary),
			}
		}
		out = append(out, row)
	}
	if len(entries) > 0 {
		if err := manifest.Record(context.WithoutCancel(ctx), entries); err != nil {
			logger.Warn("failed to update manifest", "path", manifest.Path(), "error", err)
		}
	}

	if jsonOutput {
		outputJSON(out)
	} else {
		fmt.Printf("\n%d processed, %d failed in %s\n",
			len(res.Documents)-res.Failed(), res.Failed(), res.Finished.Sub(res.Started).Round(time.Millisecond))
	}
	return res
}

func documentStatus(s *types.Summary) string {
	switch {
	case s == nil:
		return types.DocFailed
	case s.ExtractionFailed:
		return types.DocExtractionFailed
	case s.Mentions == 0:
		return types.DocNoMentions
	default:
		return types.DocProcessed
	}
}

func init() {
	processCmd.Flags().Bool("force", false, "Reprocess files even if unchanged")
	processCmd.Flags().IntP("workers", "w", 0, "Documents processed concurrently (default: batch.workers)")
	processCmd.Flags().Bool("comprehensive", false, "Also extract categorized facts from each document")
	rootCmd.AddCommand(processCmd)
}
