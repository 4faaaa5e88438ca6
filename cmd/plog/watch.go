package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/projectlog"
	"github.com/untoldecay/projectlog/internal/config"
	"github.com/untoldecay/projectlog/internal/ingest"
)

var watchCmd = &cobra.Command{
	Use:     "watch <dir>",
	GroupID: "ingest",
	Short:   "Process documents as they appear in a folder",
	Long: `Watch a folder and process new or changed documents once the folder has
been quiet for watch.debounce. Existing documents that are new or changed
since the last run are processed on start. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		root := args[0]
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			FatalError("%s is not a directory", root)
		}
		comprehensive, _ := cmd.Flags().GetBool("comprehensive")
		opts := projectlog.BatchOptions{Workers: config.GetInt("batch.workers"), Comprehensive: comprehensive}

		ctx := cmd.Context()
		reg := parsers()
		manifest, err := ingest.LoadManifest(manifestPath())
		if err != nil {
			FatalError("%v", err)
		}
		eng := openEngine(ctx)
		defer func() { _ = eng.Close() }()

		run := func(ctx context.Context, roots []string) {
			var pending []ingest.File
			for _, r := range roots {
				found, err := ingest.Discover(r, reg, manifest, false)
				if err != nil {
					logger.Warn("discovery failed", "path", r, "error", err)
					continue
				}
				pending = append(pending, ingest.Pending(found)...)
			}
			if len(pending) > 0 {
				processFiles(ctx, eng, reg, manifest, pending, opts)
			}
		}

		run(ctx, []string{root})

		w, err := ingest.NewWatcher(root, reg, config.GetDuration("watch.debounce"), logger)
		if err != nil {
			FatalError("%v", err)
		}
		if !jsonOutput {
			fmt.Printf("Watching %s (Ctrl-C to stop)\n", root)
		}
		if err := w.Run(ctx, run); err != nil {
			FatalError("%v", err)
		}
	},
}

func init() {
	watchCmd.Flags().Bool("comprehensive", false, "Also extract categorized facts from each document")
	rootCmd.AddCommand(watchCmd)
}
