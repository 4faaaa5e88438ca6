package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/projectlog/internal/categorize"
	"github.com/untoldecay/projectlog/internal/config"
	"github.com/untoldecay/projectlog/internal/types"
	"github.com/untoldecay/projectlog/internal/ui"
)

var categorizeCmd = &cobra.Command{
	Use:     "categorize [id...]",
	GroupID: "ingest",
	Short:   "Classify projects into categories, sub-categories and scopes",
	Long: `Ask the model to classify projects using their accumulated narrative.
Answers are mapped onto the categorization schema (categorize.schema, or a
built-in default): unknown categories become Uncategorized and unknown
scopes become Unclassified.

Examples:
  plog categorize 12 15
  plog categorize --all --only-missing
  plog categorize --all --yes`,
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		onlyMissing, _ := cmd.Flags().GetBool("only-missing")
		yes, _ := cmd.Flags().GetBool("yes")
		if len(args) == 0 && !all {
			FatalError("give project IDs or --all")
		}

		schema := categorize.DefaultSchema()
		if path := config.GetString("categorize.schema"); path != "" {
			var err error
			if schema, err = categorize.LoadSchema(path); err != nil {
				FatalError("%v", err)
			}
		}

		ctx := cmd.Context()
		store := openStore(ctx)
		defer func() { _ = store.Close() }()

		var projects []*types.Project
		if all {
			var err error
			projects, err = store.ListProjects(ctx, types.ProjectFilter{Uncategorized: onlyMissing})
			if err != nil {
				FatalError("listing projects: %v", err)
			}
		} else {
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					FatalError("invalid project ID %q", arg)
				}
				p, err := store.GetProject(ctx, id)
				if err != nil {
					FatalError("loading project %d: %v", id, err)
				}
				projects = append(projects, p)
			}
		}
		if len(projects) == 0 {
			fmt.Println("Nothing to categorize.")
			return
		}

		if all && !onlyMissing && !yes && !jsonOutput {
			if !ui.PromptYesNo(fmt.Sprintf("Re-categorize all %d project(s)?", len(projects)), false) {
				return
			}
		}

		c := categorize.New(newModelGateway(ctx), store, schema, logger)
		var results []*categorize.Result
		failed := 0
		for _, p := range projects {
			if ctx.Err() != nil {
				break
			}
			if strings.TrimSpace(p.Narrative) == "" {
				logger.Info("skipping project without narrative", "project", p.ID)
				continue
			}
			res, err := c.Categorize(ctx, p)
			if err != nil {
				failed++
				logger.Warn("categorization failed", "project", p.ID, "error", err)
				if !jsonOutput {
					fmt.Printf("%s #%d %s: %v\n", ui.FailStyle.Render("✗"), p.ID, p.CanonicalName, err)
				}
				continue
			}
			results = append(results, res)
			if !jsonOutput {
				label := res.Category
				if res.SubCategory != "" {
					label += " / " + res.SubCategory
				}
				fmt.Printf("%s #%d %s: %s (%s)\n", ui.PassStyle.Render("✓"), p.ID, p.CanonicalName, label, res.Scope)
			}
		}

		if jsonOutput {
			outputJSON(results)
		} else {
			fmt.Printf("\n%d categorized, %d failed\n", len(results), failed)
		}
	},
}

func init() {
	categorizeCmd.Flags().Bool("all", false, "Categorize every project")
	categorizeCmd.Flags().Bool("only-missing", false, "With --all, only projects without a category")
	categorizeCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(categorizeCmd)
}
