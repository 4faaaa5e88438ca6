package main

import (
	"errors"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/types"
	"github.com/untoldecay/projectlog/internal/ui"
)

var projectsCmd = &cobra.Command{
	Use:     "projects",
	GroupID: "views",
	Short:   "Browse the project registry",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects, most recently updated first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		category, _ := cmd.Flags().GetString("category")
		uncategorized, _ := cmd.Flags().GetBool("uncategorized")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		store := openStore(ctx)
		defer func() { _ = store.Close() }()

		projects, err := store.ListProjects(ctx, types.ProjectFilter{Category: category, Uncategorized: uncategorized, Limit: limit})
		if err != nil {
			FatalError("listing projects: %v", err)
		}
		if jsonOutput {
			outputJSON(projects)
			return
		}
		ui.RenderProjectList(os.Stdout, projects, ui.GetWidth())
	},
}

var projectsShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Show a project's names, tags, narrative and history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		store := openStore(ctx)
		defer func() { _ = store.Close() }()

		var (
			p   *types.Project
			err error
		)
		if id, convErr := strconv.ParseInt(args[0], 10, 64); convErr == nil {
			p, err = store.GetProject(ctx, id)
		} else {
			p, err = store.GetProjectByName(ctx, args[0])
		}
		if errors.Is(err, storage.ErrNotFound) {
			FatalError("project %q not found", args[0])
		}
		if err != nil {
			FatalError("loading project: %v", err)
		}
		entries, err := store.GetLogEntries(ctx, p.ID)
		if err != nil {
			FatalError("loading log entries: %v", err)
		}

		if jsonOutput {
			outputJSON(struct {
				*types.Project
				LogEntries []*types.LogEntry `json:"log_entries"`
			}{p, entries})
			return
		}
		ui.RenderProject(os.Stdout, p, entries, ui.GetWidth())
	},
}

func init() {
	projectsListCmd.Flags().String("category", "", "Only projects in this category")
	projectsListCmd.Flags().Bool("uncategorized", false, "Only projects without a category")
	projectsListCmd.Flags().IntP("limit", "n", 0, "Maximum number of projects (0 = all)")
	projectsCmd.AddCommand(projectsListCmd, projectsShowCmd)
	rootCmd.AddCommand(projectsCmd)
}
