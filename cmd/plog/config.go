package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/projectlog/internal/config"
	"github.com/untoldecay/projectlog/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Inspect configuration",
	Long: `Inspect configuration settings.

Settings are read, highest priority first, from command-line flags,
PLOG_* environment variables (model.base-url becomes PLOG_MODEL_BASE_URL),
.projectlog/config.yaml found by walking up from the working directory or
~/.config/plog/config.yaml, and built-in defaults.`,
}

// configEntry is one effective setting.
type configEntry struct {
	Key    string              `json:"key"`
	Value  string              `json:"value"`
	Source config.ConfigSource `json:"source"`
	Env    string              `json:"env"`
}

func configEntries(flagged map[string]bool) []configEntry {
	keys := config.Keys()
	out := make([]configEntry, 0, len(keys))
	for _, k := range keys {
		source := config.GetValueSource(k)
		if flagged[k] {
			source = config.SourceFlag
		}
		out = append(out, configEntry{
			Key:    k,
			Value:  displayValue(k, config.Get(k)),
			Source: source,
			Env:    config.EnvName(k),
		})
	}
	return out
}

func displayValue(key string, v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = ""
	case []string:
		s = strings.Join(val, ",")
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = fmt.Sprint(p)
		}
		s = strings.Join(parts, ",")
	default:
		s = fmt.Sprint(val)
	}
	if strings.HasSuffix(key, "api-key") && s != "" {
		return "****"
	}
	return s
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration values and where they come from",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		entries := configEntries(map[string]bool{"db": cmd.Flags().Changed("db")})
		if jsonOutput {
			outputJSON(map[string]any{
				"config_file": config.ConfigFileUsed(),
				"database":    config.DatabasePath(),
				"settings":    entries,
			})
			return
		}

		file := config.ConfigFileUsed()
		if file == "" {
			file = ui.MutedStyle.Render("(none)")
		}
		fmt.Printf("Config file: %s\n", file)
		fmt.Printf("Database:    %s\n\n", config.DatabasePath())
		for _, e := range entries {
			value := e.Value
			if value == "" {
				value = ui.MutedStyle.Render("(empty)")
			}
			source := string(e.Source)
			if e.Source != config.SourceDefault {
				source = ui.PassStyle.Render(source)
			}
			fmt.Printf("  %-24s = %s (%s)\n", e.Key, value, source)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
