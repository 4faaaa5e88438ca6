package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/untoldecay/projectlog"
	"github.com/untoldecay/projectlog/internal/audit"
	"github.com/untoldecay/projectlog/internal/config"
	"github.com/untoldecay/projectlog/internal/extractor"
	"github.com/untoldecay/projectlog/internal/ingest"
	"github.com/untoldecay/projectlog/internal/llm"
	"github.com/untoldecay/projectlog/internal/logging"
	"github.com/untoldecay/projectlog/internal/resolve"
	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/storage/sqlite"
)

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		FatalError("encoding JSON: %v", err)
	}
}

// FatalError prints an error message and exits with status 1.
func FatalError(format string, args ...any) {
	if jsonOutput {
		_ = json.NewEncoder(os.Stderr).Encode(map[string]string{"error": fmt.Sprintf(format, args...)})
	} else {
		fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	}
	os.Exit(1)
}

func loggingConfig() logging.Config {
	return logging.Config{
		File:       config.GetString("log.file"),
		Level:      config.GetString("log.level"),
		MaxSizeMB:  config.GetInt("log.max-size"),
		MaxBackups: config.GetInt("log.max-backups"),
		MaxAgeDays: config.GetInt("log.max-age"),
		Compress:   true,
		Verbose:    verbose,
	}
}

func modelConfig() llm.Config {
	return llm.Config{
		Provider:       config.GetString("model.provider"),
		Model:          config.GetString("model.name"),
		BaseURL:        config.GetString("model.base-url"),
		APIKey:         config.GetString("model.api-key"),
		Timeout:        config.GetDuration("model.timeout"),
		MaxAttempts:    config.GetInt("model.max-attempts"),
		InitialBackoff: config.GetDuration("model.initial-backoff"),
		MaxBackoff:     config.GetDuration("model.max-backoff"),
		MaxTokens:      config.GetInt("model.max-tokens"),
	}
}

func auditPath() string {
	if !config.GetBool("audit.enabled") {
		return ""
	}
	if p := config.GetString("audit.path"); p != "" {
		return p
	}
	return filepath.Join(config.DataDir(), audit.FileName)
}

// engineOptions converts configuration into engine options. Internal
// packages never read configuration themselves.
func engineOptions() projectlog.Options {
	return projectlog.Options{
		DBPath:      config.DatabasePath(),
		Model:       modelConfig(),
		AuditPath:   auditPath(),
		AuditBuffer: config.GetInt("audit.buffer"),
		Scan: extractor.ScanConfig{
			Window:      config.GetInt("scan.window"),
			Overlap:     config.GetInt("scan.overlap"),
			Temperature: config.GetFloat64("scan.temperature"),
		},
		Resolve: resolve.Config{
			ContextBudget: config.GetInt("resolve.context-budget"),
			SnippetBudget: config.GetInt("resolve.snippet-budget"),
			Temperature:   config.GetFloat64("resolve.temperature"),
			MaxTags:       resolve.DefaultMaxTags,
		},
		Comprehensive: extractor.ComprehensiveConfig{
			Window:      config.GetInt("comprehensive.window"),
			Overlap:     config.GetInt("comprehensive.overlap"),
			Temperature: extractor.DefaultComprehensiveConfig().Temperature,
		},
		ShortlistSize: config.GetInt("resolve.shortlist-size"),
		MinScore:      config.GetFloat64("resolve.min-score"),
		Logger:        logger,
	}
}

func openEngine(ctx context.Context) *projectlog.Engine {
	eng, err := projectlog.Open(ctx, engineOptions())
	if err != nil {
		FatalError("%v", err)
	}
	return eng
}

// openStore opens the registry for read-only commands, which need no model.
func openStore(ctx context.Context) storage.Storage {
	path := config.DatabasePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		FatalError("no database at %s (run 'plog process <dir>' first)", path)
	}
	store, err := sqlite.New(ctx, path)
	if err != nil {
		FatalError("failed to open database: %v", err)
	}
	return store
}

func parsers() *ingest.Registry {
	return ingest.DefaultRegistry().Restrict(config.GetStringSlice("ingest.extensions"))
}

func manifestPath() string {
	return filepath.Join(config.DataDir(), ingest.ManifestName)
}

func newModelGateway(ctx context.Context) *llm.Gateway {
	gw, err := llm.NewGatewayFromConfig(ctx, modelConfig(), llm.WithLogger(logger))
	if err != nil {
		FatalError("%v", err)
	}
	return gw
}
