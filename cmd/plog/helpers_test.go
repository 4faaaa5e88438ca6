package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/projectlog/internal/config"
	"github.com/untoldecay/projectlog/internal/resolve"
	"github.com/untoldecay/projectlog/internal/types"
)

func initTestConfig(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, key := range config.Keys() {
		t.Setenv(config.EnvName(key), "")
	}
	work := t.TempDir()
	t.Chdir(work)
	if err := config.Initialize(); err != nil {
		t.Fatalf("config.Initialize: %v", err)
	}
	return work
}

func TestEngineOptionsFromDefaults(t *testing.T) {
	work := initTestConfig(t)

	opts := engineOptions()
	if want := filepath.Join(work, config.DirName, "plog.db"); opts.DBPath != want {
		t.Errorf("DBPath = %q, want %q", opts.DBPath, want)
	}
	if opts.Model.Provider != "ollama" || opts.Model.Timeout != 120*time.Second || opts.Model.MaxAttempts != 3 {
		t.Errorf("Model = %+v", opts.Model)
	}
	if opts.Resolve.ContextBudget != 12000 || opts.Resolve.SnippetBudget != 6000 || opts.Resolve.MaxTags != resolve.DefaultMaxTags {
		t.Errorf("Resolve = %+v", opts.Resolve)
	}
	if opts.Scan.Window != 4000 || opts.Scan.Overlap != 400 {
		t.Errorf("Scan = %+v", opts.Scan)
	}
	if opts.ShortlistSize != 5 || opts.MinScore != 0.3 {
		t.Errorf("shortlist = %d, min score = %v", opts.ShortlistSize, opts.MinScore)
	}
	if opts.AuditPath == "" {
		t.Error("audit is enabled by default but AuditPath is empty")
	}
}

func TestEngineOptionsFromEnv(t *testing.T) {
	initTestConfig(t)
	t.Setenv("PLOG_MODEL_PROVIDER", "anthropic")
	t.Setenv("PLOG_AUDIT_ENABLED", "false")
	t.Setenv("PLOG_RESOLVE_SHORTLIST_SIZE", "8")

	opts := engineOptions()
	if opts.Model.Provider != "anthropic" {
		t.Errorf("Model.Provider = %q", opts.Model.Provider)
	}
	if opts.AuditPath != "" {
		t.Errorf("AuditPath = %q, want empty when audit is disabled", opts.AuditPath)
	}
	if opts.ShortlistSize != 8 {
		t.Errorf("ShortlistSize = %d", opts.ShortlistSize)
	}
}

func TestConfigEntries(t *testing.T) {
	work := initTestConfig(t)
	dir := filepath.Join(work, config.DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("model:\n  name: llama3\n  api-key: secret\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := config.Initialize(); err != nil {
		t.Fatalf("config.Initialize: %v", err)
	}
	t.Setenv("PLOG_BATCH_WORKERS", "6")

	got := make(map[string]configEntry)
	for _, e := range configEntries(map[string]bool{"db": true}) {
		got[e.Key] = e
	}
	tests := []struct {
		key    string
		value  string
		source config.ConfigSource
	}{
		{"model.name", "llama3", config.SourceConfigFile},
		{"model.api-key", "****", config.SourceConfigFile},
		{"batch.workers", "6", config.SourceEnvVar},
		{"scan.window", "4000", config.SourceDefault},
		{"db", "", config.SourceFlag},
	}
	for _, tt := range tests {
		e, ok := got[tt.key]
		if !ok {
			t.Errorf("missing key %s", tt.key)
			continue
		}
		if e.Value != tt.value || e.Source != tt.source {
			t.Errorf("%s = %q (%s), want %q (%s)", tt.key, e.Value, e.Source, tt.value, tt.source)
		}
	}
	if got["batch.workers"].Env != "PLOG_BATCH_WORKERS" {
		t.Errorf("env name = %q", got["batch.workers"].Env)
	}
}

func TestDisplayValue(t *testing.T) {
	tests := []struct {
		key  string
		v    any
		want string
	}{
		{"ingest.extensions", []string{".md", ".txt"}, ".md,.txt"},
		{"ingest.extensions", []any{".md"}, ".md"},
		{"model.api-key", "", ""},
		{"model.api-key", "sk-123", "****"},
		{"scan.window", 4000, "4000"},
		{"log.file", nil, ""},
	}
	for _, tt := range tests {
		if got := displayValue(tt.key, tt.v); got != tt.want {
			t.Errorf("displayValue(%s, %v) = %q, want %q", tt.key, tt.v, got, tt.want)
		}
	}
}

func TestDocumentStatus(t *testing.T) {
	tests := []struct {
		name string
		sum  *types.Summary
		want string
	}{
		{"nil", nil, types.DocFailed},
		{"extraction failed", &types.Summary{ExtractionFailed: true}, types.DocExtractionFailed},
		{"no mentions", &types.Summary{}, types.DocNoMentions},
		{"processed", &types.Summary{Mentions: 2}, types.DocProcessed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := documentStatus(tt.sum); got != tt.want {
				t.Errorf("documentStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}
