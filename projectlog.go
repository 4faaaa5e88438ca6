// Package projectlog provides a minimal public API for resolving project
// mentions in documents against a persistent project registry.
//
// Most callers use the plog CLI. This package exports the engine behind it
// for Go programs that want to feed documents in directly.
package projectlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/untoldecay/projectlog/internal/audit"
	"github.com/untoldecay/projectlog/internal/extractor"
	"github.com/untoldecay/projectlog/internal/ingest"
	"github.com/untoldecay/projectlog/internal/llm"
	"github.com/untoldecay/projectlog/internal/pipeline"
	"github.com/untoldecay/projectlog/internal/resolve"
	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/storage/sqlite"
	"github.com/untoldecay/projectlog/internal/types"
)

// Storage is the project registry interface.
type Storage = storage.Storage

// Core types from internal/types
type (
	Project         = types.Project
	Mention         = types.Mention
	LogEntry        = types.LogEntry
	Document        = types.Document
	SourceDocument  = types.SourceDocument
	Location        = types.Location
	ProcessingEvent = types.ProcessingEvent
	Summary         = types.Summary
	ProjectRef      = types.ProjectRef
	MentionError    = types.MentionError
	MentionResult   = types.MentionResult
	Outcome         = types.Outcome
)

// Outcome constants
const (
	OutcomeLinked   = types.OutcomeLinked
	OutcomeCreated  = types.OutcomeCreated
	OutcomeRejected = types.OutcomeRejected
	OutcomeErrored  = types.OutcomeErrored
)

// Pipeline configuration and results
type (
	ModelConfig         = llm.Config
	Invoker             = llm.Invoker
	ScanConfig          = extractor.ScanConfig
	ResolveConfig       = resolve.Config
	ComprehensiveConfig = extractor.ComprehensiveConfig
	ComprehensiveRecord = extractor.Record
	ProgressFunc        = pipeline.ProgressFunc
	Job                 = pipeline.Job
	BatchOptions        = pipeline.BatchOptions
	BatchResult         = pipeline.BatchResult
	DocumentResult      = pipeline.DocumentResult
)

// Sentinel errors callers may test with errors.Is.
var (
	ErrServiceUnavailable = llm.ErrServiceUnavailable
	ErrStoreUnavailable   = storage.ErrUnavailable
	ErrNotFound           = storage.ErrNotFound
)

// Options configures Open. Zero values take package defaults.
type Options struct {
	// DBPath is the SQLite database to open. Ignored when Store is set.
	DBPath string
	// Store is an already open registry. The engine does not close it.
	Store Storage

	// Model selects the provider. Ignored when Gateway is set.
	Model ModelConfig
	// Gateway replaces the provider built from Model.
	Gateway Invoker
	// AuditPath enables the JSONL prompt/response log for a Model gateway.
	AuditPath   string
	AuditBuffer int

	Scan          ScanConfig
	Resolve       ResolveConfig
	Comprehensive ComprehensiveConfig
	ShortlistSize int
	MinScore      float64

	Logger *slog.Logger
}

// Engine owns a registry and a model gateway and runs documents through
// the resolution pipeline.
type Engine struct {
	store     Storage
	ownsStore bool
	recorder  *audit.Recorder
	gateway   Invoker
	pipeline  *pipeline.Pipeline
	parsers   *ingest.Registry
}

// Open builds an engine from opts.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	e := &Engine{store: opts.Store, parsers: ingest.DefaultRegistry()}

	if e.store == nil {
		if opts.DBPath == "" {
			return nil, errors.New("projectlog: DBPath or Store is required")
		}
		s, err := sqlite.New(ctx, opts.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		e.store, e.ownsStore = s, true
	}

	e.gateway = opts.Gateway
	if e.gateway == nil {
		var gwOpts []llm.Option
		if opts.AuditPath != "" {
			r, err := audit.NewRecorder(opts.AuditPath, opts.AuditBuffer, log)
			if err != nil {
				_ = e.Close()
				return nil, err
			}
			e.recorder = r
			gwOpts = append(gwOpts, llm.WithRecorder(r))
		}
		gw, err := llm.NewGatewayFromConfig(ctx, opts.Model, append(gwOpts, llm.WithLogger(log))...)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		e.gateway = gw
	}

	p, err := pipeline.New(pipeline.Options{
		Store:         e.store,
		Gateway:       e.gateway,
		Scan:          opts.Scan,
		Resolve:       opts.Resolve,
		Comprehensive: opts.Comprehensive,
		ShortlistSize: opts.ShortlistSize,
		MinScore:      opts.MinScore,
		Logger:        log,
	})
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	e.pipeline = p
	return e, nil
}

// ResolveDocument resolves every project mention in doc against the registry.
func (e *Engine) ResolveDocument(ctx context.Context, doc *SourceDocument, progress ProgressFunc) (*Summary, error) {
	return e.pipeline.ResolveDocument(ctx, doc, progress)
}

// ResolveFile parses the file at path and resolves it.
func (e *Engine) ResolveFile(ctx context.Context, path string, progress ProgressFunc) (*Summary, error) {
	doc, err := e.parsers.Parse(path)
	if err != nil {
		return nil, err
	}
	return e.pipeline.ResolveDocument(ctx, doc, progress)
}

// ExtractComprehensive extracts categorized facts from text and stores them
// on the document record.
func (e *Engine) ExtractComprehensive(ctx context.Context, documentID, text string) (*ComprehensiveRecord, error) {
	return e.pipeline.ExtractComprehensive(ctx, documentID, text)
}

// RunBatch processes jobs concurrently.
func (e *Engine) RunBatch(ctx context.Context, jobs []Job, opts BatchOptions) *BatchResult {
	return e.pipeline.RunBatch(ctx, jobs, opts)
}

// Store returns the registry the engine writes to.
func (e *Engine) Store() Storage { return e.store }

// Model returns the provenance name of the model in use.
func (e *Engine) Model() string { return e.gateway.Model() }

// Close flushes the audit log and closes the registry if Open opened it.
func (e *Engine) Close() error {
	var errs []error
	if e.recorder != nil {
		errs = append(errs, e.recorder.Close())
	}
	if e.ownsStore && e.store != nil {
		errs = append(errs, e.store.Close())
	}
	return errors.Join(errs...)
}
