package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/projectlog/internal/extractor"
	"github.com/untoldecay/projectlog/internal/types"
)

// DefaultWorkers is the number of documents processed concurrently.
const DefaultWorkers = 2

// Job is one document to process. Load is called on the worker, so large
// batches never hold every document's text in memory at once.
type Job struct {
	Path string
	Load func() (*types.SourceDocument, error)
}

// BatchOptions configures RunBatch.
type BatchOptions struct {
	Workers       int
	Comprehensive bool // also run the comprehensive extractor per document

	// Callbacks are serialized; they never run concurrently.
	OnMention  ProgressFunc
	OnDocument func(DocumentResult)
}

// DocumentResult is the outcome of one job.
type DocumentResult struct {
	Path          string
	DocumentID    string
	Summary       *types.Summary
	Comprehensive *extractor.Record
	Err           error
	Skipped       bool // not started because the batch was cancelled
	Duration      time.Duration
}

// BatchResult collects every job outcome in submission order.
type BatchResult struct {
	RunID     string
	Documents []DocumentResult
	Started   time.Time
	Finished  time.Time
}

// Failed counts documents that did not finish.
func (r *BatchResult) Failed() int {
	n := 0
	for _, d := range r.Documents {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// RunBatch processes jobs with a bounded number of workers. A failing
// document never stops its siblings. Cancellation is checked between
// documents and between mentions; model calls already in flight finish.
func (p *Pipeline) RunBatch(ctx context.Context, jobs []Job, opts BatchOptions) *BatchResult {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	res := &BatchResult{
		RunID:     uuid.NewString(),
		Documents: make([]DocumentResult, len(jobs)),
		Started:   time.Now(),
	}
	log := p.log.With("run", res.RunID)
	log.Info("batch started", "documents", len(jobs), "workers", workers)

	var cbMu sync.Mutex
	onMention := func(r types.MentionResult) {
		if opts.OnMention == nil {
			return
		}
		cbMu.Lock()
		defer cbMu.Unlock()
		opts.OnMention(r)
	}
	onDocument := func(r DocumentResult) {
		if opts.OnDocument == nil {
			return
		}
		cbMu.Lock()
		defer cbMu.Unlock()
		opts.OnDocument(r)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, job := range jobs {
		if ctx.Err() != nil {
			res.Documents[i] = DocumentResult{Path: job.Path, Err: ctx.Err(), Skipped: true}
			continue
		}
		g.Go(func() error {
			r := p.runJob(ctx, job, opts.Comprehensive, onMention)
			res.Documents[i] = r
			onDocument(r)
			return nil
		})
	}
	_ = g.Wait()

	res.Finished = time.Now()
	log.Info("batch finished",
		"documents", len(jobs),
		"failed", res.Failed(),
		"elapsed", res.Finished.Sub(res.Started).Round(time.Millisecond))
	return res
}

func (p *Pipeline) runJob(ctx context.Context, job Job, comprehensive bool, progress ProgressFunc) (r DocumentResult) {
	start := time.Now()
	r.Path = job.Path
	defer func() { r.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		r.Err, r.Skipped = err, true
		return r
	}
	doc, err := job.Load()
	if err != nil {
		p.log.Error("failed to load document", "path", job.Path, "error", err)
		r.Err = err
		return r
	}
	r.DocumentID = doc.ID

	r.Summary, r.Err = p.ResolveDocument(ctx, doc, progress)
	if r.Err != nil || !comprehensive {
		return r
	}
	if ctx.Err() != nil {
		return r
	}
	rec, err := p.ExtractComprehensive(ctx, doc.ID, doc.Text)
	if err != nil {
		p.log.Warn("comprehensive extraction failed", "document", doc.ID, "error", err)
	}
	r.Comprehensive = rec
	return r
}
