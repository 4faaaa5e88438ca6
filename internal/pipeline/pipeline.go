// Package pipeline wires the scanner, resolution agent and aggregator into
// the document-level operations exposed to callers.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/untoldecay/projectlog/internal/aggregate"
	"github.com/untoldecay/projectlog/internal/extractor"
	"github.com/untoldecay/projectlog/internal/llm"
	"github.com/untoldecay/projectlog/internal/matcher"
	"github.com/untoldecay/projectlog/internal/resolve"
	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/types"
)

// Reasoning strings for mentions that end ERRORED.
const (
	ReasonServiceUnavailable = "service_unavailable"
	ReasonCancelled          = "cancelled"
	ReasonAggregationFailed  = "aggregation_failed"
	ReasonResolutionFailed   = "resolution_failed"
)

// ProgressFunc is called once per completed mention.
type ProgressFunc func(types.MentionResult)

// Options configures a Pipeline. Zero values take package defaults.
type Options struct {
	Store         storage.Storage
	Gateway       llm.Invoker
	Scan          extractor.ScanConfig
	Resolve       resolve.Config
	Comprehensive extractor.ComprehensiveConfig
	ShortlistSize int
	MinScore      float64
	Logger        *slog.Logger
}

// Pipeline runs resolve_document and extract_comprehensive.
type Pipeline struct {
	store   storage.Storage
	model   string
	scanner *extractor.Scanner
	agent   *resolve.Agent
	agg     *aggregate.Aggregator
	comp    *extractor.Comprehensive
	log     *slog.Logger
}

// New builds a pipeline from opts.
func New(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("pipeline: model gateway is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if opts.Scan.Window == 0 {
		opts.Scan = extractor.DefaultScanConfig()
	}
	if opts.Comprehensive.Window == 0 {
		opts.Comprehensive = extractor.DefaultComprehensiveConfig()
	}
	if opts.MinScore == 0 {
		opts.MinScore = matcher.DefaultMinScore
	}

	scanner, err := extractor.NewScanner(opts.Gateway, opts.Scan, log)
	if err != nil {
		return nil, err
	}
	comp, err := extractor.NewComprehensive(opts.Gateway, opts.Comprehensive, log)
	if err != nil {
		return nil, err
	}
	m := matcher.New(opts.ShortlistSize, opts.MinScore)
	return &Pipeline{
		store:   opts.Store,
		model:   opts.Gateway.Model(),
		scanner: scanner,
		agent:   resolve.NewAgent(opts.Gateway, m, opts.Store, opts.Resolve, log),
		agg:     aggregate.New(opts.Store, log),
		comp:    comp,
		log:     log,
	}, nil
}

// ContentHash returns the hex SHA-256 of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ResolveDocument scans doc for project mentions and resolves each one in
// order against the live registry.
//
// The returned summary is always complete: every mention ends linked,
// created, rejected or errored. A non-nil error means the document as a
// whole could not finish (model service unavailable, store failure or
// cancellation); the summary then lists the unfinished mentions as errored.
func (p *Pipeline) ResolveDocument(ctx context.Context, doc *types.SourceDocument, progress ProgressFunc) (*types.Summary, error) {
	sum := &types.Summary{DocumentID: doc.ID, Created: []types.ProjectRef{}, Linked: []types.ProjectRef{}}
	log := p.log.With("document", doc.ID)

	if err := ctx.Err(); err != nil {
		sum.Err = err.Error()
		return sum, err
	}
	if err := p.store.UpsertDocument(ctx, &types.Document{
		ID:          doc.ID,
		Path:        doc.Path,
		Name:        doc.Name,
		Type:        doc.Type,
		ContentHash: ContentHash(doc.Text),
		Status:      types.DocProcessing,
		Text:        doc.Text,
	}); err != nil {
		return p.fail(ctx, sum, fmt.Errorf("%w: registering document %s: %w", storage.ErrUnavailable, doc.ID, err))
	}

	scan, err := p.scanner.Scan(ctx, doc.Text)
	if scan != nil {
		for _, f := range scan.Failures {
			p.event(ctx, &types.ProcessingEvent{DocumentID: doc.ID, Stage: types.StageScan, Notes: f.Error()})
		}
	}
	if err != nil {
		return p.fail(ctx, sum, err)
	}
	p.event(ctx, &types.ProcessingEvent{
		DocumentID: doc.ID,
		Stage:      types.StageScan,
		Notes:      fmt.Sprintf("%d chunks, %d failed, %d names", scan.Chunks, len(scan.Failures), len(scan.Names)),
	})
	if scan.AllFailed() {
		log.Warn("every chunk failed extraction")
		sum.ExtractionFailed = true
		p.setStatus(ctx, doc.ID, types.DocExtractionFailed)
		return sum, nil
	}

	mentions := extractor.Mentions(doc, scan.Names)
	sum.Mentions = len(mentions)
	if len(mentions) == 0 {
		p.setStatus(ctx, doc.ID, types.DocNoMentions)
		return sum, nil
	}

	for i, m := range mentions {
		if err := ctx.Err(); err != nil {
			p.abandon(sum, mentions[i:], ReasonCancelled)
			return p.fail(ctx, sum, err)
		}
		p.event(ctx, &types.ProcessingEvent{DocumentID: doc.ID, Stage: types.StageMentionSpotted, Mention: m.Raw, Notes: m.Location})

		result := p.resolveMention(ctx, doc, m, sum)
		result.Index, result.Total = i+1, len(mentions)
		if progress != nil {
			progress(result.MentionResult)
		}

		if result.Outcome == types.OutcomeErrored && documentFatal(result.err) {
			p.abandon(sum, mentions[i+1:], ReasonServiceUnavailable)
			return p.fail(ctx, sum, result.err)
		}
	}

	p.setStatus(ctx, doc.ID, types.DocProcessed)
	log.Info("document resolved",
		"mentions", sum.Mentions,
		"created", len(sum.Created),
		"linked", len(sum.Linked),
		"rejected", sum.RejectedCount,
		"errors", len(sum.Errors))
	return sum, nil
}

type mentionResult struct {
	types.MentionResult
	err error
}

func (p *Pipeline) resolveMention(ctx context.Context, doc *types.SourceDocument, m types.Mention, sum *types.Summary) mentionResult {
	res := mentionResult{MentionResult: types.MentionResult{DocumentID: doc.ID, Mention: m}}
	errored := func(reason string, err error) mentionResult {
		res.Outcome, res.Reasoning, res.err = types.OutcomeErrored, reason, err
		sum.Errors = append(sum.Errors, types.MentionError{Mention: m.Raw, Outcome: types.OutcomeErrored, Reasoning: reason})
		p.event(ctx, &types.ProcessingEvent{DocumentID: doc.ID, Stage: types.StageError, Mention: m.Raw, Reasoning: reason, Notes: err.Error()})
		p.log.Error("mention failed", "document", doc.ID, "mention", m.Raw, "error", err)
		return res
	}

	adj, err := p.agent.Resolve(ctx, doc, m)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrServiceUnavailable):
			return errored(ReasonServiceUnavailable, err)
		case ctx.Err() != nil:
			return errored(ReasonCancelled, err)
		case adj != nil && adj.Final() == resolve.StateScanned:
			// The shortlist could not be read from the registry.
			return errored(ReasonServiceUnavailable, fmt.Errorf("%w: %w", storage.ErrUnavailable, err))
		default:
			return errored(ReasonResolutionFailed, err)
		}
	}

	ev := adj.Decision.Details()
	adjEvent := &types.ProcessingEvent{
		DocumentID: doc.ID,
		Stage:      types.StageAdjudication,
		Mention:    m.Raw,
		Action:     string(adj.Decision.Action()),
		Confidence: ev.Confidence,
		Reasoning:  ev.Reasoning,
	}
	if link, ok := adj.Decision.(types.Link); ok {
		adjEvent.ProjectID = link.ProjectID
	}
	if adj.Forced() {
		adjEvent.Raw = adj.Raw
		adjEvent.Notes = adj.Err.Error()
	}
	p.event(ctx, adjEvent)

	applied, err := p.agg.Apply(ctx, adj.Decision, m, p.model)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return errored(ReasonCancelled, err)
		case errors.Is(err, storage.ErrNotFound):
			return errored(ReasonAggregationFailed, err)
		default:
			return errored(ReasonServiceUnavailable, fmt.Errorf("%w: %w", storage.ErrUnavailable, err))
		}
	}

	res.Outcome, res.ProjectID, res.Reasoning = applied.Outcome, applied.ProjectID, ev.Reasoning
	ref := types.ProjectRef{ID: applied.ProjectID, Name: applied.ProjectName, Mention: m.Raw}
	switch applied.Outcome {
	case types.OutcomeCreated:
		sum.Created = append(sum.Created, ref)
	case types.OutcomeLinked:
		sum.Linked = append(sum.Linked, ref)
	default:
		sum.RejectedCount++
		if adj.Forced() {
			sum.Errors = append(sum.Errors, types.MentionError{Mention: m.Raw, Outcome: types.OutcomeRejected, Reasoning: ev.Reasoning})
		}
	}
	return res
}

// documentFatal reports whether err stops the rest of the document: the
// model service or the registry could not be reached.
func documentFatal(err error) bool {
	return errors.Is(err, llm.ErrServiceUnavailable) || errors.Is(err, storage.ErrUnavailable)
}

// abandon marks mentions that will not be attempted.
func (p *Pipeline) abandon(sum *types.Summary, rest []types.Mention, reason string) {
	for _, m := range rest {
		sum.Errors = append(sum.Errors, types.MentionError{Mention: m.Raw, Outcome: types.OutcomeErrored, Reasoning: reason})
	}
}

func (p *Pipeline) fail(ctx context.Context, sum *types.Summary, err error) (*types.Summary, error) {
	sum.Err = err.Error()
	p.event(ctx, &types.ProcessingEvent{DocumentID: sum.DocumentID, Stage: types.StageError, Notes: err.Error()})
	p.setStatus(ctx, sum.DocumentID, types.DocFailed)
	p.log.Error("document failed", "document", sum.DocumentID, "error", err)
	return sum, err
}

// event records a processing event. Failures are logged and ignored.
func (p *Pipeline) event(ctx context.Context, e *types.ProcessingEvent) {
	if err := p.store.AddEvent(context.WithoutCancel(ctx), e); err != nil {
		p.log.Warn("failed to record processing event", "document", e.DocumentID, "stage", e.Stage, "error", err)
	}
}

func (p *Pipeline) setStatus(ctx context.Context, id, status string) {
	if err := p.store.SetDocumentStatus(context.WithoutCancel(ctx), id, status); err != nil {
		p.log.Warn("failed to update document status", "document", id, "status", status, "error", err)
	}
}
