package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/untoldecay/projectlog/internal/extractor"
	"github.com/untoldecay/projectlog/internal/storage"
	"github.com/untoldecay/projectlog/internal/types"
)

// ExtractComprehensive pulls categorized verbatim facts from text and stores
// them as the document's side-record. It never touches the project registry.
func (p *Pipeline) ExtractComprehensive(ctx context.Context, documentID, text string) (*extractor.Record, error) {
	rec, err := p.comp.Extract(ctx, documentID, text)
	if err != nil {
		p.event(ctx, &types.ProcessingEvent{DocumentID: documentID, Stage: types.StageComprehensive, Notes: err.Error()})
		return nil, err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode comprehensive record: %w", err)
	}
	if _, err := p.store.GetDocument(ctx, documentID); errors.Is(err, storage.ErrNotFound) {
		err = p.store.UpsertDocument(ctx, &types.Document{
			ID:          documentID,
			Name:        documentID,
			Status:      types.DocPending,
			ContentHash: ContentHash(text),
			Text:        text,
		})
		if err != nil {
			return nil, fmt.Errorf("registering document %s: %w", documentID, err)
		}
	} else if err != nil {
		return nil, err
	}
	if err := p.store.SetComprehensive(context.WithoutCancel(ctx), documentID, string(data)); err != nil {
		return nil, fmt.Errorf("storing comprehensive record: %w", err)
	}

	p.event(ctx, &types.ProcessingEvent{
		DocumentID: documentID,
		Stage:      types.StageComprehensive,
		Notes:      fmt.Sprintf("%d facts, %d chunks, %d failed, %d dropped", rec.Total(), rec.Chunks, rec.FailedChunks, rec.Dropped),
	})
	return rec, nil
}

// LoadComprehensive decodes a stored side-record. It returns nil when the
// document has none.
func LoadComprehensive(doc *types.Document) (*extractor.Record, error) {
	if doc.Comprehensive == "" {
		return nil, nil
	}
	var rec extractor.Record
	if err := json.Unmarshal([]byte(doc.Comprehensive), &rec); err != nil {
		return nil, fmt.Errorf("decoding comprehensive record for %s: %w", doc.ID, err)
	}
	return &rec, nil
}
