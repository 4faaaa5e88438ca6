// Package types defines the core data structures of the project registry.
package types

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Project is the unit of identity in the registry.
type Project struct {
	ID            int64     `json:"id"`
	CanonicalName string    `json:"canonical_name"`
	Aliases       []string  `json:"aliases,omitempty"`
	Narrative     string    `json:"narrative,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Category      string    `json:"category,omitempty"`
	SubCategory   string    `json:"sub_category,omitempty"`
	Scope         string    `json:"scope,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasName reports whether name matches the canonical name or one of the
// aliases under NameKey.
func (p *Project) HasName(name string) bool {
	key := NameKey(name)
	if NameKey(p.CanonicalName) == key {
		return true
	}
	for _, a := range p.Aliases {
		if NameKey(a) == key {
			return true
		}
	}
	return false
}

// Mention is a candidate project-name occurrence found in one document.
// Mentions are never persisted directly.
type Mention struct {
	Raw        string `json:"raw"`
	DocumentID string `json:"document_id"`
	Location   string `json:"location,omitempty"` // opaque page/slide reference
	Offset     int    `json:"offset"`             // rune offset of the first occurrence, -1 if unknown
}

// LogEntry is the append-only audit record written once per resolved mention.
// ProjectID is zero for rejected mentions.
type LogEntry struct {
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"project_id,omitempty"`
	DocumentID    string    `json:"document_id"`
	Mention       string    `json:"mention"`
	Location      string    `json:"location,omitempty"`
	Action        Action    `json:"action"`
	ConfirmedName string    `json:"confirmed_name,omitempty"`
	PertinentText string    `json:"pertinent_text,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Model         string    `json:"model"`
	Confidence    float64   `json:"confidence"`
	Reasoning     string    `json:"reasoning,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Document status values.
const (
	DocPending          = "pending"
	DocProcessing       = "processing"
	DocProcessed        = "processed"
	DocNoMentions       = "no_mentions"
	DocExtractionFailed = "extraction_failed"
	DocFailed           = "failed"
)

// Location is an opaque source reference (page, slide) starting at a rune offset.
type Location struct {
	Ref    string `json:"ref"`
	Offset int    `json:"offset"`
}

// SourceDocument is what the parsing collaborator hands to the pipeline.
type SourceDocument struct {
	ID        string
	Path      string
	Name      string
	Type      string
	Text      string
	Locations []Location
	ModTime   time.Time
}

// LocationAt returns the reference of the last location starting at or before offset.
func (d *SourceDocument) LocationAt(offset int) string {
	if offset < 0 {
		return ""
	}
	ref := ""
	for _, l := range d.Locations {
		if l.Offset > offset {
			break
		}
		ref = l.Ref
	}
	return ref
}

// Document is the persisted record of a processed source document.
type Document struct {
	ID            string     `json:"id"`
	Path          string     `json:"path"`
	Name          string     `json:"name"`
	Type          string     `json:"type,omitempty"`
	ContentHash   string     `json:"content_hash,omitempty"`
	Status        string     `json:"status"`
	Text          string     `json:"-"`
	Comprehensive string     `json:"comprehensive,omitempty"` // JSON side-record
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ProcessingEvent is one row of the per-document processing audit trail.
type ProcessingEvent struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	Stage      string    `json:"stage"`
	Mention    string    `json:"mention,omitempty"`
	Action     string    `json:"action,omitempty"`
	ProjectID  int64     `json:"project_id,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	Raw        string    `json:"raw,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Processing stages recorded in the audit trail.
const (
	StageScan           = "scan"
	StageMentionSpotted = "mention_spotted"
	StageAdjudication   = "adjudication"
	StageComprehensive  = "comprehensive"
	StageError          = "error"
)

// NormalizeName trims a name and collapses internal whitespace.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NameKey is the identity of a name: normalized and Unicode case folded.
// Two names with the same key are the same project or alias in every store.
func NameKey(s string) string {
	return cases.Fold().String(NormalizeName(s))
}

// ProjectFilter narrows ListProjects results.
type ProjectFilter struct {
	Category      string
	Uncategorized bool // only projects without a category
	Limit         int
}

// DocumentFilter narrows ListDocuments results.
type DocumentFilter struct {
	Status string
	Limit  int
}
