package types

// Action is the categorical outcome the model chose for a mention.
type Action string

const (
	ActionLink   Action = "link"
	ActionCreate Action = "create"
	ActionReject Action = "reject"
)

// Evidence is carried by every decision regardless of its action.
type Evidence struct {
	ConfirmedName string
	PertinentText string
	Tags          []string
	Confidence    float64
	Reasoning     string
}

// Decision is the validated outcome of adjudicating one mention. It is a
// closed union: the only implementations are Link, Create and Reject.
type Decision interface {
	Action() Action
	Details() Evidence
	decision()
}

// Link attaches a mention to an existing project from the shortlist.
type Link struct {
	ProjectID int64
	Evidence
}

// Create allocates a new project named Evidence.ConfirmedName.
type Create struct {
	Evidence
}

// Reject discards the mention.
type Reject struct {
	Evidence
}

func (Link) Action() Action   { return ActionLink }
func (Create) Action() Action { return ActionCreate }
func (Reject) Action() Action { return ActionReject }

func (d Link) Details() Evidence   { return d.Evidence }
func (d Create) Details() Evidence { return d.Evidence }
func (d Reject) Details() Evidence { return d.Evidence }

func (Link) decision()   {}
func (Create) decision() {}
func (Reject) decision() {}

// Outcome is the terminal state of one mention.
type Outcome string

const (
	OutcomeLinked   Outcome = "linked"
	OutcomeCreated  Outcome = "created"
	OutcomeRejected Outcome = "rejected"
	OutcomeErrored  Outcome = "errored"
)

// ProjectRef names a project touched while resolving a document.
type ProjectRef struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Mention string `json:"mention"`
}

// MentionError describes a mention that did not end in a clean outcome.
type MentionError struct {
	Mention   string  `json:"mention"`
	Outcome   Outcome `json:"outcome"`
	Reasoning string  `json:"reasoning"`
}

// MentionResult is reported to progress callbacks once per completed mention.
type MentionResult struct {
	DocumentID string
	Mention    Mention
	Outcome    Outcome
	ProjectID  int64
	Reasoning  string
	Index      int
	Total      int
}

// Summary is the complete result of resolving one document.
type Summary struct {
	DocumentID       string         `json:"document_id"`
	Created          []ProjectRef   `json:"created"`
	Linked           []ProjectRef   `json:"linked"`
	RejectedCount    int            `json:"rejected_count"`
	Errors           []MentionError `json:"errors,omitempty"`
	ExtractionFailed bool           `json:"extraction_failed,omitempty"`
	Mentions         int            `json:"mentions"`
	Err              string         `json:"error,omitempty"`
}
