package resolve

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/untoldecay/projectlog/internal/matcher"
	"github.com/untoldecay/projectlog/internal/types"
)

var (
	// ErrValidation marks model output that does not fit the decision shape.
	ErrValidation = errors.New("invalid model output")

	// ErrHallucinatedReference marks a link to a project outside the shortlist.
	ErrHallucinatedReference = errors.New("project id not in shortlist")
)

// Reasoning strings recorded on forced rejections.
const (
	ReasonInvalidOutput    = "invalid_model_output"
	ReasonIDNotInShortlist = "id_not_in_shortlist"
)

// DefaultMaxTags caps suggested tags per decision.
const DefaultMaxTags = 10

// rawDecision is the wire shape requested from the model.
type rawDecision struct {
	Action        string          `json:"action"`
	ProjectID     json.RawMessage `json:"project_id"`
	ConfirmedName string          `json:"confirmed_name"`
	PertinentText string          `json:"pertinent_text"`
	SuggestedTags []string        `json:"suggested_tags"`
	Tags          []string        `json:"tags"`
	Confidence    *float64        `json:"confidence"`
	Reasoning     string          `json:"reasoning"`
}

var actionAliases = map[string]types.Action{
	"link":                types.ActionLink,
	"link_to_existing":    types.ActionLink,
	"create":              types.ActionCreate,
	"create_new":          types.ActionCreate,
	"reject":              types.ActionReject,
	"uncertain_relevance": types.ActionReject,
	"not_relevant":        types.ActionReject,
	"not_a_project":       types.ActionReject,
}

// ParseDecision validates raw model output against the decision shape and
// the shortlist it was given. Errors match ErrValidation or
// ErrHallucinatedReference; on error no Decision is returned.
func ParseDecision(raw string, shortlist []matcher.Candidate, maxTags int) (types.Decision, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	var rd rawDecision
	if err := dec.Decode(&rd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrValidation)
	}

	action, ok := actionAliases[strings.ToLower(strings.TrimSpace(rd.Action))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, rd.Action)
	}

	ev := types.Evidence{
		ConfirmedName: types.NormalizeName(rd.ConfirmedName),
		PertinentText: strings.TrimSpace(rd.PertinentText),
		Reasoning:     strings.TrimSpace(rd.Reasoning),
	}
	if rd.Confidence != nil {
		c := *rd.Confidence
		if c < 0 || c > 1 {
			return nil, fmt.Errorf("%w: confidence %v outside [0,1]", ErrValidation, c)
		}
		ev.Confidence = c
	}
	tags := rd.SuggestedTags
	if len(tags) == 0 {
		tags = rd.Tags
	}
	ev.Tags = cleanTags(tags, maxTags)

	switch action {
	case types.ActionLink:
		id, err := parseID(rd.ProjectID)
		if err != nil {
			return nil, err
		}
		if !inShortlist(id, shortlist) {
			return nil, fmt.Errorf("%w: %d", ErrHallucinatedReference, id)
		}
		return types.Link{ProjectID: id, Evidence: ev}, nil
	case types.ActionCreate:
		if ev.ConfirmedName == "" {
			return nil, fmt.Errorf("%w: create requires confirmed_name", ErrValidation)
		}
		return types.Create{Evidence: ev}, nil
	default:
		return types.Reject{Evidence: ev}, nil
	}
}

// parseID accepts a JSON number or a numeric string.
func parseID(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%w: link requires project_id", ErrValidation)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("%w: project_id must be an integer", ErrValidation)
		}
		n = json.Number(strings.TrimSpace(s))
	}
	id, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: project_id %q is not a positive integer", ErrValidation, n.String())
	}
	return id, nil
}

func inShortlist(id int64, shortlist []matcher.Candidate) bool {
	for _, c := range shortlist {
		if c.ProjectID == id {
			return true
		}
	}
	return false
}

// cleanTags trims, drops blanks, de-duplicates case-insensitively and caps
// the list at max entries.
func cleanTags(tags []string, max int) []string {
	if max <= 0 {
		max = DefaultMaxTags
	}
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = types.NormalizeName(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == max {
			break
		}
	}
	return out
}
