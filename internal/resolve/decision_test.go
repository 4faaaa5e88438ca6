package resolve

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/untoldecay/projectlog/internal/matcher"
	"github.com/untoldecay/projectlog/internal/types"
)

var testShortlist = []matcher.Candidate{
	{ProjectID: 7, CanonicalName: "Project Alpha", MatchedName: "Project Alpha", Score: 0.8},
	{ProjectID: 9, CanonicalName: "Alpha North", MatchedName: "Alpha North", Score: 0.5},
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want types.Decision
	}{
		{
			name: "link with number id",
			raw:  `{"action":"link","project_id":7,"confirmed_name":"Alpha Proj","pertinent_text":"drilled","suggested_tags":["Drilling"],"confidence":0.9,"reasoning":"same"}`,
			want: types.Link{ProjectID: 7, Evidence: types.Evidence{
				ConfirmedName: "Alpha Proj", PertinentText: "drilled", Tags: []string{"Drilling"}, Confidence: 0.9, Reasoning: "same",
			}},
		},
		{
			name: "link alias with string id",
			raw:  `{"action":"link_to_existing","project_id":"9"}`,
			want: types.Link{ProjectID: 9},
		},
		{
			name: "create",
			raw:  `{"action":"create_new","confirmed_name":"  Greenfield  CCS Study ","tags":["ccs","CCS"," storage "]}`,
			want: types.Create{Evidence: types.Evidence{
				ConfirmedName: "Greenfield CCS Study", Tags: []string{"ccs", "storage"},
			}},
		},
		{
			name: "reject alias",
			raw:  `{"action":"not_a_project","reasoning":"client name","confidence":0.2}`,
			want: types.Reject{Evidence: types.Evidence{Reasoning: "client name", Confidence: 0.2}},
		},
		{
			name: "action is case-insensitive",
			raw:  `{"action":" REJECT "}`,
			want: types.Reject{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecision(tt.raw, testShortlist, DefaultMaxTags)
			if err != nil {
				t.Fatalf("ParseDecision: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDecision_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", "Sure! It's project alpha.", ErrValidation},
		{"empty", "", ErrValidation},
		{"trailing data", `{"action":"reject"} {"action":"link"}`, ErrValidation},
		{"unknown action", `{"action":"merge"}`, ErrValidation},
		{"missing action", `{"project_id":7}`, ErrValidation},
		{"link without id", `{"action":"link"}`, ErrValidation},
		{"link with bad id", `{"action":"link","project_id":"seven"}`, ErrValidation},
		{"link with fractional id", `{"action":"link","project_id":7.5}`, ErrValidation},
		{"create without name", `{"action":"create","confirmed_name":"  "}`, ErrValidation},
		{"confidence above one", `{"action":"reject","confidence":1.5}`, ErrValidation},
		{"confidence negative", `{"action":"reject","confidence":-0.1}`, ErrValidation},
		{"wrong field type", `{"action":"reject","suggested_tags":"a,b"}`, ErrValidation},
		{"hallucinated id", `{"action":"link","project_id":999}`, ErrHallucinatedReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDecision(tt.raw, testShortlist, DefaultMaxTags)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if d != nil {
				t.Errorf("expected no decision on error, got %#v", d)
			}
		})
	}
}

func TestParseDecision_CapsTags(t *testing.T) {
	raw := `{"action":"reject","suggested_tags":["a","b","c","d","e"]}`
	d, err := ParseDecision(raw, nil, 3)
	if err != nil {
		t.Fatalf("ParseDecision: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, d.Details().Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}
