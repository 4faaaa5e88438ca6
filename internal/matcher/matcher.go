// Package matcher ranks registry projects by lexical similarity to a
// mention. It is pure computation over the registry snapshot it is given:
// no network calls and deterministic ordering.
package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/untoldecay/projectlog/internal/types"
	"github.com/untoldecay/projectlog/internal/utils"
)

// Defaults for the shortlist.
const (
	DefaultK        = 5
	DefaultMinScore = 0.3
)

// Signal weights for non-exact matches. An exact normalized match always
// scores 1.0; everything else is capped just below it.
const (
	tokenWeight  = 0.55
	editWeight   = 0.35
	fuzzyWeight  = 0.10
	maxNonExact  = 0.99
	minPrefixLen = 3
)

// Candidate is one shortlist entry.
type Candidate struct {
	ProjectID     int64     `json:"project_id"`
	CanonicalName string    `json:"canonical_name"`
	MatchedName   string    `json:"matched_name"` // canonical name or the alias that scored best
	Score         float64   `json:"score"`
	UpdatedAt     time.Time `json:"-"`
}

// Registry is the read access the matcher needs.
type Registry interface {
	ProjectNames(ctx context.Context) ([]*types.Project, error)
}

// Matcher produces shortlists of at most K candidates scoring at least MinScore.
type Matcher struct {
	K        int
	MinScore float64
}

// New returns a matcher; non-positive k falls back to DefaultK.
func New(k int, minScore float64) *Matcher {
	if k <= 0 {
		k = DefaultK
	}
	if minScore < 0 {
		minScore = 0
	}
	return &Matcher{K: k, MinScore: minScore}
}

// Match reads the live registry and ranks it against mention.
func (m *Matcher) Match(ctx context.Context, mention string, reg Registry) ([]Candidate, error) {
	projects, err := reg.ProjectNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry names: %w", err)
	}
	return Rank(mention, projects, m.K, m.MinScore), nil
}

// Rank scores every project against mention and returns the top k. Ties are
// broken by most recently updated, then by lowest ID.
func Rank(mention string, projects []*types.Project, k int, minScore float64) []Candidate {
	nm := Normalize(mention)
	if nm == "" || k <= 0 {
		return nil
	}

	var out []Candidate
	for _, p := range projects {
		best, bestName := scoreNormalized(nm, Normalize(p.CanonicalName)), p.CanonicalName
		for _, alias := range p.Aliases {
			if s := scoreNormalized(nm, Normalize(alias)); s > best {
				best, bestName = s, alias
			}
		}
		if best < minScore || best == 0 {
			continue
		}
		out = append(out, Candidate{
			ProjectID:     p.ID,
			CanonicalName: p.CanonicalName,
			MatchedName:   bestName,
			Score:         best,
			UpdatedAt:     p.UpdatedAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ProjectID < b.ProjectID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Score returns the similarity of two names in [0,1].
func Score(a, b string) float64 {
	return scoreNormalized(Normalize(a), Normalize(b))
}

func scoreNormalized(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	edit := max(utils.Similarity(a, b), utils.Similarity(sortedTokens(a), sortedTokens(b)))
	s := tokenWeight*tokenOverlap(tokens(a), tokens(b)) +
		editWeight*edit +
		fuzzyWeight*abbreviation(a, b)
	return min(s, maxNonExact)
}

// tokenOverlap is a Dice coefficient where a token also matches another it
// is a prefix of ("proj" ~ "project"), provided it has at least three runes.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	used := make([]bool, len(b))
	matches := 0
	for _, ta := range a {
		for j, tb := range b {
			if used[j] || !tokensMatch(ta, tb) {
				continue
			}
			used[j] = true
			matches++
			break
		}
	}
	return 2 * float64(matches) / float64(len(a)+len(b))
}

func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	short, long := a, b
	if len([]rune(short)) > len([]rune(long)) {
		short, long = long, short
	}
	return len([]rune(short)) >= minPrefixLen && strings.HasPrefix(long, short)
}

// abbreviation is 1 when the letters of one name appear in order in the
// other ("gccs" in "greenfield ccs study"), else 0.
func abbreviation(a, b string) float64 {
	ca := strings.ReplaceAll(a, " ", "")
	cb := strings.ReplaceAll(b, " ", "")
	if len(ca) < minPrefixLen || len(cb) < minPrefixLen {
		return 0
	}
	if fuzzy.MatchNormalizedFold(ca, cb) || fuzzy.MatchNormalizedFold(cb, ca) {
		return 1
	}
	return 0
}
