package resolve

import (
	"fmt"
	"strings"

	"github.com/untoldecay/projectlog/internal/matcher"
)

func adjudicationPrompt(mention, snippet string, shortlist []matcher.Candidate, maxTags int) string {
	var b strings.Builder
	b.WriteString("You maintain a registry of engineering projects. Decide whether the mention below ")
	b.WriteString("refers to a project already in the registry, a new project, or nothing worth recording.\n\n")

	fmt.Fprintf(&b, "MENTION: %q\n\n", mention)

	b.WriteString("CANDIDATE PROJECTS (id | canonical name | matched name | similarity):\n")
	if len(shortlist) == 0 {
		b.WriteString("(none)\n")
	}
	for _, c := range shortlist {
		fmt.Fprintf(&b, "- %d | %s | %s | %.2f\n", c.ProjectID, c.CanonicalName, c.MatchedName, c.Score)
	}

	b.WriteString("\nDOCUMENT EXCERPT:\n<<<\n")
	b.WriteString(snippet)
	b.WriteString("\n>>>\n\n")

	fmt.Fprintf(&b, `Rules:
- "action" must be exactly one of "link", "create" or "reject".
- "link" only to a project_id listed above. Never invent an id.
- "create" when the mention is a real project that is not listed. Give its proper name in "confirmed_name".
- "reject" when the mention is a company, client, person, product or otherwise not a project.
- "pertinent_text" must be copied verbatim from the excerpt. Do not paraphrase or summarise.
- "suggested_tags": at most %d short topic tags.
- "confidence": a number between 0 and 1.

Respond with JSON only:
{"action": "link", "project_id": 0, "confirmed_name": "", "pertinent_text": "", "suggested_tags": [], "confidence": 0.0, "reasoning": ""}
`, maxTags)
	return b.String()
}
