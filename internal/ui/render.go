package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/projectlog/internal/types"
)

const timeLayout = "2006-01-02 15:04"

// RenderProjectList writes one table row per project.
func RenderProjectList(w io.Writer, projects []*types.Project, width int) {
	if len(projects) == 0 {
		_, _ = fmt.Fprintln(w, MutedStyle.Render("No projects found."))
		return
	}
	t := NewTable(width, "ID", "NAME", "ALIASES", "CATEGORY", "TAGS", "UPDATED")
	for _, p := range projects {
		t.Row(
			strconv.FormatInt(p.ID, 10),
			p.CanonicalName,
			truncate(strings.Join(p.Aliases, ", "), 40),
			categoryLabel(p),
			truncate(strings.Join(p.Tags, ", "), 40),
			p.UpdatedAt.Local().Format(timeLayout),
		)
	}
	_, _ = fmt.Fprintln(w, t.Render())
	_, _ = fmt.Fprintln(w, MutedStyle.Render(fmt.Sprintf("%d project(s)", len(projects))))
}

// RenderProject writes the full record of one project: names, tags,
// category, the narrative as markdown and the decisions that shaped it.
func RenderProject(w io.Writer, p *types.Project, entries []*types.LogEntry, width int) {
	_, _ = fmt.Fprintf(w, "%s %s\n", TitleStyle.Render(p.CanonicalName), MutedStyle.Render("#"+strconv.FormatInt(p.ID, 10)))
	field(w, "Aliases", strings.Join(p.Aliases, ", "))
	field(w, "Tags", strings.Join(p.Tags, ", "))
	field(w, "Category", categoryLabel(p))
	field(w, "Created", p.CreatedAt.Local().Format(timeLayout))
	field(w, "Updated", p.UpdatedAt.Local().Format(timeLayout))

	_, _ = fmt.Fprintln(w)
	if strings.TrimSpace(p.Narrative) == "" {
		_, _ = fmt.Fprintln(w, MutedStyle.Render("No narrative yet."))
	} else {
		_, _ = fmt.Fprintln(w, RenderMarkdown(NarrativeMarkdown(p.Narrative), width))
	}

	if len(entries) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, LabelStyle.Render("History"))
	t := NewTable(width, "WHEN", "ACTION", "MENTION", "DOCUMENT", "CONF", "MODEL")
	for _, e := range entries {
		t.Row(
			e.CreatedAt.Local().Format(timeLayout),
			string(e.Action),
			e.Mention,
			e.DocumentID,
			fmt.Sprintf("%.2f", e.Confidence),
			e.Model,
		)
	}
	_, _ = fmt.Fprintln(w, t.Render())
}

// RenderSummary writes the outcome of resolving one document.
func RenderSummary(w io.Writer, label string, s *types.Summary) {
	status := PassStyle.Render("ok")
	switch {
	case s.Err != "":
		status = FailStyle.Render("failed")
	case s.ExtractionFailed:
		status = FailStyle.Render("extraction failed")
	case len(s.Errors) > 0:
		status = WarnStyle.Render("with errors")
	}
	_, _ = fmt.Fprintf(w, "%s %s  %s\n", LabelStyle.Render(label), MutedStyle.Render(s.DocumentID), status)
	_, _ = fmt.Fprintf(w, "  mentions %d · created %d · linked %d · rejected %d\n",
		s.Mentions, len(s.Created), len(s.Linked), s.RejectedCount)
	for _, ref := range s.Created {
		_, _ = fmt.Fprintf(w, "  %s %s (#%d) from %q\n", PassStyle.Render("+"), ref.Name, ref.ID, ref.Mention)
	}
	for _, ref := range s.Linked {
		_, _ = fmt.Fprintf(w, "  %s %s (#%d) from %q\n", MutedStyle.Render("="), ref.Name, ref.ID, ref.Mention)
	}
	for _, e := range s.Errors {
		style := WarnStyle
		if e.Outcome == types.OutcomeErrored {
			style = FailStyle
		}
		_, _ = fmt.Fprintf(w, "  %s %q %s: %s\n", style.Render("!"), e.Mention, e.Outcome, e.Reasoning)
	}
	if s.Err != "" {
		_, _ = fmt.Fprintf(w, "  %s\n", FailStyle.Render(s.Err))
	}
}

// RenderDocuments writes one table row per registered document.
func RenderDocuments(w io.Writer, docs []*types.Document, width int) {
	if len(docs) == 0 {
		_, _ = fmt.Fprintln(w, MutedStyle.Render("No documents found."))
		return
	}
	t := NewTable(width, "ID", "NAME", "STATUS", "PROCESSED", "PATH")
	for _, d := range docs {
		processed := "-"
		if d.ProcessedAt != nil {
			processed = d.ProcessedAt.Local().Format(timeLayout)
		}
		t.Row(d.ID, d.Name, d.Status, processed, d.Path)
	}
	_, _ = fmt.Fprintln(w, t.Render())
}

// RenderEvents writes a document's processing trail, oldest first.
func RenderEvents(w io.Writer, events []*types.ProcessingEvent, width int) {
	if len(events) == 0 {
		_, _ = fmt.Fprintln(w, MutedStyle.Render("No events recorded."))
		return
	}
	t := NewTable(width, "WHEN", "STAGE", "MENTION", "ACTION", "PROJECT", "DETAIL")
	for _, e := range events {
		project := ""
		if e.ProjectID > 0 {
			project = "#" + strconv.FormatInt(e.ProjectID, 10)
		}
		detail := e.Reasoning
		if e.Notes != "" {
			if detail != "" {
				detail += "; "
			}
			detail += e.Notes
		}
		t.Row(
			e.CreatedAt.Local().Format(time.TimeOnly),
			e.Stage,
			e.Mention,
			e.Action,
			project,
			truncate(detail, 60),
		)
	}
	_, _ = fmt.Fprintln(w, t.Render())
}

func field(w io.Writer, label, value string) {
	if value == "" {
		value = MutedStyle.Render("-")
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", LabelStyle.Render(fmt.Sprintf("%-9s", label+":")), value)
}

func categoryLabel(p *types.Project) string {
	if p.Category == "" {
		return ""
	}
	parts := []string{p.Category}
	if p.SubCategory != "" {
		parts = append(parts, p.SubCategory)
	}
	label := strings.Join(parts, " / ")
	if p.Scope != "" {
		label += " (" + p.Scope + ")"
	}
	return label
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
