package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown renders md for the terminal. Without color support, or if
// rendering fails, md is returned unchanged.
func RenderMarkdown(md string, width int) string {
	if !ShouldUseColor() {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// NarrativeMarkdown turns a project narrative into markdown: each
// provenance header becomes a heading over its evidence block.
func NarrativeMarkdown(narrative string) string {
	var b strings.Builder
	for _, block := range SplitNarrative(narrative) {
		if block.Source != "" || block.Timestamp != "" {
			b.WriteString("#### ")
			b.WriteString(block.Source)
			if block.Timestamp != "" {
				b.WriteString(" · ")
				b.WriteString(block.Timestamp)
			}
			b.WriteString("\n\n")
		}
		b.WriteString(block.Text)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// NarrativeBlock is one appended piece of evidence.
type NarrativeBlock struct {
	Timestamp string
	Source    string
	Text      string
}

// SplitNarrative parses the provenance headers written by the aggregator.
// Text outside any header is returned as a block without provenance.
func SplitNarrative(narrative string) []NarrativeBlock {
	var blocks []NarrativeBlock
	rest := strings.TrimSpace(narrative)
	for rest != "" {
		if !strings.HasPrefix(rest, "---\n") {
			next := strings.Index(rest, "\n\n---\n")
			if next < 0 {
				blocks = append(blocks, NarrativeBlock{Text: rest})
				break
			}
			blocks = append(blocks, NarrativeBlock{Text: strings.TrimSpace(rest[:next])})
			rest = strings.TrimSpace(rest[next:])
			continue
		}

		header, body, ok := strings.Cut(strings.TrimPrefix(rest, "---\n"), "\n---\n")
		if !ok {
			blocks = append(blocks, NarrativeBlock{Text: rest})
			break
		}
		var block NarrativeBlock
		for _, line := range strings.Split(header, "\n") {
			key, value, _ := strings.Cut(line, ":")
			switch strings.TrimSpace(key) {
			case "Timestamp":
				block.Timestamp = strings.TrimSpace(value)
			case "Source Document":
				block.Source = strings.TrimSpace(value)
			}
		}
		if next := strings.Index(body, "\n\n---\n"); next >= 0 {
			block.Text = strings.TrimSpace(body[:next])
			rest = strings.TrimSpace(body[next:])
		} else {
			block.Text = strings.TrimSpace(body)
			rest = ""
		}
		blocks = append(blocks, block)
	}
	return blocks
}
