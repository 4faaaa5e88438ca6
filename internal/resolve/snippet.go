package resolve

import "strings"

const elision = "\n[...]\n"

// BuildSnippet returns the document text the model sees for one mention.
// A document within contextBudget runes is returned whole. Otherwise
// budget runes are spent: 75% on a window centred on the mention and 25%
// split between the head and tail of the document for global context.
// offset is the mention's rune offset, or -1 when unknown.
func BuildSnippet(text string, offset, mentionLen, contextBudget, budget int) string {
	runes := []rune(text)
	n := len(runes)
	if n <= contextBudget || n <= budget {
		return text
	}

	local := budget * 3 / 4
	global := budget - local
	headLen := global / 2
	tailLen := global - headLen

	if offset < 0 || offset >= n {
		offset = 0
	}
	center := offset + mentionLen/2
	start := max(center-local/2, 0)
	end := min(start+local, n)
	start = max(end-local, 0)

	// Head and tail never overlap the local window. Head budget the window
	// already covers goes to the tail.
	headEnd := min(headLen, start)
	tailLen += headLen - headEnd
	tailStart := max(n-tailLen, end)

	var b strings.Builder
	if headEnd > 0 {
		b.WriteString(string(runes[:headEnd]))
		if headEnd < start {
			b.WriteString(elision)
		}
	}
	b.WriteString(string(runes[start:end]))
	if tailStart < n {
		if end < tailStart {
			b.WriteString(elision)
		}
		b.WriteString(string(runes[tailStart:]))
	}
	return b.String()
}
