package utils

import "strings"

// ComputeDistance computes the Levenshtein distance between two strings,
// counting runes rather than bytes. It is case-insensitive.
func ComputeDistance(s1, s2 string) int {
	r1 := []rune(strings.ToLower(s1))
	r2 := []rune(strings.ToLower(s2))

	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	// Two rows are enough; prev holds row i-1.
	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			best := prev[j] + 1 // deletion
			if ins := curr[j-1] + 1; ins < best {
				best = ins
			}
			if sub := prev[j-1] + cost; sub < best {
				best = sub
			}
			curr[j] = best
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}

// Similarity maps the edit distance onto [0,1], where 1 means equal
// (ignoring case) and 0 means nothing in common.
func Similarity(s1, s2 string) float64 {
	n1 := len([]rune(s1))
	n2 := len([]rune(s2))
	longest := max(n1, n2)
	if longest == 0 {
		return 1
	}
	return 1 - float64(ComputeDistance(s1, s2))/float64(longest)
}
