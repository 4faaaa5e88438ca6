package utils

import (
	"math"
	"testing"
)

func TestComputeDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"Alpha", "alpha", 0},
		{"flaw", "lawn", 2},
		{"café", "cafe", 1},
		{"Zürich", "Zurich", 1},
	}
	for _, tt := range tests {
		if got := ComputeDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("ComputeDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := ComputeDistance(tt.b, tt.a); got != tt.want {
			t.Errorf("ComputeDistance(%q, %q) not symmetric: %d", tt.b, tt.a, got)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "ABC", 1},
		{"abcd", "abcx", 0.75},
		{"abc", "xyz", 0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
