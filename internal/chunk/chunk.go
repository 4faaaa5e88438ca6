// Package chunk splits oversized text into overlapping windows sized to a
// model context limit.
package chunk

import (
	"errors"
	"fmt"
	"iter"
	"unicode/utf8"
)

// ErrInvalidWindow is returned when size/overlap do not describe a valid window.
var ErrInvalidWindow = errors.New("invalid chunk window")

// Window is one slice of the input. Start and End are rune offsets into the
// original text, End exclusive.
type Window struct {
	Index int
	Start int
	End   int
	Text  string
}

// Validate checks that size is positive and overlap is in [0, size).
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: size %d must be positive", ErrInvalidWindow, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidWindow, overlap, size)
	}
	return nil
}

// Windows returns the windows of text in order. Sizes are counted in runes so
// multi-byte characters are never split. Adjacent windows share exactly
// overlap runes; only the final window may be shorter than size.
func Windows(text string, size, overlap int) (iter.Seq[Window], error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	// byte offset of every rune start, plus len(text) as a sentinel
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	n := len(offsets)
	offsets = append(offsets, len(text))
	step := size - overlap

	return func(yield func(Window) bool) {
		for idx, start := 0, 0; start < n; idx, start = idx+1, start+step {
			end := min(start+size, n)
			w := Window{
				Index: idx,
				Start: start,
				End:   end,
				Text:  text[offsets[start]:offsets[end]],
			}
			if !yield(w) || end == n {
				return
			}
		}
	}, nil
}

// Split collects Windows into a slice.
func Split(text string, size, overlap int) ([]Window, error) {
	seq, err := Windows(text, size, overlap)
	if err != nil {
		return nil, err
	}
	var out []Window
	for w := range seq {
		out = append(out, w)
	}
	return out, nil
}

// Join reassembles text from windows produced with the given overlap by
// dropping the shared prefix of every window after the first.
func Join(windows []Window, overlap int) string {
	var buf []byte
	for i, w := range windows {
		if i == 0 {
			buf = append(buf, w.Text...)
			continue
		}
		skip := overlap
		if prev := windows[i-1]; prev.End-w.Start < skip {
			skip = prev.End - w.Start
		}
		t := w.Text
		for ; skip > 0 && len(t) > 0; skip-- {
			_, sz := utf8.DecodeRuneInString(t)
			t = t[sz:]
		}
		buf = append(buf, t...)
	}
	return string(buf)
}
