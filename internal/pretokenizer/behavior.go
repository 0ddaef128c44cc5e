// Package pretokenizer splits text into the chunks the BPE model tokenizes
// independently. Chunks are views into the input; no text is copied unless a
// stage has to insert characters.
package pretokenizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/go-bytebpe/internal/textview"
)

// ErrUnknownBehavior is returned by ParseBehavior for an unrecognized name.
var ErrUnknownBehavior = errors.New("pretokenizer: unknown split behavior")

// PreTokenizer maps a chunk list to a finer chunk list.
type PreTokenizer interface {
	PreTokenize(chunks []textview.View) []textview.View
}

// Behavior decides what happens to delimiter spans.
type Behavior int

const (
	// Removed drops delimiters.
	Removed Behavior = iota
	// Isolated emits each delimiter as its own chunk.
	Isolated
	// MergedWithPrevious appends a delimiter to the chunk before it.
	MergedWithPrevious
	// MergedWithNext prepends a delimiter to the chunk after it.
	MergedWithNext
	// Contiguous coalesces runs of delimiters into one isolated chunk.
	Contiguous
)

var behaviorNames = map[Behavior]string{
	Removed:            "removed",
	Isolated:           "isolated",
	MergedWithPrevious: "merged_with_previous",
	MergedWithNext:     "merged_with_next",
	Contiguous:         "contiguous",
}

func (b Behavior) String() string {
	if s, ok := behaviorNames[b]; ok {
		return s
	}
	return fmt.Sprintf("Behavior(%d)", int(b))
}

// ParseBehavior accepts both the snake_case and the CamelCase spelling used
// by tokenizer.json files.
func ParseBehavior(s string) (Behavior, error) {
	norm := strings.ToLower(strings.ReplaceAll(s, "_", ""))
	for b, name := range behaviorNames {
		if strings.ReplaceAll(name, "_", "") == norm {
			return b, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBehavior, s)
}

// span is a byte range of a chunk. Spans produced by cover are contiguous and
// jointly cover the chunk.
type span struct {
	start, end int
	delim      bool
}

// cover turns sorted, non-overlapping matches into a full covering of a chunk
// of length n. Matches get the delim flag matchDelim; gaps get the opposite.
func cover(n int, matches [][2]int, matchDelim bool) []span {
	out := make([]span, 0, 2*len(matches)+1)
	pos := 0
	for _, m := range matches {
		if m[0] > pos {
			out = append(out, span{start: pos, end: m[0], delim: !matchDelim})
		}
		if m[1] > m[0] {
			out = append(out, span{start: m[0], end: m[1], delim: matchDelim})
		}
		pos = m[1]
	}
	if pos < n {
		out = append(out, span{start: pos, end: n, delim: !matchDelim})
	}
	return out
}

// apply resolves delimiter spans according to b. The result carries no
// delimiter flags.
func apply(b Behavior, spans []span) []span {
	out := make([]span, 0, len(spans))
	switch b {
	case Removed:
		for _, s := range spans {
			if !s.delim {
				out = append(out, s)
			}
		}

	case Isolated:
		out = append(out, spans...)

	case MergedWithPrevious:
		prevDelim := false
		for _, s := range spans {
			if s.delim && !prevDelim && len(out) > 0 {
				out[len(out)-1].end = s.end
			} else {
				out = append(out, span{start: s.start, end: s.end})
			}
			prevDelim = s.delim
		}

	case MergedWithNext:
		prevDelim := false
		for i := len(spans) - 1; i >= 0; i-- {
			s := spans[i]
			if s.delim && !prevDelim && len(out) > 0 {
				out[len(out)-1].start = s.start
			} else {
				out = append(out, span{start: s.start, end: s.end})
			}
			prevDelim = s.delim
		}
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}

	case Contiguous:
		for _, s := range spans {
			if s.delim && len(out) > 0 && out[len(out)-1].delim {
				out[len(out)-1].end = s.end
				continue
			}
			out = append(out, s)
		}
	}

	for i := range out {
		out[i].delim = false
	}
	return out
}

// splitEach runs find over every chunk and replaces the chunk with the spans
// kept by b. Empty spans are never emitted.
func splitEach(chunks []textview.View, b Behavior, find func(s string) []span) []textview.View {
	out := make([]textview.View, 0, len(chunks))
	for _, c := range chunks {
		if c.IsEmpty() {
			continue
		}
		for _, s := range apply(b, find(c.String())) {
			if s.end > s.start {
				out = append(out, c.MustSub(s.start, s.end-s.start))
			}
		}
	}
	return out
}

// Sequence applies pre-tokenizers in order, each consuming the previous
// stage's output.
type Sequence []PreTokenizer

// PreTokenize implements PreTokenizer.
func (seq Sequence) PreTokenize(chunks []textview.View) []textview.View {
	for _, p := range seq {
		chunks = p.PreTokenize(chunks)
	}
	return chunks
}

// Strings materializes chunks, mostly for logging and tests.
func Strings(chunks []textview.View) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.String()
	}
	return out
}
