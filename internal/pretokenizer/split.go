package pretokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/example/go-bytebpe/internal/textview"
)

// GPT2Pattern is the chunking regex used by GPT-2 style byte-level models.
const GPT2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// Split chunks text with a regular expression. Matches are content and the
// text between them is delimiter; Invert swaps the two roles.
type Split struct {
	re       *regexp2.Regexp
	behavior Behavior
	invert   bool
}

// NewSplit compiles pattern. Lookaround is supported, and \w, \s and \d
// match the full Unicode classes.
func NewSplit(pattern string, behavior Behavior, invert bool) (*Split, error) {
	// regexp2.RE2 narrows \w, \s and \d to ASCII.
	re, err := regexp2.Compile(pattern, regexp2.Unicode)
	if err != nil {
		return nil, fmt.Errorf("compile split pattern %q: %w", pattern, err)
	}
	return &Split{re: re, behavior: behavior, invert: invert}, nil
}

// NewLiteralSplit splits on every occurrence of delim. The delimiter is the
// match, so the split is always inverted.
func NewLiteralSplit(delim string, behavior Behavior) (*Split, error) {
	return NewSplit(regexp2.Escape(delim), behavior, true)
}

// MustSplit is NewSplit for patterns known to compile.
func MustSplit(pattern string, behavior Behavior, invert bool) *Split {
	s, err := NewSplit(pattern, behavior, invert)
	if err != nil {
		panic(err)
	}
	return s
}

// PreTokenize implements PreTokenizer.
func (p *Split) PreTokenize(chunks []textview.View) []textview.View {
	return splitEach(chunks, p.behavior, func(s string) []span {
		return cover(len(s), findAll(p.re, s), p.invert)
	})
}

// findAll returns the byte ranges of every non-empty match of re in s.
// regexp2 reports positions in runes, so they are mapped back to bytes.
func findAll(re *regexp2.Regexp, s string) [][2]int {
	var offsets []int
	byteAt := func(runeIdx int) int {
		if offsets == nil {
			offsets = make([]int, 0, utf8.RuneCountInString(s)+1)
			for i := range s {
				offsets = append(offsets, i)
			}
			offsets = append(offsets, len(s))
		}
		return offsets[runeIdx]
	}

	var out [][2]int
	m, err := re.FindStringMatch(s)
	for ; m != nil && err == nil; m, err = re.FindNextMatch(m) {
		if m.Length == 0 {
			continue
		}
		out = append(out, [2]int{byteAt(m.Index), byteAt(m.Index + m.Length)})
	}
	return out
}

// ByteLevel is the pre-tokenizer paired with byte-level BPE. With both
// options off it passes chunks through unchanged, leaving all separation to
// the model.
type ByteLevel struct {
	// AddPrefixSpace prepends a space to each chunk that lacks one, so the
	// first word is tokenized like any other.
	AddPrefixSpace bool
	// UseRegex splits with GPT2Pattern.
	UseRegex bool
}

var gpt2Split = MustSplit(GPT2Pattern, Isolated, false)

// PreTokenize implements PreTokenizer.
func (p ByteLevel) PreTokenize(chunks []textview.View) []textview.View {
	if p.AddPrefixSpace {
		withSpace := make([]textview.View, len(chunks))
		for i, c := range chunks {
			if c.IsEmpty() || c.StartsWith(" ") {
				withSpace[i] = c
				continue
			}
			withSpace[i] = textview.New(" " + c.String())
		}
		chunks = withSpace
	}
	if p.UseRegex {
		return gpt2Split.PreTokenize(chunks)
	}
	return chunks
}

// Metaspace replaces spaces with Replacement and splits before each one, the
// SentencePiece convention.
type Metaspace struct {
	Replacement    rune
	AddPrefixSpace bool
	// FirstOnly limits AddPrefixSpace to the chunk at offset 0 of its
	// source, so text following an added token is not prefixed.
	FirstOnly bool
}

// PreTokenize implements PreTokenizer.
func (p Metaspace) PreTokenize(chunks []textview.View) []textview.View {
	repl := string(p.Replacement)
	out := make([]textview.View, 0, len(chunks))
	for _, c := range chunks {
		if c.IsEmpty() {
			continue
		}
		s := strings.ReplaceAll(c.String(), " ", repl)
		prefix := p.AddPrefixSpace && (!p.FirstOnly || c.Offset() == 0)
		if prefix && !strings.HasPrefix(s, repl) {
			s = repl + s
		}
		v := textview.New(s)
		out = append(out, splitEach([]textview.View{v}, MergedWithNext, func(s string) []span {
			var matches [][2]int
			for i := 0; ; {
				j := strings.Index(s[i:], repl)
				if j < 0 {
					break
				}
				matches = append(matches, [2]int{i + j, i + j + len(repl)})
				i += j + len(repl)
			}
			return cover(len(s), matches, true)
		})...)
	}
	return out
}
