// Package addedtokens finds user-defined and special tokens in raw text
// before normalization and pre-tokenization get to see it.
package addedtokens

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/dlclark/regexp2"
)

// Token is a string that always maps to one id, bypassing the BPE model.
type Token struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	// SingleWord only matches when not adjacent to other word characters.
	SingleWord bool `json:"single_word"`
	// LStrip and RStrip absorb whitespace on that side into the match.
	LStrip bool `json:"lstrip"`
	RStrip bool `json:"rstrip"`
	// Normalized tokens are matched against normalized text; the others
	// against the raw input.
	Normalized bool `json:"normalized"`
	Special    bool `json:"special"`
}

// Segment is a piece of split text: either a matched token or plain text
// for the regular pipeline.
type Segment struct {
	Text  string
	Token *Token
}

// Splitter extracts added tokens from text. It is immutable and safe for
// concurrent use.
type Splitter struct {
	tokens     []Token
	raw        *matcher
	normalized *matcher
}

// NewSplitter compiles matchers for tokens. Tokens with empty content are
// ignored.
func NewSplitter(tokens []Token) (*Splitter, error) {
	s := &Splitter{}
	var raw, normalized []Token
	for _, t := range tokens {
		if t.Content == "" {
			continue
		}
		s.tokens = append(s.tokens, t)
		if t.Normalized {
			normalized = append(normalized, t)
		} else {
			raw = append(raw, t)
		}
	}

	var err error
	if s.raw, err = newMatcher(raw); err != nil {
		return nil, err
	}
	if s.normalized, err = newMatcher(normalized); err != nil {
		return nil, err
	}
	return s, nil
}

// Tokens returns the registered tokens.
func (s *Splitter) Tokens() []Token { return s.tokens }

// Len returns the number of registered tokens.
func (s *Splitter) Len() int { return len(s.tokens) }

// Split finds raw tokens in text, normalizes the text between them with
// normalize (which may be nil), then finds normalized tokens in that. Plain
// segments in the result are normalized.
func (s *Splitter) Split(text string, normalize func(string) string) []Segment {
	var out []Segment
	for _, seg := range s.raw.split(text) {
		if seg.Token != nil {
			out = append(out, seg)
			continue
		}
		t := seg.Text
		if normalize != nil {
			t = normalize(t)
		}
		for _, inner := range s.normalized.split(t) {
			if inner.Token == nil && inner.Text == "" {
				continue
			}
			out = append(out, inner)
		}
	}
	return out
}

// matcher is one alternation over a token set, longest content first so the
// leftmost match is also the longest one starting there.
type matcher struct {
	re     *regexp2.Regexp
	tokens []Token
}

func newMatcher(tokens []Token) (*matcher, error) {
	if len(tokens) == 0 {
		return &matcher{}, nil
	}
	sorted := slices.Clone(tokens)
	slices.SortStableFunc(sorted, func(a, b Token) int {
		return cmp.Compare(len(b.Content), len(a.Content))
	})

	alts := make([]string, len(sorted))
	for i, t := range sorted {
		var sb strings.Builder
		sb.WriteByte('(')
		if t.LStrip {
			sb.WriteString(`\s*`)
		}
		if t.SingleWord {
			sb.WriteString(`(?<!\w)`)
		}
		sb.WriteString(regexp2.Escape(t.Content))
		if t.SingleWord {
			sb.WriteString(`(?!\w)`)
		}
		if t.RStrip {
			sb.WriteString(`\s*`)
		}
		sb.WriteByte(')')
		alts[i] = sb.String()
	}

	re, err := regexp2.Compile(strings.Join(alts, "|"), regexp2.Unicode)
	if err != nil {
		return nil, fmt.Errorf("compile added tokens: %w", err)
	}
	return &matcher{re: re, tokens: sorted}, nil
}

func (m *matcher) split(text string) []Segment {
	if m.re == nil || text == "" {
		return []Segment{{Text: text}}
	}

	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))

	var out []Segment
	pos := 0
	match, err := m.re.FindStringMatch(text)
	for ; match != nil && err == nil; match, err = m.re.FindNextMatch(match) {
		if match.Length == 0 {
			continue
		}
		start, end := offsets[match.Index], offsets[match.Index+match.Length]
		tok := m.which(match)
		if tok == nil {
			continue
		}
		if start > pos {
			out = append(out, Segment{Text: text[pos:start]})
		}
		out = append(out, Segment{Text: text[start:end], Token: tok})
		pos = end
	}
	if pos < len(text) {
		out = append(out, Segment{Text: text[pos:]})
	}
	return out
}

// which returns the token whose alternative produced match.
func (m *matcher) which(match *regexp2.Match) *Token {
	groups := match.Groups()
	for i := range m.tokens {
		if g := groups[i+1]; len(g.Captures) > 0 {
			return &m.tokens[i]
		}
	}
	return nil
}
