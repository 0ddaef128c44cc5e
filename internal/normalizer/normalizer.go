// Package normalizer rewrites raw input text before it is split into chunks.
package normalizer

import (
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer maps input text to its normalized form.
type Normalizer interface {
	Normalize(s string) string
}

// Func adapts a plain function to Normalizer.
type Func func(string) string

// Normalize calls f(s).
func (f Func) Normalize(s string) string { return f(s) }

// Lowercase maps text to lower case.
var Lowercase = Func(strings.ToLower)

// Unicode normalization forms.
var (
	NFC  = Func(norm.NFC.String)
	NFD  = Func(norm.NFD.String)
	NFKC = Func(norm.NFKC.String)
	NFKD = Func(norm.NFKD.String)
)

// StripAccents decomposes text, drops nonspacing marks and recomposes.
var StripAccents = Func(stripAccents)

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// LineEndings rewrites CRLF and bare CR to LF.
var LineEndings = Func(func(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
})

// Strip trims whitespace from the requested ends.
type Strip struct {
	Left, Right bool
}

// Normalize implements Normalizer.
func (p Strip) Normalize(s string) string {
	if p.Left {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
	}
	if p.Right {
		s = strings.TrimRightFunc(s, unicode.IsSpace)
	}
	return s
}

// Prepend adds Prefix in front of non-empty text.
type Prepend struct {
	Prefix string
}

// Normalize implements Normalizer.
func (p Prepend) Normalize(s string) string {
	if s == "" {
		return s
	}
	return p.Prefix + s
}

// Replace substitutes every match of a pattern with Content.
type Replace struct {
	literal string
	re      *regexp2.Regexp
	content string
}

// NewLiteralReplace replaces every occurrence of old with content.
func NewLiteralReplace(old, content string) *Replace {
	return &Replace{literal: old, content: content}
}

// NewRegexReplace replaces every match of pattern with content. Content is
// inserted verbatim; no group expansion happens.
func NewRegexReplace(pattern, content string) (*Replace, error) {
	re, err := regexp2.Compile(pattern, regexp2.Unicode)
	if err != nil {
		return nil, err
	}
	return &Replace{re: re, content: content}, nil
}

// Normalize implements Normalizer.
func (r *Replace) Normalize(s string) string {
	if r.re == nil {
		if r.literal == "" {
			return s
		}
		return strings.ReplaceAll(s, r.literal, r.content)
	}
	out, err := r.re.ReplaceFunc(s, func(regexp2.Match) string { return r.content }, -1, -1)
	if err != nil {
		return s
	}
	return out
}

// Sequence applies normalizers in order.
type Sequence []Normalizer

// Normalize implements Normalizer.
func (seq Sequence) Normalize(s string) string {
	for _, n := range seq {
		s = n.Normalize(s)
	}
	return s
}
