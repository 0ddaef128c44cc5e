package normalizer

import (
	"strings"
	"unicode"
)

// Bert is the normalizer shipped with BERT-style WordPiece vocabularies. It is
// also common in front of BPE models trained on the same data.
type Bert struct {
	CleanText          bool
	HandleChineseChars bool
	StripAccents       bool
	Lowercase          bool
}

// NewBert returns the default BERT configuration: every step enabled.
func NewBert() Bert {
	return Bert{CleanText: true, HandleChineseChars: true, StripAccents: true, Lowercase: true}
}

// Normalize implements Normalizer.
func (b Bert) Normalize(s string) string {
	if b.CleanText {
		s = cleanText(s)
	}
	if b.HandleChineseChars {
		s = padChineseChars(s)
	}
	if b.StripAccents {
		s = stripAccents(s)
	}
	if b.Lowercase {
		s = strings.ToLower(s)
	}
	return s
}

// cleanText drops NUL, U+FFFD and control characters and maps every kind of
// whitespace to a plain space.
func cleanText(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 0 || r == unicode.ReplacementChar:
		case isWhitespace(r):
			sb.WriteByte(' ')
		case isControl(r):
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	}
	return unicode.In(r, unicode.Cc, unicode.Cf, unicode.Co, unicode.Cs)
}

func padChineseChars(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if isCJK(r) {
			sb.WriteByte(' ')
			sb.WriteRune(r)
			sb.WriteByte(' ')
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B920 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
