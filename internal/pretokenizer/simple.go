package pretokenizer

import (
	"unicode"
	"unicode/utf8"

	"github.com/example/go-bytebpe/internal/textview"
)

var wordsAndPunct = MustSplit(`\w+|[^\w\s]+`, Removed, false)

// Whitespace splits into runs of word characters and runs of other
// non-space characters. Whitespace is dropped.
type Whitespace struct{}

// PreTokenize implements PreTokenizer.
func (Whitespace) PreTokenize(chunks []textview.View) []textview.View {
	return wordsAndPunct.PreTokenize(chunks)
}

// WhitespaceSplit splits on Unicode whitespace, which is dropped.
type WhitespaceSplit struct{}

// PreTokenize implements PreTokenizer.
func (WhitespaceSplit) PreTokenize(chunks []textview.View) []textview.View {
	return splitEach(chunks, Removed, func(s string) []span {
		return cover(len(s), runeRuns(s, unicode.IsSpace, false), true)
	})
}

// Punctuation treats every punctuation character as a delimiter.
type Punctuation struct {
	Behavior Behavior
}

// PreTokenize implements PreTokenizer.
func (p Punctuation) PreTokenize(chunks []textview.View) []textview.View {
	return splitEach(chunks, p.Behavior, func(s string) []span {
		return cover(len(s), runeRuns(s, isPunctuation, true), true)
	})
}

// Digits isolates numbers, either whole runs or each digit on its own.
type Digits struct {
	IndividualDigits bool
}

// PreTokenize implements PreTokenizer.
func (p Digits) PreTokenize(chunks []textview.View) []textview.View {
	behavior := Contiguous
	if p.IndividualDigits {
		behavior = Isolated
	}
	return splitEach(chunks, behavior, func(s string) []span {
		return cover(len(s), runeRuns(s, unicode.IsDigit, true), true)
	})
}

// CharDelimiter splits on a single character, which is dropped.
type CharDelimiter struct {
	Delimiter rune
}

// PreTokenize implements PreTokenizer.
func (p CharDelimiter) PreTokenize(chunks []textview.View) []textview.View {
	return splitEach(chunks, Removed, func(s string) []span {
		return cover(len(s), runeRuns(s, func(r rune) bool { return r == p.Delimiter }, true), true)
	})
}

// runeRuns returns byte ranges of characters matching pred. With single set
// every matching character is its own range; otherwise adjacent matches are
// joined.
func runeRuns(s string, pred func(rune) bool, single bool) [][2]int {
	var out [][2]int
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !pred(r) {
			i += size
			continue
		}
		if !single && len(out) > 0 && out[len(out)-1][1] == i {
			out[len(out)-1][1] = i + size
		} else {
			out = append(out, [2]int{i, i + size})
		}
		i += size
	}
	return out
}

func isPunctuation(r rune) bool {
	if r < utf8.RuneSelf {
		return (r >= '!' && r <= '/') || (r >= ':' && r <= '@') ||
			(r >= '[' && r <= '`') || (r >= '{' && r <= '~')
	}
	return unicode.IsPunct(r)
}
