// Package decoder turns token strings back into text. Decoders work on the
// whole token list so steps like byte reassembly can span tokens.
package decoder

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/example/go-bytebpe/internal/bytelevel"
)

// Decoder rewrites a token list. The decoded text is the concatenation of
// the returned list.
type Decoder interface {
	DecodeChain(tokens []string) []string
}

// Decode runs d and joins the result.
func Decode(d Decoder, tokens []string) string {
	if d == nil {
		return strings.Join(tokens, "")
	}
	return strings.Join(d.DecodeChain(tokens), "")
}

// ByteLevel maps byte-level characters back to bytes and decodes the result
// as UTF-8.
type ByteLevel struct{}

// DecodeChain implements Decoder.
func (ByteLevel) DecodeChain(tokens []string) []string {
	return []string{bytelevel.DecodeTokens(tokens)}
}

// ByteFallback reassembles runs of <0xXX> tokens into text. A run that is
// not valid UTF-8 becomes one U+FFFD per byte.
type ByteFallback struct{}

// DecodeChain implements Decoder.
func (ByteFallback) DecodeChain(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	var pending []byte

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if utf8.Valid(pending) {
			out = append(out, string(pending))
		} else {
			out = append(out, strings.Repeat("\uFFFD", len(pending)))
		}
		pending = pending[:0]
	}

	for _, tok := range tokens {
		if b, ok := parseByteToken(tok); ok {
			pending = append(pending, b)
			continue
		}
		flush()
		out = append(out, tok)
	}
	flush()
	return out
}

func parseByteToken(tok string) (byte, bool) {
	if len(tok) != 6 || !strings.HasPrefix(tok, "<0x") || tok[5] != '>' {
		return 0, false
	}
	v, err := strconv.ParseUint(tok[3:5], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

// BPESuffix turns the end-of-word suffix into a space, dropping it from the
// final token.
type BPESuffix struct {
	Suffix string
}

// DecodeChain implements Decoder.
func (d BPESuffix) DecodeChain(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		repl := " "
		if i == len(tokens)-1 {
			repl = ""
		}
		out[i] = strings.ReplaceAll(tok, d.Suffix, repl)
	}
	return out
}

// Strip removes up to Start leading and Stop trailing copies of Content
// from every token.
type Strip struct {
	Content     string
	Start, Stop int
}

// DecodeChain implements Decoder.
func (d Strip) DecodeChain(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		for n := 0; n < d.Start && strings.HasPrefix(tok, d.Content); n++ {
			tok = tok[len(d.Content):]
		}
		for n := 0; n < d.Stop && strings.HasSuffix(tok, d.Content); n++ {
			tok = tok[:len(tok)-len(d.Content)]
		}
		out[i] = tok
	}
	return out
}

// Replace substitutes Pattern with Content in every token.
type Replace struct {
	Pattern string
	Content string
}

// DecodeChain implements Decoder.
func (d Replace) DecodeChain(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = strings.ReplaceAll(tok, d.Pattern, d.Content)
	}
	return out
}

// Fuse joins all tokens into one.
type Fuse struct{}

// DecodeChain implements Decoder.
func (Fuse) DecodeChain(tokens []string) []string {
	return []string{strings.Join(tokens, "")}
}

// Metaspace turns the SentencePiece word marker back into spaces and drops
// the space added in front of the first word.
type Metaspace struct {
	Replacement    rune
	AddPrefixSpace bool
}

// DecodeChain implements Decoder.
func (d Metaspace) DecodeChain(tokens []string) []string {
	out := make([]string, len(tokens))
	repl := string(d.Replacement)
	for i, tok := range tokens {
		tok = strings.ReplaceAll(tok, repl, " ")
		if i == 0 && d.AddPrefixSpace {
			tok = strings.TrimPrefix(tok, " ")
		}
		out[i] = tok
	}
	return out
}

// Sequence applies decoders in order.
type Sequence []Decoder

// DecodeChain implements Decoder.
func (seq Sequence) DecodeChain(tokens []string) []string {
	for _, d := range seq {
		tokens = d.DecodeChain(tokens)
	}
	return tokens
}
