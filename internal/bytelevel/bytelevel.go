// Package bytelevel maps every byte value to a printable rune and back, so
// arbitrary binary content can flow through a string-keyed vocabulary.
package bytelevel

import (
	"strings"
	"sync"
	"unicode/utf8"
)

type tables struct {
	byteToRune [256]rune
	runeToByte map[rune]byte
}

var loadTables = sync.OnceValue(func() *tables {
	t := &tables{runeToByte: make(map[rune]byte, 256)}

	next := rune(256)
	for b := range 256 {
		r := rune(b)
		if !selfMapped(b) {
			r = next
			next++
		}
		t.byteToRune[b] = r
		t.runeToByte[r] = byte(b)
	}

	return t
})

// selfMapped reports whether byte b is printable and keeps its own codepoint.
func selfMapped(b int) bool {
	return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
}

// Alphabet returns the 256 mapped runes in byte order.
func Alphabet() []rune {
	t := loadTables()
	out := make([]rune, 256)
	copy(out, t.byteToRune[:])
	return out
}

// EncodeByte returns the rune that stands for b.
func EncodeByte(b byte) rune {
	return loadTables().byteToRune[b]
}

// DecodeRune returns the byte represented by r.
func DecodeRune(r rune) (byte, bool) {
	b, ok := loadTables().runeToByte[r]
	return b, ok
}

// Encode maps each UTF-8 byte of s to its printable rune.
func Encode(s string) string {
	t := loadTables()

	var sb strings.Builder
	sb.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		sb.WriteRune(t.byteToRune[s[i]])
	}
	return sb.String()
}

// Decode reverses Encode. It returns false when s contains a rune outside the
// byte alphabet.
func Decode(s string) ([]byte, bool) {
	t := loadTables()

	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := t.runeToByte[r]
		if !ok {
			return nil, false
		}
		out = append(out, b)
	}
	return out, true
}

// DecodeTokens joins byte-level tokens back into text. A token containing a
// rune outside the alphabet contributes its raw UTF-8 bytes instead. Invalid
// UTF-8 in the reassembled stream becomes U+FFFD.
func DecodeTokens(tokens []string) string {
	var buf []byte
	for _, tok := range tokens {
		if b, ok := Decode(tok); ok {
			buf = append(buf, b...)
			continue
		}
		buf = append(buf, tok...)
	}

	if utf8.Valid(buf) {
		return string(buf)
	}
	return strings.ToValidUTF8(string(buf), "\uFFFD")
}
