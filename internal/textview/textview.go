// Package textview provides a zero-copy window over a string.
//
// A View addresses a byte range of a backing string. Sub-slicing never copies;
// only Apply may allocate, and only when the view is a strict subset of its
// backing string.
package textview

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// ErrOutOfRange is returned when an offset or length falls outside the view.
var ErrOutOfRange = errors.New("textview: range out of bounds")

// View is an immutable (source, offset, length) triple. Offsets are UTF-8
// byte offsets into the source string.
type View struct {
	src string
	off int
	n   int
}

// New returns a view covering all of s.
func New(s string) View {
	return View{src: s, off: 0, n: len(s)}
}

// Slice returns a view of s starting at off and spanning n bytes.
func Slice(s string, off, n int) (View, error) {
	if off < 0 || n < 0 || off+n > len(s) {
		return View{}, fmt.Errorf("%w: offset %d length %d over %d bytes", ErrOutOfRange, off, n, len(s))
	}
	return View{src: s, off: off, n: n}, nil
}

// Source returns the backing string.
func (v View) Source() string { return v.src }

// Offset returns the byte offset of the view within its source.
func (v View) Offset() int { return v.off }

// Len returns the byte length of the view.
func (v View) Len() int { return v.n }

// End returns the exclusive end offset within the source.
func (v View) End() int { return v.off + v.n }

// IsEmpty reports whether the view covers no bytes.
func (v View) IsEmpty() bool { return v.n == 0 }

// String returns the covered text. The result shares memory with the source.
func (v View) String() string { return v.src[v.off : v.off+v.n] }

// Sub returns the sub-view [off, off+n) relative to v.
func (v View) Sub(off, n int) (View, error) {
	if off < 0 || n < 0 || off+n > v.n {
		return View{}, fmt.Errorf("%w: sub(%d, %d) of view with length %d", ErrOutOfRange, off, n, v.n)
	}
	return View{src: v.src, off: v.off + off, n: n}, nil
}

// MustSub is Sub for offsets already known to be valid.
func (v View) MustSub(off, n int) View {
	sub, err := v.Sub(off, n)
	if err != nil {
		panic(err)
	}
	return sub
}

// UTFSub returns a sub-view where off and n are counted in runes rather than
// bytes.
func (v View) UTFSub(off, n int) (View, error) {
	if off < 0 || n < 0 {
		return View{}, fmt.Errorf("%w: utfSub(%d, %d)", ErrOutOfRange, off, n)
	}

	s := v.String()
	start, ok := runeOffset(s, 0, off)
	if !ok {
		return View{}, fmt.Errorf("%w: rune offset %d beyond %d runes", ErrOutOfRange, off, utf8.RuneCountInString(s))
	}
	end, ok := runeOffset(s, start, n)
	if !ok {
		return View{}, fmt.Errorf("%w: rune length %d from rune %d", ErrOutOfRange, n, off)
	}

	return View{src: v.src, off: v.off + start, n: end - start}, nil
}

// runeOffset advances count runes from byte position from and returns the
// resulting byte position.
func runeOffset(s string, from, count int) (int, bool) {
	pos := from
	for range count {
		if pos >= len(s) {
			return 0, false
		}
		_, size := utf8.DecodeRuneInString(s[pos:])
		pos += size
	}
	return pos, true
}

// RuneCount returns the number of runes covered by the view.
func (v View) RuneCount() int { return utf8.RuneCountInString(v.String()) }

// StartsWith reports whether the view begins with prefix.
func (v View) StartsWith(prefix string) bool {
	return strings.HasPrefix(v.String(), prefix)
}

// IndexOf returns the byte offset, relative to the view, of the first
// occurrence of s at or after from, or -1.
func (v View) IndexOf(s string, from int) int {
	if from < 0 {
		from = 0
	}
	if from > v.n {
		return -1
	}
	i := strings.Index(v.String()[from:], s)
	if i < 0 {
		return -1
	}
	return from + i
}

// Compare orders views by their covered text.
func (v View) Compare(o View) int {
	return strings.Compare(v.String(), o.String())
}

// Equal reports whether two views cover the same characters, regardless of
// their backing strings or offsets.
func (v View) Equal(o View) bool {
	return v.n == o.n && v.String() == o.String()
}

// Hash returns a hash over the covered characters.
func (v View) Hash() uint64 {
	return xxhash.Sum64String(v.String())
}

// Apply materializes the view. When the view already spans the whole source,
// the source is returned as is; otherwise an independent copy is made so the
// larger backing string can be released.
func (v View) Apply() string {
	if v.off == 0 && v.n == len(v.src) {
		return v.src
	}
	return strings.Clone(v.String())
}

// Concat returns a view spanning from the start of v to the end of o. Both
// views must share a source and o must not start before v.
func (v View) Concat(o View) (View, error) {
	if v.src != o.src || o.off < v.off {
		return View{}, fmt.Errorf("%w: views are not contiguous", ErrOutOfRange)
	}
	return View{src: v.src, off: v.off, n: o.End() - v.off}, nil
}
