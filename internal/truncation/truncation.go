// Package truncation cuts encodings down to a maximum length, optionally
// keeping the cut-off tokens as overlapping overflow windows.
package truncation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/go-bytebpe/internal/encoding"
)

var (
	// ErrInvalidParams is returned by Validate and New.
	ErrInvalidParams = errors.New("truncation: invalid parameters")
	// ErrSecondSequenceMissing is returned by OnlySecond for a single input.
	ErrSecondSequenceMissing = errors.New("truncation: second sequence not provided")
	// ErrSequenceTooShort is returned when the special tokens or the
	// untouched sequence alone exceed the maximum length.
	ErrSequenceTooShort = errors.New("truncation: sequence too short to truncate")
)

// Strategy selects which sequence of a pair loses tokens.
type Strategy int

const (
	// None never truncates.
	None Strategy = iota
	// LongestFirst trims the longer sequence more aggressively.
	LongestFirst
	// OnlyFirst trims only sequence A.
	OnlyFirst
	// OnlySecond trims only sequence B.
	OnlySecond
)

var strategyNames = []string{"none", "longest_first", "only_first", "only_second"}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy parses a strategy name such as "longest_first".
func ParseStrategy(s string) (Strategy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return None, nil
	}
	for i, name := range strategyNames {
		if name == s || strings.ReplaceAll(name, "_", "") == s {
			return Strategy(i), nil
		}
	}
	return None, fmt.Errorf("%w: unknown strategy %q", ErrInvalidParams, s)
}

// Direction is the end tokens are removed from.
type Direction int

const (
	// Right keeps the head.
	Right Direction = iota
	// Left keeps the tail.
	Left
)

func (d Direction) String() string {
	if d == Left {
		return "left"
	}
	return "right"
}

// ParseDirection parses "left" or "right".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "right":
		return Right, nil
	case "left":
		return Left, nil
	}
	return Right, fmt.Errorf("%w: unknown direction %q", ErrInvalidParams, s)
}

// Params configures truncation.
type Params struct {
	MaxLength int
	Stride    int
	Strategy  Strategy
	Direction Direction
}

// Validate rejects non-positive lengths and strides that would not advance.
func (p Params) Validate() error {
	if p.Strategy == None {
		return nil
	}
	if p.MaxLength <= 0 {
		return fmt.Errorf("%w: max length %d must be positive", ErrInvalidParams, p.MaxLength)
	}
	if p.Stride < 0 {
		return fmt.Errorf("%w: stride %d is negative", ErrInvalidParams, p.Stride)
	}
	if p.Stride >= p.MaxLength {
		return fmt.Errorf("%w: stride %d must be below max length %d", ErrInvalidParams, p.Stride, p.MaxLength)
	}
	return nil
}

// Truncator shortens sequence A and optional sequence B so that together
// with numAdded special tokens they fit the configured maximum.
type Truncator interface {
	Truncate(a encoding.Encoding, b *encoding.Encoding, numAdded int) (encoding.Encoding, *encoding.Encoding, error)
}

// New validates p and returns the matching truncator.
func New(p Params) (Truncator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Strategy == None {
		return noop{}, nil
	}
	return &truncator{p: p}, nil
}

type noop struct{}

func (noop) Truncate(a encoding.Encoding, b *encoding.Encoding, _ int) (encoding.Encoding, *encoding.Encoding, error) {
	return a, b, nil
}

type truncator struct {
	p Params
}

func (t *truncator) Truncate(a encoding.Encoding, b *encoding.Encoding, numAdded int) (encoding.Encoding, *encoding.Encoding, error) {
	if numAdded > t.p.MaxLength {
		return a, b, fmt.Errorf("%w: %d special tokens exceed max length %d", ErrSequenceTooShort, numAdded, t.p.MaxLength)
	}
	target := t.p.MaxLength - numAdded

	total := a.Len()
	if b != nil {
		total += b.Len()
	}
	if total <= target {
		return a, b, nil
	}

	if b == nil {
		if t.p.Strategy == OnlySecond {
			return a, b, ErrSecondSequenceMissing
		}
		return t.cut(a, target), nil, nil
	}

	switch t.p.Strategy {
	case LongestFirst:
		na, nb := longestFirst(a.Len(), b.Len(), target)
		cb := t.cut(*b, nb)
		return t.cut(a, na), &cb, nil

	case OnlyFirst:
		keep := target - b.Len()
		if keep < 0 {
			return a, b, fmt.Errorf("%w: sequence B alone has %d tokens, limit %d", ErrSequenceTooShort, b.Len(), target)
		}
		return t.cut(a, keep), b, nil

	default: // OnlySecond
		keep := target - a.Len()
		if keep < 0 {
			return a, b, fmt.Errorf("%w: sequence A alone has %d tokens, limit %d", ErrSequenceTooShort, a.Len(), target)
		}
		cb := t.cut(*b, keep)
		return a, &cb, nil
	}
}

// longestFirst splits target between sequences of length la and lb. The
// shorter one keeps min(short, target/2) tokens and the longer one gets the
// rest, so the two always sum to target.
func longestFirst(la, lb, target int) (int, int) {
	short, long := la, lb
	swapped := false
	if short > long {
		short, long = long, short
		swapped = true
	}

	keepShort := min(short, target/2)
	keepLong := min(long, target-keepShort)

	if swapped {
		return keepLong, keepShort
	}
	return keepShort, keepLong
}

// cut trims e to n tokens. The removed tokens become overflow windows of n
// tokens each, overlapping by the stride.
func (t *truncator) cut(e encoding.Encoding, n int) encoding.Encoding {
	if e.Len() <= n {
		return e
	}
	if n == 0 {
		return encoding.Encoding{}.WithOverflow([]encoding.Encoding{e})
	}

	ranges := Windows(e.Len(), n, t.p.Stride, t.p.Direction)
	windows := make([]encoding.Encoding, len(ranges))
	for i, r := range ranges {
		windows[i] = e.Slice(r[0], r[1])
	}
	return windows[0].WithOverflow(windows[1:])
}

// Windows returns the ranges [start, end) that cover n items with windows of
// maxLen items, consecutive windows sharing stride items. With Right the
// first window is the head; with Left it is the tail. A stride that would
// not advance is reduced to maxLen-1.
func Windows(n, maxLen, stride int, dir Direction) [][2]int {
	if n <= 0 || maxLen <= 0 {
		return nil
	}
	if stride >= maxLen {
		stride = maxLen - 1
	}
	step := maxLen - stride

	var out [][2]int
	if dir == Right {
		for start := 0; ; start += step {
			end := min(start+maxLen, n)
			out = append(out, [2]int{start, end})
			if end == n {
				return out
			}
		}
	}
	for end := n; ; end -= step {
		start := max(end-maxLen, 0)
		out = append(out, [2]int{start, end})
		if start == 0 {
			return out
		}
	}
}
