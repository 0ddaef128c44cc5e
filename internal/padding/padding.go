// Package padding brings a batch of encodings to a uniform length.
package padding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/go-bytebpe/internal/encoding"
)

// ErrInvalidParams is returned by Validate.
var ErrInvalidParams = errors.New("padding: invalid parameters")

// SizeProvider computes the target length for a batch from the lengths of
// its members.
type SizeProvider interface {
	Size(lengths []int) int
}

// Longest pads to the longest member of the batch.
type Longest struct{}

// Size implements SizeProvider.
func (Longest) Size(lengths []int) int {
	n := 0
	for _, l := range lengths {
		n = max(n, l)
	}
	return n
}

// Fixed pads to a constant length.
type Fixed struct {
	N int
}

// Size implements SizeProvider.
func (f Fixed) Size([]int) int { return f.N }

// MultipleOf rounds another provider's size up to a multiple.
type MultipleOf struct {
	Inner    SizeProvider
	Multiple int
}

// Size implements SizeProvider.
func (m MultipleOf) Size(lengths []int) int {
	n := m.Inner.Size(lengths)
	if m.Multiple <= 1 || n%m.Multiple == 0 {
		return n
	}
	return (n/m.Multiple + 1) * m.Multiple
}

// Direction is the side pad tokens are added to.
type Direction int

const (
	// Right appends padding.
	Right Direction = iota
	// Left prepends padding.
	Left
)

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

// Params configures padding.
type Params struct {
	Size      SizeProvider
	Direction Direction
	PadID     int
	PadTypeID int
	PadToken  string
}

// Validate checks that a size provider is set.
func (p Params) Validate() error {
	if p.Size == nil {
		return fmt.Errorf("%w: no size provider", ErrInvalidParams)
	}
	size := p.Size
	if m, ok := size.(MultipleOf); ok {
		if m.Multiple <= 0 {
			return fmt.Errorf("%w: multiple %d must be positive", ErrInvalidParams, m.Multiple)
		}
		size = m.Inner
	}
	if f, ok := size.(Fixed); ok && f.N <= 0 {
		return fmt.Errorf("%w: fixed length %d must be positive", ErrInvalidParams, f.N)
	}
	return nil
}

// Pad returns copies of encs padded to p.Size. Sequences already at or
// above the target are returned unchanged. Overflow windows are padded to
// the same target.
func Pad(encs []encoding.Encoding, p Params) []encoding.Encoding {
	lengths := make([]int, len(encs))
	for i, e := range encs {
		lengths[i] = e.Len()
		for _, o := range e.OverflowChain() {
			lengths[i] = max(lengths[i], o.Len())
		}
	}
	target := p.Size.Size(lengths)

	out := make([]encoding.Encoding, len(encs))
	for i, e := range encs {
		out[i] = padOne(e, target, p)
	}
	return out
}

// PadOne pads a single encoding to the provider's size for it alone.
func PadOne(e encoding.Encoding, p Params) encoding.Encoding {
	return Pad([]encoding.Encoding{e}, p)[0]
}

func padOne(e encoding.Encoding, target int, p Params) encoding.Encoding {
	chain := e.OverflowChain()
	for i := range chain {
		chain[i] = padOne(chain[i], target, p)
		chain[i].Overflow = nil
	}

	n := target - e.Len()
	if n <= 0 {
		return e.WithOverflow(chain)
	}

	pad := encoding.Encoding{
		IDs:               repeat(p.PadID, n),
		TypeIDs:           repeat(p.PadTypeID, n),
		AttentionMask:     repeat(0, n),
		SpecialTokensMask: repeat(1, n),
		Tokens:            repeat(p.PadToken, n),
	}

	var padded encoding.Encoding
	if p.Direction == Left {
		padded = pad.Concat(e)
	} else {
		padded = e.Concat(pad)
	}
	return padded.WithOverflow(chain)
}

func repeat[T any](v T, n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = v
	}
	return out
}
