// Package encoding holds the result of tokenizing one input: parallel id,
// type, mask and token arrays, plus the windows cut off by truncation.
package encoding

import (
	"github.com/example/go-bytebpe/internal/vocab"
)

// Encoding is the output of the pipeline for one input. All slices have the
// same length.
type Encoding struct {
	IDs               []int    `json:"ids"`
	TypeIDs           []int    `json:"type_ids"`
	AttentionMask     []int    `json:"attention_mask"`
	SpecialTokensMask []int    `json:"special_tokens_mask"`
	Tokens            []string `json:"tokens"`

	// Overflow is the next window produced by truncation with a stride, if
	// any. Windows form a chain.
	Overflow *Encoding `json:"overflowing,omitempty"`
}

// FromDefinitions builds an encoding with every token attended and tagged
// with typeID.
func FromDefinitions(defs []vocab.TokenDefinition, typeID int) Encoding {
	n := len(defs)
	e := Encoding{
		IDs:               make([]int, n),
		TypeIDs:           make([]int, n),
		AttentionMask:     make([]int, n),
		SpecialTokensMask: make([]int, n),
		Tokens:            make([]string, n),
	}
	for i, d := range defs {
		e.IDs[i] = d.ID
		e.TypeIDs[i] = typeID
		e.AttentionMask[i] = 1
		if d.Special {
			e.SpecialTokensMask[i] = 1
		}
		e.Tokens[i] = d.Key
	}
	return e
}

// Special builds an encoding of special tokens.
func Special(ids []int, tokens []string, typeID int) Encoding {
	n := len(ids)
	e := Encoding{
		IDs:               append([]int(nil), ids...),
		TypeIDs:           make([]int, n),
		AttentionMask:     make([]int, n),
		SpecialTokensMask: make([]int, n),
		Tokens:            append([]string(nil), tokens...),
	}
	for i := range n {
		e.TypeIDs[i] = typeID
		e.AttentionMask[i] = 1
		e.SpecialTokensMask[i] = 1
	}
	return e
}

// Len returns the number of tokens.
func (e Encoding) Len() int { return len(e.IDs) }

// IsEmpty reports whether e has no tokens.
func (e Encoding) IsEmpty() bool { return len(e.IDs) == 0 }

// Slice returns a copy of tokens [start, end). The overflow chain is not
// carried over.
func (e Encoding) Slice(start, end int) Encoding {
	return Encoding{
		IDs:               append([]int(nil), e.IDs[start:end]...),
		TypeIDs:           append([]int(nil), e.TypeIDs[start:end]...),
		AttentionMask:     append([]int(nil), e.AttentionMask[start:end]...),
		SpecialTokensMask: append([]int(nil), e.SpecialTokensMask[start:end]...),
		Tokens:            append([]string(nil), e.Tokens[start:end]...),
	}
}

// Concat returns e followed by o. The result has no overflow.
func (e Encoding) Concat(o Encoding) Encoding {
	return Encoding{
		IDs:               concat(e.IDs, o.IDs),
		TypeIDs:           concat(e.TypeIDs, o.TypeIDs),
		AttentionMask:     concat(e.AttentionMask, o.AttentionMask),
		SpecialTokensMask: concat(e.SpecialTokensMask, o.SpecialTokensMask),
		Tokens:            concat(e.Tokens, o.Tokens),
	}
}

// Merge concatenates encodings in order.
func Merge(parts ...Encoding) Encoding {
	var out Encoding
	for _, p := range parts {
		out = out.Concat(p)
	}
	return out
}

// WithTypeID returns a copy of e with every type id set to typeID.
func (e Encoding) WithTypeID(typeID int) Encoding {
	out := e
	out.TypeIDs = make([]int, len(e.TypeIDs))
	for i := range out.TypeIDs {
		out.TypeIDs[i] = typeID
	}
	return out
}

// OverflowChain returns the windows after e, in order.
func (e Encoding) OverflowChain() []Encoding {
	var out []Encoding
	for o := e.Overflow; o != nil; o = o.Overflow {
		out = append(out, *o)
	}
	return out
}

// WithOverflow returns e with its overflow chain set to the given windows.
func (e Encoding) WithOverflow(windows []Encoding) Encoding {
	var next *Encoding
	for i := len(windows) - 1; i >= 0; i-- {
		w := windows[i]
		w.Overflow = next
		next = &w
	}
	e.Overflow = next
	return e
}

func concat[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
