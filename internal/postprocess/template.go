// Package postprocess wraps encoded sequences with special tokens according
// to a template such as "[CLS] $A [SEP] $B:1 [SEP]:1".
package postprocess

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/go-bytebpe/internal/encoding"
)

var (
	// ErrMalformedTemplate is returned for a piece that cannot be parsed.
	ErrMalformedTemplate = errors.New("postprocess: malformed template")
	// ErrMissingSequenceA is returned when a template never references $A.
	ErrMissingSequenceA = errors.New("postprocess: template does not reference sequence A")
	// ErrSingleReferencesB is returned when the single template uses $B.
	ErrSingleReferencesB = errors.New("postprocess: single template references sequence B")
	// ErrPairMissingSequence is returned when the pair template lacks $A or $B.
	ErrPairMissingSequence = errors.New("postprocess: pair template must reference both sequences")
	// ErrUnknownSpecialToken is returned for a literal with no SpecialToken.
	ErrUnknownSpecialToken = errors.New("postprocess: template references unknown special token")
)

// Processor adds special tokens around one or two encoded sequences.
type Processor interface {
	// AddedTokens is the number of tokens Process adds for a single input or
	// a pair. Truncation reserves room for them.
	AddedTokens(isPair bool) int
	Process(a encoding.Encoding, b *encoding.Encoding, addSpecial bool) encoding.Encoding
}

// SequenceID names one of the two input sequences.
type SequenceID int

const (
	SequenceA SequenceID = iota
	SequenceB
)

// Piece is one element of a template: a sequence reference or a special
// token literal.
type Piece struct {
	// Special is the literal token name; empty for sequence pieces.
	Special  string
	Sequence SequenceID
	TypeID   int
}

// IsSequence reports whether p is a $A or $B reference.
func (p Piece) IsSequence() bool { return p.Special == "" }

func (p Piece) String() string {
	name := p.Special
	if p.IsSequence() {
		name = "$A"
		if p.Sequence == SequenceB {
			name = "$B"
		}
	}
	if p.TypeID != 0 {
		return name + ":" + strconv.Itoa(p.TypeID)
	}
	return name
}

// ParsePiece parses one whitespace-free template element.
func ParsePiece(s string) (Piece, error) {
	if s == "" {
		return Piece{}, fmt.Errorf("%w: empty piece", ErrMalformedTemplate)
	}

	body, typeID := s, 0
	if i := strings.LastIndexByte(s, ':'); i > 0 && i < len(s)-1 {
		n, err := strconv.Atoi(s[i+1:])
		if err == nil {
			if n < 0 {
				return Piece{}, fmt.Errorf("%w: negative type id in %q", ErrMalformedTemplate, s)
			}
			body, typeID = s[:i], n
		}
	}

	if !strings.HasPrefix(body, "$") {
		return Piece{Special: body, TypeID: typeID}, nil
	}

	switch ref := body[1:]; ref {
	case "", "A", "a":
		return Piece{Sequence: SequenceA, TypeID: typeID}, nil
	case "B", "b":
		return Piece{Sequence: SequenceB, TypeID: typeID}, nil
	default:
		// "$1" is shorthand for "$A:1".
		n, err := strconv.Atoi(ref)
		if err != nil || n < 0 || typeID != 0 {
			return Piece{}, fmt.Errorf("%w: unknown sequence %q", ErrMalformedTemplate, s)
		}
		return Piece{Sequence: SequenceA, TypeID: n}, nil
	}
}

// ParseTemplate parses a whitespace-separated template.
func ParseTemplate(s string) ([]Piece, error) {
	fields := strings.Fields(s)
	pieces := make([]Piece, 0, len(fields))
	for _, f := range fields {
		p, err := ParsePiece(f)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, p)
	}
	return pieces, nil
}

// SpecialToken maps a template literal to the ids and tokens it emits.
type SpecialToken struct {
	ID     string
	IDs    []int
	Tokens []string
}

// NewSpecialToken is the common case of a literal emitting one token.
func NewSpecialToken(token string, id int) SpecialToken {
	return SpecialToken{ID: token, IDs: []int{id}, Tokens: []string{token}}
}

// Template is a Processor driven by parsed single and pair templates.
type Template struct {
	single   []Piece
	pair     []Piece
	specials map[string]SpecialToken
}

// NewTemplate parses and validates both templates. An empty pair template
// defaults to the single template followed by $B:1.
func NewTemplate(single, pair string, specials []SpecialToken) (*Template, error) {
	t := &Template{specials: make(map[string]SpecialToken, len(specials))}
	for _, s := range specials {
		if len(s.IDs) != len(s.Tokens) {
			return nil, fmt.Errorf("%w: special token %q has %d ids and %d tokens",
				ErrMalformedTemplate, s.ID, len(s.IDs), len(s.Tokens))
		}
		t.specials[s.ID] = s
	}

	var err error
	if t.single, err = ParseTemplate(single); err != nil {
		return nil, fmt.Errorf("single template: %w", err)
	}
	if pair == "" {
		t.pair = append(append([]Piece(nil), t.single...), Piece{Sequence: SequenceB, TypeID: 1})
	} else if t.pair, err = ParseTemplate(pair); err != nil {
		return nil, fmt.Errorf("pair template: %w", err)
	}

	hasA, hasB := references(t.single)
	if !hasA {
		return nil, ErrMissingSequenceA
	}
	if hasB {
		return nil, ErrSingleReferencesB
	}
	if hasA, hasB = references(t.pair); !hasA || !hasB {
		return nil, ErrPairMissingSequence
	}

	for _, pieces := range [][]Piece{t.single, t.pair} {
		for _, p := range pieces {
			if p.IsSequence() {
				continue
			}
			if _, ok := t.specials[p.Special]; !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownSpecialToken, p.Special)
			}
		}
	}
	return t, nil
}

func references(pieces []Piece) (hasA, hasB bool) {
	for _, p := range pieces {
		if !p.IsSequence() {
			continue
		}
		if p.Sequence == SequenceA {
			hasA = true
		} else {
			hasB = true
		}
	}
	return hasA, hasB
}

// Single returns the parsed single template.
func (t *Template) Single() []Piece { return t.single }

// Pair returns the parsed pair template.
func (t *Template) Pair() []Piece { return t.pair }

// AddedTokens implements Processor.
func (t *Template) AddedTokens(isPair bool) int {
	pieces := t.single
	if isPair {
		pieces = t.pair
	}
	n := 0
	for _, p := range pieces {
		if !p.IsSequence() {
			n += len(t.specials[p.Special].IDs)
		}
	}
	return n
}

// Process implements Processor. Overflow windows of either sequence are
// processed against the other sequence's kept window.
func (t *Template) Process(a encoding.Encoding, b *encoding.Encoding, addSpecial bool) encoding.Encoding {
	out := t.apply(a, b, addSpecial)

	var windows []encoding.Encoding
	for _, w := range a.OverflowChain() {
		windows = append(windows, t.apply(w, b, addSpecial))
	}
	if b != nil {
		for _, w := range b.OverflowChain() {
			windows = append(windows, t.apply(a, &w, addSpecial))
		}
	}
	return out.WithOverflow(windows)
}

func (t *Template) apply(a encoding.Encoding, b *encoding.Encoding, addSpecial bool) encoding.Encoding {
	pieces := t.single
	if b != nil {
		pieces = t.pair
	}

	parts := make([]encoding.Encoding, 0, len(pieces))
	for _, p := range pieces {
		switch {
		case !p.IsSequence():
			if addSpecial {
				s := t.specials[p.Special]
				parts = append(parts, encoding.Special(s.IDs, s.Tokens, p.TypeID))
			}
		case p.Sequence == SequenceA:
			parts = append(parts, a.WithTypeID(p.TypeID))
		default:
			parts = append(parts, b.WithTypeID(p.TypeID))
		}
	}
	return encoding.Merge(parts...)
}

// Bert returns the template "[CLS] $A [SEP]" / "[CLS] $A [SEP] $B:1 [SEP]:1".
func Bert(cls, sep SpecialToken) (*Template, error) {
	return NewTemplate(
		cls.ID+" $A "+sep.ID,
		cls.ID+" $A "+sep.ID+" $B:1 "+sep.ID+":1",
		[]SpecialToken{cls, sep},
	)
}

// Roberta returns the template "<s> $A </s>" / "<s> $A </s> </s> $B </s>".
func Roberta(cls, sep SpecialToken) (*Template, error) {
	return NewTemplate(
		cls.ID+" $A "+sep.ID,
		cls.ID+" $A "+sep.ID+" "+sep.ID+" $B "+sep.ID,
		[]SpecialToken{cls, sep},
	)
}

// Default concatenates the sequences with type ids 0 and 1 and adds nothing.
type Default struct{}

// AddedTokens implements Processor.
func (Default) AddedTokens(bool) int { return 0 }

// Process implements Processor.
func (Default) Process(a encoding.Encoding, b *encoding.Encoding, _ bool) encoding.Encoding {
	out := a.WithTypeID(0)
	if b != nil {
		out = out.Concat(b.WithTypeID(1))
	}
	var windows []encoding.Encoding
	for _, w := range a.OverflowChain() {
		w.Overflow = nil
		windows = append(windows, Default{}.Process(w, b, false))
	}
	return out.WithOverflow(windows)
}
