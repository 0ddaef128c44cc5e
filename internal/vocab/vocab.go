// Package vocab holds the immutable id/key token store shared by every encode
// and decode call.
package vocab

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/example/go-bytebpe/internal/memo"
)

var (
	// ErrDuplicateID is returned when two definitions share an id.
	ErrDuplicateID = errors.New("vocab: duplicate token id")
	// ErrDuplicateKey is returned when two definitions share a key.
	ErrDuplicateKey = errors.New("vocab: duplicate token key")
	// ErrNegativeID is returned for ids below zero.
	ErrNegativeID = errors.New("vocab: negative token id")
)

// DefaultDecorationCache is the number of decorated keys kept per vocabulary.
const DefaultDecorationCache = 4096

// TokenDefinition is one vocabulary entry. Key is the lookup identifier and
// may carry decoration; Value is the displayable text and is empty for special
// tokens.
type TokenDefinition struct {
	ID      int
	Key     string
	Value   string
	Special bool
}

// Position locates a piece inside its word.
type Position int

const (
	// First is the opening piece of a multi-piece word.
	First Position = iota
	// Inner is a piece that neither opens nor closes its word.
	Inner
	// Last is the closing piece of a multi-piece word.
	Last
	// Single is a piece that is the whole word. It takes WordSuffix but never
	// SubWordPrefix: a one-piece word is also its own opening piece, which
	// matches how HuggingFace BPE keys whole words at training time.
	Single
)

// PositionOf returns the position of piece i in a word of n pieces.
func PositionOf(i, n int) Position {
	switch {
	case n == 1:
		return Single
	case i == 0:
		return First
	case i == n-1:
		return Last
	default:
		return Inner
	}
}

// Decoration describes how keys are marked by position: SubWordPrefix on every
// piece after the first, WordSuffix on the piece that ends a word.
type Decoration struct {
	SubWordPrefix string
	WordSuffix    string
}

// IsZero reports whether the decoration leaves keys unchanged.
func (d Decoration) IsZero() bool {
	return d.SubWordPrefix == "" && d.WordSuffix == ""
}

// Key decorates s for the given position.
func (d Decoration) Key(s string, pos Position) string {
	switch pos {
	case Inner:
		return d.SubWordPrefix + s
	case Last:
		return d.SubWordPrefix + s + d.WordSuffix
	case Single:
		// No prefix; see Single.
		return s + d.WordSuffix
	default:
		return s
	}
}

// Strip removes decoration from key.
func (d Decoration) Strip(key string) string {
	if d.SubWordPrefix != "" {
		key = strings.TrimPrefix(key, d.SubWordPrefix)
	}
	if d.WordSuffix != "" {
		key = strings.TrimSuffix(key, d.WordSuffix)
	}
	return key
}

// Builder accumulates definitions and rejects duplicates.
type Builder struct {
	defs  []TokenDefinition
	ids   map[int]struct{}
	keys  map[string]struct{}
	cache int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		ids:   make(map[int]struct{}),
		keys:  make(map[string]struct{}),
		cache: DefaultDecorationCache,
	}
}

// WithDecorationCache sets how many decorated keys the built vocabulary keeps.
func (b *Builder) WithDecorationCache(n int) *Builder {
	b.cache = n
	return b
}

// Add appends def. Value is filled in by Build when left empty.
func (b *Builder) Add(def TokenDefinition) error {
	if def.ID < 0 {
		return fmt.Errorf("%w: %d (%q)", ErrNegativeID, def.ID, def.Key)
	}
	if _, dup := b.ids[def.ID]; dup {
		return fmt.Errorf("%w: %d (%q)", ErrDuplicateID, def.ID, def.Key)
	}
	if _, dup := b.keys[def.Key]; dup {
		return fmt.Errorf("%w: %q (id %d)", ErrDuplicateKey, def.Key, def.ID)
	}
	b.ids[def.ID] = struct{}{}
	b.keys[def.Key] = struct{}{}
	b.defs = append(b.defs, def)
	return nil
}

// Len returns the number of definitions added so far.
func (b *Builder) Len() int { return len(b.defs) }

// Has reports whether key was already added.
func (b *Builder) Has(key string) bool {
	_, ok := b.keys[key]
	return ok
}

// Build freezes the builder into a Vocabulary.
func (b *Builder) Build(dec Decoration) *Vocabulary {
	defs := slices.Clone(b.defs)
	slices.SortFunc(defs, func(x, y TokenDefinition) int { return cmp.Compare(x.ID, y.ID) })

	v := &Vocabulary{
		defs:  defs,
		byID:  make(map[int]int, len(defs)),
		byKey: make(map[string]int, len(defs)),
		dec:   dec,
	}
	for i := range defs {
		d := &defs[i]
		switch {
		case d.Special:
			d.Value = ""
		case d.Value == "":
			d.Value = dec.Strip(d.Key)
		}
		v.byID[d.ID] = i
		v.byKey[d.Key] = i
	}

	v.decorated = memo.New(func(k decoratedKey) string {
		return dec.Key(k.s, k.pos)
	}, b.cache)

	return v
}

type decoratedKey struct {
	s   string
	pos Position
}

// Vocabulary is an immutable, bidirectional id/key store. It is safe for
// concurrent readers.
type Vocabulary struct {
	defs      []TokenDefinition
	byID      map[int]int
	byKey     map[string]int
	dec       Decoration
	decorated *memo.Memoizer[decoratedKey, string]
}

// FromMap builds a vocabulary from a key→id table. Keys listed in specials are
// flagged special.
func FromMap(m map[string]int, dec Decoration, specials ...string) (*Vocabulary, error) {
	special := make(map[string]bool, len(specials))
	for _, s := range specials {
		special[s] = true
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(m[a], m[b]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	b := NewBuilder()
	for _, k := range keys {
		if err := b.Add(TokenDefinition{ID: m[k], Key: k, Special: special[k]}); err != nil {
			return nil, err
		}
	}
	return b.Build(dec), nil
}

// Decoration returns the positional decoration used for lookups.
func (v *Vocabulary) Decoration() Decoration { return v.dec }

// Len returns the number of entries.
func (v *Vocabulary) Len() int { return len(v.defs) }

// MaxID returns the largest id, or -1 for an empty vocabulary.
func (v *Vocabulary) MaxID() int {
	if len(v.defs) == 0 {
		return -1
	}
	return v.defs[len(v.defs)-1].ID
}

// ByID looks a token up by id.
func (v *Vocabulary) ByID(id int) (TokenDefinition, bool) {
	i, ok := v.byID[id]
	if !ok {
		return TokenDefinition{}, false
	}
	return v.defs[i], true
}

// ByKey looks a token up by its exact key.
func (v *Vocabulary) ByKey(key string) (TokenDefinition, bool) {
	i, ok := v.byKey[key]
	if !ok {
		return TokenDefinition{}, false
	}
	return v.defs[i], true
}

// Decorated looks up the logical key s as it appears at pos.
func (v *Vocabulary) Decorated(s string, pos Position) (TokenDefinition, bool) {
	if v.dec.IsZero() {
		return v.ByKey(s)
	}
	return v.ByKey(v.decorated.Get(decoratedKey{s: s, pos: pos}))
}

// DecoratedKey returns the key Decorated would look up.
func (v *Vocabulary) DecoratedKey(s string, pos Position) string {
	if v.dec.IsZero() {
		return s
	}
	return v.decorated.Get(decoratedKey{s: s, pos: pos})
}

// Definitions returns every entry in ascending id order.
func (v *Vocabulary) Definitions() []TokenDefinition {
	return slices.Clone(v.defs)
}

// Specials returns the special entries in ascending id order.
func (v *Vocabulary) Specials() []TokenDefinition {
	var out []TokenDefinition
	for _, d := range v.defs {
		if d.Special {
			out = append(out, d)
		}
	}
	return out
}

// Map returns a fresh key→id table.
func (v *Vocabulary) Map() map[string]int {
	out := make(map[string]int, len(v.defs))
	for _, d := range v.defs {
		out[d.Key] = d.ID
	}
	return out
}
