// Package bpe implements the byte-pair-encoding merge engine: a chunk is split
// into per-character symbols which are then merged greedily, always applying
// the lowest-ranked available merge first.
package bpe

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/example/go-bytebpe/internal/bytelevel"
	"github.com/example/go-bytebpe/internal/memo"
	"github.com/example/go-bytebpe/internal/pool"
	"github.com/example/go-bytebpe/internal/vocab"
)

// ErrUnknownUnkToken is returned when the configured unknown token is not in
// the vocabulary.
var ErrUnknownUnkToken = errors.New("bpe: unknown token not in vocabulary")

// DefaultCacheCapacity is the number of chunk results a model memoizes when
// Options.CacheCapacity is left at zero.
const DefaultCacheCapacity = 10000

// Options tunes how a Model handles characters and caching.
type Options struct {
	// UnkToken is substituted for characters with no vocabulary entry. Empty
	// means such characters are dropped.
	UnkToken string
	// FuseUnknown collapses runs of unknown characters into one UnkToken.
	FuseUnknown bool
	// ByteFallback re-encodes unknown characters as <0xXX> byte tokens when
	// every byte has an entry. It is tried before UnkToken.
	ByteFallback bool
	// ByteLevel maps each chunk through the byte-level codec before lookup.
	ByteLevel bool
	// IgnoreMerges returns a whole-chunk vocabulary hit without merging.
	IgnoreMerges bool
	// CacheCapacity bounds the chunk cache; negative disables it.
	CacheCapacity int
}

// Model is a BPE model bound to a vocabulary and merge table. It is safe for
// concurrent use.
type Model struct {
	vocab   *vocab.Vocabulary
	rules   *MergeRuleTable
	opts    Options
	unk     *vocab.TokenDefinition
	scratch *pool.Synced[Scratch]
	cache   *memo.Memoizer[string, []vocab.TokenDefinition]
}

// NewModel builds the merge table for merges and validates options against v.
func NewModel(v *vocab.Vocabulary, merges []Merge, opts Options) (*Model, error) {
	rules, err := NewMergeRuleTable(v, merges)
	if err != nil {
		return nil, err
	}
	return NewModelWithRules(v, rules, opts)
}

// NewModelWithRules is NewModel for an already-built merge table.
func NewModelWithRules(v *vocab.Vocabulary, rules *MergeRuleTable, opts Options) (*Model, error) {
	m := &Model{
		vocab:   v,
		rules:   rules,
		opts:    opts,
		scratch: pool.NewSynced(NewScratch, (*Scratch).Reset),
	}

	if opts.UnkToken != "" {
		def, ok := v.ByKey(opts.UnkToken)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownUnkToken, opts.UnkToken)
		}
		m.unk = &def
	}

	capacity := opts.CacheCapacity
	if capacity == 0 {
		capacity = DefaultCacheCapacity
	}
	m.cache = memo.New(m.tokenizePooled, capacity).OwnKeys(strings.Clone)

	return m, nil
}

// Vocab returns the model's vocabulary.
func (m *Model) Vocab() *vocab.Vocabulary { return m.vocab }

// Rules returns the model's merge table.
func (m *Model) Rules() *MergeRuleTable { return m.rules }

// Options returns the options the model was built with.
func (m *Model) Options() Options { return m.opts }

// Tokenize returns the merged token sequence for one chunk. Results may be
// served from the model's cache and must not be modified.
func (m *Model) Tokenize(chunk string) []vocab.TokenDefinition {
	if chunk == "" {
		return nil
	}
	return m.cache.Get(chunk)
}

// ClearCache drops memoized chunk results.
func (m *Model) ClearCache() { m.cache.Purge() }

func (m *Model) tokenizePooled(chunk string) []vocab.TokenDefinition {
	s, release := m.scratch.Borrow()
	defer release()
	return m.TokenizeWith(chunk, s)
}

// TokenizeWith tokenizes chunk using caller-owned scratch storage. The result
// is a fresh slice.
func (m *Model) TokenizeWith(chunk string, s *Scratch) []vocab.TokenDefinition {
	s.Reset()
	if chunk == "" {
		return nil
	}

	text := chunk
	if m.opts.ByteLevel {
		text = bytelevel.Encode(chunk)
	}

	if m.opts.IgnoreMerges {
		if def, ok := m.vocab.ByKey(text); ok {
			return []vocab.TokenDefinition{def}
		}
	}

	m.initialSymbols(text, s)
	if len(s.symbols) == 0 {
		return nil
	}
	m.merge(s)

	for i := 0; i >= 0; i = s.symbols[i].Next {
		s.out = append(s.out, s.symbols[i].Def)
	}
	return slices.Clone(s.out)
}

// initialSymbols looks each character of text up with its positional
// decoration and falls back to byte tokens or the unknown token.
func (m *Model) initialSymbols(text string, s *Scratch) {
	n := utf8.RuneCountInString(text)
	prevUnknown := false

	for i, start := 0, 0; start < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[start:])
		piece := text[start : start+size]
		start += size

		if def, ok := m.vocab.Decorated(piece, vocab.PositionOf(i, n)); ok {
			s.push(def)
			prevUnknown = false
			continue
		}

		if m.opts.ByteFallback && m.pushByteTokens(piece, s) {
			prevUnknown = false
			continue
		}

		if m.unk == nil {
			continue
		}
		if m.opts.FuseUnknown && prevUnknown {
			continue
		}
		s.push(*m.unk)
		prevUnknown = true
	}
}

// pushByteTokens pushes one <0xXX> token per byte of piece. Nothing is pushed
// unless every byte has an entry.
func (m *Model) pushByteTokens(piece string, s *Scratch) bool {
	var defs [utf8.UTFMax]vocab.TokenDefinition
	for i := 0; i < len(piece); i++ {
		def, ok := m.vocab.ByKey(ByteToken(piece[i]))
		if !ok {
			return false
		}
		defs[i] = def
	}
	for i := 0; i < len(piece); i++ {
		s.push(defs[i])
	}
	return true
}

// ByteToken returns the vocabulary key used for byte fallback.
func ByteToken(b byte) string {
	return fmt.Sprintf("<0x%02X>", b)
}

// merge runs the priority-driven merge loop over s.symbols.
func (m *Model) merge(s *Scratch) {
	syms := s.symbols
	for i := 0; i+1 < len(syms); i++ {
		m.pushCandidate(s, i, i+1)
	}

	for {
		c, ok := s.queue.Pop()
		if !ok {
			return
		}

		left := &syms[c.Pos]
		if left.Discarded || left.Next < 0 {
			continue
		}
		right := &syms[left.Next]

		rule, ok := m.rules.Lookup(left.Def.ID, right.Def.ID)
		if !ok || rule.Rank != c.Rank || rule.Result.ID != c.Result.ID {
			continue
		}

		left.Def = rule.Result
		right.Discarded = true
		left.Next = right.Next
		if right.Next >= 0 {
			syms[right.Next].Prev = c.Pos
		}

		if left.Prev >= 0 {
			m.pushCandidate(s, left.Prev, c.Pos)
		}
		if left.Next >= 0 {
			m.pushCandidate(s, c.Pos, left.Next)
		}
	}
}

func (m *Model) pushCandidate(s *Scratch, left, right int) {
	rule, ok := m.rules.Lookup(s.symbols[left].Def.ID, s.symbols[right].Def.ID)
	if !ok {
		return
	}
	s.queue.Push(Mergeable{Result: rule.Result, Pos: left, Rank: rule.Rank})
}
