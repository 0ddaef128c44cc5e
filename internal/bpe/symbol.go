package bpe

import (
	"cmp"

	"github.com/emirpasic/gods/v2/trees/binaryheap"

	"github.com/example/go-bytebpe/internal/vocab"
)

// Symbol is one live or discarded piece of the chunk being merged. Symbols sit
// in a flat arena and link to their neighbours by index; -1 marks the ends.
type Symbol struct {
	Def       vocab.TokenDefinition
	Pos       int
	Prev      int
	Next      int
	Discarded bool
}

// Mergeable is a candidate merge of the symbol at Pos with its successor.
type Mergeable struct {
	Result vocab.TokenDefinition
	Pos    int
	Rank   int
}

// compareMergeable orders candidates by rank, then leftmost position.
func compareMergeable(a, b Mergeable) int {
	if c := cmp.Compare(a.Rank, b.Rank); c != 0 {
		return c
	}
	return cmp.Compare(a.Pos, b.Pos)
}

// Scratch is the per-call working storage of the merge engine.
type Scratch struct {
	symbols []Symbol
	queue   *binaryheap.Heap[Mergeable]
	out     []vocab.TokenDefinition
}

// NewScratch allocates empty working storage.
func NewScratch() *Scratch {
	return &Scratch{
		symbols: make([]Symbol, 0, 64),
		queue:   binaryheap.NewWith(compareMergeable),
		out:     make([]vocab.TokenDefinition, 0, 64),
	}
}

// Reset clears s for reuse while keeping its buffers.
func (s *Scratch) Reset() {
	s.symbols = s.symbols[:0]
	s.out = s.out[:0]
	s.queue.Clear()
}

func (s *Scratch) push(def vocab.TokenDefinition) {
	i := len(s.symbols)
	if i > 0 {
		s.symbols[i-1].Next = i
	}
	s.symbols = append(s.symbols, Symbol{Def: def, Pos: i, Prev: i - 1, Next: -1})
}
