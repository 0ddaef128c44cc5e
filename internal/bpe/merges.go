package bpe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/example/go-bytebpe/internal/vocab"
)

var (
	// ErrMalformedMerge is returned for a merge line that is not "left right".
	ErrMalformedMerge = errors.New("bpe: malformed merge")
	// ErrUnknownMergeToken is returned when a merge names a token missing from
	// the vocabulary.
	ErrUnknownMergeToken = errors.New("bpe: merge references unknown token")
	// ErrUnknownMergeResult is returned when the concatenation produced by a
	// merge is missing from the vocabulary.
	ErrUnknownMergeResult = errors.New("bpe: merge result not in vocabulary")
)

// Merge is one entry of an ordered merge list.
type Merge struct {
	Left  string
	Right string
}

// String renders the merge in merges.txt form.
func (m Merge) String() string { return m.Left + " " + m.Right }

// ParseMerge parses a single "left right" line.
func ParseMerge(line string) (Merge, error) {
	left, right, ok := strings.Cut(line, " ")
	if !ok || left == "" || right == "" || strings.Contains(right, " ") {
		return Merge{}, fmt.Errorf("%w: %q", ErrMalformedMerge, line)
	}
	return Merge{Left: left, Right: right}, nil
}

// ParseMerges parses merge lines in order, skipping blank lines and the
// "#version" header written by common BPE trainers.
func ParseMerges(lines []string) ([]Merge, error) {
	merges := make([]Merge, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimRight(line, "\r\n")
		if line == "" || (i == 0 && strings.HasPrefix(line, "#version")) {
			continue
		}
		m, err := ParseMerge(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		merges = append(merges, m)
	}
	return merges, nil
}

// ReadMerges parses a merges.txt stream.
func ReadMerges(r io.Reader) ([]Merge, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read merges: %w", err)
	}
	return ParseMerges(lines)
}

type pairKey struct {
	left, right int
}

// Rule is the outcome of merging one adjacent pair.
type Rule struct {
	Rank   int
	Result vocab.TokenDefinition
}

// MergeRuleTable maps adjacent id pairs to their merge rule. It is immutable
// and safe for concurrent readers.
type MergeRuleTable struct {
	rules map[pairKey]Rule
}

// NewMergeRuleTable resolves merges against v. Earlier merges get lower
// (better) ranks. When the vocabulary decorates inner pieces with a sub-word
// prefix, the prefix of the right-hand piece is dropped from the merged key.
// A repeated pair keeps its first rank.
func NewMergeRuleTable(v *vocab.Vocabulary, merges []Merge) (*MergeRuleTable, error) {
	prefix := v.Decoration().SubWordPrefix
	t := &MergeRuleTable{rules: make(map[pairKey]Rule, len(merges))}

	for rank, m := range merges {
		left, ok := v.ByKey(m.Left)
		if !ok {
			return nil, fmt.Errorf("%w: %q in merge %d (%s)", ErrUnknownMergeToken, m.Left, rank, m)
		}
		right, ok := v.ByKey(m.Right)
		if !ok {
			return nil, fmt.Errorf("%w: %q in merge %d (%s)", ErrUnknownMergeToken, m.Right, rank, m)
		}

		mergedKey := m.Left + strings.TrimPrefix(m.Right, prefix)
		result, ok := v.ByKey(mergedKey)
		if !ok {
			return nil, fmt.Errorf("%w: %q from merge %d (%s)", ErrUnknownMergeResult, mergedKey, rank, m)
		}

		k := pairKey{left: left.ID, right: right.ID}
		if _, dup := t.rules[k]; dup {
			continue
		}
		t.rules[k] = Rule{Rank: rank, Result: result}
	}

	return t, nil
}

// Lookup returns the rule for the pair (left, right).
func (t *MergeRuleTable) Lookup(left, right int) (Rule, bool) {
	r, ok := t.rules[pairKey{left: left, right: right}]
	return r, ok
}

// Len returns the number of distinct pairs.
func (t *MergeRuleTable) Len() int { return len(t.rules) }
