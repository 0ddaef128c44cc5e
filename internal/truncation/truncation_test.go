package truncation

import (
	"errors"
	"slices"
	"testing"

	"github.com/example/go-bytebpe/internal/encoding"
)

func seq(n, base int) encoding.Encoding {
	ids := make([]int, n)
	tokens := make([]string, n)
	for i := range n {
		ids[i] = base + i
		tokens[i] = "t"
	}
	return encoding.Special(ids, tokens, 0)
}

func mustNew(t *testing.T, p Params) Truncator {
	t.Helper()
	tr, err := New(p)
	if err != nil {
		t.Fatalf("New(%+v): %v", p, err)
	}
	return tr
}

// ---------------------------------------------------------------------------
// parameters
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Params
		wantErr bool
	}{
		{"none ignores lengths", Params{}, false},
		{"valid", Params{Strategy: LongestFirst, MaxLength: 8, Stride: 2}, false},
		{"zero max length", Params{Strategy: LongestFirst}, true},
		{"negative stride", Params{Strategy: OnlyFirst, MaxLength: 4, Stride: -1}, true},
		{"stride equals max", Params{Strategy: OnlyFirst, MaxLength: 4, Stride: 4}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("err = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestParseStrategyAndDirection(t *testing.T) {
	s, err := ParseStrategy("longest_first")
	if err != nil || s != LongestFirst {
		t.Errorf("ParseStrategy = %v, %v", s, err)
	}
	if s, _ := ParseStrategy("OnlySecond"); s != OnlySecond {
		t.Errorf("ParseStrategy(OnlySecond) = %v", s)
	}
	if _, err := ParseStrategy("middle_out"); err == nil {
		t.Error("expected error for unknown strategy")
	}

	d, err := ParseDirection("left")
	if err != nil || d != Left {
		t.Errorf("ParseDirection = %v, %v", d, err)
	}
	if _, err := ParseDirection("up"); err == nil {
		t.Error("expected error for unknown direction")
	}
}

// ---------------------------------------------------------------------------
// strategies
// ---------------------------------------------------------------------------

func TestNoneLeavesInputAlone(t *testing.T) {
	tr := mustNew(t, Params{})
	a := seq(100, 0)
	got, _, err := tr.Truncate(a, nil, 2)
	if err != nil || got.Len() != 100 {
		t.Errorf("Truncate = len %d, %v", got.Len(), err)
	}
}

func TestSingleSequence(t *testing.T) {
	tr := mustNew(t, Params{Strategy: LongestFirst, MaxLength: 5})
	got, b, err := tr.Truncate(seq(8, 0), nil, 2)
	if err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if b != nil {
		t.Error("b should stay nil")
	}
	if !slices.Equal(got.IDs, []int{0, 1, 2}) {
		t.Errorf("IDs = %v, want [0 1 2]", got.IDs)
	}
}

func TestLongestFirstSumsToTarget(t *testing.T) {
	tests := []struct {
		la, lb, max, added int
		wantA, wantB       int
	}{
		{10, 3, 8, 0, 5, 3},
		{3, 10, 8, 0, 3, 5},
		{10, 10, 9, 1, 4, 4},
		{10, 10, 9, 0, 4, 5},
		{6, 7, 10, 3, 3, 4},
		{1, 20, 6, 2, 1, 3},
	}
	for _, tt := range tests {
		tr := mustNew(t, Params{Strategy: LongestFirst, MaxLength: tt.max})
		a, b, err := tr.Truncate(seq(tt.la, 0), ptr(seq(tt.lb, 100)), tt.added)
		if err != nil {
			t.Fatalf("Truncate(%d, %d): %v", tt.la, tt.lb, err)
		}
		if a.Len() != tt.wantA || b.Len() != tt.wantB {
			t.Errorf("Truncate(%d, %d, max %d, added %d) = %d+%d, want %d+%d",
				tt.la, tt.lb, tt.max, tt.added, a.Len(), b.Len(), tt.wantA, tt.wantB)
		}
		if a.Len()+b.Len() != tt.max-tt.added {
			t.Errorf("sum %d != target %d", a.Len()+b.Len(), tt.max-tt.added)
		}
	}
}

func TestOnlyFirstAndOnlySecond(t *testing.T) {
	first := mustNew(t, Params{Strategy: OnlyFirst, MaxLength: 6})
	a, b, err := first.Truncate(seq(5, 0), ptr(seq(4, 100)), 0)
	if err != nil || a.Len() != 2 || b.Len() != 4 {
		t.Errorf("OnlyFirst = %d+%d, %v", a.Len(), b.Len(), err)
	}
	if _, _, err := first.Truncate(seq(5, 0), ptr(seq(7, 100)), 0); !errors.Is(err, ErrSequenceTooShort) {
		t.Errorf("err = %v, want ErrSequenceTooShort", err)
	}

	second := mustNew(t, Params{Strategy: OnlySecond, MaxLength: 6})
	a, b, err = second.Truncate(seq(5, 0), ptr(seq(4, 100)), 0)
	if err != nil || a.Len() != 5 || b.Len() != 1 {
		t.Errorf("OnlySecond = %d+%d, %v", a.Len(), b.Len(), err)
	}
	if _, _, err := second.Truncate(seq(9, 0), nil, 0); !errors.Is(err, ErrSecondSequenceMissing) {
		t.Errorf("err = %v, want ErrSecondSequenceMissing", err)
	}
}

func TestTooManyAddedTokens(t *testing.T) {
	tr := mustNew(t, Params{Strategy: LongestFirst, MaxLength: 2})
	if _, _, err := tr.Truncate(seq(3, 0), nil, 3); !errors.Is(err, ErrSequenceTooShort) {
		t.Errorf("err = %v, want ErrSequenceTooShort", err)
	}
}

// ---------------------------------------------------------------------------
// windows and overflow
// ---------------------------------------------------------------------------

func TestWindows(t *testing.T) {
	tests := []struct {
		name             string
		n, maxLen, stride int
		dir              Direction
		want             [][2]int
	}{
		{"right no stride", 7, 3, 0, Right, [][2]int{{0, 3}, {3, 6}, {6, 7}}},
		{"right stride", 7, 4, 2, Right, [][2]int{{0, 4}, {2, 6}, {4, 7}}},
		{"left no stride", 7, 3, 0, Left, [][2]int{{4, 7}, {1, 4}, {0, 1}}},
		{"left stride", 6, 4, 1, Left, [][2]int{{2, 6}, {0, 3}}},
		{"fits", 3, 5, 1, Right, [][2]int{{0, 3}}},
		{"oversized stride clamped", 5, 2, 9, Right, [][2]int{{0, 2}, {1, 3}, {2, 4}, {3, 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Windows(tt.n, tt.maxLen, tt.stride, tt.dir)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Windows = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverflowChain(t *testing.T) {
	tr := mustNew(t, Params{Strategy: LongestFirst, MaxLength: 4, Stride: 1})
	got, _, err := tr.Truncate(seq(7, 0), nil, 0)
	if err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if !slices.Equal(got.IDs, []int{0, 1, 2, 3}) {
		t.Errorf("first window = %v", got.IDs)
	}
	chain := got.OverflowChain()
	if len(chain) != 1 || !slices.Equal(chain[0].IDs, []int{3, 4, 5, 6}) {
		t.Errorf("overflow = %+v", chain)
	}
}

func TestLeftDirectionKeepsTail(t *testing.T) {
	tr := mustNew(t, Params{Strategy: OnlyFirst, MaxLength: 3, Direction: Left})
	got, _, err := tr.Truncate(seq(5, 0), nil, 0)
	if err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if !slices.Equal(got.IDs, []int{2, 3, 4}) {
		t.Errorf("IDs = %v, want [2 3 4]", got.IDs)
	}
	if chain := got.OverflowChain(); len(chain) != 1 || !slices.Equal(chain[0].IDs, []int{0, 1}) {
		t.Errorf("overflow = %+v", chain)
	}
}

func ptr[T any](v T) *T { return &v }
