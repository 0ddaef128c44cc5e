package postprocess

import (
	"errors"
	"slices"
	"testing"

	"github.com/example/go-bytebpe/internal/encoding"
	"github.com/example/go-bytebpe/internal/vocab"
)

var (
	cls = NewSpecialToken("[CLS]", 101)
	sep = NewSpecialToken("[SEP]", 102)
)

func words(ids ...int) encoding.Encoding {
	defs := make([]vocab.TokenDefinition, len(ids))
	for i, id := range ids {
		defs[i] = vocab.TokenDefinition{ID: id, Key: "w"}
	}
	return encoding.FromDefinitions(defs, 0)
}

// ---------------------------------------------------------------------------
// parsing
// ---------------------------------------------------------------------------

func TestParsePiece(t *testing.T) {
	tests := []struct {
		in   string
		want Piece
	}{
		{"$A", Piece{Sequence: SequenceA}},
		{"$a", Piece{Sequence: SequenceA}},
		{"$", Piece{Sequence: SequenceA}},
		{"$:1", Piece{Sequence: SequenceA, TypeID: 1}},
		{"$B:1", Piece{Sequence: SequenceB, TypeID: 1}},
		{"$1", Piece{Sequence: SequenceA, TypeID: 1}},
		{"[SEP]", Piece{Special: "[SEP]"}},
		{"[SEP]:1", Piece{Special: "[SEP]", TypeID: 1}},
		{"a:b", Piece{Special: "a:b"}},
	}
	for _, tt := range tests {
		got, err := ParsePiece(tt.in)
		if err != nil {
			t.Errorf("ParsePiece(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePiece(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"$C", "$1:2", "$x"} {
		if _, err := ParsePiece(bad); !errors.Is(err, ErrMalformedTemplate) {
			t.Errorf("ParsePiece(%q) err = %v, want ErrMalformedTemplate", bad, err)
		}
	}
}

func TestNewTemplate_Validation(t *testing.T) {
	specials := []SpecialToken{cls, sep}
	tests := []struct {
		name         string
		single, pair string
		want         error
	}{
		{"missing A", "[CLS] [SEP]", "$A $B", ErrMissingSequenceA},
		{"single uses B", "$A $B", "$A $B", ErrSingleReferencesB},
		{"pair without B", "$A", "[CLS] $A [SEP]", ErrPairMissingSequence},
		{"unknown literal", "[CLS] $A [EOS]", "$A $B", ErrUnknownSpecialToken},
		{"unknown literal in pair", "$A", "$A [MASK] $B", ErrUnknownSpecialToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTemplate(tt.single, tt.pair, specials); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	tmpl, err := NewTemplate("$A", "", nil)
	if err != nil {
		t.Fatalf("NewTemplate with default pair: %v", err)
	}
	if len(tmpl.Pair()) != 2 || tmpl.Pair()[1].String() != "$B:1" {
		t.Errorf("default pair = %v", tmpl.Pair())
	}
}

// ---------------------------------------------------------------------------
// processing
// ---------------------------------------------------------------------------

func TestBert(t *testing.T) {
	tmpl, err := Bert(cls, sep)
	if err != nil {
		t.Fatalf("Bert: %v", err)
	}

	if n := tmpl.AddedTokens(false); n != 2 {
		t.Errorf("AddedTokens(single) = %d, want 2", n)
	}
	if n := tmpl.AddedTokens(true); n != 3 {
		t.Errorf("AddedTokens(pair) = %d, want 3", n)
	}

	single := tmpl.Process(words(1, 2), nil, true)
	if !slices.Equal(single.IDs, []int{101, 1, 2, 102}) {
		t.Errorf("single IDs = %v", single.IDs)
	}
	if !slices.Equal(single.SpecialTokensMask, []int{1, 0, 0, 1}) {
		t.Errorf("single special mask = %v", single.SpecialTokensMask)
	}

	b := words(3)
	pair := tmpl.Process(words(1, 2), &b, true)
	if !slices.Equal(pair.IDs, []int{101, 1, 2, 102, 3, 102}) {
		t.Errorf("pair IDs = %v", pair.IDs)
	}
	if !slices.Equal(pair.TypeIDs, []int{0, 0, 0, 0, 1, 1}) {
		t.Errorf("pair TypeIDs = %v", pair.TypeIDs)
	}
	if !slices.Equal(pair.Tokens, []string{"[CLS]", "w", "w", "[SEP]", "w", "[SEP]"}) {
		t.Errorf("pair Tokens = %v", pair.Tokens)
	}
}

func TestRoberta(t *testing.T) {
	tmpl, err := Roberta(NewSpecialToken("<s>", 0), NewSpecialToken("</s>", 2))
	if err != nil {
		t.Fatalf("Roberta: %v", err)
	}
	b := words(8)
	got := tmpl.Process(words(7), &b, true)
	if !slices.Equal(got.IDs, []int{0, 7, 2, 2, 8, 2}) {
		t.Errorf("IDs = %v", got.IDs)
	}
	if !slices.Equal(got.TypeIDs, []int{0, 0, 0, 0, 0, 0}) {
		t.Errorf("TypeIDs = %v", got.TypeIDs)
	}
}

func TestProcess_WithoutSpecialTokens(t *testing.T) {
	tmpl, err := Bert(cls, sep)
	if err != nil {
		t.Fatalf("Bert: %v", err)
	}
	b := words(3)
	got := tmpl.Process(words(1, 2), &b, false)
	if !slices.Equal(got.IDs, []int{1, 2, 3}) || !slices.Equal(got.TypeIDs, []int{0, 0, 1}) {
		t.Errorf("IDs/TypeIDs = %v / %v", got.IDs, got.TypeIDs)
	}
}

func TestProcess_MultiTokenSpecial(t *testing.T) {
	bos := SpecialToken{ID: "<bos>", IDs: []int{1, 2}, Tokens: []string{"<b>", "<os>"}}
	tmpl, err := NewTemplate("<bos> $A", "<bos> $A <bos>:1 $B:1", []SpecialToken{bos})
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	if n := tmpl.AddedTokens(true); n != 4 {
		t.Errorf("AddedTokens(pair) = %d, want 4", n)
	}
	got := tmpl.Process(words(9), nil, true)
	if !slices.Equal(got.IDs, []int{1, 2, 9}) {
		t.Errorf("IDs = %v", got.IDs)
	}
}

func TestProcess_OverflowWindows(t *testing.T) {
	tmpl, err := Bert(cls, sep)
	if err != nil {
		t.Fatalf("Bert: %v", err)
	}
	a := words(1, 2).WithOverflow([]encoding.Encoding{words(2, 3)})
	got := tmpl.Process(a, nil, true)

	chain := got.OverflowChain()
	if len(chain) != 1 || !slices.Equal(chain[0].IDs, []int{101, 2, 3, 102}) {
		t.Errorf("overflow = %+v", chain)
	}
}

func TestDefault(t *testing.T) {
	b := words(3)
	got := Default{}.Process(words(1, 2), &b, true)
	if !slices.Equal(got.IDs, []int{1, 2, 3}) || !slices.Equal(got.TypeIDs, []int{0, 0, 1}) {
		t.Errorf("IDs/TypeIDs = %v / %v", got.IDs, got.TypeIDs)
	}
	if (Default{}).AddedTokens(true) != 0 {
		t.Error("Default adds no tokens")
	}
}
