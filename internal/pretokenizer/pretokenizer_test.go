package pretokenizer

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/example/go-bytebpe/internal/textview"
)

func run(p PreTokenizer, s string) []string {
	return Strings(p.PreTokenize([]textview.View{textview.New(s)}))
}

// ---------------------------------------------------------------------------
// Split behaviors
// ---------------------------------------------------------------------------

func TestSplit_IsolatedWordsAndPunctuation(t *testing.T) {
	p := MustSplit(` ?\p{L}+|[^\s\p{L}]+`, Isolated, false)

	got := run(p, "hello, world")
	want := []string{"hello", ",", " world"}
	if !slices.Equal(got, want) {
		t.Fatalf("chunks = %q, want %q", got, want)
	}
	if strings.Join(got, "") != "hello, world" {
		t.Errorf("chunks do not cover input: %q", got)
	}
}

func TestSplit_Behaviors(t *testing.T) {
	// Delimiter is "-" (the match, so inverted).
	tests := []struct {
		behavior Behavior
		want     []string
	}{
		{Removed, []string{"a", "b", "c"}},
		{Isolated, []string{"a", "-", "b", "-", "-", "c"}},
		{MergedWithPrevious, []string{"a-", "b-", "-", "c"}},
		{MergedWithNext, []string{"a", "-b", "-", "-c"}},
		{Contiguous, []string{"a", "-", "b", "--", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.behavior.String(), func(t *testing.T) {
			p, err := NewLiteralSplit("-", tt.behavior)
			if err != nil {
				t.Fatalf("NewLiteralSplit: %v", err)
			}
			if got := run(p, "a-b--c"); !slices.Equal(got, tt.want) {
				t.Errorf("chunks = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplit_ViewsShareSource(t *testing.T) {
	src := "foo bar"
	chunks := MustSplit(`\w+`, Removed, false).PreTokenize([]textview.View{textview.New(src)})
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if chunks[1].Offset() != 4 || chunks[1].Source() != src {
		t.Errorf("second chunk = off %d src %q", chunks[1].Offset(), chunks[1].Source())
	}
}

func TestSplit_MultibyteOffsets(t *testing.T) {
	got := run(MustSplit(`\p{L}+`, Isolated, false), "héllo wörld")
	want := []string{"héllo", " ", "wörld"}
	if !slices.Equal(got, want) {
		t.Errorf("chunks = %q, want %q", got, want)
	}
}

func TestSplit_UnicodeClasses(t *testing.T) {
	tests := []struct {
		name string
		p    PreTokenizer
		in   string
		want []string
	}{
		{"whitespace keeps accented words", Whitespace{}, "héllo wörld", []string{"héllo", "wörld"}},
		{"whitespace splits on ideographic space", Whitespace{}, "日本\u3000語!", []string{"日本", "語", "!"}},
		{
			"gpt2 treats nbsp as whitespace",
			ByteLevel{UseRegex: true},
			"a\u00a0\u00a0b  c",
			[]string{"a", "\u00a0", "\u00a0", "b", " ", " c"},
		},
		{
			"gpt2 treats ideographic space as whitespace",
			ByteLevel{UseRegex: true},
			"x\u3000\u3000!",
			[]string{"x", "\u3000", "\u3000", "!"},
		},
		{"digits class", MustSplit(`\d+`, Isolated, false), "a١٢b", []string{"a", "١٢", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.p, tt.in); !slices.Equal(got, tt.want) {
				t.Errorf("chunks = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewSplit_BadPattern(t *testing.T) {
	if _, err := NewSplit(`[`, Isolated, false); err == nil {
		t.Error("expected compile error")
	}
}

func TestParseBehavior(t *testing.T) {
	for in, want := range map[string]Behavior{
		"Removed":            Removed,
		"isolated":           Isolated,
		"MergedWithPrevious": MergedWithPrevious,
		"merged_with_next":   MergedWithNext,
		"Contiguous":         Contiguous,
	} {
		got, err := ParseBehavior(in)
		if err != nil || got != want {
			t.Errorf("ParseBehavior(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseBehavior("sideways"); !errors.Is(err, ErrUnknownBehavior) {
		t.Errorf("err = %v, want ErrUnknownBehavior", err)
	}
}

// ---------------------------------------------------------------------------
// byte level and friends
// ---------------------------------------------------------------------------

func TestByteLevel(t *testing.T) {
	tests := []struct {
		name string
		p    ByteLevel
		in   string
		want []string
	}{
		{"pass through", ByteLevel{}, "Hello world", []string{"Hello world"}},
		{"regex", ByteLevel{UseRegex: true}, "Hello world's  end", []string{"Hello", " world", "'s", " ", " end"}},
		{"prefix space", ByteLevel{AddPrefixSpace: true}, "Hi", []string{" Hi"}},
		{"prefix space kept", ByteLevel{AddPrefixSpace: true, UseRegex: true}, " Hi there", []string{" Hi", " there"}},
		{"digits", ByteLevel{UseRegex: true}, "abc123!?", []string{"abc", "123", "!?"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.p, tt.in); !slices.Equal(got, tt.want) {
				t.Errorf("chunks = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSimplePreTokenizers(t *testing.T) {
	tests := []struct {
		name string
		p    PreTokenizer
		in   string
		want []string
	}{
		{"whitespace", Whitespace{}, "Hey friend!  How are you?!?", []string{"Hey", "friend", "!", "How", "are", "you", "?!?"}},
		{"whitespace split", WhitespaceSplit{}, " a\tbc\n d ", []string{"a", "bc", "d"}},
		{"punctuation", Punctuation{Behavior: Isolated}, "a,b!!", []string{"a", ",", "b", "!", "!"}},
		{"punctuation merged", Punctuation{Behavior: MergedWithPrevious}, "hi,you", []string{"hi,", "you"}},
		{"digits contiguous", Digits{}, "a123b4", []string{"a", "123", "b", "4"}},
		{"digits individual", Digits{IndividualDigits: true}, "a12", []string{"a", "1", "2"}},
		{"char delimiter", CharDelimiter{Delimiter: '|'}, "x|y||z", []string{"x", "y", "z"}},
		{"metaspace", Metaspace{Replacement: '▁', AddPrefixSpace: true}, "hello world", []string{"▁hello", "▁world"}},
		{
			"sequence",
			Sequence{WhitespaceSplit{}, Digits{IndividualDigits: true}},
			"ab12 c3",
			[]string{"ab", "1", "2", "c", "3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.p, tt.in); !slices.Equal(got, tt.want) {
				t.Errorf("chunks = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetaspace_FirstOnly(t *testing.T) {
	src := textview.New("hi<s>you there")
	chunks := []textview.View{src.MustSub(0, 2), src.MustSub(5, 9)}

	always := Strings(Metaspace{Replacement: '▁', AddPrefixSpace: true}.PreTokenize(chunks))
	if want := []string{"▁hi", "▁you", "▁there"}; !slices.Equal(always, want) {
		t.Errorf("always: chunks = %q, want %q", always, want)
	}

	first := Strings(Metaspace{Replacement: '▁', AddPrefixSpace: true, FirstOnly: true}.PreTokenize(chunks))
	if want := []string{"▁hi", "you", "▁there"}; !slices.Equal(first, want) {
		t.Errorf("first: chunks = %q, want %q", first, want)
	}
}

func TestEmptyInputYieldsNoChunks(t *testing.T) {
	for _, p := range []PreTokenizer{Whitespace{}, ByteLevel{UseRegex: true}, Digits{}} {
		if got := run(p, ""); len(got) != 0 {
			t.Errorf("%T: chunks = %q, want none", p, got)
		}
	}
}
