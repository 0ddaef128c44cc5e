package normalizer

import "testing"

func TestNormalizers(t *testing.T) {
	tests := []struct {
		name  string
		n     Normalizer
		input string
		want  string
	}{
		{
			name:  "lowercase",
			n:     Lowercase,
			input: "Hello WORLD",
			want:  "hello world",
		},
		{
			name:  "normalizes CRLF to LF",
			n:     LineEndings,
			input: "line one\r\nline two",
			want:  "line one\nline two",
		},
		{
			name:  "normalizes bare CR to LF",
			n:     LineEndings,
			input: "line one\rline two",
			want:  "line one\nline two",
		},
		{
			name:  "NFC composes",
			n:     NFC,
			input: "e\u0301",
			want:  "\u00e9",
		},
		{
			name:  "NFD decomposes",
			n:     NFD,
			input: "\u00e9",
			want:  "e\u0301",
		},
		{
			name:  "NFKC folds compatibility forms",
			n:     NFKC,
			input: "\ufb01",
			want:  "fi",
		},
		{
			name:  "strip accents from precomposed text",
			n:     StripAccents,
			input: "café naïve",
			want:  "cafe naive",
		},
		{
			name:  "strip both ends",
			n:     Strip{Left: true, Right: true},
			input: "\t hi \n",
			want:  "hi",
		},
		{
			name:  "strip right only",
			n:     Strip{Right: true},
			input: " hi ",
			want:  " hi",
		},
		{
			name:  "prepend",
			n:     Prepend{Prefix: "▁"},
			input: "hi",
			want:  "▁hi",
		},
		{
			name:  "prepend skips empty input",
			n:     Prepend{Prefix: "▁"},
			input: "",
			want:  "",
		},
		{
			name:  "literal replace",
			n:     NewLiteralReplace(" ", "▁"),
			input: "a b c",
			want:  "a▁b▁c",
		},
		{
			name:  "sequence runs in order",
			n:     Sequence{NFD, StripAccents, Lowercase},
			input: "Été",
			want:  "ete",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.n.Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRegexReplace(t *testing.T) {
	r, err := NewRegexReplace(`\s+`, " ")
	if err != nil {
		t.Fatalf("NewRegexReplace: %v", err)
	}
	if got := r.Normalize("a \t\n b  c"); got != "a b c" {
		t.Errorf("Normalize = %q, want %q", got, "a b c")
	}
	if got := r.Normalize("a\u00a0\u3000b"); got != "a b" {
		t.Errorf("Normalize(unicode spaces) = %q, want %q", got, "a b")
	}

	// Content is literal: $1 is not expanded.
	r, err = NewRegexReplace(`(x)`, "$1")
	if err != nil {
		t.Fatalf("NewRegexReplace: %v", err)
	}
	if got := r.Normalize("axb"); got != "a$1b" {
		t.Errorf("Normalize = %q, want a$1b", got)
	}

	if _, err := NewRegexReplace(`(`, ""); err == nil {
		t.Error("expected compile error for unbalanced pattern")
	}
}

func TestBert(t *testing.T) {
	tests := []struct {
		name  string
		b     Bert
		input string
		want  string
	}{
		{
			name:  "defaults",
			b:     NewBert(),
			input: "Héllo\tWörld\u0000!",
			want:  "hello world!",
		},
		{
			name:  "pads chinese characters",
			b:     Bert{HandleChineseChars: true},
			input: "ab中文c",
			want:  "ab 中  文 c",
		},
		{
			name:  "drops control characters",
			b:     Bert{CleanText: true},
			input: "a\u200bb\u0007c\ufffd",
			want:  "abc",
		},
		{
			name:  "keeps case when lowercase is off",
			b:     Bert{CleanText: true, StripAccents: true},
			input: "École",
			want:  "Ecole",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
