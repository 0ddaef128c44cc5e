package decoder

import (
	"slices"
	"testing"
)

func TestDecoders(t *testing.T) {
	tests := []struct {
		name   string
		d      Decoder
		tokens []string
		want   string
	}{
		{"nil joins", nil, []string{"a", "b"}, "ab"},
		{"byte level", ByteLevel{}, []string{"Hello", "Ġworld", "Ċ"}, "Hello world\n"},
		{"byte level multibyte across tokens", ByteLevel{}, []string{"Ã", "©"}, "é"},
		{"byte fallback", ByteFallback{}, []string{"a", "<0xC3>", "<0xA9>", "b"}, "aéb"},
		{"byte fallback invalid", ByteFallback{}, []string{"<0xC3>", "x"}, "\uFFFDx"},
		{"byte fallback lookalike", ByteFallback{}, []string{"<0xZZ>", "<0x41"}, "<0xZZ><0x41"},
		{"bpe suffix", BPESuffix{Suffix: "</w>"}, []string{"hel", "lo</w>", "you</w>"}, "hello you"},
		{"strip", Strip{Content: " ", Start: 1}, []string{"  a", " b"}, " ab"},
		{"strip stop", Strip{Content: "_", Stop: 2}, []string{"a___"}, "a_"},
		{"replace", Replace{Pattern: "▁", Content: " "}, []string{"▁Hey", "▁you"}, " Hey you"},
		{"fuse", Fuse{}, []string{"a", "b", "c"}, "abc"},
		{"metaspace", Metaspace{Replacement: '▁', AddPrefixSpace: true}, []string{"▁Hey", "▁you"}, "Hey you"},
		{
			"sequence",
			Sequence{Replace{Pattern: "▁", Content: " "}, ByteFallback{}, Fuse{}, Strip{Content: " ", Start: 1}},
			[]string{"▁a", "<0x21>"},
			"a!",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decode(tt.d, tt.tokens); got != tt.want {
				t.Errorf("Decode(%q) = %q, want %q", tt.tokens, got, tt.want)
			}
		})
	}
}

func TestFuseReturnsSingleToken(t *testing.T) {
	got := Fuse{}.DecodeChain([]string{"x", "y"})
	if !slices.Equal(got, []string{"xy"}) {
		t.Errorf("DecodeChain = %q", got)
	}
}
