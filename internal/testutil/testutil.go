// Package testutil provides shared fixtures and skip helpers for tests.
//
// The fixture is a tiny byte-level vocabulary that covers "hello world" and
// a little punctuation. Loaders are exercised by writing it out in each
// supported file format.
//
// Skip helpers call t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so tests that need real model files remain
// runnable in partial environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    path := testutil.RequireSentencePieceModel(t)
//	    ...
//	}
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Fixture ids that tests refer to directly.
const (
	EndOfTextID = 0
	ClsID       = 1
	SepID       = 2
	PadID       = 3
	HelloID     = 23
	WorldID     = 28 // "Ġworld"
	CommaID     = 5
	BangID      = 4
	SpaceID     = 7 // "Ġ"
)

// Vocab is the fixture vocabulary. "Ġ" is the byte-level form of a space.
var Vocab = map[string]int{
	"<|endoftext|>": 0,
	"[CLS]":         1,
	"[SEP]":         2,
	"[PAD]":         3,
	"!":             4,
	",":             5,
	".":             6,
	"Ġ":             7,
	"a":             8,
	"d":             9,
	"e":             10,
	"h":             11,
	"i":             12,
	"l":             13,
	"n":             14,
	"o":             15,
	"r":             16,
	"s":             17,
	"t":             18,
	"w":             19,
	"he":            20,
	"ll":            21,
	"hell":          22,
	"hello":         23,
	"Ġw":            24,
	"or":            25,
	"Ġwor":          26,
	"Ġworl":         27,
	"Ġworld":        28,
}

// Merges is the fixture merge list in rank order.
var Merges = []string{
	"h e",
	"l l",
	"he ll",
	"hell o",
	"Ġ w",
	"o r",
	"Ġw or",
	"Ġwor l",
	"Ġworl d",
}

// WriteGPT2Files writes the fixture as vocab.json and merges.txt into a
// temporary directory and returns both paths.
func WriteGPT2Files(tb testing.TB) (vocabPath, mergesPath string) {
	tb.Helper()

	dir := tb.TempDir()
	vocabPath = filepath.Join(dir, "vocab.json")
	mergesPath = filepath.Join(dir, "merges.txt")

	data, err := json.Marshal(Vocab)
	if err != nil {
		tb.Fatalf("marshal vocab: %v", err)
	}
	writeFile(tb, vocabPath, data)
	writeFile(tb, mergesPath, []byte("#version: 0.2\n"+strings.Join(Merges, "\n")+"\n"))

	return vocabPath, mergesPath
}

// TokenizerJSON returns the fixture as tokenizer.json content: a byte-level
// BPE model with a [CLS] $A [SEP] template and four special added tokens.
func TokenizerJSON(tb testing.TB) []byte {
	tb.Helper()

	pairs := make([][]string, len(Merges))
	for i, m := range Merges {
		pairs[i] = strings.SplitN(m, " ", 2)
	}

	special := func(content string, id int) map[string]any {
		return map[string]any{
			"id": id, "content": content, "special": true,
			"single_word": false, "lstrip": false, "rstrip": false, "normalized": false,
		}
	}
	templateToken := func(content string, id int) map[string]any {
		return map[string]any{"id": content, "ids": []int{id}, "tokens": []string{content}}
	}
	piece := func(kind, id string, typeID int) map[string]any {
		return map[string]any{kind: map[string]any{"id": id, "type_id": typeID}}
	}

	doc := map[string]any{
		"version":    "1.0",
		"truncation": nil,
		"padding":    nil,
		"added_tokens": []any{
			special("<|endoftext|>", EndOfTextID),
			special("[CLS]", ClsID),
			special("[SEP]", SepID),
			special("[PAD]", PadID),
		},
		"normalizer": nil,
		"pre_tokenizer": map[string]any{
			"type": "ByteLevel", "add_prefix_space": false, "trim_offsets": true, "use_regex": true,
		},
		"post_processor": map[string]any{
			"type": "TemplateProcessing",
			"single": []any{
				piece("SpecialToken", "[CLS]", 0),
				piece("Sequence", "A", 0),
				piece("SpecialToken", "[SEP]", 0),
			},
			"pair": []any{
				piece("SpecialToken", "[CLS]", 0),
				piece("Sequence", "A", 0),
				piece("SpecialToken", "[SEP]", 0),
				piece("Sequence", "B", 1),
				piece("SpecialToken", "[SEP]", 1),
			},
			"special_tokens": map[string]any{
				"[CLS]": templateToken("[CLS]", ClsID),
				"[SEP]": templateToken("[SEP]", SepID),
			},
		},
		"decoder": map[string]any{"type": "ByteLevel"},
		"model": map[string]any{
			"type":                      "BPE",
			"dropout":                   nil,
			"unk_token":                 nil,
			"continuing_subword_prefix": nil,
			"end_of_word_suffix":        nil,
			"fuse_unk":                  false,
			"byte_fallback":             false,
			"vocab":                     Vocab,
			"merges":                    pairs,
		},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		tb.Fatalf("marshal tokenizer.json: %v", err)
	}
	return data
}

// WriteTokenizerJSON writes TokenizerJSON into a temporary directory and
// returns its path.
func WriteTokenizerJSON(tb testing.TB) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "tokenizer.json")
	writeFile(tb, path, TokenizerJSON(tb))
	return path
}

func writeFile(tb testing.TB, path string, data []byte) {
	tb.Helper()

	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
}

// RequireSentencePieceModel returns the path to models/tokenizer.model,
// searching upward from the working directory. The BYTEBPE_SP_MODEL
// environment variable overrides the search. It skips when no model exists.
func RequireSentencePieceModel(tb testing.TB) string {
	tb.Helper()

	if p := os.Getenv("BYTEBPE_SP_MODEL"); p != "" {
		if _, err := os.Stat(p); err != nil {
			tb.Skipf("sentencepiece model not found at BYTEBPE_SP_MODEL=%q", p)
		}
		return p
	}

	dir, err := filepath.Abs(".")
	if err != nil {
		tb.Fatalf("abs path: %v", err)
	}

	for {
		candidate := filepath.Join(dir, "models", "tokenizer.model")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	tb.Skip("models/tokenizer.model not found; set BYTEBPE_SP_MODEL to override")
	return ""
}
