package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/go-bytebpe/internal/addedtokens"
	"github.com/example/go-bytebpe/internal/bpe"
	"github.com/example/go-bytebpe/internal/decoder"
	"github.com/example/go-bytebpe/internal/pretokenizer"
	"github.com/example/go-bytebpe/internal/vocab"
)

// EndOfText is the GPT-2 document separator.
const EndOfText = "<|endoftext|>"

// FromVocabMerges builds a GPT-2 style byte-level tokenizer from a vocab.json
// and merges.txt pair. If the vocabulary has <|endoftext|> it is registered
// as a special added token.
func FromVocabMerges(vocabPath, mergesPath string, opts ...LoadOption) (*Pipeline, error) {
	settings := applyLoadOptions(opts)

	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("read vocab %q: %w", vocabPath, err)
	}
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse vocab %q: %w", vocabPath, err)
	}

	f, err := os.Open(mergesPath)
	if err != nil {
		return nil, fmt.Errorf("open merges %q: %w", mergesPath, err)
	}
	defer f.Close()

	merges, err := bpe.ReadMerges(f)
	if err != nil {
		return nil, fmt.Errorf("parse merges %q: %w", mergesPath, err)
	}

	var added []addedtokens.Token
	var specials []string
	if id, ok := m[EndOfText]; ok {
		added = append(added, addedtokens.Token{ID: id, Content: EndOfText, Special: true})
		specials = append(specials, EndOfText)
	}

	v, err := vocab.FromMap(m, vocab.Decoration{}, specials...)
	if err != nil {
		return nil, err
	}
	model, err := bpe.NewModel(v, merges, bpe.Options{
		ByteLevel:     true,
		CacheCapacity: settings.cacheCapacity,
	})
	if err != nil {
		return nil, err
	}

	return settings.build(Options{
		Model:        model,
		PreTokenizer: pretokenizer.ByteLevel{UseRegex: true},
		Decoder:      decoder.ByteLevel{},
		AddedTokens:  added,
	})
}
