package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/example/go-bytebpe/internal/config"
	"github.com/example/go-bytebpe/internal/tokenizer"
)

// errNeedsPipeline is returned by commands that need more than Encode from
// the sentencepiece backend.
var errNeedsPipeline = errors.New("this command requires the bpe backend")

// usesVocabMerges reports whether the GPT-2 file pair is configured.
func usesVocabMerges(p config.PathsConfig) bool {
	return p.VocabPath != "" && p.MergesPath != ""
}

// tokenizerFiles lists the files the configured backend reads.
func tokenizerFiles(cfg config.Config) ([]string, error) {
	backend, err := config.NormalizeBackend(cfg.Tokenizer.Backend)
	if err != nil {
		return nil, err
	}
	switch {
	case backend == config.BackendSentencePiece:
		return []string{cfg.Paths.SPMModelPath}, nil
	case usesVocabMerges(cfg.Paths):
		return []string{cfg.Paths.VocabPath, cfg.Paths.MergesPath}, nil
	default:
		return []string{cfg.Paths.TokenizerPath}, nil
	}
}

// openPipeline loads the bpe backend and applies the tokenizer section of
// the config on top of whatever the files declare. Truncation and padding
// from the files are kept unless the config sets a mode.
func openPipeline(cfg config.Config) (*tokenizer.Pipeline, error) {
	backend, err := config.NormalizeBackend(cfg.Tokenizer.Backend)
	if err != nil {
		return nil, err
	}
	if backend != config.BackendBPE {
		return nil, fmt.Errorf("%w (backend is %s)", errNeedsPipeline, backend)
	}

	tc := cfg.Tokenizer
	opts := []tokenizer.LoadOption{
		tokenizer.WithCacheCapacity(tc.CacheCapacity),
		tokenizer.WithLogger(slog.Default()),
		tokenizer.WithOptions(func(o *tokenizer.Options) {
			o.AddSpecialTokens = tc.AddSpecialTokens
			if tc.Workers > 0 {
				o.Workers = tc.Workers
			}
		}),
	}
	if tc.Truncation != "" {
		trunc, err := tc.TruncationParams()
		if err != nil {
			return nil, err
		}
		opts = append(opts, tokenizer.WithOptions(func(o *tokenizer.Options) { o.Truncation = trunc }))
	}

	var p *tokenizer.Pipeline
	if usesVocabMerges(cfg.Paths) {
		p, err = tokenizer.FromVocabMerges(cfg.Paths.VocabPath, cfg.Paths.MergesPath, opts...)
	} else {
		p, err = tokenizer.FromFile(cfg.Paths.TokenizerPath, opts...)
	}
	if err != nil {
		return nil, err
	}

	if tc.Padding == "" {
		return p, nil
	}
	return withPadding(p, tc)
}

// withPadding rebuilds p with the configured padding. The pad token falls
// back to the one declared in tokenizer.json.
func withPadding(p *tokenizer.Pipeline, tc config.TokenizerConfig) (*tokenizer.Pipeline, error) {
	o := p.Options()

	if tc.PadToken == "" && o.Padding != nil {
		tc.PadToken = o.Padding.PadToken
	}
	if tc.PadToken == "" {
		return nil, errors.New("padding requires a pad token (--pad-token)")
	}
	padID, ok := p.TokenToID(tc.PadToken)
	if !ok {
		return nil, fmt.Errorf("pad token %q is not in the vocabulary", tc.PadToken)
	}

	pad, err := tc.PaddingParams(padID)
	if err != nil {
		return nil, err
	}
	o.Padding = pad
	return tokenizer.New(o)
}

// openEncoder loads whichever backend is configured.
func openEncoder(cfg config.Config) (tokenizer.Tokenizer, error) {
	backend, err := config.NormalizeBackend(cfg.Tokenizer.Backend)
	if err != nil {
		return nil, err
	}
	if backend == config.BackendSentencePiece {
		return tokenizer.NewSentencePieceTokenizer(cfg.Paths.SPMModelPath)
	}
	return openPipeline(cfg)
}

// formatVersion reads the top-level "version" of a tokenizer.json.
func formatVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var doc struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Version == "" {
		return "", fmt.Errorf("%s has no version field", path)
	}
	return doc.Version, nil
}
