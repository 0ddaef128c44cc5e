package tokenizer

import (
	"errors"
	"fmt"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
)

// ErrEmptyPath is returned when NewSentencePieceTokenizer is called with an empty path.
var ErrEmptyPath = errors.New("tokenizer model path must not be empty")

// SentencePieceTokenizer implements Tokenizer with a pure-Go unigram
// SentencePiece model. It is the alternative backend selectable from config.
type SentencePieceTokenizer struct {
	proc gosp.Sentencepiece
}

// NewSentencePieceTokenizer loads a SentencePiece model from the given path.
func NewSentencePieceTokenizer(modelPath string) (*SentencePieceTokenizer, error) {
	if modelPath == "" {
		return nil, ErrEmptyPath
	}

	proc, err := gosp.NewSentencepieceFromFile(modelPath, false)
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model %q: %w", modelPath, err)
	}

	return &SentencePieceTokenizer{proc: proc}, nil
}

// Encode tokenizes text into SentencePiece ids.
func (t *SentencePieceTokenizer) Encode(text string) ([]int, error) {
	if text == "" {
		return []int{}, nil
	}

	ids := t.proc.TokenizeToIDs(text)

	result := make([]int, len(ids))
	for i, id := range ids {
		result[i] = int(id)
	}

	return result, nil
}
