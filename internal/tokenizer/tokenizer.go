// Package tokenizer assembles the full text-to-ids pipeline: added-token
// extraction, normalization, pre-tokenization, the BPE model, truncation,
// post-processing and padding, plus decoding back to text.
package tokenizer

// Tokenizer encodes text into token ids. Pipeline and the SentencePiece
// backend both implement it.
type Tokenizer interface {
	Encode(text string) ([]int, error)
}
