package testutil

import (
	"testing"

	"github.com/example/go-bytebpe/internal/encoding"
)

// AssertEncoding checks that every parallel array of enc, and of each
// overflow window, has the same length as its ids.
func AssertEncoding(tb testing.TB, enc encoding.Encoding) {
	tb.Helper()

	for i, e := range append([]encoding.Encoding{enc}, enc.OverflowChain()...) {
		n := len(e.IDs)
		if len(e.TypeIDs) != n || len(e.AttentionMask) != n || len(e.SpecialTokensMask) != n || len(e.Tokens) != n {
			tb.Fatalf("encoding %d: ragged arrays ids=%d type_ids=%d mask=%d special=%d tokens=%d",
				i, n, len(e.TypeIDs), len(e.AttentionMask), len(e.SpecialTokensMask), len(e.Tokens))
		}

		for j, m := range e.AttentionMask {
			if m != 0 && m != 1 {
				tb.Fatalf("encoding %d: attention_mask[%d] = %d", i, j, m)
			}
		}
	}
}
