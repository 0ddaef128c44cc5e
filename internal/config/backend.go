package config

import (
	"fmt"
	"strings"
)

const (
	BackendBPE           = "bpe"
	BackendSentencePiece = "sentencepiece"
)

func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendBPE
	}
	switch backend {
	case BackendBPE, BackendSentencePiece:
		return backend, nil
	case "spm", "sp":
		return BackendSentencePiece, nil
	default:
		return "", fmt.Errorf(
			"invalid backend %q (expected %s|%s|spm)",
			raw,
			BackendBPE,
			BackendSentencePiece,
		)
	}
}
