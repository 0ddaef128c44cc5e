package model

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownRepo is returned when no file list is given for a repository
// that has no built-in manifest.
var ErrUnknownRepo = errors.New("unknown tokenizer repo")

// DefaultRevision is used for files that do not pin a revision.
const DefaultRevision = "main"

// Well-known tokenizer file names.
const (
	TokenizerJSON = "tokenizer.json"
	VocabJSON     = "vocab.json"
	MergesTXT     = "merges.txt"
	SPModel       = "tokenizer.model"
)

type Manifest struct {
	Repo  string          `json:"repo"`
	Files []TokenizerFile `json:"files"`
}

// TokenizerFile is a single file fetched from a hub repository. An empty
// SHA256 is resolved from hub metadata or recorded on first download.
type TokenizerFile struct {
	Filename string `json:"filename"`
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

// KnownManifest returns the file list for a repository with a built-in
// manifest.
func KnownManifest(repo string) (Manifest, error) {
	var files []string
	switch repo {
	case "openai-community/gpt2", "gpt2":
		files = []string{TokenizerJSON, VocabJSON, MergesTXT}
	case "FacebookAI/roberta-base", "roberta-base":
		files = []string{TokenizerJSON, VocabJSON, MergesTXT}
	case "EleutherAI/gpt-neox-20b":
		files = []string{TokenizerJSON}
	default:
		return Manifest{}, fmt.Errorf("%w %q; pass the file names explicitly", ErrUnknownRepo, repo)
	}
	return newManifest(repo, DefaultRevision, files), nil
}

// ManifestFor builds the manifest for a download. An explicit file list wins
// over the built-in manifest.
func ManifestFor(repo, revision string, files []string) (Manifest, error) {
	if revision == "" {
		revision = DefaultRevision
	}
	if len(files) == 0 {
		m, err := KnownManifest(repo)
		if err != nil {
			return Manifest{}, err
		}
		for i := range m.Files {
			m.Files[i].Revision = revision
		}
		return m, nil
	}
	return newManifest(repo, revision, files), nil
}

func newManifest(repo, revision string, files []string) Manifest {
	m := Manifest{Repo: repo}
	seen := make([]string, 0, len(files))
	for _, f := range files {
		if f == "" || slices.Contains(seen, f) {
			continue
		}
		seen = append(seen, f)
		m.Files = append(m.Files, TokenizerFile{Filename: f, Revision: revision})
	}
	return m
}
