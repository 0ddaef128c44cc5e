package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func sha256hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// hubServer serves files under /{repo}/resolve/{rev}/{name}. HEAD answers
// carry X-Linked-Etag only for names listed in linked.
type hubServer struct {
	*httptest.Server
	files  map[string][]byte
	linked map[string]bool
	gets   atomic.Int32
	auth   atomic.Value
}

func newHubServer(t *testing.T, files map[string][]byte) *hubServer {
	t.Helper()

	h := &hubServer{files: files, linked: map[string]bool{}}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.auth.Store(r.Header.Get("Authorization"))
		name := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		data, ok := h.files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if h.linked[name] {
			w.Header().Set("X-Linked-Etag", `"`+sha256hex(data)+`"`)
		}
		if r.Method == http.MethodHead {
			return
		}
		h.gets.Add(1)
		_, _ = w.Write(data)
	}))
	t.Cleanup(h.Close)
	return h
}

func testFiles() map[string][]byte {
	return map[string][]byte{
		VocabJSON:     []byte(`{"a":0}`),
		MergesTXT:     []byte("#version: 0.2\n"),
		TokenizerJSON: []byte(`{"model":{"type":"BPE"}}`),
	}
}

// ---------------------------------------------------------------------------
// Manifest
// ---------------------------------------------------------------------------

func TestKnownManifest(t *testing.T) {
	for _, repo := range []string{"openai-community/gpt2", "gpt2", "FacebookAI/roberta-base", "EleutherAI/gpt-neox-20b"} {
		t.Run(repo, func(t *testing.T) {
			m, err := KnownManifest(repo)
			if err != nil {
				t.Fatalf("KnownManifest(%q) error = %v", repo, err)
			}
			if len(m.Files) == 0 {
				t.Fatal("expected files in manifest")
			}
			for _, f := range m.Files {
				if f.Filename == "" || f.Revision != DefaultRevision {
					t.Errorf("file = %+v; want name and revision %q", f, DefaultRevision)
				}
			}
		})
	}
}

func TestKnownManifest_Unknown(t *testing.T) {
	_, err := KnownManifest("org/unknown")
	if !errors.Is(err, ErrUnknownRepo) {
		t.Fatalf("error = %v; want ErrUnknownRepo", err)
	}
}

func TestManifestFor(t *testing.T) {
	m, err := ManifestFor("org/custom", "v1", []string{TokenizerJSON, "", TokenizerJSON, SPModel})
	if err != nil {
		t.Fatalf("ManifestFor error = %v", err)
	}
	if len(m.Files) != 2 {
		t.Fatalf("files = %+v; want deduplicated pair", m.Files)
	}
	if m.Files[1].Filename != SPModel || m.Files[1].Revision != "v1" {
		t.Errorf("second file = %+v", m.Files[1])
	}

	m, err = ManifestFor("gpt2", "abc123", nil)
	if err != nil {
		t.Fatalf("ManifestFor(gpt2) error = %v", err)
	}
	for _, f := range m.Files {
		if f.Revision != "abc123" {
			t.Errorf("revision = %q; want abc123", f.Revision)
		}
	}
}

// ---------------------------------------------------------------------------
// Download
// ---------------------------------------------------------------------------

func TestDownload_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := Download(ctx, DownloadOptions{OutDir: t.TempDir()}); err == nil {
		t.Error("Download(empty repo) = nil; want error")
	}
	if _, err := Download(ctx, DownloadOptions{Repo: "gpt2"}); err == nil {
		t.Error("Download(empty out dir) = nil; want error")
	}
	if _, err := Download(ctx, DownloadOptions{Repo: "org/unknown", OutDir: t.TempDir()}); !errors.Is(err, ErrUnknownRepo) {
		t.Errorf("Download(unknown repo) error = %v; want ErrUnknownRepo", err)
	}
}

func TestDownload_RecordsThenVerifies(t *testing.T) {
	files := testFiles()
	hub := newHubServer(t, files)
	dir := t.TempDir()

	var out strings.Builder
	opts := DownloadOptions{Repo: "gpt2", OutDir: dir, BaseURL: hub.URL, HFToken: "tok", Stdout: &out}

	res, err := Download(context.Background(), opts)
	if err != nil {
		t.Fatalf("Download error = %v", err)
	}
	if got := hub.auth.Load(); got != "Bearer tok" {
		t.Errorf("Authorization = %v; want Bearer tok", got)
	}
	if !strings.Contains(out.String(), "recorded "+VocabJSON) {
		t.Errorf("output = %q; want recorded line", out.String())
	}

	vocabPath, mergesPath := res.VocabMergesPaths()
	for name, p := range map[string]string{VocabJSON: vocabPath, MergesTXT: mergesPath, TokenizerJSON: res.TokenizerPath()} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != string(files[name]) {
			t.Errorf("%s = %q; want %q", name, data, files[name])
		}
	}

	lock := readLockManifest(filepath.Join(dir, lockFileName))
	if lock.Repo != "gpt2" || lock.Files[MergesTXT].SHA256 != sha256hex(files[MergesTXT]) {
		t.Fatalf("lock = %+v", lock)
	}

	// Second run verifies against the lock and skips every file.
	gets := hub.gets.Load()
	out.Reset()
	if _, err := Download(context.Background(), opts); err != nil {
		t.Fatalf("second Download error = %v", err)
	}
	if hub.gets.Load() != gets {
		t.Errorf("second run issued %d GETs; want 0", hub.gets.Load()-gets)
	}
	if strings.Count(out.String(), "skip ") != 3 {
		t.Errorf("output = %q; want three skips", out.String())
	}
}

func TestDownload_VerifiesMetadataChecksum(t *testing.T) {
	hub := newHubServer(t, testFiles())
	hub.linked[TokenizerJSON] = true

	var out strings.Builder
	_, err := Download(context.Background(), DownloadOptions{
		Repo: "org/custom", Files: []string{TokenizerJSON}, OutDir: t.TempDir(), BaseURL: hub.URL, Stdout: &out,
	})
	if err != nil {
		t.Fatalf("Download error = %v", err)
	}
	if !strings.Contains(out.String(), "verified "+TokenizerJSON) {
		t.Errorf("output = %q; want verified line", out.String())
	}
}

func TestDownload_ChecksumMismatch(t *testing.T) {
	hub := newHubServer(t, testFiles())
	dir := t.TempDir()

	lock := lockManifest{Repo: "org/custom", Files: map[string]lockRecord{
		TokenizerJSON: {Revision: DefaultRevision, SHA256: strings.Repeat("0", 64)},
	}}
	if err := writeLockManifest(filepath.Join(dir, lockFileName), lock); err != nil {
		t.Fatal(err)
	}

	_, err := Download(context.Background(), DownloadOptions{
		Repo: "org/custom", Files: []string{TokenizerJSON}, OutDir: dir, BaseURL: hub.URL,
	})
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Fatalf("error = %v; want checksum mismatch", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, TokenizerJSON)); !os.IsNotExist(statErr) {
		t.Error("mismatched file should be removed")
	}
}

func TestDownload_AccessDenied(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(code)
			}))
			defer srv.Close()

			_, err := Download(context.Background(), DownloadOptions{
				Repo: "org/gated", Files: []string{TokenizerJSON}, OutDir: t.TempDir(), BaseURL: srv.URL,
			})
			var denied *ErrAccessDenied
			if !errors.As(err, &denied) {
				t.Fatalf("error = %v; want ErrAccessDenied", err)
			}
			if denied.Repo != "org/gated" {
				t.Errorf("Repo = %q", denied.Repo)
			}
		})
	}
}

func TestDownload_NotFound(t *testing.T) {
	hub := newHubServer(t, testFiles())
	_, err := Download(context.Background(), DownloadOptions{
		Repo: "org/custom", Files: []string{"missing.json"}, OutDir: t.TempDir(), BaseURL: hub.URL,
	})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("error = %v; want 404", err)
	}
}

func TestDownload_CanceledContext(t *testing.T) {
	hub := newHubServer(t, testFiles())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Download(ctx, DownloadOptions{Repo: "gpt2", OutDir: t.TempDir(), BaseURL: hub.URL})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v; want context.Canceled", err)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestErrAccessDenied_Message(t *testing.T) {
	if got := (&ErrAccessDenied{Repo: "org/repo", Msg: "custom"}).Error(); got != "custom" {
		t.Errorf("Error() = %q; want custom", got)
	}
	if got := (&ErrAccessDenied{Repo: "org/repo"}).Error(); !strings.Contains(got, "org/repo") {
		t.Errorf("Error() = %q; should mention repo", got)
	}
}

func TestNormalizeETag(t *testing.T) {
	sum := strings.Repeat("ab", 32)
	tests := []struct{ in, want string }{
		{`"` + sum + `"`, sum},
		{`W/"` + sum + `"`, sum},
		{"  " + sum + "  ", sum},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeETag(tt.in); got != tt.want {
			t.Errorf("normalizeETag(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
	if !isSHA256Hex(sum) || isSHA256Hex("abc") || isSHA256Hex(strings.Repeat("g", 64)) {
		t.Error("isSHA256Hex misclassified input")
	}
}

func TestExistingMatches(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x.json")

	ok, err := existingMatches(p, sha256hex([]byte("hello")))
	if err != nil || ok {
		t.Fatalf("missing file: ok=%v err=%v", ok, err)
	}
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err = existingMatches(p, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	if err != nil || !ok {
		t.Fatalf("matching file: ok=%v err=%v", ok, err)
	}
	ok, _ = existingMatches(p, strings.Repeat("0", 64))
	if ok {
		t.Error("mismatched checksum should not match")
	}
	if _, err := existingMatches(dir, sha256hex(nil)); err == nil {
		t.Error("directory should be an error")
	}
}

func TestReadLockManifest_Invalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "lock.json")
	if err := os.WriteFile(p, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	lock := readLockManifest(p)
	if lock.Files == nil || len(lock.Files) != 0 {
		t.Errorf("lock = %+v; want empty files map", lock)
	}
}
