package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DefaultBaseURL is the HuggingFace hub root.
const DefaultBaseURL = "https://huggingface.co"

const lockFileName = "tokenizer-manifest.lock.json"

type DownloadOptions struct {
	Repo     string
	Revision string
	// Files overrides the built-in manifest for Repo.
	Files   []string
	OutDir  string
	HFToken string
	BaseURL string
	Client  *http.Client
	Stdout  io.Writer
	Stderr  io.Writer
}

// Result maps each downloaded file name to its local path.
type Result struct {
	Dir   string
	Files map[string]string
}

// TokenizerPath returns the local tokenizer.json path, or "".
func (r Result) TokenizerPath() string { return r.Files[TokenizerJSON] }

// VocabMergesPaths returns the local vocab.json and merges.txt paths.
func (r Result) VocabMergesPaths() (string, string) {
	return r.Files[VocabJSON], r.Files[MergesTXT]
}

type ErrAccessDenied struct {
	Repo string
	Msg  string
}

func (e *ErrAccessDenied) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("access denied for %s", e.Repo)
}

// errNoChecksum means hub metadata carried no sha256. Small files stored
// outside LFS only expose a git blob hash.
var errNoChecksum = errors.New("no sha256 in metadata")

type lockManifest struct {
	Repo      string                `json:"repo"`
	Generated string                `json:"generated"`
	Files     map[string]lockRecord `json:"files"`
}

type lockRecord struct {
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

type fetcher struct {
	client  *http.Client
	baseURL string
	repo    string
	token   string
}

// Download fetches the tokenizer files of a hub repository into OutDir,
// verifying each against its pinned, locked or published sha256. Files
// without any known checksum are hashed on first download and the digest is
// recorded in the lock manifest, so later runs verify against it.
func Download(ctx context.Context, opts DownloadOptions) (Result, error) {
	if opts.Repo == "" {
		return Result{}, fmt.Errorf("repo is required")
	}
	if opts.OutDir == "" {
		return Result{}, fmt.Errorf("out dir is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	manifest, err := ManifestFor(opts.Repo, opts.Revision, opts.Files)
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, lockFileName)
	lock := readLockManifest(lockPath)
	if lock.Repo != "" && lock.Repo != manifest.Repo {
		fmt.Fprintf(opts.Stderr, "lock manifest was written for %s; starting fresh\n", lock.Repo)
		lock.Files = map[string]lockRecord{}
	}
	lock.Repo = manifest.Repo
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	f := fetcher{
		client:  opts.Client,
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		repo:    manifest.Repo,
		token:   opts.HFToken,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.baseURL == "" {
		f.baseURL = DefaultBaseURL
	}

	res := Result{Dir: opts.OutDir, Files: make(map[string]string, len(manifest.Files))}
	for _, file := range manifest.Files {
		expected, err := f.expectedChecksum(ctx, file, lock)
		if err != nil && !errors.Is(err, errNoChecksum) {
			return Result{}, err
		}

		localPath := filepath.Join(opts.OutDir, filepath.FromSlash(file.Filename))
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return Result{}, fmt.Errorf("create local subdir: %w", err)
		}

		if expected != "" {
			if ok, err := existingMatches(localPath, expected); err != nil {
				return Result{}, err
			} else if ok {
				fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", file.Filename)
				lock.Files[file.Filename] = lockRecord{Revision: file.Revision, SHA256: expected}
				res.Files[file.Filename] = localPath
				continue
			}
		}

		fmt.Fprintf(opts.Stdout, "download %s@%s -> %s\n", file.Filename, file.Revision, localPath)
		actual, err := f.download(ctx, file, localPath, opts.Stdout)
		if err != nil {
			return Result{}, err
		}
		switch {
		case expected == "":
			fmt.Fprintf(opts.Stdout, "recorded %s (sha256=%s)\n", file.Filename, actual)
		case actual != expected:
			_ = os.Remove(localPath)
			return Result{}, fmt.Errorf("checksum mismatch for %s: expected %s got %s", file.Filename, expected, actual)
		default:
			fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", file.Filename, actual)
		}
		lock.Files[file.Filename] = lockRecord{Revision: file.Revision, SHA256: actual}
		res.Files[file.Filename] = localPath
	}

	if err := writeLockManifest(lockPath, lock); err != nil {
		return Result{}, err
	}
	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)
	return res, nil
}

// expectedChecksum prefers a pinned digest, then the lock manifest for the
// same revision, then hub metadata.
func (f fetcher) expectedChecksum(ctx context.Context, file TokenizerFile, lock lockManifest) (string, error) {
	if file.SHA256 != "" {
		return strings.ToLower(file.SHA256), nil
	}
	if lr, ok := lock.Files[file.Filename]; ok && lr.Revision == file.Revision && isSHA256Hex(lr.SHA256) {
		return strings.ToLower(lr.SHA256), nil
	}
	return f.checksumFromMetadata(ctx, file)
}

func (f fetcher) resolveURL(file TokenizerFile) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", f.baseURL, f.repo, file.Revision, file.Filename)
}

func (f fetcher) do(ctx context.Context, method string, file TokenizerFile) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, f.resolveURL(file), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, file.Filename, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, &ErrAccessDenied{
			Repo: f.repo,
			Msg:  fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", f.repo),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s failed: %s", method, file.Filename, resp.Status)
	}
	return resp, nil
}

func (f fetcher) checksumFromMetadata(ctx context.Context, file TokenizerFile) (string, error) {
	resp, err := f.do(ctx, http.MethodHead, file)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	for _, key := range []string{"X-Linked-Etag", "Etag"} {
		if v := normalizeETag(resp.Header.Get(key)); isSHA256Hex(v) {
			return strings.ToLower(v), nil
		}
	}
	return "", errNoChecksum
}

// download streams the file into a temp sibling, hashing as it goes, and
// renames it into place once complete.
func (f fetcher) download(ctx context.Context, file TokenizerFile, outPath string, stdout io.Writer) (string, error) {
	resp, err := f.do(ctx, http.MethodGet, file)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	tmp := outPath + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	pw := &progressWriter{out: stdout, total: resp.ContentLength, last: time.Now()}
	if _, err := io.Copy(io.MultiWriter(fh, h, pw), resp.Body); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("download %s: %w", file.Filename, err)
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move temp file into place: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// progressWriter reports download progress at most every 700ms.
type progressWriter struct {
	out     io.Writer
	total   int64
	written int64
	last    time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if time.Since(p.last) > 700*time.Millisecond {
		if p.total > 0 {
			pct := float64(p.written) * 100 / float64(p.total)
			fmt.Fprintf(p.out, "  progress: %.1f%% (%d/%d bytes)\n", pct, p.written, p.total)
		} else {
			fmt.Fprintf(p.out, "  progress: %d bytes\n", p.written)
		}
		p.last = time.Now()
	}
	return len(b), nil
}

func existingMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat existing file: %w", err)
	}
	if fi.IsDir() {
		return false, fmt.Errorf("expected file at %s, found directory", path)
	}
	actual, err := fileSHA256(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, "\"")
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readLockManifest(path string) lockManifest {
	out := lockManifest{Files: map[string]lockRecord{}}
	b, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return lockManifest{Files: map[string]lockRecord{}}
	}
	if out.Files == nil {
		out.Files = map[string]lockRecord{}
	}
	return out
}

func writeLockManifest(path string, lock lockManifest) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}
	return nil
}
