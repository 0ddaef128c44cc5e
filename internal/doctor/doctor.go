// Package doctor provides preflight checks for the configured tokenizer.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// DefaultProbe is the text used for the round-trip check.
const DefaultProbe = "hello world"

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Encoder is the loaded tokenizer under test.
type Encoder interface {
	Encode(text string) ([]int, error)
}

// Decoder is implemented by encoders that can invert their output. Backends
// without it skip the round-trip check.
type Decoder interface {
	Decode(ids []int, skipSpecial bool) string
}

type vocabSizer interface {
	VocabSize() int
}

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// Files are the tokenizer files that must exist and be non-empty.
	Files []string
	// FormatVersion returns the "version" field of tokenizer.json. Nil skips
	// the check.
	FormatVersion VersionFunc
	// Load builds the tokenizer from the configured files.
	Load func() (Encoder, error)
	// Probe is the round-trip text; empty means DefaultProbe.
	Probe string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- tokenizer files --------------------------------------------------
	for _, path := range cfg.Files {
		fi, err := os.Stat(path)
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("tokenizer file %q: %v", path, err))
			fmt.Fprintf(w, "%s tokenizer file %s: not found\n", FailMark, path)
		case fi.IsDir() || fi.Size() == 0:
			res.fail(fmt.Sprintf("tokenizer file %q: empty or not a regular file", path))
			fmt.Fprintf(w, "%s tokenizer file %s: empty\n", FailMark, path)
		default:
			fmt.Fprintf(w, "%s tokenizer file: %s (%d bytes)\n", PassMark, path, fi.Size())
		}
	}

	// ---- tokenizer.json format version ------------------------------------
	if cfg.FormatVersion != nil {
		ver, err := cfg.FormatVersion()
		if err != nil {
			res.fail(fmt.Sprintf("format version: %v", err))
			fmt.Fprintf(w, "%s format version: unreadable (%v)\n", FailMark, err)
		} else if verErr := checkFormatVersion(ver); verErr != nil {
			res.fail(fmt.Sprintf("format version: %v", verErr))
			fmt.Fprintf(w, "%s format version %s: %v\n", FailMark, ver, verErr)
		} else {
			fmt.Fprintf(w, "%s format version: %s\n", PassMark, ver)
		}
	}

	// ---- load -------------------------------------------------------------
	if cfg.Load == nil {
		fmt.Fprintf(w, "%s tokenizer load: skipped\n", PassMark)
		return res
	}
	enc, err := cfg.Load()
	if err != nil {
		res.fail(fmt.Sprintf("tokenizer load: %v", err))
		fmt.Fprintf(w, "%s tokenizer load: %v\n", FailMark, err)
		return res
	}
	if vs, ok := enc.(vocabSizer); ok {
		fmt.Fprintf(w, "%s tokenizer load: vocab size %d\n", PassMark, vs.VocabSize())
	} else {
		fmt.Fprintf(w, "%s tokenizer load: ok\n", PassMark)
	}

	// ---- round trip -------------------------------------------------------
	probe := cfg.Probe
	if probe == "" {
		probe = DefaultProbe
	}
	ids, err := enc.Encode(probe)
	if err != nil {
		res.fail(fmt.Sprintf("encode %q: %v", probe, err))
		fmt.Fprintf(w, "%s encode %q: %v\n", FailMark, probe, err)
		return res
	}
	if len(ids) == 0 {
		res.fail(fmt.Sprintf("encode %q: no tokens", probe))
		fmt.Fprintf(w, "%s encode %q: no tokens\n", FailMark, probe)
		return res
	}
	fmt.Fprintf(w, "%s encode %q: %d tokens\n", PassMark, probe, len(ids))

	dec, ok := enc.(Decoder)
	if !ok {
		fmt.Fprintf(w, "%s round trip: skipped (backend cannot decode)\n", PassMark)
		return res
	}
	if got := dec.Decode(ids, true); got != probe {
		res.fail(fmt.Sprintf("round trip: decoded %q, want %q", got, probe))
		fmt.Fprintf(w, "%s round trip: decoded %q\n", FailMark, got)
	} else {
		fmt.Fprintf(w, "%s round trip: ok\n", PassMark)
	}

	return res
}

// checkFormatVersion returns an error unless ver is a 1.x tokenizer.json
// format version.
func checkFormatVersion(ver string) error {
	major, _, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != 1 {
		return fmt.Errorf("requires format 1.x, got %d", major)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
