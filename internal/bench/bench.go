// Package bench measures encode throughput for the bytebpe bench command.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/example/go-bytebpe/internal/encoding"
	"github.com/example/go-bytebpe/internal/tokenizer"
)

// ErrNoTexts is returned when Run is given an empty corpus.
var ErrNoTexts = errors.New("bench: no input texts")

// Encoder is the single-text encode path. Every backend supports it.
type Encoder interface {
	Encode(text string) ([]int, error)
}

// BatchEncoder is the parallel path used when Options.Batch is set.
type BatchEncoder interface {
	EncodeBatch(ctx context.Context, inputs []tokenizer.Input, addSpecialTokens bool) ([]encoding.Encoding, error)
}

// Options configures a benchmark.
type Options struct {
	Runs   int
	Warmup int
	// Batch encodes the corpus with one EncodeBatch call per run.
	Batch bool
	// AddSpecialTokens applies to batch runs.
	AddSpecialTokens bool
}

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and volume of a single pass over the corpus.
type RunResult struct {
	Index        int
	Cold         bool // true for the first run when no warmup was done
	Duration     time.Duration
	Texts        int
	Bytes        int
	Tokens       int
	TokensPerSec float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
	// MeanTokensPerSec is the mean throughput over all runs.
	MeanTokensPerSec float64
}

// Run encodes texts opts.Runs times after opts.Warmup unrecorded passes.
// Encoding happens under the pprof label stage=encode so a CPU profile taken
// around Run attributes samples to the tokenizer.
func Run(ctx context.Context, enc Encoder, texts []string, opts Options) ([]RunResult, error) {
	if len(texts) == 0 {
		return nil, ErrNoTexts
	}
	if opts.Runs < 1 {
		return nil, fmt.Errorf("bench: runs must be >= 1, got %d", opts.Runs)
	}

	var be BatchEncoder
	if opts.Batch {
		var ok bool
		if be, ok = enc.(BatchEncoder); !ok {
			return nil, errors.New("bench: backend does not support batch encoding")
		}
	}

	once := func() (time.Duration, int, error) {
		var (
			tokens int
			err    error
		)
		start := time.Now()
		pprof.Do(ctx, pprof.Labels("stage", "encode"), func(ctx context.Context) {
			if be != nil {
				tokens, err = encodeBatch(ctx, be, texts, opts.AddSpecialTokens)
				return
			}
			tokens, err = encodeEach(ctx, enc, texts)
		})
		return time.Since(start), tokens, err
	}

	for i := range opts.Warmup {
		if _, _, err := once(); err != nil {
			return nil, fmt.Errorf("warmup run %d: %w", i+1, err)
		}
	}

	size := 0
	for _, t := range texts {
		size += len(t)
	}

	runs := make([]RunResult, 0, opts.Runs)
	for i := range opts.Runs {
		d, tokens, err := once()
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		runs = append(runs, RunResult{
			Index:        i,
			Cold:         i == 0 && opts.Warmup == 0,
			Duration:     d,
			Texts:        len(texts),
			Bytes:        size,
			Tokens:       tokens,
			TokensPerSec: Throughput(tokens, d),
		})
	}
	return runs, nil
}

func encodeEach(ctx context.Context, enc Encoder, texts []string) (int, error) {
	tokens := 0
	for _, t := range texts {
		if err := ctx.Err(); err != nil {
			return tokens, err
		}
		ids, err := enc.Encode(t)
		if err != nil {
			return tokens, err
		}
		tokens += len(ids)
	}
	return tokens, nil
}

func encodeBatch(ctx context.Context, be BatchEncoder, texts []string, addSpecial bool) (int, error) {
	inputs := make([]tokenizer.Input, len(texts))
	for i, t := range texts {
		inputs[i] = tokenizer.Input{A: t}
	}
	encs, err := be.EncodeBatch(ctx, inputs, addSpecial)
	if err != nil {
		return 0, err
	}
	tokens := 0
	for _, e := range encs {
		tokens += e.Len()
	}
	return tokens, nil
}

// ComputeStats calculates min, max and mean over the runs.
func ComputeStats(runs []RunResult) Stats {
	if len(runs) == 0 {
		return Stats{}
	}
	mn, mx := runs[0].Duration, runs[0].Duration
	var (
		sum time.Duration
		tps float64
	)
	for _, r := range runs {
		mn = min(mn, r.Duration)
		mx = max(mx, r.Duration)
		sum += r.Duration
		tps += r.TokensPerSec
	}
	return Stats{
		Min:              mn,
		Max:              mx,
		Mean:             sum / time.Duration(len(runs)),
		MeanTokensPerSec: tps / float64(len(runs)),
	}
}

// Throughput returns tokens per second. Returns 0 if d is zero to avoid
// division by zero.
func Throughput(tokens int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(tokens) / d.Seconds()
}

// CheckThroughputThreshold returns an error if the mean throughput falls
// below minTokensPerSec. A threshold of 0 disables the gate.
func CheckThroughputThreshold(meanTokensPerSec, minTokensPerSec float64) error {
	if minTokensPerSec <= 0 {
		return nil
	}
	if meanTokensPerSec < minTokensPerSec {
		return fmt.Errorf("mean throughput %.0f tokens/s below threshold %.0f", meanTokensPerSec, minTokensPerSec)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

func ms(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Microseconds())/1000, 'f', 2, 64)
}

// FormatTable writes a table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"RUN", "COLD", "MS", "TEXTS", "TOKENS", "TOKENS/S"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		table.Append([]string{
			strconv.Itoa(r.Index + 1),
			cold,
			ms(r.Duration),
			strconv.Itoa(r.Texts),
			strconv.Itoa(r.Tokens),
			strconv.FormatFloat(r.TokensPerSec, 'f', 0, 64),
		})
	}

	table.SetFooter([]string{"", "min/mean/max", ms(stats.Min) + " / " + ms(stats.Mean) + " / " + ms(stats.Max),
		"", "mean", strconv.FormatFloat(stats.MeanTokensPerSec, 'f', 0, 64)})
	table.Render()
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index        int     `json:"index"`
	Cold         bool    `json:"cold"`
	DurationMS   float64 `json:"duration_ms"`
	Texts        int     `json:"texts"`
	Bytes        int     `json:"bytes"`
	Tokens       int     `json:"tokens"`
	TokensPerSec float64 `json:"tokens_per_sec"`
}

type jsonStats struct {
	MinMS            float64 `json:"min_ms"`
	MeanMS           float64 `json:"mean_ms"`
	MaxMS            float64 `json:"max_ms"`
	MeanTokensPerSec float64 `json:"mean_tokens_per_sec"`
}

func msFloat(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) error {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:            msFloat(stats.Min),
			MeanMS:           msFloat(stats.Mean),
			MaxMS:            msFloat(stats.Max),
			MeanTokensPerSec: stats.MeanTokensPerSec,
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:        r.Index,
			Cold:         r.Cold,
			DurationMS:   msFloat(r.Duration),
			Texts:        r.Texts,
			Bytes:        r.Bytes,
			Tokens:       r.Tokens,
			TokensPerSec: r.TokensPerSec,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jr)
}
