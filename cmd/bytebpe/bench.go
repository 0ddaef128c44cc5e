package main

import (
	"bufio"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-bytebpe/internal/bench"
)

func newBenchCmd() *cobra.Command {
	var (
		text       string
		file       string
		runs       int
		warmup     int
		batch      bool
		format     string
		minThrough float64
		cpuProfile string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark encode throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			texts, err := benchCorpus(text, file)
			if err != nil {
				return err
			}

			enc, err := openEncoder(cfg)
			if err != nil {
				return err
			}

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return fmt.Errorf("create cpuprofile: %w", err)
				}
				defer f.Close()
				if err := pprof.StartCPUProfile(f); err != nil {
					return fmt.Errorf("start cpuprofile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}

			results, err := bench.Run(cmd.Context(), enc, texts, bench.Options{
				Runs:             runs,
				Warmup:           warmup,
				Batch:            batch,
				AddSpecialTokens: cfg.Tokenizer.AddSpecialTokens,
			})
			if err != nil {
				return err
			}

			stats := bench.ComputeStats(results)
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				if err := bench.FormatJSON(results, stats, out); err != nil {
					return err
				}
			default:
				bench.FormatTable(results, stats, out)
			}

			return bench.CheckThroughputThreshold(stats.MeanTokensPerSec, minThrough)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to encode on each run")
	cmd.Flags().StringVar(&file, "file", "", "Corpus file, one text per line")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of measured runs")
	cmd.Flags().IntVar(&warmup, "warmup", 1, "Number of unrecorded warmup runs")
	cmd.Flags().BoolVar(&batch, "batch", false, "Encode the corpus with one parallel batch call per run")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&minThrough, "min-tokens-per-sec", 0, "Exit non-zero if mean throughput falls below this value (0 = disabled)")
	cmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "Write a CPU profile of the measured runs")

	return cmd
}

// benchCorpus returns the texts from --text and --file.
func benchCorpus(text, file string) ([]string, error) {
	var texts []string
	if strings.TrimSpace(text) != "" {
		texts = append(texts, text)
	}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open corpus: %w", err)
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
		for sc.Scan() {
			if line := sc.Text(); strings.TrimSpace(line) != "" {
				texts = append(texts, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read corpus: %w", err)
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("--text or --file is required for bench")
	}
	return texts, nil
}
