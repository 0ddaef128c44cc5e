package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-bytebpe/internal/encoding"
	"github.com/example/go-bytebpe/internal/tokenizer"
)

const (
	formatJSON   = "json"
	formatIDs    = "ids"
	formatTokens = "tokens"
)

func newEncodeCmd() *cobra.Command {
	var (
		pair   string
		stdin  bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "encode [text]",
		Short: "Tokenize text and print the encoding",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			switch format {
			case formatJSON, formatIDs, formatTokens:
			default:
				return fmt.Errorf("--format must be one of json|ids|tokens")
			}

			var inputs []tokenizer.Input
			switch {
			case stdin:
				if len(args) > 0 {
					return fmt.Errorf("--stdin does not take a text argument")
				}
				inputs, err = readInputs(cmd.InOrStdin())
				if err != nil {
					return err
				}
			case len(args) == 1:
				in := tokenizer.Input{A: args[0]}
				if cmd.Flags().Changed("pair") {
					in.B = &pair
				}
				inputs = []tokenizer.Input{in}
			default:
				return fmt.Errorf("text argument or --stdin is required")
			}

			p, err := openPipeline(cfg)
			if err != nil {
				return err
			}
			encs, err := p.EncodeBatch(cmd.Context(), inputs, cfg.Tokenizer.AddSpecialTokens)
			if err != nil {
				return err
			}

			return writeEncodings(cmd.OutOrStdout(), encs, format, !stdin)
		},
	}

	cmd.Flags().StringVar(&pair, "pair", "", "Second sequence of a pair input")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "Read one input per line from stdin and encode them as a batch")
	cmd.Flags().StringVar(&format, "format", formatJSON, "Output format: json|ids|tokens")

	return cmd
}

// readInputs reads one input per non-empty line.
func readInputs(r io.Reader) ([]tokenizer.Input, error) {
	var inputs []tokenizer.Input
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		inputs = append(inputs, tokenizer.Input{A: line})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return inputs, nil
}

// writeEncodings prints one line per encoding for ids and tokens. JSON is a
// single object when single is set, otherwise an array.
func writeEncodings(w io.Writer, encs []encoding.Encoding, format string, single bool) error {
	switch format {
	case formatIDs:
		for _, e := range encs {
			parts := make([]string, len(e.IDs))
			for i, id := range e.IDs {
				parts[i] = strconv.Itoa(id)
			}
			if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
				return err
			}
		}
		return nil
	case formatTokens:
		for _, e := range encs {
			if _, err := fmt.Fprintln(w, strings.Join(e.Tokens, " ")); err != nil {
				return err
			}
		}
		return nil
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if single && len(encs) == 1 {
		return enc.Encode(encs[0])
	}
	return enc.Encode(encs)
}
