package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/example/go-bytebpe/internal/tokenizer"
	"github.com/example/go-bytebpe/internal/vocab"
)

func newVocabCmd() *cobra.Command {
	var (
		limit    int
		specials bool
	)

	cmd := &cobra.Command{
		Use:   "vocab [token|id]...",
		Short: "Show vocabulary size, special tokens or individual lookups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			p, err := openPipeline(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				return writeLookups(out, p, args)
			}

			v := p.Vocab()
			if _, err := fmt.Fprintf(out, "vocab size: %d (max id %d, %d added)\n", p.VocabSize(), v.MaxID(), len(p.AddedTokens())); err != nil {
				return err
			}

			var defs []vocab.TokenDefinition
			switch {
			case specials:
				defs = v.Specials()
			case limit > 0:
				defs = v.Definitions()
				defs = defs[:min(limit, len(defs))]
			default:
				return nil
			}
			writeDefinitions(out, defs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "List the first N entries by id")
	cmd.Flags().BoolVar(&specials, "specials", false, "List special tokens")

	return cmd
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func writeDefinitions(w io.Writer, defs []vocab.TokenDefinition) {
	table := newTable(w, []string{"ID", "KEY", "SPECIAL"})
	for _, d := range defs {
		table.Append([]string{strconv.Itoa(d.ID), strconv.Quote(d.Key), strconv.FormatBool(d.Special)})
	}
	table.Render()
}

// writeLookups resolves each argument as an id when it parses as one and as
// a token otherwise.
func writeLookups(w io.Writer, p *tokenizer.Pipeline, args []string) error {
	table := newTable(w, []string{"QUERY", "ID", "KEY"})
	missing := 0
	for _, arg := range args {
		if id, err := strconv.Atoi(arg); err == nil {
			if tok, ok := p.IDToToken(id); ok {
				table.Append([]string{arg, strconv.Itoa(id), strconv.Quote(tok)})
				continue
			}
		} else if id, ok := p.TokenToID(arg); ok {
			table.Append([]string{arg, strconv.Itoa(id), strconv.Quote(arg)})
			continue
		}
		missing++
		table.Append([]string{arg, "-", "-"})
	}
	table.Render()

	if missing > 0 {
		return fmt.Errorf("%d of %d lookups not found", missing, len(args))
	}
	return nil
}
