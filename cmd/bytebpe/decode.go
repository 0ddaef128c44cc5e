package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	var keepSpecial bool

	cmd := &cobra.Command{
		Use:   "decode <id>...",
		Short: "Turn token ids back into text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			p, err := openPipeline(cfg)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), p.Decode(ids, !keepSpecial))
			return err
		},
	}

	cmd.Flags().BoolVar(&keepSpecial, "keep-special", false, "Keep special tokens in the output")

	return cmd
}

// parseIDs accepts ids as separate arguments or comma separated.
func parseIDs(args []string) ([]int, error) {
	var ids []int
	for _, arg := range args {
		for _, f := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("invalid token id %q", f)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
