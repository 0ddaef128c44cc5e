package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-bytebpe/internal/config"
	"github.com/example/go-bytebpe/internal/doctor"
)

func newDoctorCmd() *cobra.Command {
	var probe string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the configured tokenizer files load and round-trip",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err := config.NormalizeBackend(cfg.Tokenizer.Backend)
			if err != nil {
				return err
			}
			files, err := tokenizerFiles(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "backend: %s\n", backend)

			dcfg := doctor.Config{
				Files: files,
				Load: func() (doctor.Encoder, error) {
					return openEncoder(cfg)
				},
				Probe: probe,
			}
			if backend == config.BackendBPE && !usesVocabMerges(cfg.Paths) {
				dcfg.FormatVersion = func() (string, error) {
					return formatVersion(cfg.Paths.TokenizerPath)
				}
			}

			result := doctor.Run(dcfg, out)
			if result.Failed() {
				return fmt.Errorf("doctor found %d problem(s)", len(result.Failures()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&probe, "probe", doctor.DefaultProbe, "Text used for the round-trip check")

	return cmd
}
