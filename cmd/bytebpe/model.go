package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-bytebpe/internal/model"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Tokenizer file acquisition commands",
	}

	cmd.AddCommand(newModelDownloadCmd())
	return cmd
}

func newModelDownloadCmd() *cobra.Command {
	var (
		hfRepo   string
		revision string
		files    []string
		outDir   string
		hfToken  string
		baseURL  string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download tokenizer files from Hugging Face",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if hfToken == "" {
				hfToken = os.Getenv("HF_TOKEN")
			}

			res, err := model.Download(cmd.Context(), model.DownloadOptions{
				Repo:     hfRepo,
				Revision: revision,
				Files:    files,
				OutDir:   outDir,
				HFToken:  hfToken,
				BaseURL:  baseURL,
				Stdout:   cmd.OutOrStdout(),
				Stderr:   cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("model download failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if p := res.TokenizerPath(); p != "" {
				_, _ = fmt.Fprintf(out, "use: --paths-tokenizer-path %s\n", p)
			} else if v, m := res.VocabMergesPaths(); v != "" && m != "" {
				_, _ = fmt.Fprintf(out, "use: --paths-vocab-path %s --paths-merges-path %s\n", v, m)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hfRepo, "hf-repo", "openai-community/gpt2", "Hugging Face repository")
	cmd.Flags().StringVar(&revision, "revision", model.DefaultRevision, "Branch, tag or commit to download")
	cmd.Flags().StringSliceVar(&files, "file", nil, "File to download (repeatable; default is the repo's known manifest)")
	cmd.Flags().StringVar(&outDir, "out-dir", "models", "Directory where tokenizer files are stored")
	cmd.Flags().StringVar(&hfToken, "hf-token", "", "Hugging Face token (falls back to HF_TOKEN env var)")
	cmd.Flags().StringVar(&baseURL, "hf-endpoint", model.DefaultBaseURL, "Hub endpoint")

	return cmd
}
