package main

import (
	"fmt"
	"path/filepath"

	"github.com/ericksa/ptextract/internal/pipeline"
	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var column string
	var showTerms bool

	cmd := &cobra.Command{
		Use:   "run <workbook.xlsx>",
		Short: "Extract payment terms from a local workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if column == "" {
				column = cfg.Extractor.Extraction.Column
			}
			svc, err := ctx.pipeline()
			if err != nil {
				return err
			}

			out, err := svc.Process(cmd.Context(), pipeline.Request{Path: path, Column: column})
			if err != nil {
				return err
			}
			return printOutcome(cmd, out, showTerms)
		},
	}

	cmd.Flags().StringVar(&column, "column", "", "Column holding the payment terms, by name or 1-based number")
	cmd.Flags().BoolVar(&showTerms, "show", false, "Print the extracted terms")
	return cmd
}

func printOutcome(cmd *cobra.Command, out *pipeline.Outcome, showTerms bool) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, out.Message())
	if r := out.Result; r != nil && r.Aborted {
		fmt.Fprintf(w, "Stopped after %d of %d chunks: %s\n", r.ChunksDone, r.Chunks, r.Reason)
	}
	if showTerms && out.Result != nil && len(out.Result.Terms) > 0 {
		fmt.Fprintln(w, termsTable(out.Result.Terms))
	}
	if out.Status == pipeline.StatusLoadFailed || out.Status == pipeline.StatusColumnUnknown {
		return fmt.Errorf("run %s: %s", out.RunID, out.Status)
	}
	return nil
}
