package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/ocrlab/ocrlab/internal/evaluation"
	"github.com/ocrlab/ocrlab/internal/history"
	"github.com/ocrlab/ocrlab/internal/models"
	"github.com/ocrlab/ocrlab/internal/reporting"
	"github.com/spf13/cobra"
)

var runFormats = []string{"table", "json", "junit", "markdown"}

type runOptions struct {
	languages []string
	gpu       bool
	engine    string
	output    string
	format    string
	verbose   bool
	interpret bool
}

func newRunCommand(global *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <dataset-dir>",
		Short: "Evaluate an OCR engine against a dataset directory",
		Long: `Evaluate an OCR engine against a dataset directory.

The directory must contain the images and a labels.txt file with one
"<filename><TAB><text>" line per image. The run is recorded in the configured
history store.

Exit status is 0 when the evaluation completes, 1 when it fails on a sample
and 2 for usage or configuration errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVar(&opts.languages, "lang", nil, "Language codes to recognize (default from config)")
	cmd.Flags().BoolVar(&opts.gpu, "gpu", false, "Ask the engine to use a GPU (default from config)")
	cmd.Flags().StringVar(&opts.engine, "engine", "", "OCR engine (default from config)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Report format: table, json, junit, markdown")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print timing for every sample")
	cmd.Flags().BoolVar(&opts.interpret, "interpret", false, "Print a plain-language interpretation of the results")

	return cmd
}

func runEvaluation(cmd *cobra.Command, global *globalOptions, opts *runOptions, dir string) error {
	if !slices.Contains(runFormats, opts.format) {
		return fmt.Errorf("unknown format %q (want one of %v)", opts.format, runFormats)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	// Progress goes to stderr so a report on stdout stays machine-readable.
	a, err := newApp(global, evaluation.WithListener(progressListener(cmd.ErrOrStderr(), opts.verbose)))
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	req := evaluation.StartRequest{Dir: absDir, Engine: opts.engine}
	if cmd.Flags().Changed("lang") {
		req.Languages = opts.languages
		if req.Languages == nil {
			req.Languages = []string{}
		}
	}
	req.GPU = a.svc.Defaults().GPU
	if cmd.Flags().Changed("gpu") {
		req.GPU = opts.gpu
	}

	rec, runErr := a.svc.RunSync(cmd.Context(), req)
	if rec == nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close() //nolint:errcheck
		out = f
	}
	if err := writeRunReport(out, rec, opts.format); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if opts.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to: %s\n", opts.output) //nolint:errcheck
	}
	if opts.interpret {
		fmt.Fprintln(cmd.ErrOrStderr(), reporting.FormatSummaryReport(rec)) //nolint:errcheck
	}

	if rec.Status == models.JobFailed {
		return &RunFailedError{RunID: rec.ID, Message: rec.Error}
	}
	return nil
}

func writeRunReport(w io.Writer, rec *history.Record, format string) error {
	switch format {
	case "table":
		_, err := io.WriteString(w, formatSummary(rec))
		return err
	case "markdown":
		return reporting.Export(w, rec, "md")
	default:
		return reporting.Export(w, rec, format)
	}
}
