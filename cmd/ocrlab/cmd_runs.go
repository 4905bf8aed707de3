package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/ocrlab/ocrlab/internal/history"
	"github.com/ocrlab/ocrlab/internal/reporting"
	"github.com/spf13/cobra"
)

func newRunsCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and export recorded evaluation runs",
	}
	cmd.AddCommand(newRunsListCommand(global))
	cmd.AddCommand(newRunsShowCommand(global))
	cmd.AddCommand(newRunsExportCommand(global))
	return cmd
}

func newRunsListCommand(global *globalOptions) *cobra.Command {
	var (
		sortField string
		order     string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if order != "asc" && order != "desc" {
				return fmt.Errorf("--order must be asc or desc, got %q", order)
			}
			a, err := newApp(global)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck
			store, err := a.requireHistory()
			if err != nil {
				return err
			}

			runs, err := store.List(cmd.Context(), sortField, order)
			if err != nil {
				return fmt.Errorf("listing runs: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				if runs == nil {
					runs = []history.Summary{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			fmt.Fprint(out, formatRunList(runs)) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().StringVar(&sortField, "sort", "start_time", "Sort by start_time, accuracy, duration or samples")
	cmd.Flags().StringVar(&order, "order", "desc", "Sort order: asc or desc")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newRunsShowCommand(global *globalOptions) *cobra.Command {
	var interpret bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(global)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			rec, err := getRun(cmd, a, args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatSummary(rec)) //nolint:errcheck
			if interpret {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", reporting.FormatSummaryReport(rec)) //nolint:errcheck
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&interpret, "interpret", false, "Print a plain-language interpretation of the results")
	return cmd
}

func newRunsExportCommand(global *globalOptions) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export one run as json, xlsx, junit, md or html",
		Long: `Export one run as json, xlsx, junit, md or html.

The report is written to ocrlab-<run-id>.<ext> in the current directory unless
--output is given. Use --output - to write to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(reporting.Formats, format) {
				return fmt.Errorf("unknown format %q (want one of %v)", format, reporting.Formats)
			}
			a, err := newApp(global)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			rec, err := getRun(cmd, a, args[0])
			if err != nil {
				return err
			}

			if output == "-" {
				return reporting.Export(cmd.OutOrStdout(), rec, format)
			}
			if output == "" {
				output = reporting.ExportFilename(rec, format)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			if err := reporting.Export(f, rec, format); err != nil {
				f.Close() //nolint:errcheck
				return fmt.Errorf("exporting run: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", rec.ID, output) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Export format: json, xlsx, junit, md, html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default ocrlab-<run-id>.<ext>, - for stdout)")
	return cmd
}

func getRun(cmd *cobra.Command, a *app, id string) (*history.Record, error) {
	store, err := a.requireHistory()
	if err != nil {
		return nil, err
	}
	rec, err := store.Get(cmd.Context(), id)
	if errors.Is(err, history.ErrRunNotFound) {
		return nil, fmt.Errorf("run %q not found", id)
	}
	return rec, err
}
