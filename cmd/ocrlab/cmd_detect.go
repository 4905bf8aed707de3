package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ocrlab/ocrlab/internal/ocr"
	"github.com/ocrlab/ocrlab/internal/spinner"
	"github.com/spf13/cobra"
)

func newDetectCommand(global *globalOptions) *cobra.Command {
	var (
		engine    string
		languages []string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Recognize the text in a single image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(global)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			stop := spinner.StartOnTerminal(cmd.ErrOrStderr(), "Recognizing "+filepath.Base(args[0]))
			fragments, err := a.svc.Detect(cmd.Context(), args[0], engine, languages)
			stop()
			if err != nil {
				return fmt.Errorf("detection failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(fragments)
			}
			fmt.Fprint(out, formatFragments(fragments)) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().StringVar(&engine, "engine", "", "OCR engine (default from config)")
	cmd.Flags().StringSliceVar(&languages, "lang", nil, "Language codes to recognize (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func formatFragments(fragments []ocr.Fragment) string {
	if len(fragments) == 0 {
		return "No text detected.\n"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s  %s  %s\n", padRight("Text", 40), padRight("Conf", 5), "Box (x,y w×h)"))
	b.WriteString(strings.Repeat("─", 72) + "\n")
	for _, f := range fragments {
		tl, br := f.Box[0], f.Box[2]
		b.WriteString(fmt.Sprintf("%s  %.2f   %.0f,%.0f %.0f×%.0f\n",
			padRight(truncate(f.Text, 40), 40),
			f.Confidence,
			tl.X, tl.Y, br.X-tl.X, br.Y-tl.Y))
	}
	b.WriteString(fmt.Sprintf("\nFull text: %s\n", ocr.FullText(fragments)))
	return b.String()
}
