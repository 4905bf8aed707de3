package main

import (
	"fmt"

	"github.com/ocrlab/ocrlab/internal/ocr"
	_ "github.com/ocrlab/ocrlab/internal/ocr/mock"
	_ "github.com/ocrlab/ocrlab/internal/ocr/tesseract"
	"github.com/spf13/cobra"
)

func newEnginesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List the OCR engines compiled into this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range ocr.Engines() {
				fmt.Fprintln(cmd.OutOrStdout(), name) //nolint:errcheck
			}
			return nil
		},
	}
}
