package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	debug     bool
	configDir string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "ocrlab",
		Short: "ocrlab - evaluate OCR engines against labelled image datasets",
		Long: `ocrlab evaluates OCR engines against labelled image datasets.

It serves a dashboard for uploading datasets and watching evaluations, and
provides commands to run evaluations, inspect past runs and export reports
from the terminal.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "Directory to start searching for .ocrlab.yaml")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if opts.debug {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newDatasetsCommand(opts))
	cmd.AddCommand(newEnginesCommand())
	cmd.AddCommand(newDetectCommand(opts))
	cmd.AddCommand(newRunsCommand(opts))
	cmd.AddCommand(newRPCCommand(opts))
	cmd.AddCommand(newSessionCommand(opts))

	return cmd
}

func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCommand().ExecuteContext(ctx)
}
