package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ocrlab/ocrlab/internal/projectconfig"
	"github.com/ocrlab/ocrlab/internal/session"
	"github.com/spf13/cobra"
)

func newSessionCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "View session logs",
		Long: `View session event logs.

Session logs are NDJSON files written during evaluations when session_log.enabled
is set in .ocrlab.yaml. They record run start, every sample and the final result.`,
	}

	cmd.AddCommand(newSessionListCommand(global))
	cmd.AddCommand(newSessionViewCommand())

	return cmd
}

func newSessionListCommand(global *globalOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded session logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, err := projectconfig.Load(global.configDir)
				if err != nil {
					return err
				}
				dir = cfg.Resolve(cfg.SessionLog.Dir)
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			logs, err := session.ListRunLogs(absDir)
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(logs) == 0 {
				fmt.Fprintln(out, "No session logs found.") //nolint:errcheck
				return nil
			}
			_, err = io.WriteString(out, formatRunLogs(logs))
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to search for session logs (default session_log.dir)")

	return cmd
}

func newSessionViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view <session-file>",
		Short: "View a session timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := session.ReadEvents(args[0])
			if err != nil {
				return fmt.Errorf("reading session: %w", err)
			}

			session.RenderTimeline(cmd.OutOrStdout(), events)
			return nil
		},
	}
}

func formatRunLogs(logs []session.RunLog) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-10s %-11s %-9s %-9s %-20s %s\n", "Run", "Status", "Samples", "Accuracy", "Started", "File"))
	b.WriteString(strings.Repeat("─", 100) + "\n")
	for _, l := range logs {
		id := l.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		acc := "-"
		if l.Status == session.StatusCompleted {
			acc = fmt.Sprintf("%.1f%%", l.Accuracy)
		}
		b.WriteString(fmt.Sprintf("%-10s %-11s %-9s %-9s %-20s %s\n",
			id, l.Status, fmt.Sprintf("%d/%d", l.Samples, l.Total), acc,
			l.Started.Local().Format("2006-01-02 15:04:05"), l.Name))
	}
	return b.String()
}
