package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newDatasetsCommand(global *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List the sample dataset and uploaded datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(global)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			infos, err := a.catalog.List()
			if err != nil {
				return fmt.Errorf("listing datasets: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			if len(infos) == 0 {
				fmt.Fprintln(out, "No datasets found.") //nolint:errcheck
				return nil
			}

			var b strings.Builder
			b.WriteString(fmt.Sprintf("%s  %s  %s  %s\n", padRight("Name", 32), padRight("Type", 9), padRight("Images", 7), "Path"))
			b.WriteString(strings.Repeat("─", 80) + "\n")
			for _, d := range infos {
				b.WriteString(fmt.Sprintf("%s  %s  %s  %s\n",
					padRight(truncate(d.Name, 32), 32),
					padRight(string(d.Type), 9),
					padRight(fmt.Sprint(d.ImageCount), 7),
					d.Path))
			}
			fmt.Fprint(out, b.String()) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
