package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newListCmd creates the list command
func newListCmd(a *app) *cobra.Command {
	var jsonOutput bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available tasks",
		Long: `List the tasks of the configured toolkit and the built-in tasks.

By default, shows a simple list format. Use --verbose to see the package, kind
and description of each task.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := environment(a.cfg)
			if err != nil {
				return err
			}
			reg, err := loadRegistry(a.cfg, env)
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}
			entries := reg.List()

			if jsonOutput {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(entries)
			}

			if verbose {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

				_, errWriteHeader := fmt.Fprintln(w, "NAME\tPACKAGE\tKIND\tDESCRIPTION")
				if errWriteHeader != nil {
					return fmt.Errorf("failed to write header: %w", errWriteHeader)
				}

				_, errWriteSeparator := fmt.Fprintln(w, "----\t-------\t----\t-----------")
				if errWriteSeparator != nil {
					return fmt.Errorf("failed to write separator: %w", errWriteSeparator)
				}

				for _, entry := range entries {
					description := entry.Description
					if len(description) > 60 {
						description = description[:57] + "..."
					}
					_, errWriteRow := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.Name, entry.Module, entry.Kind, description)
					if errWriteRow != nil {
						return fmt.Errorf("failed to write row: %w", errWriteRow)
					}
				}

				return w.Flush()
			}

			for _, entry := range entries {
				fmt.Println(entry.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show package, kind and description")

	return cmd
}
