package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/parfile"
	"github.com/dorcha-inc/hsp/internal/registry"
	"github.com/dorcha-inc/hsp/internal/tui"
)

// taskInfo is the JSON form of the info command.
type taskInfo struct {
	*registry.Entry
	TaskMode   string                `json:"task_mode"`
	Parameters []*parfile.Descriptor `json:"parameters"`
}

// newInfoCmd creates the info command
func newInfoCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info TASK",
		Short: "Describe a task and its parameters",
		Long: `Describe a task and the parameters of its current parameter file, including
values learned from earlier runs.

Examples:
  hsp info fdump
  hsp info pget --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := newRunner(a.cfg, runnerOptions{echo: io.Discard})
			if err != nil {
				return err
			}
			entry, schema, err := describeTask(runner, args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(taskInfo{Entry: entry, TaskMode: schema.TaskMode().String(), Parameters: schema.Params()})
			}

			content := describeMarkdown(entry, schema)
			rendered, err := tui.RenderMarkdown(content, 100)
			if err != nil {
				rendered = content
			}
			core.MustFprintf(os.Stdout, "%s", rendered)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

// describeMarkdown renders a task description with a table of its parameters.
func describeMarkdown(entry *registry.Entry, schema *parfile.File) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", entry.Name)
	if entry.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", entry.Description)
	}
	if entry.Module != "" {
		fmt.Fprintf(&b, "- Package: %s\n", entry.Module)
	}
	fmt.Fprintf(&b, "- Kind: %s\n", entry.Kind)
	fmt.Fprintf(&b, "- Task mode: %s\n\n", schema.TaskMode())

	b.WriteString("| Name | Type | Mode | Default | Range | Prompt |\n")
	b.WriteString("|------|------|------|---------|-------|--------|\n")
	for _, d := range schema.Params() {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			d.Name, d.TypeTag, d.ModeTag,
			markdownCell(d.Default.String()),
			markdownCell(paramRange(d)),
			markdownCell(d.Prompt))
	}
	return b.String()
}

func paramRange(d *parfile.Descriptor) string {
	if choices := d.Choices(); len(choices) > 0 {
		return strings.Join(choices, ", ")
	}
	if d.Min == "" && d.Max == "" {
		return ""
	}
	return d.Min + " to " + d.Max
}

func markdownCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
