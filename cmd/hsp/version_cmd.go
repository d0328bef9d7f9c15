package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hsp/internal/core"
)

// newVersionCmd creates the version command
func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hsp and toolkit versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core.MustFprintf(os.Stdout, "hsp %s (built: %s)\n", version, buildDate)

			env, err := environment(a.cfg)
			if err != nil {
				return err
			}
			if env == nil {
				core.MustFprintf(os.Stdout, "toolkit: not configured\n")
				return nil
			}
			toolkit, err := env.ToolkitVersion()
			if err != nil {
				zap.L().Debug("Toolkit version unavailable", zap.Error(err))
				toolkit = "unknown"
			}
			core.MustFprintf(os.Stdout, "toolkit: %s (%s)\n", toolkit, env.Headas)
			return nil
		},
	}
}
