package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hsp/internal/config"
	"github.com/dorcha-inc/hsp/internal/core"
)

var (
	version = "dev"
	// build time date
	buildDate = "unknown"
)

// exitCodeError makes the process exit with a task's return code without
// printing anything further.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("task exited with return code %d", e.code)
}

// Interface guard for exitCodeError
var _ error = &exitCodeError{}

// app carries the global flags and the configuration loaded from them.
type app struct {
	configPath string
	prettyLog  bool
	logLevel   string

	cfg *config.Config
}

// setup loads the configuration and initializes the global logger.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := a.logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	return core.Init(resolveLogFormat(cfg, a.prettyLog), level, cfg.LogFile)
}

// resolveLogFormat determines the log format based on CLI flag and config
func resolveLogFormat(cfg *config.Config, prettyLog bool) bool {
	if !prettyLog && cfg.LogFormat == config.LogFormatPretty {
		return true
	}
	return prettyLog
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "hsp",
		Short: "Run toolkit tasks through their parameter files",
		Long: `hsp runs the tasks of an installed HEASoft-style toolkit. Parameters are
resolved from the task's parameter file, the command line and, when needed,
interactive prompts; learned values are written back to the user's PFILES.

The toolkit is located through HEADAS and PFILES (or HSP_HEADAS and
HSP_PFILES). Without a toolkit only the built-in tasks are available.`,
		Version:           fmt.Sprintf("%s (built: %s)", version, buildDate),
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to an hsp config file")
	rootCmd.PersistentFlags().BoolVar(&a.prettyLog, "pretty", false, "Use pretty-printed logs instead of JSON")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (overrides config)")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newListCmd(a))
	rootCmd.AddCommand(newInfoCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// execute runs the CLI and returns the process exit status.
func execute(args []string) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	defer zap.L().Sync() //nolint:errcheck // Ignore sync errors on stdout/stderr, they're not critical and common in test environments

	if err == nil {
		return 0
	}
	var exit *exitCodeError
	if errors.As(err, &exit) {
		return exit.code
	}
	core.MustFprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func main() {
	os.Exit(execute(os.Args[1:]))
}
