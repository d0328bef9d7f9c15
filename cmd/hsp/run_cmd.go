package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/parfile"
	"github.com/dorcha-inc/hsp/internal/state"
	"github.com/dorcha-inc/hsp/internal/task"
	"github.com/dorcha-inc/hsp/internal/tui"
)

type runFlags struct {
	noPrompt   bool
	verbose    int
	logFile    string
	stderr     bool
	jsonOutput bool
	private    bool
	pfilesDir  string
}

// newRunCmd creates the run command
func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run TASK [VALUE ...] [NAME=VALUE ...]",
		Short: "Run a task",
		Long: `Run a task with parameters given on the command line.

Bare values fill the task's parameters in declaration order, skipping the ones
given as NAME=VALUE. Parameters still missing are prompted for when stdin is a
terminal. Use -- before values that start with a dash.

The task's output is echoed while it runs at verbosity 1 and 2 and printed
when it finishes otherwise. The exit status is the task's return code.`,
		Example: `  hsp run fdump evt.fits rows=1-10
  hsp run fdump infile=evt.fits outfile=STDOUT --noprompt
  hsp run fdump evt.fits --private --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, a, f, args[0], args[1:])
		},
	}

	f.bind(cmd)

	return cmd
}

// bind registers the run flags on cmd.
func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noPrompt, "noprompt", false, "Fail instead of prompting for missing values")
	cmd.Flags().IntVar(&f.verbose, "verbose", 0, "Verbosity: 0 capture, 1 echo, 2 echo and log, 20 log")
	cmd.Flags().StringVar(&f.logFile, "logfile", "", "Log file used at verbosity 2 and 20 (default TASK.log)")
	cmd.Flags().BoolVar(&f.stderr, "stderr", false, "Keep stderr separate from stdout")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&f.private, "private", false, "Run against a temporary copy of the user parameter files")
	cmd.Flags().StringVar(&f.pfilesDir, "pfiles-dir", "", "Run against a private parameter directory (implies --private)")
}

// controlArgs returns the controls set by flags. They are passed as the last
// source so they win over NAME=VALUE tokens of the same control.
func (f *runFlags) controlArgs(cmd *cobra.Command) (task.Args, error) {
	args := task.Args{}
	flags := cmd.Flags()
	if flags.Changed("noprompt") {
		args[task.ControlPrefix+task.ControlNoPrompt] = f.noPrompt
	}
	if flags.Changed("verbose") {
		if _, err := task.ParseVerbosity(f.verbose); err != nil {
			return nil, err
		}
		args[task.ControlPrefix+task.ControlVerbose] = f.verbose
	} else if f.jsonOutput {
		args[task.ControlPrefix+task.ControlVerbose] = int(task.VerboseQuiet)
	}
	if flags.Changed("logfile") {
		args[task.ControlPrefix+task.ControlLogFile] = f.logFile
	}
	if flags.Changed("stderr") {
		args[task.ControlPrefix+task.ControlStderr] = f.stderr
	}
	return args, nil
}

// parseTaskArgs splits command line tokens into NAME=VALUE pairs and bare
// values, and assigns the bare values to the schema's parameters in order.
func parseTaskArgs(name string, schema *parfile.File, tokens []string) (task.Args, error) {
	args := task.Args{}
	var positional []string
	for _, tok := range tokens {
		key, value, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			positional = append(positional, tok)
			continue
		}
		args[key] = value
	}

	names := schema.Names()
	for _, value := range positional {
		for len(names) > 0 {
			if _, named := args[names[0]]; !named {
				break
			}
			names = names[1:]
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("too many values for task %s: %q has no parameter left to fill", name, value)
		}
		args[names[0]] = value
		names = names[1:]
	}
	return args, nil
}

// echoRecorder remembers whether the runner echoed anything.
type echoRecorder struct {
	w     io.Writer
	wrote atomic.Bool
}

func (e *echoRecorder) Write(p []byte) (int, error) {
	if len(p) > 0 {
		e.wrote.Store(true)
	}
	return e.w.Write(p)
}

// effectiveControls predicts the controls of a call from the configuration and
// the flags. It only drives the progress display.
func effectiveControls(defaults task.Controls, cmd *cobra.Command, f *runFlags) task.Controls {
	c := defaults
	if cmd.Flags().Changed("noprompt") {
		c.NoPrompt = f.noPrompt
	}
	if v, err := task.ParseVerbosity(f.verbose); err == nil && cmd.Flags().Changed("verbose") {
		c.Verbose = v
	} else if f.jsonOutput {
		c.Verbose = task.VerboseQuiet
	}
	return c
}

func runTask(cmd *cobra.Command, a *app, f *runFlags, name string, tokens []string) error {
	echo := &echoRecorder{w: os.Stdout}
	interactive := tui.Default().Interactive()
	runner, err := newRunner(a.cfg, runnerOptions{interactive: interactive, echo: echo})
	if err != nil {
		return err
	}

	if f.private || f.pfilesDir != "" {
		if runner.Environment() == nil {
			return state.NewConfigurationError(state.EnvHeadas, "private parameter files need a toolkit installation")
		}
		scope, err := state.AcquirePrivateScope(runner.Environment(), f.pfilesDir)
		if err != nil {
			return err
		}
		defer core.LogDeferredError(scope.Release)
		runner = runner.WithEnvironment(scope.Environment())
	}

	_, schema, err := describeTask(runner, name)
	if err != nil {
		return err
	}
	args, err := parseTaskArgs(name, schema, tokens)
	if err != nil {
		return err
	}
	controls, err := f.controlArgs(cmd)
	if err != nil {
		return err
	}

	defaults, err := a.cfg.Controls()
	if err != nil {
		return err
	}
	effective := effectiveControls(defaults, cmd, f)
	prompting := interactive && !effective.NoPrompt
	tui.SetShowProgress(!effective.Verbose.Echo() && !prompting && !f.jsonOutput)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tui.Progress(fmt.Sprintf("Running %s...", name))
	res, err := runner.Run(ctx, name, args, controls)
	if err != nil {
		tui.ProgressFailure(fmt.Sprintf("%s failed", name))
		return err
	}
	if res.ReturnCode() != 0 {
		tui.ProgressFailure(fmt.Sprintf("%s exited with status %d", name, res.ReturnCode()))
	} else {
		tui.ProgressSuccess(fmt.Sprintf("%s finished in %s", name, res.Duration().Round(time.Millisecond)))
	}

	if err := printResult(res, f.jsonOutput, echo.wrote.Load()); err != nil {
		return err
	}

	zap.L().Debug("Task finished", zap.String("task", name), zap.Int("return_code", res.ReturnCode()))
	if res.ReturnCode() != 0 {
		return &exitCodeError{code: res.ReturnCode()}
	}
	return nil
}

// printResult writes the outcome of a run. Output that was already echoed is
// not repeated.
func printResult(res *task.TaskResult, jsonOutput, echoed bool) error {
	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(res)
	}
	if echoed {
		return nil
	}
	if out := res.Stdout(); out != "" {
		core.MustFprintf(os.Stdout, "%s", ensureNewline(out))
	}
	if errOut := res.Stderr(); errOut != "" {
		core.MustFprintf(os.Stderr, "%s", ensureNewline(errOut))
	}
	return nil
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
