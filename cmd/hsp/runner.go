package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hsp/internal/builtin"
	"github.com/dorcha-inc/hsp/internal/config"
	"github.com/dorcha-inc/hsp/internal/parfile"
	"github.com/dorcha-inc/hsp/internal/prompt"
	"github.com/dorcha-inc/hsp/internal/registry"
	"github.com/dorcha-inc/hsp/internal/state"
	"github.com/dorcha-inc/hsp/internal/task"
	"github.com/dorcha-inc/hsp/internal/tui"
)

// runnerOptions are the parts of a runner that differ between commands.
type runnerOptions struct {
	// interactive enables the terminal prompter.
	interactive bool
	// echo receives task output; nil means stdout.
	echo io.Writer
}

// environment returns the configured toolkit, nil when none is set up.
func environment(cfg *config.Config) (*state.Environment, error) {
	if cfg.Headas == "" {
		return nil, nil
	}
	return cfg.Environment()
}

// loadRegistry builds the task registry. Without a toolkit or a manifest only
// the built-in tasks are available.
func loadRegistry(cfg *config.Config, env *state.Environment) (*registry.Registry, error) {
	if env == nil && cfg.Manifest == "" {
		zap.L().Debug("No toolkit configured, only built-in tasks are available")
		return registry.New(builtin.Entries()...)
	}
	return registry.Load(registry.Options{
		Env:          env,
		ManifestPath: cfg.Manifest,
		Natives:      builtin.Entries(),
		ArgStyle:     registry.ArgStyle(cfg.ArgStyle),
	})
}

// newRunner wires a task runner from the configuration.
func newRunner(cfg *config.Config, opts runnerOptions) (*task.Runner, error) {
	env, err := environment(cfg)
	if err != nil {
		return nil, err
	}
	reg, err := loadRegistry(cfg, env)
	if err != nil {
		return nil, err
	}
	controls, err := cfg.Controls()
	if err != nil {
		return nil, err
	}

	var prompter task.Prompter
	if opts.interactive && !controls.NoPrompt {
		resolver := prompt.NewResolver(os.Stdin, os.Stderr, cfg.PromptRetries)
		resolver.Style = tui.StylePrompt
		prompter = resolver
	}

	runner, err := task.NewRunner(task.Config{
		Env:          env,
		Registry:     reg,
		Prompter:     prompter,
		Echo:         opts.echo,
		Defaults:     controls,
		DisableLearn: !cfg.Learn,
	})
	if err != nil {
		return nil, err
	}
	builtin.Register(runner)
	return runner, nil
}

// describeTask looks up name and its parameter file. An unknown name on a
// runner without a toolkit is reported together with the unset HEADAS.
func describeTask(runner *task.Runner, name string) (*registry.Entry, *parfile.File, error) {
	entry, schema, err := runner.Describe(name)
	var unknown *registry.UnknownTaskError
	if err != nil && runner.Environment() == nil && errors.As(err, &unknown) {
		return nil, nil, fmt.Errorf("%w; %s is not set, only built-in tasks are available", err, state.EnvHeadas)
	}
	return entry, schema, err
}
