// Package task resolves, runs and reports toolkit task invocations.
package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/parfile"
	"github.com/dorcha-inc/hsp/internal/params"
	"github.com/dorcha-inc/hsp/internal/registry"
	"github.com/dorcha-inc/hsp/internal/state"
)

// Prompter asks for the values a store is still missing.
type Prompter interface {
	ResolveStore(s *params.Store) error
}

// Config configures a Runner. Registry is required.
type Config struct {
	Env      *state.Environment // nil only works for tasks with embedded parameter files
	Registry *registry.Registry
	Prompter Prompter // nil behaves as if every call were noprompt
	Executor *core.TaskExecutor
	Clock    clockwork.Clock

	// Echo receives task output at verbosity 1 and 2. Defaults to os.Stdout.
	Echo io.Writer

	// Defaults are the controls in effect before the sources of a call apply.
	Defaults Controls

	// DisableLearn stops values from being written back to parameter files.
	DisableLearn bool
}

// Runner dispatches task invocations. It is safe for concurrent use; concurrent
// calls of one task still share its parameter file unless each runner is bound
// to a private scope.
type Runner struct {
	env      *state.Environment
	registry *registry.Registry
	prompter Prompter
	executor *core.TaskExecutor
	clock    clockwork.Clock
	echo     io.Writer
	defaults Controls
	learn    bool

	cache   *parfile.Cache
	natives *xsync.MapOf[string, NativeFunc]
}

// NewRunner creates a runner from cfg.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("no task registry configured")
	}

	r := &Runner{
		env:      cfg.Env,
		registry: cfg.Registry,
		prompter: cfg.Prompter,
		executor: cfg.Executor,
		clock:    cfg.Clock,
		echo:     cfg.Echo,
		defaults: cfg.Defaults,
		learn:    !cfg.DisableLearn,
		cache:    parfile.NewCache(),
		natives:  xsync.NewMapOf[string, NativeFunc](),
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.executor == nil {
		r.executor = core.NewTaskExecutorWithClock(r.clock)
	}
	if r.echo == nil {
		r.echo = os.Stdout
	}
	return r, nil
}

// Registry returns the registry the runner dispatches from.
func (r *Runner) Registry() *registry.Registry { return r.registry }

// Environment returns the toolkit environment, nil when none is configured.
func (r *Runner) Environment() *state.Environment { return r.env }

// WithEnvironment returns a runner that shares everything with r except the
// toolkit environment, typically the environment of a private scope.
func (r *Runner) WithEnvironment(env *state.Environment) *Runner {
	derived := *r
	derived.env = env
	derived.cache = parfile.NewCache()
	return &derived
}

// RegisterNative binds the implementation of native tasks whose entry point
// is entryPoint.
func (r *Runner) RegisterNative(entryPoint string, fn NativeFunc) {
	r.natives.Store(entryPoint, fn)
}

// Describe returns the registry entry and the current parameter file of a task
// without resolving any values.
func (r *Runner) Describe(name string) (*registry.Entry, *parfile.File, error) {
	entry, err := r.registry.Lookup(name)
	if err != nil {
		return nil, nil, err
	}
	schema, err := r.loadSchema(entry)
	if err != nil {
		return nil, nil, err
	}
	return entry, schema, nil
}

// invocation is one resolved call.
type invocation struct {
	entry    *registry.Entry
	store    *params.Store
	controls Controls
}

// Resolve builds the parameter store of a call without running the task:
// defaults, then the sources in order, then prompting for what is missing,
// then learning.
func (r *Runner) Resolve(ctx context.Context, name string, sources ...params.Source) (*params.Store, error) {
	inv, err := r.prepare(ctx, name, sources)
	if err != nil {
		return nil, err
	}
	return inv.store, nil
}

// Run resolves and executes a task. A non-zero return code of the tool is not
// an error; errors mean the task could not be run at all.
func (r *Runner) Run(ctx context.Context, name string, sources ...params.Source) (*TaskResult, error) {
	inv, err := r.prepare(ctx, name, sources)
	if err != nil {
		return nil, err
	}

	out, err := openSinks(inv.entry.Name, inv.controls, r.echo)
	if err != nil {
		return nil, err
	}
	defer core.LogDeferredError(out.Close)

	if inv.entry.Kind == registry.KindNative {
		return r.runNative(ctx, inv, out)
	}
	return r.runExternal(ctx, inv, out)
}

func (r *Runner) prepare(ctx context.Context, name string, sources []params.Source) (*invocation, error) {
	entry, err := r.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	schema, err := r.loadSchema(entry)
	if err != nil {
		return nil, err
	}

	inv := &invocation{
		entry:    entry,
		store:    params.NewStore(entry.Name, schema, entry.AcceptsExtra),
		controls: r.defaults,
	}
	for _, src := range sources {
		if src == nil {
			continue
		}
		values, err := splitControls(schema, src.Values(), &inv.controls)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", entry.Name, err)
		}
		if err := inv.store.Apply(values); err != nil {
			return nil, err
		}
	}

	if missing := inv.store.Unresolved(); len(missing) > 0 {
		if inv.controls.NoPrompt || r.prompter == nil {
			return nil, params.NewMissingParameterError(entry.Name, missing)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.prompter.ResolveStore(inv.store); err != nil {
			return nil, err
		}
	}

	if r.learn {
		if err := r.writeBack(inv); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// loadSchema finds the parameter file of entry: an explicit path, the
// toolkit's search path, or the file embedded in a native task.
func (r *Runner) loadSchema(entry *registry.Entry) (*parfile.File, error) {
	if entry.ParFile != "" {
		return r.cache.Load(entry.Name, entry.ParFile)
	}

	if r.env == nil {
		if len(entry.EmbeddedPar) > 0 {
			return parfile.Parse(entry.Name+".par", entry.EmbeddedPar)
		}
		return nil, state.NewConfigurationError(state.EnvHeadas, "not set; cannot locate parameter files")
	}

	path, err := r.env.FindParFile(entry.Name)
	if err != nil {
		var notFound *state.ParFileNotFoundError
		if errors.As(err, &notFound) && len(entry.EmbeddedPar) > 0 {
			return parfile.Parse(entry.Name+".par", entry.EmbeddedPar)
		}
		return nil, err
	}
	return r.cache.Load(entry.Name, path)
}

// writeBack persists learnable values to the user copy of the parameter file.
// Tasks with an explicit parameter file path are never written.
func (r *Runner) writeBack(inv *invocation) error {
	if r.env == nil || inv.entry.ParFile != "" {
		return nil
	}
	names := inv.store.Learnable()
	if len(names) == 0 {
		return nil
	}
	path, ok := r.env.UserParFile(inv.entry.Name)
	if !ok {
		return nil
	}

	file := inv.store.Schema().Clone()
	for _, name := range names {
		v, _ := inv.store.Get(name)
		if err := file.SetDefault(name, v); err != nil {
			return fmt.Errorf("task %s: %w", inv.entry.Name, err)
		}
	}

	// #nosec G301 -- parameter directories are shared with the toolkit
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create parameter directory: %w", err)
	}
	if err := file.Save(path); err != nil {
		return fmt.Errorf("failed to learn parameters of %s: %w", inv.entry.Name, err)
	}
	r.cache.Invalidate(inv.entry.Name)

	zap.L().Debug("Learned parameter values",
		zap.String("task", inv.entry.Name),
		zap.Strings("params", names),
		zap.String("path", path))
	return nil
}

func (r *Runner) runExternal(ctx context.Context, inv *invocation, out *sinks) (*TaskResult, error) {
	exe, err := inv.entry.ResolveExecutable(r.env)
	if err != nil {
		return nil, err
	}

	var env []string
	var userPar string
	var before time.Time
	if r.env != nil {
		env = r.env.ChildEnv()
		if path, ok := r.env.UserParFile(inv.entry.Name); ok && inv.entry.ParFile == "" {
			userPar = path
			before = modTime(path)
		}
	}

	args := BuildArgs(inv.store, inv.entry.ArgStyle)
	zap.L().Debug("Running external task",
		zap.String("task", inv.entry.Name),
		zap.String("executable", exe),
		zap.Strings("args", args))

	res, err := r.executor.Execute(ctx, &core.ExecRequest{
		Path:        exe,
		Args:        args,
		Env:         env,
		Stdout:      out.stdout,
		Stderr:      out.stderr,
		MergeStderr: !inv.controls.Stderr,
	})
	duration := 0.0
	returnCode := -1
	if res != nil {
		duration = res.Duration.Seconds()
		returnCode = res.ExitCode
	}
	core.LogTaskExecution(inv.entry.Name, duration, returnCode, err)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", inv.entry.Name, err)
	}

	if userPar != "" {
		r.refresh(inv, userPar, before)
	}

	result := NewResult(res.ExitCode, out.stdoutBuf.String(), out.stderrBuf.String(), inv.store, nil)
	result.duration = res.Duration
	return result, nil
}

// refresh picks up values a tool wrote to its own parameter file.
func (r *Runner) refresh(inv *invocation, path string, before time.Time) {
	after := modTime(path)
	if after.IsZero() || after.Equal(before) {
		return
	}
	r.cache.Invalidate(inv.entry.Name)
	file, err := parfile.Load(path)
	if err != nil {
		zap.L().Warn("Could not reload parameter file after run",
			zap.String("task", inv.entry.Name), zap.Error(err))
		return
	}
	if changed := inv.store.Refresh(file); len(changed) > 0 {
		zap.L().Debug("Refreshed parameters updated by the task",
			zap.String("task", inv.entry.Name), zap.Strings("params", changed))
	}
}

func (r *Runner) runNative(ctx context.Context, inv *invocation, out *sinks) (*TaskResult, error) {
	fn, ok := r.natives.Load(inv.entry.EntryPoint)
	if !ok {
		return nil, fmt.Errorf("no implementation registered for native task %s (entry point %s)",
			inv.entry.Name, inv.entry.EntryPoint)
	}

	call := &NativeCall{
		Task:     inv.entry.Name,
		Params:   inv.store,
		Env:      r.env,
		Controls: inv.controls,
		Stdout:   out.stdout,
		Stderr:   out.stdout,
		Runner:   r,
		sinks:    out,
	}
	if inv.controls.Stderr {
		call.Stderr = out.stderr
	}

	start := r.clock.Now()
	result, err := callNative(ctx, fn, call)
	elapsed := r.clock.Since(start)

	returnCode := -1
	if result != nil {
		returnCode = result.returnCode
	}
	core.LogTaskExecution(inv.entry.Name, elapsed.Seconds(), returnCode, err)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", inv.entry.Name, err)
	}

	result.duration = elapsed
	return result, nil
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
