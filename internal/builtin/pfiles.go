package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/parfile"
	"github.com/dorcha-inc/hsp/internal/params"
	"github.com/dorcha-inc/hsp/internal/state"
	"github.com/dorcha-inc/hsp/internal/task"
)

func stringParam(call *task.NativeCall, name string) string {
	v, _ := call.Params.Get(name)
	return v.String()
}

// runPlist prints every parameter of a task. Hidden parameters are shown in
// parentheses.
func runPlist(_ context.Context, call *task.NativeCall) (*task.TaskResult, error) {
	entry, schema, err := call.Runner.Describe(stringParam(call, "task"))
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(schema.Names()))
	for _, d := range schema.Params() {
		name, value := d.Name, d.Default.String()
		if d.Mode.Has(parfile.ModeHidden) {
			name, value = "("+name, value+")"
		}
		core.MustFprintf(call.Stdout, "%14s = %-18s %s\n", name, value, d.Prompt)
		values[d.Name] = d.Default.Interface()
	}

	return call.Result(0, map[string]any{"task": entry.Name, "params": values}), nil
}

// runPget prints the current value of one parameter.
func runPget(_ context.Context, call *task.NativeCall) (*task.TaskResult, error) {
	entry, schema, err := call.Runner.Describe(stringParam(call, "task"))
	if err != nil {
		return nil, err
	}

	pname := stringParam(call, "pname")
	d, ok := schema.Lookup(pname)
	if !ok {
		return nil, params.NewUnknownParameterError(entry.Name, pname, params.Suggest(pname, schema.Names()))
	}

	core.MustFprintf(call.Stdout, "%s\n", d.Default)
	return call.Result(0, map[string]any{"value": d.Default.Interface()}), nil
}

// runPunlearn removes the user copies of a task's parameter file so the
// shipped defaults apply again.
func runPunlearn(_ context.Context, call *task.NativeCall) (*task.TaskResult, error) {
	if call.Env == nil {
		return nil, state.NewConfigurationError(state.EnvPfiles, "no user parameter directory to reset")
	}

	entry, err := call.Runner.Registry().Lookup(stringParam(call, "task"))
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, dir := range call.Env.UserDirs {
		file := filepath.Join(dir, entry.Name+".par")
		err := os.Remove(file)
		switch {
		case err == nil:
			removed = append(removed, file)
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to remove %s: %w", file, err)
		}
	}

	if len(removed) == 0 {
		core.MustFprintf(call.Stdout, "No learned parameters for %s\n", entry.Name)
	} else {
		core.MustFprintf(call.Stdout, "Restored the default parameters of %s\n", entry.Name)
	}
	return call.Result(0, map[string]any{"removed": removed}), nil
}
