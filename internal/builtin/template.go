package builtin

import (
	"context"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/parfile"
	"github.com/dorcha-inc/hsp/internal/task"
)

// runTemplate is the skeleton every in-process task follows: read the
// parameters, write progress to the call's streams, update the parameters
// and return call.Result.
func runTemplate(_ context.Context, call *task.NativeCall) (*task.TaskResult, error) {
	foo, _ := call.Params.Get("foo")
	bar, _ := call.Params.Get("bar")

	if bar.Kind() != parfile.KindInt {
		core.MustFprintf(call.Stderr, "bar must be an integer, got %s\n", bar)
		return call.Result(1, nil), nil
	}

	core.MustFprintf(call.Stdout, "\nResetting the foo parameter from %s to %s.\n", foo, bar)
	if err := call.Params.Set("foo", bar.String()); err != nil {
		return nil, err
	}
	core.MustFprintf(call.Stdout, "Now foo = %s.", bar)

	next := bar.Int() + 1
	if err := call.Params.Set("bar", next); err != nil {
		return nil, err
	}
	core.MustFprintf(call.Stdout, " and bar = %d.", next)

	return call.Result(0, nil), nil
}
