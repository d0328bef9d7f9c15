package task

import (
	"context"
	"fmt"
	"io"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/params"
	"github.com/dorcha-inc/hsp/internal/state"
)

// NativeFunc implements a task in process. It may modify call.Params; the
// returned result should be built with call.Result.
type NativeFunc func(ctx context.Context, call *NativeCall) (*TaskResult, error)

// NativeCall is what a native task receives.
type NativeCall struct {
	Task     string
	Params   *params.Store
	Env      *state.Environment // nil when no toolkit is configured
	Controls Controls

	// Stdout and Stderr honour the verbosity of the call. Stderr is the same
	// writer as Stdout unless stderr isolation was requested.
	Stdout io.Writer
	Stderr io.Writer

	// Runner lets a native task invoke other tasks.
	Runner *Runner

	sinks *sinks
}

// Result builds the task result from everything written to Stdout and
// Stderr so far and the current Params.
func (c *NativeCall) Result(returnCode int, custom map[string]any) *TaskResult {
	stdout, stderr := "", ""
	if c.sinks != nil {
		stdout, stderr = c.sinks.stdoutBuf.String(), c.sinks.stderrBuf.String()
	}
	return NewResult(returnCode, stdout, stderr, c.Params, custom)
}

// callNative runs fn, turning a panic into an error.
func callNative(ctx context.Context, fn NativeFunc, call *NativeCall) (result *TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			core.LogPanicRecovery("native task "+call.Task, r)
			result, err = nil, fmt.Errorf("native task %s panicked: %v", call.Task, r)
		}
	}()

	result, err = fn(ctx, call)
	if err == nil && result == nil {
		result = call.Result(0, nil)
	}
	return result, err
}
