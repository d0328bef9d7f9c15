// Package core implements the functionality for hsp that is shared across all components.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CommandRunner is an interface for running commands, allowing for testing with mocks
type CommandRunner interface {
	CommandContext(ctx context.Context, name string, arg ...string) Command
}

// Command is an interface for exec.Cmd, allowing for testing with mocks
type Command interface {
	StdoutPipe() (io.ReadCloser, error)
	StderrPipe() (io.ReadCloser, error)
	SetStdin(io.Reader)
	SetEnv(env []string)
	SetDir(dir string)
	Start() error
	Wait() error
}

// execCommand wraps exec.Cmd to implement Command interface
type execCommand struct {
	*exec.Cmd
}

func (e *execCommand) SetStdin(r io.Reader) {
	e.Stdin = r
}

func (e *execCommand) SetEnv(env []string) {
	e.Env = env
}

func (e *execCommand) SetDir(dir string) {
	e.Dir = dir
}

func (e *execCommand) Start() error {
	return e.Cmd.Start()
}

func (e *execCommand) Wait() error {
	return e.Cmd.Wait()
}

func (e *execCommand) StdoutPipe() (io.ReadCloser, error) {
	return e.Cmd.StdoutPipe()
}

func (e *execCommand) StderrPipe() (io.ReadCloser, error) {
	return e.Cmd.StderrPipe()
}

// Interface guard for execCommand
var _ Command = &execCommand{}

// execCommandRunner wraps exec.CommandContext to implement CommandRunner
type execCommandRunner struct{}

func (e *execCommandRunner) CommandContext(ctx context.Context, name string, arg ...string) Command {
	return &execCommand{Cmd: exec.CommandContext(ctx, name, arg...)}
}

// Interface guard for execCommandRunner
var _ CommandRunner = &execCommandRunner{}

// ExecRequest describes one run of an external executable.
type ExecRequest struct {
	Path  string    // executable to run
	Args  []string  // arguments, not including the executable itself
	Env   []string  // full child environment; nil inherits the parent's
	Dir   string    // working directory; empty uses the parent's
	Stdin io.Reader // optional stdin

	// Stdout and Stderr receive the streams as they arrive. With MergeStderr
	// set, stderr is written to Stdout as well and Stderr is ignored.
	Stdout      io.Writer
	Stderr      io.Writer
	MergeStderr bool
}

// ExecResult represents the result of a process execution
type ExecResult struct {
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// TaskExecutor runs external toolkit executables and streams their output.
// It adds no deadline of its own; the caller's context bounds the process.
type TaskExecutor struct {
	clock         clockwork.Clock
	commandRunner CommandRunner
}

// NewTaskExecutor creates a new executor with a real clock
func NewTaskExecutor() *TaskExecutor {
	return NewTaskExecutorWithClock(clockwork.NewRealClock())
}

// NewTaskExecutorWithClock creates a new executor with a custom clock
// This is useful for testing with a fake clock
func NewTaskExecutorWithClock(clock clockwork.Clock) *TaskExecutor {
	return &TaskExecutor{
		clock:         clock,
		commandRunner: &execCommandRunner{},
	}
}

// NewTaskExecutorWithClockAndRunner creates a new executor with a custom clock and command runner
// This is useful for testing with a fake clock and mocked command execution
func NewTaskExecutorWithClockAndRunner(clock clockwork.Clock, runner CommandRunner) *TaskExecutor {
	return &TaskExecutor{
		clock:         clock,
		commandRunner: runner,
	}
}

// lockedWriter serializes writes coming from the stdout and stderr copiers
// when both streams share one destination.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// drain copies src into dst. After a failed write the rest of src is
// discarded so the child never blocks on a full pipe.
func drain(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	if err != nil {
		_, _ = io.Copy(io.Discard, src)
	}
	return err
}

// Execute runs the request to completion. A non-zero exit status is reported
// through ExecResult.ExitCode and is not an error; an error means the process
// could not be started or its output could not be collected.
func (e *TaskExecutor) Execute(ctx context.Context, req *ExecRequest) (*ExecResult, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("no executable given")
	}

	startTime := e.clock.Now()

	cmd := e.commandRunner.CommandContext(ctx, req.Path, req.Args...)
	if req.Env != nil {
		cmd.SetEnv(req.Env)
	}
	if req.Dir != "" {
		cmd.SetDir(req.Dir)
	}
	if req.Stdin != nil {
		cmd.SetStdin(req.Stdin)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", req.Path, err)
	}

	stdoutDst, stderrDst := req.Stdout, req.Stderr
	if stdoutDst == nil {
		stdoutDst = io.Discard
	}
	if stderrDst == nil {
		stderrDst = io.Discard
	}
	if req.MergeStderr {
		shared := &lockedWriter{w: stdoutDst}
		stdoutDst, stderrDst = shared, shared
	}

	done := make(chan error, 2)

	go func() { done <- drain(stdoutDst, stdout) }()
	go func() { done <- drain(stderrDst, stderr) }()

	// Both copiers must drain before Wait closes the pipes.
	copyErr := errors.Join(<-done, <-done)

	err = cmd.Wait()

	result := &ExecResult{
		ExitCode: 0,
		Duration: e.clock.Since(startTime),
	}

	if err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			return result, fmt.Errorf("failed waiting for %s: %w", req.Path, err)
		}
		result.ExitCode = exitError.ExitCode()
	}

	if copyErr != nil {
		return result, fmt.Errorf("failed to collect output of %s: %w", req.Path, copyErr)
	}

	return result, nil
}
