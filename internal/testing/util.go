package testing

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dorcha-inc/hsp/internal/core"
)

// CapturedOutput swaps os.Stdout and os.Stderr for pipes until Stop is called.
type CapturedOutput struct {
	OriginalStdout *os.File
	OriginalStderr *os.File
	CapturedStdout *os.File // Read end
	CapturedStderr *os.File // Read end
	stdoutW        *os.File // Write end (needed to close for ReadAll to complete)
	stderrW        *os.File // Write end (needed to close for ReadAll to complete)

	stdout, stderr []byte
	readers        errgroup.Group
	stopped        bool
}

// NewCapturedOutput captures both stdout and stderr output and returns them separately
func NewCapturedOutput() (*CapturedOutput, error) {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		core.LogDeferredError(stdoutR.Close)
		core.LogDeferredError(stdoutW.Close)
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	c := &CapturedOutput{
		OriginalStdout: os.Stdout,
		OriginalStderr: os.Stderr,
		CapturedStdout: stdoutR,
		CapturedStderr: stderrR,
		stdoutW:        stdoutW,
		stderrW:        stderrW,
	}

	// Drain both pipes while capturing so a chatty task cannot fill the
	// pipe buffer and block.
	c.readers.Go(func() (err error) {
		c.stdout, err = io.ReadAll(stdoutR)
		return err
	})
	c.readers.Go(func() (err error) {
		c.stderr, err = io.ReadAll(stderrR)
		return err
	})

	os.Stdout = stdoutW
	os.Stderr = stderrW
	return c, nil
}

// Stop restores the original streams and returns what was written to them.
// Calling Stop again returns the same output.
func (c *CapturedOutput) Stop() (string, string, error) {
	if c.stopped {
		return string(c.stdout), string(c.stderr), nil
	}
	c.stopped = true

	os.Stdout = c.OriginalStdout
	os.Stderr = c.OriginalStderr

	// Let goroutines that grabbed the pipe before the swap finish writing
	time.Sleep(10 * time.Millisecond)

	core.LogDeferredError(c.stdoutW.Close)
	core.LogDeferredError(c.stderrW.Close)

	err := c.readers.Wait()
	core.LogDeferredError(c.CapturedStdout.Close)
	core.LogDeferredError(c.CapturedStderr.Close)
	if err != nil {
		return "", "", fmt.Errorf("failed to read captured output: %w", err)
	}

	return string(c.stdout), string(c.stderr), nil
}
