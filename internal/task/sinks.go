package task

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// sinks fans task output out to the capture buffers and, depending on the
// verbosity, the echo stream and the log file.
type sinks struct {
	stdoutBuf bytes.Buffer
	stderrBuf bytes.Buffer

	stdout io.Writer
	stderr io.Writer
	log    *os.File
}

func openSinks(task string, c Controls, echo io.Writer) (*sinks, error) {
	s := &sinks{}
	stdout := []io.Writer{&s.stdoutBuf}
	stderr := []io.Writer{&s.stderrBuf}

	if c.Verbose.Echo() && echo != nil {
		stdout = append(stdout, echo)
		stderr = append(stderr, echo)
	}

	if c.Verbose.Log() {
		path := c.LogPath(task)
		// #nosec G304 -- the log path is chosen by the caller
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		s.log = f
		stdout = append(stdout, f)
		stderr = append(stderr, f)
	}

	s.stdout = io.MultiWriter(stdout...)
	s.stderr = io.MultiWriter(stderr...)
	return s, nil
}

func (s *sinks) Close() error {
	if s.log == nil {
		return nil
	}
	return s.log.Close()
}
