// Package prompt asks the user for parameter values that are still missing.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/parfile"
	"github.com/dorcha-inc/hsp/internal/params"
)

// DefaultMaxAttempts bounds how often a single parameter is asked for.
const DefaultMaxAttempts = 3

// Resolver reads parameter values line by line from an input stream.
type Resolver struct {
	in          *bufio.Reader
	out         io.Writer
	maxAttempts int

	// Style decorates the question before it is written. Nil leaves it plain.
	Style func(question string) string
}

// NewResolver creates a resolver reading from in and writing questions to out.
// maxAttempts below 1 falls back to DefaultMaxAttempts.
func NewResolver(in io.Reader, out io.Writer, maxAttempts int) *Resolver {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Resolver{
		in:          bufio.NewReader(in),
		out:         out,
		maxAttempts: maxAttempts,
	}
}

// MaxAttempts returns the number of tries allowed per parameter
func (r *Resolver) MaxAttempts() int {
	return r.maxAttempts
}

// Question formats the text shown for d: "<prompt> (<current>) > ".
func Question(d *parfile.Descriptor, current parfile.Value) string {
	label := d.Prompt
	if label == "" {
		label = d.Name
	}
	return fmt.Sprintf("%s (%s) > ", label, current.String())
}

// Resolve asks for a value of d. An empty answer keeps current, which counts as a
// failed attempt when current is undefined. Invalid answers are reported and asked
// again up to the attempt limit, after which the last error is returned. End of
// input stops immediately with a MissingParameterError.
func (r *Resolver) Resolve(task string, d *parfile.Descriptor, current parfile.Value) (parfile.Value, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		question := Question(d, current)
		if r.Style != nil {
			question = r.Style(question)
		}
		core.MustFprintf(r.out, "%s", question)

		line, err := r.in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			core.MustFprintf(r.out, "\n")
			return parfile.Value{}, params.NewMissingParameterError(task, []string{d.Name})
		}

		answer := strings.TrimSpace(line)
		if answer == "" {
			if current.IsDefined() {
				return current, nil
			}
			lastErr = params.NewMissingParameterError(task, []string{d.Name})
			core.MustFprintf(r.out, "A value for %s is required.\n", d.Name)
			continue
		}

		v, err := d.Coerce(answer)
		if err != nil {
			lastErr = err
			zap.L().Debug("Rejected prompt answer",
				zap.String("task", task), zap.String("param", d.Name), zap.Int("attempt", attempt), zap.Error(err))
			core.MustFprintf(r.out, "Invalid value: %v\n", err)
			continue
		}
		if v.IsDefined() {
			return v, nil
		}
		lastErr = params.NewMissingParameterError(task, []string{d.Name})
	}
	return parfile.Value{}, lastErr
}

// ResolveStore prompts for every unresolved parameter of s in declaration order
// and stores the answers.
func (r *Resolver) ResolveStore(s *params.Store) error {
	for _, name := range s.Unresolved() {
		d, ok := s.Schema().Lookup(name)
		if !ok {
			continue
		}
		current, _ := s.Get(name)
		v, err := r.Resolve(s.Task(), d, current)
		if err != nil {
			return err
		}
		if err := s.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}
