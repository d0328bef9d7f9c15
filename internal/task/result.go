package task

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/dorcha-inc/hsp/internal/params"
)

// TaskResult is the outcome of one invocation. A non-zero ReturnCode reports a
// failure of the tool itself; the invocation still completed.
type TaskResult struct {
	returnCode int
	stdout     string
	stderr     string
	params     *params.Store
	custom     map[string]any
	duration   time.Duration
}

// NewResult creates a result. stderr is empty when it was merged into stdout.
func NewResult(returnCode int, stdout, stderr string, p *params.Store, custom map[string]any) *TaskResult {
	r := &TaskResult{
		returnCode: returnCode,
		stdout:     stdout,
		stderr:     stderr,
		custom:     maps.Clone(custom),
	}
	if p != nil {
		r.params = p.Clone()
	}
	return r
}

func (r *TaskResult) ReturnCode() int { return r.returnCode }

func (r *TaskResult) Stdout() string { return r.stdout }

// Stderr is empty when stderr was merged into stdout.
func (r *TaskResult) Stderr() string { return r.stderr }

// Params returns a copy of the final parameter values. It is nil for native
// tasks that did not report any.
func (r *TaskResult) Params() *params.Store {
	if r.params == nil {
		return nil
	}
	return r.params.Clone()
}

// Custom returns a copy of the extra outputs of a native task.
func (r *TaskResult) Custom() map[string]any { return maps.Clone(r.custom) }

// Output returns stdout split into lines.
func (r *TaskResult) Output() []string { return strings.Split(r.stdout, "\n") }

// Duration is the wall time of the run.
func (r *TaskResult) Duration() time.Duration { return r.duration }

// String renders the result the way the toolkit's scripting layer prints it.
func (r *TaskResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "returncode: %d\n", r.returnCode)
	if r.stderr != "" {
		fmt.Fprintf(&b, "stdout:\n%s\nstderr:\n%s\n", r.stdout, r.stderr)
	} else {
		fmt.Fprintf(&b, "stdout (including stderr):\n%s\nstderr: None - included in stdout\n", r.stdout)
	}

	b.WriteString("params:\n")
	if r.params == nil || len(r.params.Names()) == 0 {
		b.WriteString("  None")
	} else {
		for _, name := range r.params.Names() {
			v, _ := r.params.Get(name)
			fmt.Fprintf(&b, "  %s: %s\n", name, v.String())
		}
	}

	if len(r.custom) == 0 {
		b.WriteString("\ncustom: None")
	} else {
		fmt.Fprintf(&b, "\ncustom: %v", r.custom)
	}
	return b.String()
}

// MarshalJSON encodes the result for machine consumers.
func (r *TaskResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ReturnCode int            `json:"return_code"`
		Stdout     string         `json:"stdout"`
		Stderr     string         `json:"stderr"`
		Params     *params.Store  `json:"params,omitempty"`
		Custom     map[string]any `json:"custom,omitempty"`
		Duration   float64        `json:"duration_seconds"`
	}{
		ReturnCode: r.returnCode,
		Stdout:     r.stdout,
		Stderr:     r.stderr,
		Params:     r.params,
		Custom:     r.custom,
		Duration:   r.duration.Seconds(),
	})
}
