package task

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/dorcha-inc/hsp/internal/parfile"
)

// ControlPrefix addresses an invocation control whose plain name is taken by a
// parameter of the task itself, e.g. hsp_verbose.
const ControlPrefix = "hsp_"

// Names of the invocation controls recognised by every task.
const (
	ControlVerbose  = "verbose"
	ControlNoPrompt = "noprompt"
	ControlLogFile  = "logfile"
	ControlStderr   = "stderr"
)

var controlNames = mapset.NewSet(ControlVerbose, ControlNoPrompt, ControlLogFile, ControlStderr)

// Verbosity selects where task output goes besides the captured result.
type Verbosity int

const (
	VerboseQuiet   Verbosity = 0  // capture only
	VerboseEcho    Verbosity = 1  // capture and echo
	VerboseEchoLog Verbosity = 2  // capture, echo and log file
	VerboseLog     Verbosity = 20 // capture and log file
)

// Echo reports whether output is echoed while the task runs.
func (v Verbosity) Echo() bool {
	return v == VerboseEcho || v == VerboseEchoLog
}

// Log reports whether output is appended to the log file.
func (v Verbosity) Log() bool {
	return v == VerboseEchoLog || v == VerboseLog
}

// ParseVerbosity accepts 0, 1, 2 and 20 as numbers or text, and boolean
// aliases, which map to 0 and 1.
func ParseVerbosity(v any) (Verbosity, error) {
	if b, ok := v.(bool); ok {
		if b {
			return VerboseEcho, nil
		}
		return VerboseQuiet, nil
	}

	n, err := parfile.Coerce(parfile.TypeInt, v)
	if err != nil {
		b, boolErr := parfile.Coerce(parfile.TypeBool, v)
		if boolErr != nil {
			return 0, parfile.NewTypeMismatchError(ControlVerbose, parfile.TypeInt, v)
		}
		return ParseVerbosity(b.Bool())
	}
	if !n.IsDefined() {
		return VerboseQuiet, nil
	}

	switch verbosity := Verbosity(n.Int()); verbosity {
	case VerboseQuiet, VerboseEcho, VerboseEchoLog, VerboseLog:
		return verbosity, nil
	default:
		return 0, parfile.NewOutOfRangeError(ControlVerbose, n, "0|1|2|20", "")
	}
}

// Controls are the per-invocation settings that are not task parameters.
type Controls struct {
	Verbose  Verbosity `json:"verbose"`
	NoPrompt bool      `json:"noprompt"`
	LogFile  string    `json:"logfile,omitempty"`
	Stderr   bool      `json:"stderr"`
}

// LogPath returns the log file for task, <task>.log unless one was given.
func (c Controls) LogPath(task string) string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return task + ".log"
}

// set assigns the control called name.
func (c *Controls) set(name string, v any) error {
	switch name {
	case ControlVerbose:
		verbosity, err := ParseVerbosity(v)
		if err != nil {
			return err
		}
		c.Verbose = verbosity
	case ControlNoPrompt, ControlStderr:
		b, err := parfile.Coerce(parfile.TypeBool, v)
		if err != nil {
			return parfile.NewTypeMismatchError(name, parfile.TypeBool, v)
		}
		if name == ControlNoPrompt {
			c.NoPrompt = b.Bool()
		} else {
			c.Stderr = b.Bool()
		}
	case ControlLogFile:
		s, err := parfile.Coerce(parfile.TypeString, v)
		if err != nil {
			return parfile.NewTypeMismatchError(name, parfile.TypeString, v)
		}
		c.LogFile = s.Str()
	default:
		return fmt.Errorf("unknown control %q", name)
	}
	return nil
}

// controlName reports whether key addresses a control for a task with the
// given schema. A bare control name belongs to the task when it declares a
// parameter of that name; the prefixed form is always a control.
func controlName(schema *parfile.File, key string) (string, bool) {
	if name, ok := strings.CutPrefix(key, ControlPrefix); ok && controlNames.Contains(name) {
		return name, true
	}
	if !controlNames.Contains(key) {
		return "", false
	}
	if _, declared := schema.Lookup(key); declared {
		return "", false
	}
	return key, true
}

// splitControls moves the controls out of values into c and returns the
// remaining task parameters. When both forms of a control are present the
// prefixed one wins.
func splitControls(schema *parfile.File, values map[string]any, c *Controls) (map[string]any, error) {
	rest := make(map[string]any, len(values))
	prefixed := make(map[string]any)
	for key, v := range values {
		name, ok := controlName(schema, key)
		switch {
		case !ok:
			rest[key] = v
			continue
		case key != name:
			prefixed[name] = v
			continue
		}
		if err := c.set(name, v); err != nil {
			return nil, err
		}
	}
	for name, v := range prefixed {
		if err := c.set(name, v); err != nil {
			return nil, err
		}
	}
	return rest, nil
}
