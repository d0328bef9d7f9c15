package registry

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/state"
)

// Kind says how a task is carried out.
type Kind string

const (
	KindExternal Kind = "external"
	KindNative   Kind = "native"
)

// ArgStyle says how parameters are laid out on an external command line.
type ArgStyle string

const (
	// ArgStyleMixed passes the leading required parameters positionally and
	// everything else as name=value.
	ArgStyleMixed ArgStyle = "mixed"
	// ArgStyleNamed passes every parameter as name=value.
	ArgStyleNamed ArgStyle = "named"
)

// Entry describes one task.
type Entry struct {
	Name         string   `yaml:"name" json:"name" validate:"required"`
	Module       string   `yaml:"module,omitempty" json:"module,omitempty"`
	Kind         Kind     `yaml:"kind" json:"kind" validate:"required,oneof=external native"`
	Executable   string   `yaml:"executable,omitempty" json:"executable,omitempty"`
	EntryPoint   string   `yaml:"entry_point,omitempty" json:"entry_point,omitempty" validate:"required_if=Kind native"`
	ParFile      string   `yaml:"par_file,omitempty" json:"par_file,omitempty"`
	ArgStyle     ArgStyle `yaml:"arg_style,omitempty" json:"arg_style,omitempty" validate:"omitempty,oneof=mixed named"`
	AcceptsExtra bool     `yaml:"accepts_extra,omitempty" json:"accepts_extra,omitempty"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`

	// EmbeddedPar is the parameter file compiled into the binary for native
	// tasks. It is used when PFILES holds no copy.
	EmbeddedPar []byte `yaml:"-" json:"-"`
}

var validate = validator.New()

// Validate checks the entry's struct tags.
func (e *Entry) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("invalid task entry %q: %w", e.Name, err)
	}
	if strings.ContainsAny(e.Name, `/\ `) {
		return fmt.Errorf("invalid task entry %q: name may not contain separators or spaces", e.Name)
	}
	return nil
}

// CallableName is the name with dashes mapped to underscores.
func (e *Entry) CallableName() string {
	return Normalize(e.Name)
}

// Normalize maps a task name to its lookup key.
func Normalize(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "-", "_")
}

// ResolveExecutable finds the program for an external task: an absolute
// Executable is used as is, a bare one is searched in PATH, and without one the
// task name is tried under $HEADAS/bin and then in PATH.
func (e *Entry) ResolveExecutable(env *state.Environment) (string, error) {
	if e.Executable != "" {
		if filepath.IsAbs(e.Executable) {
			return e.Executable, nil
		}
		path, err := exec.LookPath(e.Executable)
		if err != nil {
			return "", fmt.Errorf("executable for task %s: %w", e.Name, err)
		}
		return path, nil
	}

	if env != nil {
		candidate := filepath.Join(env.Headas, "bin", e.Name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() && core.IsExecutable(info) {
			return candidate, nil
		}
	}

	path, err := exec.LookPath(e.Name)
	if err != nil {
		return "", fmt.Errorf("executable for task %s: %w", e.Name, err)
	}
	return path, nil
}
