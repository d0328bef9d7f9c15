// Package state models the on-disk toolkit state shared by every invocation: the
// installation root (HEADAS) and the parameter-file search path (PFILES).
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hsp/internal/core"
)

const (
	EnvHeadas = "HEADAS"
	EnvPfiles = "PFILES"

	// SysPfilesDir is the directory under HEADAS holding the shipped parameter files.
	SysPfilesDir = "syspfiles"
	// UserPfilesDir is the directory under the home directory used when PFILES is unset.
	UserPfilesDir = "pfiles"
)

// Environment is an immutable view of the toolkit state. UserDirs are writable
// and searched first; SysDirs hold the shipped defaults.
type Environment struct {
	Headas   string   `json:"headas"`
	UserDirs []string `json:"user_dirs"`
	SysDirs  []string `json:"sys_dirs"`
}

// NewEnvironment builds an environment from HEADAS and PFILES values. PFILES has
// the form "user1:user2;sys1:sys2". Without a semicolon every directory is
// treated as a user directory. An empty PFILES means ~/pfiles followed by
// $HEADAS/syspfiles. An empty HEADAS is a ConfigurationError.
func NewEnvironment(headas, pfiles string) (*Environment, error) {
	if strings.TrimSpace(headas) == "" {
		return nil, NewConfigurationError(EnvHeadas, "not set; initialize the toolkit first")
	}

	env := &Environment{Headas: headas}
	if strings.TrimSpace(pfiles) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, NewConfigurationError(EnvPfiles, fmt.Sprintf("not set and no home directory: %v", err))
		}
		env.UserDirs = []string{filepath.Join(home, UserPfilesDir)}
		env.SysDirs = []string{filepath.Join(headas, SysPfilesDir)}
		return env, nil
	}

	user, sys, hasSys := strings.Cut(pfiles, ";")
	env.UserDirs = splitDirs(user)
	if hasSys {
		env.SysDirs = splitDirs(sys)
	}
	if len(env.UserDirs) == 0 && len(env.SysDirs) == 0 {
		return nil, NewConfigurationError(EnvPfiles, fmt.Sprintf("no directories in %q", pfiles))
	}
	return env, nil
}

// FromProcess builds an environment from the process environment. HSP_HEADAS and
// HSP_PFILES take precedence over HEADAS and PFILES.
func FromProcess() (*Environment, error) {
	return NewEnvironment(core.GetEnv(EnvHeadas), core.GetEnv(EnvPfiles))
}

func splitDirs(s string) []string {
	var dirs []string
	for _, d := range strings.Split(s, ":") {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Pfiles renders the search path in PFILES syntax.
func (e *Environment) Pfiles() string {
	return strings.Join(e.UserDirs, ":") + ";" + strings.Join(e.SysDirs, ":")
}

// Vars returns the variables a child process needs to see this environment.
func (e *Environment) Vars() map[string]string {
	return map[string]string{
		EnvHeadas: e.Headas,
		EnvPfiles: e.Pfiles(),
	}
}

// ChildEnv returns the parent environment with HEADAS and PFILES replaced.
func (e *Environment) ChildEnv() []string {
	return core.MergeEnv(os.Environ(), e.Vars())
}

// WithUserDir returns a copy of e whose only user directory is dir.
func (e *Environment) WithUserDir(dir string) *Environment {
	return &Environment{
		Headas:   e.Headas,
		UserDirs: []string{dir},
		SysDirs:  slices.Clone(e.SysDirs),
	}
}

// UserParFile returns where the user copy of a task's parameter file lives: the
// first user directory. ok is false when there is no user directory.
func (e *Environment) UserParFile(task string) (path string, ok bool) {
	if len(e.UserDirs) == 0 {
		return "", false
	}
	return filepath.Join(e.UserDirs[0], task+".par"), true
}

// FindParFile locates the parameter file of task. The first user copy wins
// unless it is older than the first system copy, which happens after a fresh
// toolkit install and means the user copy is stale.
func (e *Environment) FindParFile(task string) (string, error) {
	name := task + ".par"
	user, userInfo := firstExisting(e.UserDirs, name)
	sys, sysInfo := firstExisting(e.SysDirs, name)

	switch {
	case user != "" && sys != "" && userInfo.ModTime().Before(sysInfo.ModTime()):
		zap.L().Debug("Ignoring stale user parameter file",
			zap.String("task", task), zap.String("user", user), zap.String("sys", sys))
		return sys, nil
	case user != "":
		return user, nil
	case sys != "":
		return sys, nil
	}
	return "", NewParFileNotFoundError(task, append(slices.Clone(e.UserDirs), e.SysDirs...))
}

func firstExisting(dirs []string, name string) (string, os.FileInfo) {
	for _, dir := range dirs {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, info
		}
	}
	return "", nil
}
