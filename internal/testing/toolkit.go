// Package testing provides shared fixtures for hsp tests: captured process
// output and a throwaway toolkit installation with stub task executables.
package testing

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/state"
)

// EchoTool is a stub executable that prints its own name and arguments.
const EchoTool = `#!/bin/sh
echo "$(basename "$0") $*"
`

// Toolkit is a fake toolkit installation under a temporary directory:
// $HEADAS/bin holds stub executables, $HEADAS/syspfiles the shipped
// parameter files and a sibling pfiles directory stands in for the user's.
type Toolkit struct {
	Headas  string
	UserDir string
	SysDir  string
	Env     *state.Environment
}

// NewToolkit lays out an empty toolkit. Tests that run stub executables are
// skipped on Windows.
func NewToolkit(t *testing.T) *Toolkit {
	t.Helper()
	if runtime.GOOS == core.GOOSWindows {
		t.Skip("stub tools are shell scripts")
	}

	root := t.TempDir()
	headas := filepath.Join(root, "headas")
	tk := &Toolkit{
		Headas:  headas,
		UserDir: filepath.Join(root, "pfiles"),
		SysDir:  filepath.Join(headas, state.SysPfilesDir),
	}
	for _, dir := range []string{tk.UserDir, tk.SysDir, tk.BinDir()} {
		// #nosec G301 -- test directory permissions are acceptable for temporary test files
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	env, err := state.NewEnvironment(headas, tk.Pfiles())
	require.NoError(t, err)
	tk.Env = env
	return tk
}

// BinDir is where stub executables live.
func (tk *Toolkit) BinDir() string {
	return filepath.Join(tk.Headas, "bin")
}

// Pfiles is the PFILES value of the toolkit.
func (tk *Toolkit) Pfiles() string {
	return tk.UserDir + ";" + tk.SysDir
}

// AddTask installs a shipped parameter file and, when script is not empty, a
// stub executable for the task. The parameter file is back-dated so a
// freshly learned user copy is always newer.
func (tk *Toolkit) AddTask(t *testing.T, name, par, script string) {
	t.Helper()

	sysPar := filepath.Join(tk.SysDir, name+".par")
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(sysPar, []byte(par), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(sysPar, old, old))

	if script == "" {
		return
	}
	// #nosec G306 -- the stub must be executable
	require.NoError(t, os.WriteFile(filepath.Join(tk.BinDir(), name), []byte(script), 0o755))
}

// Setenv exports HEADAS and PFILES for the duration of the test.
func (tk *Toolkit) Setenv(t *testing.T) {
	t.Helper()
	t.Setenv(state.EnvHeadas, tk.Headas)
	t.Setenv(state.EnvPfiles, tk.Pfiles())
}
