package testing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/state"
)

func TestNewToolkit(t *testing.T) {
	tk := NewToolkit(t)

	assert.DirExists(t, tk.UserDir)
	assert.DirExists(t, tk.SysDir)
	assert.DirExists(t, tk.BinDir())
	assert.Equal(t, []string{tk.UserDir}, tk.Env.UserDirs)
	assert.Equal(t, []string{tk.SysDir}, tk.Env.SysDirs)
}

func TestToolkit_AddTask(t *testing.T) {
	tk := NewToolkit(t)
	tk.AddTask(t, "fdump", "infile,s,a,,,,\"Input\"\n", EchoTool)
	tk.AddTask(t, "nobin", "x,i,h,1,,,\"X\"\n", "")

	par, err := tk.Env.FindParFile("fdump")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tk.SysDir, "fdump.par"), par)

	info, err := os.Stat(filepath.Join(tk.BinDir(), "fdump"))
	require.NoError(t, err)
	assert.True(t, core.IsExecutable(info))
	_, err = os.Stat(filepath.Join(tk.BinDir(), "nobin"))
	assert.True(t, os.IsNotExist(err))
}

func TestToolkit_Setenv(t *testing.T) {
	tk := NewToolkit(t)
	tk.Setenv(t)

	env, err := state.FromProcess()
	require.NoError(t, err)
	assert.Equal(t, tk.Headas, env.Headas)
	assert.Equal(t, []string{tk.UserDir}, env.UserDirs)
}
