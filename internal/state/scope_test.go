package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquirePrivateScope_Temporary(t *testing.T) {
	root := t.TempDir()
	userDir := filepath.Join(root, "user")
	sysDir := filepath.Join(root, "sys")
	old := time.Now().Add(-time.Hour)
	writePar(t, userDir, "fdump", "a,s,hl,user,,,\"\"\n", old)
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "notes.txt"), []byte("x"), 0644))

	env, err := NewEnvironment(root, userDir+";"+sysDir)
	require.NoError(t, err)

	scope, err := AcquirePrivateScope(env, "")
	require.NoError(t, err)
	dir := scope.Dir()
	assert.NotEqual(t, userDir, dir)

	// #nosec G304 -- path is constructed from test temp directory, safe
	data, err := os.ReadFile(filepath.Join(dir, "fdump.par"))
	require.NoError(t, err)
	assert.Equal(t, "a,s,hl,user,,,\"\"\n", string(data))

	info, err := os.Stat(filepath.Join(dir, "fdump.par"))
	require.NoError(t, err)
	assert.WithinDuration(t, old, info.ModTime(), time.Second)

	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.True(t, os.IsNotExist(err))

	scoped := scope.Environment()
	assert.Equal(t, []string{dir}, scoped.UserDirs)
	assert.Equal(t, env.SysDirs, scoped.SysDirs)
	assert.Equal(t, []string{userDir}, env.UserDirs, "the base environment is unchanged")

	require.NoError(t, scope.Release())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, scope.Release(), "release is idempotent")
}

func TestAcquirePrivateScope_NamedDirectory(t *testing.T) {
	root := t.TempDir()
	userDir := filepath.Join(root, "user")
	writePar(t, userDir, "fdump", "a,s,hl,user,,,\"\"\n", time.Now())
	env, err := NewEnvironment(root, userDir+";")
	require.NoError(t, err)

	target := filepath.Join(root, "mine.pfiles")
	scope, err := AcquirePrivateScope(env, target)
	require.NoError(t, err)
	assert.Equal(t, target, scope.Dir())
	_, err = os.Stat(filepath.Join(target, "fdump.par"))
	require.NoError(t, err)

	require.NoError(t, scope.Release())
	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err), "a directory created by the scope is removed")
}

func TestAcquirePrivateScope_ExistingDirectoryIsKept(t *testing.T) {
	root := t.TempDir()
	env, err := NewEnvironment(root, filepath.Join(root, "user")+";")
	require.NoError(t, err)

	existing := t.TempDir()
	scope, err := AcquirePrivateScope(env, existing)
	require.NoError(t, err)
	require.NoError(t, scope.Release())

	_, err = os.Stat(existing)
	assert.NoError(t, err)
}

func TestAcquirePrivateScope_NotADirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	env, err := NewEnvironment(root, root+";")
	require.NoError(t, err)

	_, err = AcquirePrivateScope(env, file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")
}
