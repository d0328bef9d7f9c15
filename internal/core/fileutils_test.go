package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExecutable(t *testing.T) {
	tmpDir := t.TempDir()

	script := filepath.Join(tmpDir, "ftool")
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0755))
	info, err := os.Stat(script)
	require.NoError(t, err)
	assert.True(t, IsExecutable(info))

	par := filepath.Join(tmpDir, "ftool.par")
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(par, []byte("infile,s,a,,,,\"Input\"\n"), 0644))
	info, err = os.Stat(par)
	require.NoError(t, err)
	assert.False(t, IsExecutable(info))
}

func TestCopyDirectory_FiltersFiles(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "fdump.par"), []byte("a,s,h,,,,\"\"\n"), 0600))
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "notes.txt"), []byte("ignore me"), 0644))
	// #nosec G301 -- test directory permissions are acceptable for temporary test files
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "nested"), 0700))
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "nested", "fstat.par"), []byte("b,i,h,1,,,\"\"\n"), 0644))

	err := CopyDirectory(srcDir, dstDir, func(name string) bool { return strings.HasSuffix(name, ".par") })
	require.NoError(t, err)

	// #nosec G304 -- paths are constructed from test temp directories, safe
	data, err := os.ReadFile(filepath.Join(dstDir, "fdump.par"))
	require.NoError(t, err)
	assert.Equal(t, "a,s,h,,,,\"\"\n", string(data))

	srcInfo, err := os.Stat(filepath.Join(srcDir, "fdump.par"))
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dstDir, "fdump.par"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.True(t, srcInfo.ModTime().Equal(info.ModTime()))

	_, err = os.Stat(filepath.Join(dstDir, "nested", "fstat.par"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dstDir, "notes.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestCopyDirectory_NilFilterCopiesEverything(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "notes.txt"), []byte("keep"), 0644))
	require.NoError(t, CopyDirectory(srcDir, dstDir, nil))

	// #nosec G304 -- paths are constructed from test temp directories, safe
	data, err := os.ReadFile(filepath.Join(dstDir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestCopyDirectory_ErrorCases(t *testing.T) {
	err := CopyDirectory(filepath.Join(t.TempDir(), "missing"), t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open source directory")

	err = CopyDirectory(t.TempDir(), filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open destination directory")
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.par")

	require.NoError(t, WriteFileAtomic(path, []byte("first\n"), 0644))
	require.NoError(t, WriteFileAtomic(path, []byte("second\n"), 0644))

	// #nosec G304 -- path is constructed from test temp directory, safe
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	err = WriteFileAtomic(filepath.Join(dir, "missing", "task.par"), []byte("x"), 0644)
	assert.Error(t, err)
}
