package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// IsExecutable checks if a file mode has any executable bits set.
func IsExecutable(info fs.FileInfo) bool {
	return info.Mode().Perm()&0111 != 0
}

// CopyDirectory copies the tree under src into dst using os.Root, which rules out
// path traversal on both sides. dst must exist. When keep is non-nil only regular
// files for which it returns true are copied; directories are always recreated.
// File permissions and modification times are preserved.
func CopyDirectory(src, dst string, keep func(name string) bool) error {
	root, err := os.OpenRoot(src)
	if err != nil {
		return fmt.Errorf("failed to open source directory: %w", err)
	}
	defer LogDeferredError(root.Close)

	dstRoot, err := os.OpenRoot(dst)
	if err != nil {
		return fmt.Errorf("failed to open destination directory: %w", err)
	}
	defer LogDeferredError(dstRoot.Close)

	return fs.WalkDir(root.FS(), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info for %s: %w", path, err)
		}

		if d.IsDir() {
			return dstRoot.MkdirAll(path, info.Mode().Perm())
		}

		if !info.Mode().IsRegular() || (keep != nil && !keep(d.Name())) {
			return nil
		}

		data, err := root.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", path, err)
		}

		if err := dstRoot.WriteFile(path, data, info.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to write file %s: %w", path, err)
		}

		// Modification times matter to readers that compare copies by age.
		if err := dstRoot.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
			return fmt.Errorf("failed to set times of %s: %w", path, err)
		}

		return nil
	})
}

// WriteFileAtomic writes data to a temporary file next to path and renames it into
// place, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename %s to %s: %w", tmpName, path, err)
	}
	return nil
}
