package parfile

import (
	"os"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type cacheEntry struct {
	path    string
	modTime time.Time
	size    int64
	file    *File
}

// Cache keeps parsed parameter files keyed by task name. An entry is reused only
// while the file's path, modification time and size are unchanged. Callers always
// get their own copy.
type Cache struct {
	entries *xsync.MapOf[string, *cacheEntry]
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{entries: xsync.NewMapOf[string, *cacheEntry]()}
}

// Load returns the parsed parameter file for task at path.
func (c *Cache) Load(task, path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, NewSchemaError(path, 0, "cannot stat", err)
	}

	if e, ok := c.entries.Load(task); ok &&
		e.path == path && e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
		return e.file.Clone(), nil
	}

	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.entries.Store(task, &cacheEntry{path: path, modTime: f.ModTime, size: f.Size, file: f})
	return f.Clone(), nil
}

// Invalidate drops the cached entry for task.
func (c *Cache) Invalidate(task string) {
	c.entries.Delete(task)
}

// Len returns the number of cached tasks.
func (c *Cache) Len() int {
	return c.entries.Size()
}
