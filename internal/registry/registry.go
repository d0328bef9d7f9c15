// Package registry maps task names to what is needed to run them: the parameter
// file, whether the task is external or native, and how to call it.
package registry

import (
	"bufio"
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/params"
	"github.com/dorcha-inc/hsp/internal/state"
)

// PfilesListName is the task index some toolkit installs ship in the system
// parameter directory. Each line reads "module:task.par".
const PfilesListName = "pfiles_list.txt"

// Manifest is the YAML task list accepted through the manifest setting.
type Manifest struct {
	Version int      `yaml:"version"`
	Tasks   []*Entry `yaml:"tasks"`
}

// Registry is built once and read-only afterwards.
type Registry struct {
	entries map[string]*Entry
}

// New creates a registry from entries.
func New(entries ...*Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]*Entry, len(entries))}
	for _, e := range entries {
		if err := r.add(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(e *Entry) error {
	if e.ArgStyle == "" {
		e.ArgStyle = ArgStyleMixed
	}
	if err := e.Validate(); err != nil {
		return err
	}
	key := Normalize(e.Name)
	if _, ok := r.entries[key]; ok {
		return NewDuplicateTaskError(e.Name)
	}
	r.entries[key] = e
	return nil
}

// Options controls where Load looks for tasks.
type Options struct {
	// Env locates the system parameter directories. Required unless ManifestPath is set.
	Env *state.Environment
	// ManifestPath, when set, is the only source of external tasks.
	ManifestPath string
	// Natives are added after the external tasks. A native whose name is already
	// taken by an external task is skipped.
	Natives []*Entry
	// ArgStyle is applied to entries that do not set one.
	ArgStyle ArgStyle
}

// Load builds a registry from, in order of preference, the YAML manifest, the
// pfiles_list.txt index of the system parameter directories, or a scan of the
// parameter files found in them. Native entries are added last.
func Load(opts Options) (*Registry, error) {
	var (
		entries []*Entry
		source  string
		err     error
	)

	switch {
	case opts.ManifestPath != "":
		entries, err = LoadManifest(opts.ManifestPath)
		source = opts.ManifestPath
	case opts.Env != nil:
		entries, source, err = discover(opts.Env)
	default:
		return nil, fmt.Errorf("registry needs a manifest or a toolkit environment")
	}
	if err != nil {
		return nil, err
	}

	r := &Registry{entries: make(map[string]*Entry, len(entries)+len(opts.Natives))}
	for _, e := range entries {
		if e.ArgStyle == "" {
			e.ArgStyle = opts.ArgStyle
		}
		if err := r.add(e); err != nil {
			return nil, err
		}
	}

	for _, n := range opts.Natives {
		if _, taken := r.entries[Normalize(n.Name)]; taken {
			zap.L().Debug("Toolkit task shadows native task", zap.String("task", n.Name))
			continue
		}
		if err := r.add(n); err != nil {
			return nil, err
		}
	}

	zap.L().Debug("Loaded task registry", zap.String("source", source), zap.Int("tasks", len(r.entries)))
	return r, nil
}

// LoadManifest reads and validates a YAML manifest.
func LoadManifest(path string) ([]*Entry, error) {
	root, err := os.OpenRoot(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest directory: %w", err)
	}
	defer core.LogDeferredError(root.Close)

	data, err := root.ReadFile(filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	for _, e := range manifest.Tasks {
		if e == nil {
			return nil, fmt.Errorf("manifest %s has an empty task entry", path)
		}
		if e.Kind == "" {
			e.Kind = KindExternal
		}
		// Relative par files are relative to the manifest.
		if e.ParFile != "" && !filepath.IsAbs(e.ParFile) {
			e.ParFile = filepath.Join(baseDir, e.ParFile)
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
	}
	return manifest.Tasks, nil
}

// discover reads pfiles_list.txt from the first system directory that has one,
// and otherwise scans every parameter directory for *.par files.
func discover(env *state.Environment) ([]*Entry, string, error) {
	for _, dir := range env.SysDirs {
		listPath := filepath.Join(dir, PfilesListName)
		// #nosec G304 -- path is derived from PFILES
		data, err := os.ReadFile(listPath)
		if err != nil {
			continue
		}
		entries, err := ParsePfilesList(data)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse %s: %w", listPath, err)
		}
		return entries, listPath, nil
	}

	seen := make(map[string]*Entry)
	dirs := append(slices.Clone(env.UserDirs), env.SysDirs...)
	for _, dir := range dirs {
		files, err := os.ReadDir(dir)
		if err != nil {
			zap.L().Debug("Skipping unreadable parameter directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".par") {
				continue
			}
			name := strings.TrimSuffix(f.Name(), ".par")
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = &Entry{Name: name, Kind: KindExternal}
		}
	}

	entries := make([]*Entry, 0, len(seen))
	for _, name := range slices.Sorted(maps.Keys(seen)) {
		entries = append(entries, seen[name])
	}
	return entries, strings.Join(dirs, ":"), nil
}

// ParsePfilesList parses "module:task.par" lines. Blank lines and lines starting
// with '#' are skipped; a line without a module is accepted.
func ParsePfilesList(data []byte) ([]*Entry, error) {
	var entries []*Entry
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		module, file, found := strings.Cut(line, ":")
		if !found {
			module, file = "", line
		}
		file = strings.TrimSpace(file)
		if !strings.HasSuffix(file, ".par") {
			return nil, fmt.Errorf("line %d: expected module:task.par, got %q", lineNo, line)
		}
		name := strings.TrimSuffix(filepath.Base(file), ".par")
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		entries = append(entries, &Entry{Name: name, Module: strings.TrimSpace(module), Kind: KindExternal})
	}
	return entries, scanner.Err()
}

// Lookup finds a task by name; dashes and underscores are interchangeable.
func (r *Registry) Lookup(name string) (*Entry, error) {
	if e, ok := r.entries[Normalize(name)]; ok {
		return e, nil
	}
	suggestion := params.Suggest(Normalize(name), slices.Sorted(maps.Keys(r.entries)))
	if e, ok := r.entries[suggestion]; ok {
		suggestion = e.Name
	}
	return nil, NewUnknownTaskError(name, suggestion)
}

// List returns every entry sorted by name.
func (r *Registry) List() []*Entry {
	out := make([]*Entry, 0, len(r.entries))
	for _, key := range slices.Sorted(maps.Keys(r.entries)) {
		out = append(out, r.entries[key])
	}
	return out
}

// Len returns the number of tasks.
func (r *Registry) Len() int {
	return len(r.entries)
}
