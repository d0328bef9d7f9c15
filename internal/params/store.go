// Package params holds the resolved, typed parameter values of one task invocation.
package params

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/dorcha-inc/hsp/internal/parfile"
)

// Source supplies parameter values by name. Later sources override earlier ones.
type Source interface {
	Values() map[string]any
}

// Map is a Source backed by a plain map.
type Map map[string]any

func (m Map) Values() map[string]any { return m }

// Interface guard for Map
var _ Source = Map{}

// Store is the name-keyed value set of one invocation. It starts from the
// defaults of a parameter file and is only modified through Set and Apply, which
// validate names and coerce values to the declared types.
type Store struct {
	task         string
	schema       *parfile.File
	values       map[string]parfile.Value
	supplied     mapset.Set[string]
	extras       map[string]string
	acceptsExtra bool
}

// NewStore creates a store seeded with the defaults of schema. When acceptsExtra
// is set, names the schema does not declare are kept as extra string values
// instead of being rejected.
func NewStore(task string, schema *parfile.File, acceptsExtra bool) *Store {
	s := &Store{
		task:         task,
		schema:       schema,
		values:       make(map[string]parfile.Value),
		supplied:     mapset.NewThreadUnsafeSet[string](),
		extras:       make(map[string]string),
		acceptsExtra: acceptsExtra,
	}
	for _, d := range schema.Params() {
		s.values[d.Name] = d.Default
	}
	return s
}

func (s *Store) Task() string { return s.task }

// Schema returns the parameter file the store was built from.
func (s *Store) Schema() *parfile.File { return s.schema }

// Names returns the declared parameter names in file order.
func (s *Store) Names() []string { return s.schema.Names() }

// Get returns the current value of a declared parameter.
func (s *Store) Get(name string) (parfile.Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Extra returns an extra value supplied for a task that accepts open-ended
// parameters.
func (s *Store) Extra(name string) (string, bool) {
	v, ok := s.extras[name]
	return v, ok
}

// Extras returns a copy of the extra values.
func (s *Store) Extras() map[string]string {
	return maps.Clone(s.extras)
}

// Supplied reports whether name was set by a caller rather than taken from the
// parameter file.
func (s *Store) Supplied(name string) bool {
	return s.supplied.Contains(name)
}

// Set assigns a single value.
func (s *Store) Set(name string, v any) error {
	return s.Apply(map[string]any{name: v})
}

// Overlay applies the values of src.
func (s *Store) Overlay(src Source) error {
	return s.Apply(src.Values())
}

// Apply validates and assigns values. Unknown names are checked first, in sorted
// order; then values are coerced in declaration order. The store is unchanged
// when an error is returned.
func (s *Store) Apply(values map[string]any) error {
	var unknown []string
	for name := range values {
		if _, ok := s.schema.Lookup(name); !ok {
			unknown = append(unknown, name)
		}
	}
	slices.Sort(unknown)
	if len(unknown) > 0 && !s.acceptsExtra {
		return NewUnknownParameterError(s.task, unknown[0], s.suggest(unknown[0]))
	}

	coerced := make(map[string]parfile.Value, len(values))
	for _, d := range s.schema.Params() {
		raw, ok := values[d.Name]
		if !ok {
			continue
		}
		v, err := d.Coerce(raw)
		if err != nil {
			return fmt.Errorf("task %s: %w", s.task, err)
		}
		coerced[d.Name] = v
	}

	extras := make(map[string]string, len(unknown))
	for _, name := range unknown {
		v, err := parfile.Coerce(parfile.TypeString, values[name])
		if err != nil {
			extras[name] = fmt.Sprint(values[name])
			continue
		}
		extras[name] = v.String()
	}

	for name, v := range coerced {
		s.values[name] = v
		s.supplied.Add(name)
	}
	maps.Copy(s.extras, extras)
	return nil
}

// Refresh copies the defaults of file into every declared parameter the caller
// did not supply. It returns the names whose value changed.
func (s *Store) Refresh(file *parfile.File) []string {
	var changed []string
	for _, name := range s.Names() {
		if s.supplied.Contains(name) {
			continue
		}
		d, ok := file.Lookup(name)
		if !ok || d.Default == s.values[name] {
			continue
		}
		s.values[name] = d.Default
		changed = append(changed, name)
	}
	return changed
}

// TaskMode returns the task-wide mode, honouring a caller-supplied "mode" value.
func (s *Store) TaskMode() parfile.Mode {
	if v, ok := s.values[parfile.ModeParam]; ok && v.Kind() == parfile.KindString {
		if m, err := parfile.ParseMode(v.Str()); err == nil {
			return m
		}
	}
	return s.schema.TaskMode()
}

// Unresolved returns, in declaration order, the queried parameters that still
// have no value.
func (s *Store) Unresolved() []string {
	taskMode := s.TaskMode()
	var names []string
	for _, d := range s.schema.Params() {
		if d.Queried(taskMode) && !s.values[d.Name].IsDefined() {
			names = append(names, d.Name)
		}
	}
	return names
}

// Learnable returns, in declaration order, the parameters whose value should be
// written back to the parameter file: learned under the current task mode and
// different from the stored default.
func (s *Store) Learnable() []string {
	taskMode := s.TaskMode()
	var names []string
	for _, d := range s.schema.Params() {
		v := s.values[d.Name]
		if d.Learned(taskMode) && v.IsDefined() && v != d.Default {
			names = append(names, d.Name)
		}
	}
	return names
}

// Values returns every defined value, extras included, so that a store can seed
// another invocation.
func (s *Store) Values() map[string]any {
	out := make(map[string]any, len(s.values)+len(s.extras))
	for name, v := range s.values {
		if v.IsDefined() {
			out[name] = v
		}
	}
	for name, v := range s.extras {
		out[name] = v
	}
	return out
}

// Interface guard for Store
var _ Source = &Store{}

// Clone returns an independent copy of s sharing the read-only schema.
func (s *Store) Clone() *Store {
	return &Store{
		task:         s.task,
		schema:       s.schema,
		values:       maps.Clone(s.values),
		supplied:     s.supplied.Clone(),
		extras:       maps.Clone(s.extras),
		acceptsExtra: s.acceptsExtra,
	}
}

// MarshalJSON encodes the declared values, undefined ones as null, plus extras.
func (s *Store) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.values)+len(s.extras))
	for name, v := range s.values {
		out[name] = v
	}
	for name, v := range s.extras {
		out[name] = v
	}
	return json.Marshal(out)
}

// String renders the store as name=value lines in declaration order.
func (s *Store) String() string {
	var b strings.Builder
	for _, name := range s.Names() {
		fmt.Fprintf(&b, "%s = %s\n", name, s.values[name].String())
	}
	for _, name := range slices.Sorted(maps.Keys(s.extras)) {
		fmt.Fprintf(&b, "%s = %s\n", name, s.extras[name])
	}
	return b.String()
}

func (s *Store) suggest(name string) string {
	return Suggest(name, s.schema.Names())
}

// Suggest returns the candidate closest to name by edit distance, or "" when
// nothing is reasonably close.
func Suggest(name string, candidates []string) string {
	best := ""
	bestDistance := -1
	lower := strings.ToLower(name)
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(c))
		if bestDistance < 0 || d < bestDistance {
			best, bestDistance = c, d
		}
	}
	if bestDistance < 0 || bestDistance > max(2, len(name)/3) {
		return ""
	}
	return best
}
