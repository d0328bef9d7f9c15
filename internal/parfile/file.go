package parfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dorcha-inc/hsp/internal/core"
)

// ModeParam is the special parameter holding the task-wide mode.
const ModeParam = "mode"

// File is a parsed parameter file. Comment and blank lines are kept so that a
// saved file differs from the original only in the values that changed.
type File struct {
	Path    string
	ModTime time.Time
	Size    int64

	params []*Descriptor
	index  map[string]int
	lines  []fileLine
}

// fileLine is either a verbatim line (param < 0) or a reference to a parameter.
type fileLine struct {
	raw   string
	param int
}

// ParseLine parses one parameter record.
func ParseLine(line string) (*Descriptor, error) {
	fields, quoted := splitFields(line)
	if len(fields) < 6 {
		return nil, fmt.Errorf("expected at least 6 fields, got %d", len(fields))
	}

	d := &Descriptor{
		Name:    fields[0],
		TypeTag: fields[1],
		ModeTag: fields[2],
		Min:     fields[4],
		Max:     fields[5],
		quoted:  quoted[3],
	}
	if len(fields) > 6 {
		d.Prompt = strings.Join(fields[6:], ", ")
	}

	if d.Name == "" {
		return nil, fmt.Errorf("empty parameter name")
	}

	var err error
	if d.Type, err = ParseType(d.TypeTag); err != nil {
		return nil, err
	}
	if d.Mode, err = ParseMode(d.ModeTag); err != nil {
		return nil, err
	}

	if d.Default, err = parseField(d.Type, fields[3]); err != nil {
		return nil, fmt.Errorf("default of %s: %w", d.Name, err)
	}

	if d.Type.IsNumeric() {
		if d.minValue, err = parseField(d.Type, d.Min); err != nil {
			return nil, fmt.Errorf("minimum of %s: %w", d.Name, err)
		}
		if d.maxValue, err = parseField(d.Type, d.Max); err != nil {
			return nil, fmt.Errorf("maximum of %s: %w", d.Name, err)
		}
	}

	return d, nil
}

// parseField reads a default or bound: strict first, then once more with any
// leftover quote characters removed.
func parseField(t Type, text string) (Value, error) {
	v, err := ParseText(t, text)
	if err == nil {
		return v, nil
	}
	if relaxed := strings.Trim(text, `'" `); relaxed != text {
		if v, err2 := ParseText(t, relaxed); err2 == nil {
			return v, nil
		}
	}
	return Value{}, err
}

// Parse parses the contents of a parameter file. path is only used in errors.
func Parse(path string, data []byte) (*File, error) {
	f := &File{Path: path, index: make(map[string]int)}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			f.lines = append(f.lines, fileLine{raw: raw, param: -1})
			continue
		}

		d, err := ParseLine(trimmed)
		if err != nil {
			return nil, NewSchemaError(path, lineNo, err.Error(), nil)
		}
		if _, dup := f.index[d.Name]; dup {
			return nil, NewSchemaError(path, lineNo, fmt.Sprintf("duplicate parameter %s", d.Name), nil)
		}

		f.index[d.Name] = len(f.params)
		f.lines = append(f.lines, fileLine{param: len(f.params)})
		f.params = append(f.params, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, NewSchemaError(path, lineNo, "read failed", err)
	}

	return f, nil
}

// Load reads and parses the parameter file at path.
func Load(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, NewSchemaError(path, 0, "cannot stat", err)
	}

	// #nosec G304 -- path comes from the PFILES search or the task manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewSchemaError(path, 0, "cannot read", err)
	}

	f, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	f.ModTime = info.ModTime()
	f.Size = info.Size()
	return f, nil
}

// Params returns the descriptors in declaration order. The slice is a copy; the
// descriptors are shared with f.
func (f *File) Params() []*Descriptor {
	out := make([]*Descriptor, len(f.params))
	copy(out, f.params)
	return out
}

// Names returns the parameter names in declaration order.
func (f *File) Names() []string {
	names := make([]string, len(f.params))
	for i, d := range f.params {
		names[i] = d.Name
	}
	return names
}

// Lookup returns the descriptor for name.
func (f *File) Lookup(name string) (*Descriptor, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.params[i], true
}

// TaskMode returns the mode declared by the special "mode" parameter, or
// DefaultTaskMode.
func (f *File) TaskMode() Mode {
	d, ok := f.Lookup(ModeParam)
	if !ok || d.Default.Kind() != KindString {
		return DefaultTaskMode
	}
	m, err := ParseMode(d.Default.Str())
	if err != nil {
		return DefaultTaskMode
	}
	return m
}

// SetDefault coerces v to the parameter's type and stores it as the new default.
func (f *File) SetDefault(name string, v any) error {
	d, ok := f.Lookup(name)
	if !ok {
		return fmt.Errorf("no parameter %s in %s", name, f.Path)
	}
	val, err := d.Coerce(v)
	if err != nil {
		return err
	}
	d.Default = val
	return nil
}

// Clone returns a deep copy of f.
func (f *File) Clone() *File {
	c := &File{
		Path:    f.Path,
		ModTime: f.ModTime,
		Size:    f.Size,
		params:  make([]*Descriptor, len(f.params)),
		index:   make(map[string]int, len(f.index)),
		lines:   make([]fileLine, len(f.lines)),
	}
	for i, d := range f.params {
		dup := *d
		c.params[i] = &dup
	}
	for k, v := range f.index {
		c.index[k] = v
	}
	copy(c.lines, f.lines)
	return c
}

// Format renders f in parameter-file syntax.
func (f *File) Format() []byte {
	var b bytes.Buffer
	for _, l := range f.lines {
		if l.param < 0 {
			b.WriteString(l.raw)
		} else {
			b.WriteString(FormatLine(f.params[l.param]))
		}
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// Save writes f to path atomically, keeping the permissions of an existing file.
func (f *File) Save(path string) error {
	perm := fs.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	if err := core.WriteFileAtomic(path, f.Format(), perm); err != nil {
		return fmt.Errorf("failed to save parameter file: %w", err)
	}
	return nil
}

// FormatLine renders one descriptor as a parameter record.
func FormatLine(d *Descriptor) string {
	fields := []string{
		d.Name,
		d.TypeTag,
		d.ModeTag,
		encodeText(d.Default.String(), d.Type.IsText() && d.quoted),
		quoteIfNeeded(d.Min),
		quoteIfNeeded(d.Max),
		quote(d.Prompt),
	}
	return strings.Join(fields, ",")
}

func needsQuote(s string) bool {
	return strings.ContainsAny(s, `,"'`) || strings.TrimSpace(s) != s
}

// encodeText quotes a default when forced or needed. Text holding both quote
// characters has no quoted spelling and is written bare.
func encodeText(s string, force bool) string {
	if strings.Contains(s, `"`) && strings.Contains(s, "'") {
		return s
	}
	if force || needsQuote(s) {
		return quote(s)
	}
	return s
}

func quoteIfNeeded(s string) string {
	if needsQuote(s) {
		return quote(s)
	}
	return s
}

func quote(s string) string {
	if strings.Contains(s, `"`) && !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	return `"` + s + `"`
}
