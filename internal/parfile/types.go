// Package parfile reads and writes toolkit parameter-definition files (".par").
//
// Each non-comment line of a parameter file declares one parameter:
//
//	name,type,mode,default,min,max,prompt
//
// Fields may be quoted with double or single quotes to embed commas.
package parfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Type is the base type of a parameter.
type Type string

const (
	TypeBool   Type = "b"
	TypeInt    Type = "i"
	TypeReal   Type = "r"
	TypeString Type = "s"
	TypeFile   Type = "f"
)

// String returns the readable name of the type
func (t Type) String() string {
	switch t {
	case TypeBool:
		return "boolean"
	case TypeInt:
		return "integer"
	case TypeReal:
		return "real"
	case TypeString:
		return "string"
	case TypeFile:
		return "filename"
	}
	return string(t)
}

// IsNumeric reports whether values of this type may be INDEF and carry bounds.
func (t Type) IsNumeric() bool {
	return t == TypeInt || t == TypeReal
}

// IsText reports whether values of this type are plain strings.
func (t Type) IsText() bool {
	return t == TypeString || t == TypeFile
}

// ParseType maps a type tag from a parameter file to its base type. Filename
// tags may carry access qualifiers (fr, fw, fe, fn and combinations).
func ParseType(tag string) (Type, error) {
	switch tag {
	case "b", "i", "r", "s":
		return Type(tag), nil
	}
	if strings.HasPrefix(tag, "f") && strings.Trim(tag[1:], "rwen") == "" {
		return TypeFile, nil
	}
	return "", fmt.Errorf("unknown type tag %q", tag)
}

// Mode is a set of parameter mode flags.
type Mode uint8

const (
	ModeAuto Mode = 1 << iota
	ModeQuery
	ModeHidden
	ModeLearn
)

// DefaultTaskMode applies when a parameter file has no "mode" parameter.
const DefaultTaskMode = ModeQuery | ModeLearn

var longModes = map[string]Mode{
	"auto":   ModeAuto,
	"query":  ModeQuery,
	"hidden": ModeHidden,
	"learn":  ModeLearn,
}

// ParseMode parses a mode tag: a combination of the letters a, q, h and l, or
// one of the long forms auto, query, hidden and learn.
func ParseMode(tag string) (Mode, error) {
	lower := strings.ToLower(strings.TrimSpace(tag))
	if m, ok := longModes[lower]; ok {
		return m, nil
	}
	if lower == "" {
		return 0, fmt.Errorf("empty mode tag")
	}

	var m Mode
	for _, c := range lower {
		switch c {
		case 'a':
			m |= ModeAuto
		case 'q':
			m |= ModeQuery
		case 'h':
			m |= ModeHidden
		case 'l':
			m |= ModeLearn
		default:
			return 0, fmt.Errorf("unknown mode tag %q", tag)
		}
	}
	if m&ModeQuery != 0 && m&ModeHidden != 0 {
		return 0, fmt.Errorf("mode tag %q is both query and hidden", tag)
	}
	return m, nil
}

// Has reports whether all flags of o are set in m.
func (m Mode) Has(o Mode) bool {
	return m&o == o
}

// String returns the short tag for the mode
func (m Mode) String() string {
	var b strings.Builder
	for _, f := range []struct {
		flag Mode
		c    byte
	}{{ModeAuto, 'a'}, {ModeQuery, 'q'}, {ModeHidden, 'h'}, {ModeLearn, 'l'}} {
		if m&f.flag != 0 {
			b.WriteByte(f.c)
		}
	}
	return b.String()
}

// Kind identifies what a Value holds.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindIndef
	KindString
	KindInt
	KindReal
	KindBool
)

// Value is a typed parameter value. The zero Value is undefined.
// Values are comparable with ==.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

// Undefined returns the undefined value.
func Undefined() Value { return Value{} }

// Indef returns the numeric indefinite value, written INDEF in parameter files.
func Indef() Value { return Value{kind: KindIndef} }

// StringValue returns a string value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// IntValue returns an integer value.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// RealValue returns a real value.
func RealValue(f float64) Value { return Value{kind: KindReal, f: f} }

// BoolValue returns a boolean value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind { return v.kind }

// IsDefined reports whether v carries a value. INDEF counts as defined.
func (v Value) IsDefined() bool { return v.kind != KindUndefined }

func (v Value) Str() string   { return v.s }
func (v Value) Int() int64    { return v.i }
func (v Value) Real() float64 { return v.f }
func (v Value) Bool() bool    { return v.b }

// String formats v the way parameter files and command lines expect it.
func (v Value) String() string {
	switch v.kind {
	case KindIndef:
		return "INDEF"
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		if v.b {
			return "yes"
		}
		return "no"
	}
	return ""
}

// Interface returns v as a plain Go value: nil, string, int64, float64 or bool.
// INDEF is returned as the string "INDEF".
func (v Value) Interface() any {
	switch v.kind {
	case KindIndef:
		return "INDEF"
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindReal:
		return v.f
	case KindBool:
		return v.b
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Descriptor is the declaration of one parameter.
type Descriptor struct {
	Name    string `json:"name"`
	Type    Type   `json:"type"`
	TypeTag string `json:"type_tag"`
	Mode    Mode   `json:"-"`
	ModeTag string `json:"mode"`
	Default Value  `json:"default"`
	Min     string `json:"min,omitempty"`
	Max     string `json:"max,omitempty"`
	Prompt  string `json:"prompt"`

	minValue Value
	maxValue Value
	quoted   bool
}

// Queried reports whether the parameter is prompted for under the given task mode.
// Auto-mode parameters follow the task mode.
func (d *Descriptor) Queried(taskMode Mode) bool {
	switch {
	case d.Mode.Has(ModeQuery):
		return true
	case d.Mode.Has(ModeHidden):
		return false
	case d.Mode.Has(ModeAuto):
		return taskMode.Has(ModeQuery) && !taskMode.Has(ModeHidden)
	}
	return false
}

// Learned reports whether a resolved value is written back to the parameter file
// under the given task mode.
func (d *Descriptor) Learned(taskMode Mode) bool {
	if d.Mode.Has(ModeLearn) {
		return true
	}
	return d.Mode.Has(ModeAuto) && taskMode.Has(ModeLearn)
}

// Required reports whether the parameter must be supplied or prompted for:
// it is queried and has no default.
func (d *Descriptor) Required(taskMode Mode) bool {
	return d.Queried(taskMode) && !d.Default.IsDefined()
}

// Choices returns the enumerated values allowed for a string parameter, declared
// as "a|b|c" in the min field, or nil.
func (d *Descriptor) Choices() []string {
	if !d.Type.IsText() || d.Max != "" || !strings.Contains(d.Min, "|") {
		return nil
	}
	parts := strings.Split(d.Min, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Coerce converts v to the parameter's type and checks it against the
// declared bounds.
func (d *Descriptor) Coerce(v any) (Value, error) {
	val, err := Coerce(d.Type, v)
	if err != nil {
		var mismatch *TypeMismatchError
		if errors.As(err, &mismatch) {
			mismatch.Param = d.Name
		}
		return Value{}, err
	}
	if err := d.CheckRange(val); err != nil {
		return Value{}, err
	}
	return val, nil
}

// CheckRange verifies val against the parameter's bounds or choices. Undefined
// and INDEF values always pass.
func (d *Descriptor) CheckRange(val Value) error {
	if val.kind == KindUndefined || val.kind == KindIndef {
		return nil
	}

	if choices := d.Choices(); choices != nil {
		for _, c := range choices {
			if strings.EqualFold(c, val.s) {
				return nil
			}
		}
		return NewOutOfRangeError(d.Name, val, d.Min, d.Max)
	}

	if !d.Type.IsNumeric() {
		return nil
	}
	x := numeric(val)
	if d.minValue.kind == KindInt || d.minValue.kind == KindReal {
		if x < numeric(d.minValue) {
			return NewOutOfRangeError(d.Name, val, d.Min, d.Max)
		}
	}
	if d.maxValue.kind == KindInt || d.maxValue.kind == KindReal {
		if x > numeric(d.maxValue) {
			return NewOutOfRangeError(d.Name, val, d.Min, d.Max)
		}
	}
	return nil
}

func numeric(v Value) float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}
