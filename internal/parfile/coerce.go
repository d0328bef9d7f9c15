package parfile

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// realPattern is the only accepted spelling of a real number: optional sign,
// decimal digits with an optional fraction, optional exponent. Hex, inf and nan
// are rejected.
var realPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

var boolTokens = map[string]bool{
	"yes": true, "y": true, "true": true, "t": true, "1": true,
	"no": false, "n": false, "false": false, "f": false, "0": false,
}

// ParseText converts text to a value of type t. Surrounding whitespace and one
// matching pair of surrounding quotes are removed first; empty text is undefined.
// Numeric types accept INDEF (any case). Integers may be written as integral
// reals ("3.0", "1e3"). Text that could not be written back to a parameter file
// is rejected.
func ParseText(t Type, text string) (Value, error) {
	s := unquote(strings.TrimSpace(text))
	if s == "" {
		return Undefined(), nil
	}

	switch t {
	case TypeString, TypeFile:
		if storableText(s) {
			return StringValue(s), nil
		}

	case TypeBool:
		if b, ok := boolTokens[strings.ToLower(s)]; ok {
			return BoolValue(b), nil
		}

	case TypeInt:
		if strings.EqualFold(s, "INDEF") {
			return Indef(), nil
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IntValue(i), nil
		}
		if realPattern.MatchString(s) {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				if i, ok := integral(f); ok {
					return IntValue(i), nil
				}
			}
		}

	case TypeReal:
		if strings.EqualFold(s, "INDEF") {
			return Indef(), nil
		}
		if realPattern.MatchString(s) {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return RealValue(f), nil
			}
		}
	}

	return Value{}, NewTypeMismatchError("", t, text)
}

// Coerce converts a Go value to a value of type t. Accepted inputs are nil, Value,
// string (parsed with ParseText), bool, the integer kinds and the float kinds.
func Coerce(t Type, v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Undefined(), nil
	case Value:
		return coerceValue(t, x)
	case string:
		return ParseText(t, x)
	case []byte:
		return ParseText(t, string(x))
	case bool:
		switch {
		case t == TypeBool:
			return BoolValue(x), nil
		case t.IsText():
			return StringValue(BoolValue(x).String()), nil
		}
	case int:
		return coerceInt(t, int64(x), v)
	case int8:
		return coerceInt(t, int64(x), v)
	case int16:
		return coerceInt(t, int64(x), v)
	case int32:
		return coerceInt(t, int64(x), v)
	case int64:
		return coerceInt(t, x, v)
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return coerceInt(t, int64(x), v)
		}
	case uint8:
		return coerceInt(t, int64(x), v)
	case uint16:
		return coerceInt(t, int64(x), v)
	case uint32:
		return coerceInt(t, int64(x), v)
	case uint64:
		if x <= math.MaxInt64 {
			return coerceInt(t, int64(x), v)
		}
	case float32:
		return coerceFloat(t, float64(x), v)
	case float64:
		return coerceFloat(t, x, v)
	}
	return Value{}, NewTypeMismatchError("", t, v)
}

func coerceValue(t Type, v Value) (Value, error) {
	switch v.kind {
	case KindUndefined:
		return v, nil
	case KindIndef:
		if t.IsNumeric() {
			return v, nil
		}
		if t.IsText() {
			return StringValue("INDEF"), nil
		}
		return Value{}, NewTypeMismatchError("", t, "INDEF")
	}
	return Coerce(t, v.Interface())
}

func coerceInt(t Type, i int64, orig any) (Value, error) {
	switch t {
	case TypeInt:
		return IntValue(i), nil
	case TypeReal:
		return RealValue(float64(i)), nil
	case TypeBool:
		if i == 0 || i == 1 {
			return BoolValue(i == 1), nil
		}
	case TypeString, TypeFile:
		return StringValue(strconv.FormatInt(i, 10)), nil
	}
	return Value{}, NewTypeMismatchError("", t, orig)
}

func coerceFloat(t Type, f float64, orig any) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, NewTypeMismatchError("", t, orig)
	}
	switch t {
	case TypeReal:
		return RealValue(f), nil
	case TypeInt:
		if i, ok := integral(f); ok {
			return IntValue(i), nil
		}
	case TypeString, TypeFile:
		return StringValue(strconv.FormatFloat(f, 'g', -1, 64)), nil
	}
	return Value{}, NewTypeMismatchError("", t, orig)
}

func integral(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// storableText reports whether s survives a write and reload of its
// parameter record. Line breaks never do. Text holding both quote characters is
// written bare, so it must not contain a field separator or open with a quote.
func storableText(s string) bool {
	if strings.ContainsAny(s, "\r\n") {
		return false
	}
	if strings.Contains(s, `"`) && strings.Contains(s, "'") {
		return !strings.Contains(s, ",") && s[0] != '"' && s[0] != '\''
	}
	return true
}

// unquote strips one matching pair of surrounding double or single quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}
