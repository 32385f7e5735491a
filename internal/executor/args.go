package executor

import (
	"strconv"
	"strings"

	"go.starlark.net/starlark"
)

// Kind is the scalar type of a decoded argument.
type Kind string

const (
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "string"
)

// Arg is one decoded argument. Only the field matching Kind is meaningful.
type Arg struct {
	Kind  Kind    `json:"kind"`
	Int   int64   `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
	Str   string  `json:"str,omitempty"`
}

// Vector is the ordered argument list bound to a script as args.
type Vector []Arg

func IntArg(v int64) Arg     { return Arg{Kind: KindInt, Int: v} }
func FloatArg(v float64) Arg { return Arg{Kind: KindFloat, Float: v} }
func StringArg(v string) Arg { return Arg{Kind: KindString, Str: v} }

// Value converts the argument into a fresh Starlark value.
func (a Arg) Value() starlark.Value {
	switch a.Kind {
	case KindInt:
		return starlark.MakeInt64(a.Int)
	case KindFloat:
		return starlark.Float(a.Float)
	default:
		return starlark.String(a.Str)
	}
}

// Values converts the vector into a new slice of Starlark values.
func (v Vector) Values() []starlark.Value {
	out := make([]starlark.Value, len(v))
	for i, a := range v {
		out[i] = a.Value()
	}
	return out
}

// Decode splits raw on commas and classifies each trimmed token:
//
//	"42"     -> int 42
//	"3.14"   -> float 3.14 (exactly one dot, digits otherwise)
//	"'x'"    -> string x  (one matching pair of quotes removed)
//	anything else -> string, verbatim
//
// A comma inside quotes still splits the token; there is no escape syntax.
// Digit runs too large for int64 become floats. Decode never fails and
// never returns nil.
func Decode(raw string) Vector {
	if strings.TrimSpace(raw) == "" {
		return Vector{}
	}
	parts := strings.Split(raw, ",")
	out := make(Vector, 0, len(parts))
	for _, tok := range parts {
		out = append(out, decodeToken(strings.TrimSpace(tok)))
	}
	return out
}

func decodeToken(tok string) Arg {
	if isDigits(tok) {
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return IntArg(n)
		}
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return FloatArg(f)
		}
	}
	if strings.Count(tok, ".") == 1 && isDigits(strings.Replace(tok, ".", "", 1)) {
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return FloatArg(f)
		}
	}
	return StringArg(unquote(tok))
}

// isDigits reports whether s is non-empty and made only of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
