// Package value defines the tagged value model used by event payloads and
// reconstructed record attributes.
//
// Event payloads are loosely typed JSON objects. Modeling attribute values
// as a sealed interface (instead of raw any) lets the transaction extractor
// enforce numeric-only semantics on monitored fields at the type level, and
// keeps rendering deterministic.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Value is a sealed interface representing constrained attribute value types.
// Only Null, String, Int, Float, and Bool implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null. Using an explicit type (rather than a nil
// interface) keeps every attribute slot a valid Value.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a text value. Decoded strings are NFC normalized so
// that visually identical ids and attributes compare equal.
type String string

func (String) value() {}

// Int represents an integer value, always int64.
type Int int64

func (Int) value() {}

// Float represents a fractional numeric value.
type Float float64

func (Float) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Number reports the numeric content of v. The second return is false for
// non-numeric values (String, Bool, Null).
func Number(v Value) (float64, bool) {
	switch n := v.(type) {
	case Int:
		return float64(n), true
	case Float:
		return float64(n), true
	default:
		return 0, false
	}
}

// Equal compares two values for semantic equality. Int and Float compare
// numerically, so Int(5) equals Float(5.0); everything else requires
// matching type and content.
func Equal(a, b Value) bool {
	an, aok := Number(a)
	bn, bok := Number(b)
	if aok && bok {
		return an == bn
	}
	if aok != bok {
		return false
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	default:
		return false
	}
}

// Decode converts a decoded JSON scalar into a Value. Numbers must be
// json.Number (decode the enclosing document with UseNumber) so that
// integers survive as int64 instead of collapsing to float64.
//
// Nested arrays and objects are rejected: event payloads are flat
// field-to-scalar mappings.
func Decode(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(norm.NFC.String(val)), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("number out of range: %s", s)
			}
			return Float(f), nil
		}
		i, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(i), nil
	default:
		return nil, fmt.Errorf("unsupported payload value type: %T", v)
	}
}

// DecodeFields converts a decoded JSON object into an attribute map.
func DecodeFields(raw map[string]any) (map[string]Value, error) {
	fields := make(map[string]Value, len(raw))
	for k, v := range raw {
		dv, err := Decode(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		fields[norm.NFC.String(k)] = dv
	}
	return fields, nil
}

// Marshal renders a single value as JSON bytes.
func Marshal(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// MarshalFields renders an attribute map as a JSON object with sorted keys.
// Deterministic output is what makes golden-file comparison possible.
func MarshalFields(fields map[string]Value) ([]byte, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Display renders a value for tabular text output. Null renders as an
// empty cell.
func Display(v Value) string {
	switch val := v.(type) {
	case Null:
		return ""
	case String:
		return string(val)
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Float:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", float64(val)), "0"), ".")
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Clone returns a copy of an attribute map. Values are immutable, so a
// shallow copy of the map suffices.
func Clone(fields map[string]Value) map[string]Value {
	out := make(map[string]Value, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
