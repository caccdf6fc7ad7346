package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type ValueKind uint8

const (
	KindUnset ValueKind = iota
	KindBool
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindUnset:
		return "null"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single configuration scalar: a boolean, a string, or unset (JSON null).
// The zero Value is unset. Values are comparable with ==.
type Value struct {
	kind ValueKind
	b    bool
	s    string
}

func Bool(v bool) Value     { return Value{kind: KindBool, b: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }
func Unset() Value          { return Value{} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsUnset() bool   { return v.kind == KindUnset }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Any returns the plain Go representation used by JSON and rule evaluation.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindString:
		return v.s
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	default:
		return "null"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = Unset()
		return nil
	}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out, err := ValueFromAny(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

var ErrUnsupportedValue = errors.New("unsupported configuration value")

func ValueFromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Unset(), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case Value:
		return x, nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, raw)
	}
}
