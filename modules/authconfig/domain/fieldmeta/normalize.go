package fieldmeta

import (
	"encoding/json"
	"fmt"

	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

type UnknownFieldError struct {
	Field types.Field
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("fieldmeta: unknown field %q", string(e.Field))
}

type MalformedFieldError struct {
	Field types.Field
	Want  types.FieldKind
	Got   string
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("fieldmeta: field %q: want %s, got %s", string(e.Field), e.Want, e.Got)
}

// NormalizeRemote projects a remote config onto the schema: every schema key present,
// null or missing values replaced by the field default, other keys dropped.
func NormalizeRemote(remote types.RemoteConfig) (types.Values, error) {
	out := Defaults()
	for _, def := range fieldDefinitions {
		raw, ok := remote[string(def.FieldKey)]
		if !ok {
			continue
		}
		var v types.Value
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &MalformedFieldError{Field: def.FieldKey, Want: def.ValueType, Got: string(raw)}
		}
		if v.IsUnset() {
			continue
		}
		if !kindMatches(def.ValueType, v) {
			return nil, &MalformedFieldError{Field: def.FieldKey, Want: def.ValueType, Got: v.Kind().String()}
		}
		out[def.FieldKey] = v
	}
	return out, nil
}

// BuildPayload derives the submission payload for the given fields.
// Empty URI strings become the unset marker.
func BuildPayload(values types.Values, fields []types.Field) (types.Payload, error) {
	out := make(types.Payload, len(fields))
	for _, f := range fields {
		def, ok := fieldDefinitionByKey[f]
		if !ok {
			return nil, &UnknownFieldError{Field: f}
		}
		v, ok := values[f]
		if !ok {
			v = def.DefaultValue
		}
		if def.ValueType == types.FieldKindURI {
			if s, isString := v.AsString(); isString && s == "" {
				v = types.Unset()
			}
		}
		out[f] = v
	}
	return out, nil
}

// LocalValue maps a transmitted value back to its form representation.
func LocalValue(f types.Field, v types.Value) types.Value {
	def, ok := fieldDefinitionByKey[f]
	if !ok {
		return v
	}
	if v.IsUnset() {
		return def.DefaultValue
	}
	return v
}

// RuleValue is the value a field rule sees: unset URIs read as "".
func RuleValue(def FieldDefinition, v types.Value) any {
	if v.IsUnset() {
		return def.DefaultValue.Any()
	}
	return v.Any()
}

func kindMatches(kind types.FieldKind, v types.Value) bool {
	switch kind {
	case types.FieldKindBool:
		return v.Kind() == types.KindBool
	case types.FieldKindURI:
		return v.Kind() == types.KindString
	default:
		return false
	}
}

// KindMatches reports whether v is acceptable for a field of the given kind.
// Unset is always acceptable and reads as the default.
func KindMatches(kind types.FieldKind, v types.Value) bool {
	return v.IsUnset() || kindMatches(kind, v)
}
