package services

import (
	"errors"
	"sync"

	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/fieldmeta"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

// FormState holds the editable values of one configuration object next to the
// last server-confirmed baseline. Both maps always carry exactly the schema key set.
type FormState struct {
	mu       sync.Mutex
	current  types.Values
	baseline types.Values
}

func NewFormState(initial types.Values) (*FormState, error) {
	if err := checkSchemaKeys(initial); err != nil {
		return nil, err
	}
	return &FormState{current: initial.Clone(), baseline: initial.Clone()}, nil
}

func checkSchemaKeys(values types.Values) error {
	for k := range values {
		if !fieldmeta.IsKnownField(k) {
			return &Error{Kind: KindUnknownField, Field: k}
		}
	}
	for _, def := range fieldmeta.ListFieldDefinitions() {
		if _, ok := values[def.FieldKey]; !ok {
			return &Error{Kind: KindUnknownField, Field: def.FieldKey, Err: errors.New("missing schema key")}
		}
	}
	return nil
}

// SetField records an edit. The unset marker is held as the field default, so a
// null URI and "" are the same local value.
func (s *FormState) SetField(key types.Field, value types.Value) error {
	if !fieldmeta.IsKnownField(key) {
		return &Error{Kind: KindUnknownField, Field: key}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[key] = fieldmeta.LocalValue(key, value)
	return nil
}

func (s *FormState) GetValue(key types.Field) (types.Value, error) {
	def, ok := fieldmeta.LookupFieldDefinition(key)
	if !ok {
		return types.Value{}, &Error{Kind: KindUnknownField, Field: key}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.current[key]; ok {
		return v, nil
	}
	return def.DefaultValue, nil
}

func (s *FormState) Diff() []types.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Diff(s.baseline)
}

func (s *FormState) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.current.Equal(s.baseline)
}

func (s *FormState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = s.baseline.Clone()
}

func (s *FormState) Current() types.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

func (s *FormState) Baseline() types.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline.Clone()
}

// rebaseline records submitted values as server truth. Current is left alone so
// edits made while the submit was in flight survive.
func (s *FormState) rebaseline(submitted types.Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range submitted {
		if _, ok := s.baseline[k]; ok {
			s.baseline[k] = fieldmeta.LocalValue(k, v)
		}
	}
}

func (s *FormState) replace(values types.Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = values.Clone()
	s.baseline = values.Clone()
}
