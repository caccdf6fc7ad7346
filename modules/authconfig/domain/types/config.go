package types

import (
	"encoding/json"
	"sort"
)

// Field names a key of the auth configuration object managed by the hooks panel.
type Field string

const (
	FieldCustomAccessTokenEnabled Field = "HOOK_CUSTOM_ACCESS_TOKEN_ENABLED"
	FieldCustomAccessTokenURI     Field = "HOOK_CUSTOM_ACCESS_TOKEN_URI"
	FieldSendSMSEnabled           Field = "HOOK_SEND_SMS_ENABLED"
	FieldSendSMSURI               Field = "HOOK_SEND_SMS_URI"
	FieldSendEmailEnabled         Field = "HOOK_SEND_EMAIL_ENABLED"
	FieldSendEmailURI             Field = "HOOK_SEND_EMAIL_URI"
)

type FieldKind string

const (
	FieldKindBool FieldKind = "bool"
	FieldKindURI  FieldKind = "uri"
)

// Values holds one value per field. Form state and payloads are both Values;
// the schema decides which keys are legal.
type Values map[Field]Value

func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func (v Values) Equal(o Values) bool {
	if len(v) != len(o) {
		return false
	}
	for k, val := range v {
		other, ok := o[k]
		if !ok || other != val {
			return false
		}
	}
	return true
}

// Diff returns the keys whose values differ between v and o, sorted.
func (v Values) Diff(o Values) []Field {
	out := []Field{}
	for k, val := range v {
		if other, ok := o[k]; !ok || other != val {
			out = append(out, k)
		}
	}
	for k := range o {
		if _, ok := v[k]; !ok {
			out = append(out, k)
		}
	}
	sortFields(out)
	return out
}

func (v Values) Keys() []Field {
	out := make([]Field, 0, len(v))
	for k := range v {
		out = append(out, k)
	}
	sortFields(out)
	return out
}

func sortFields(fields []Field) {
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
}

// Payload is what gets transmitted to the remote store. Unset values are sent as null.
type Payload Values

// RemoteConfig is the raw auth configuration object as returned by the remote store.
// It carries keys owned by other panels; only schema keys are ever read from it.
type RemoteConfig map[string]json.RawMessage

func (c RemoteConfig) Clone() RemoteConfig {
	out := make(RemoteConfig, len(c))
	for k, v := range c {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
