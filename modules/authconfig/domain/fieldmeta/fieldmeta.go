package fieldmeta

import (
	"sort"

	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

// ResourceKind is the permission object guarding writes to the auth config.
const ResourceKind = "custom_config_gotrue"

type FieldDefinition struct {
	FieldKey     types.Field
	ValueType    types.FieldKind
	HookKey      string
	DefaultValue types.Value
	LabelI18nKey string
	// RuleExpr is a CEL expression over `value` and `values` that must evaluate to true.
	RuleExpr    string
	RuleMessage string
}

type HookDefinition struct {
	HookKey      string
	Title        string
	Description  string
	Transport    string
	EnabledField types.Field
	URIField     types.Field
}

const (
	httpURIRule     = `value == "" || value.matches("^https?://[^\\s/]+(/\\S*)?$")`
	postgresURIRule = `value == "" || value.matches("^pg-functions://[^\\s/]+/[^\\s/]+/[^\\s/]+$") || value.matches("^https?://[^\\s/]+(/\\S*)?$")`
)

var hookDefinitions = []HookDefinition{
	{
		HookKey:      "custom_access_token",
		Title:        "Customize Access Token (JWT) Claims",
		Description:  "Select the function to be called by Supabase Auth each time a new JWT is created. It should return the claims you wish to be present in the JWT.",
		Transport:    "postgres",
		EnabledField: types.FieldCustomAccessTokenEnabled,
		URIField:     types.FieldCustomAccessTokenURI,
	},
	{
		HookKey:      "send_sms",
		Title:        "Send SMS Hook",
		Description:  "HTTP endpoint called instead of the built-in SMS provider.",
		Transport:    "http",
		EnabledField: types.FieldSendSMSEnabled,
		URIField:     types.FieldSendSMSURI,
	},
	{
		HookKey:      "send_email",
		Title:        "Send Email Hook",
		Description:  "HTTP endpoint called instead of the built-in email sender.",
		Transport:    "http",
		EnabledField: types.FieldSendEmailEnabled,
		URIField:     types.FieldSendEmailURI,
	},
}

var fieldDefinitions = buildFieldDefinitions()

func buildFieldDefinitions() []FieldDefinition {
	out := make([]FieldDefinition, 0, len(hookDefinitions)*2)
	for _, hook := range hookDefinitions {
		uriRule := httpURIRule
		if hook.Transport == "postgres" {
			uriRule = postgresURIRule
		}
		out = append(out,
			FieldDefinition{
				FieldKey:     hook.EnabledField,
				ValueType:    types.FieldKindBool,
				HookKey:      hook.HookKey,
				DefaultValue: types.Bool(false),
				LabelI18nKey: "auth.hooks." + hook.HookKey + ".enabled",
			},
			FieldDefinition{
				FieldKey:     hook.URIField,
				ValueType:    types.FieldKindURI,
				HookKey:      hook.HookKey,
				DefaultValue: types.String(""),
				LabelI18nKey: "auth.hooks." + hook.HookKey + ".uri",
				RuleExpr:     uriRule,
				RuleMessage:  "must be empty or a valid " + hook.Transport + " hook URI",
			},
		)
	}
	return out
}

var fieldDefinitionByKey = func() map[types.Field]FieldDefinition {
	out := make(map[types.Field]FieldDefinition, len(fieldDefinitions))
	for _, def := range fieldDefinitions {
		out[def.FieldKey] = def
	}
	return out
}()

func ListFieldDefinitions() []FieldDefinition {
	out := make([]FieldDefinition, len(fieldDefinitions))
	copy(out, fieldDefinitions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FieldKey < out[j].FieldKey
	})
	return out
}

func LookupFieldDefinition(fieldKey types.Field) (FieldDefinition, bool) {
	def, ok := fieldDefinitionByKey[fieldKey]
	return def, ok
}

func IsKnownField(fieldKey types.Field) bool {
	_, ok := fieldDefinitionByKey[fieldKey]
	return ok
}

// Defaults returns a fresh Values holding every schema key set to its own default.
func Defaults() types.Values {
	out := make(types.Values, len(fieldDefinitions))
	for _, def := range fieldDefinitions {
		out[def.FieldKey] = def.DefaultValue
	}
	return out
}

func ListHookDefinitions() []HookDefinition {
	out := make([]HookDefinition, len(hookDefinitions))
	copy(out, hookDefinitions)
	return out
}

func LookupHookDefinition(hookKey string) (HookDefinition, bool) {
	for _, h := range hookDefinitions {
		if h.HookKey == hookKey {
			return h, true
		}
	}
	return HookDefinition{}, false
}
