package services

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/fieldmeta"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

var newFieldRuleCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("values", cel.MapType(cel.StringType, cel.DynType)),
	)
}

var fieldRuleProgramCache sync.Map

// Validate checks every schema field of values. An empty result means valid.
// Missing keys are checked as their defaults.
func Validate(values types.Values) FieldErrors {
	out := FieldErrors{}
	defs := fieldmeta.ListFieldDefinitions()

	ruleValues := make(map[string]any, len(defs))
	for _, def := range defs {
		v, ok := values[def.FieldKey]
		if !ok {
			v = def.DefaultValue
		}
		ruleValues[string(def.FieldKey)] = fieldmeta.RuleValue(def, v)
	}

	for _, def := range defs {
		v, ok := values[def.FieldKey]
		if !ok {
			v = def.DefaultValue
		}
		if !fieldmeta.KindMatches(def.ValueType, v) {
			out[def.FieldKey] = typeMessage(def.ValueType)
			continue
		}
		if strings.TrimSpace(def.RuleExpr) == "" {
			continue
		}
		ok, err := evalFieldRule(def.RuleExpr, fieldmeta.RuleValue(def, v), ruleValues)
		if err != nil {
			out[def.FieldKey] = "invalid value"
			continue
		}
		if !ok {
			out[def.FieldKey] = def.RuleMessage
		}
	}
	return out
}

func typeMessage(kind types.FieldKind) string {
	switch kind {
	case types.FieldKindBool:
		return "must be a boolean"
	case types.FieldKindURI:
		return "must be a string"
	default:
		return "unsupported value"
	}
}

func evalFieldRule(expr string, value any, values map[string]any) (bool, error) {
	program, err := loadOrCompileFieldRule(expr)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(map[string]any{"value": value, "values": values})
	if err != nil {
		return false, err
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("rule did not evaluate to bool")
	}
	return v, nil
}

func loadOrCompileFieldRule(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	if cached, ok := fieldRuleProgramCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newFieldRuleCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.New("expression output type mismatch")
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	fieldRuleProgramCache.Store(expr, program)
	return program, nil
}
