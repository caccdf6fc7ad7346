package routing

import (
	"fmt"
	"strings"
)

// pathTemplate is a route path whose segments are literals or {name}
// parameters, e.g. /v1/projects/{ref}/config/auth.
type pathTemplate struct {
	raw      string
	segments []templateSegment
}

type templateSegment struct {
	literal string
	param   string
}

func compileTemplate(raw string) (pathTemplate, error) {
	if !strings.HasPrefix(raw, "/") {
		return pathTemplate{}, fmt.Errorf("path %q must start with /", raw)
	}
	t := pathTemplate{raw: raw}
	names := map[string]bool{}
	for _, s := range splitPathSegments(raw) {
		name, isParam := strings.CutPrefix(s, "{")
		if isParam {
			name, isParam = strings.CutSuffix(name, "}")
		}
		switch {
		case s == "":
			return pathTemplate{}, fmt.Errorf("path %q has an empty segment", raw)
		case isParam && name != "" && !strings.ContainsAny(name, "{}"):
			if names[name] {
				return pathTemplate{}, fmt.Errorf("path %q repeats parameter %q", raw, name)
			}
			names[name] = true
			t.segments = append(t.segments, templateSegment{param: name})
		case strings.ContainsAny(s, "{}"):
			return pathTemplate{}, fmt.Errorf("path %q has malformed segment %q", raw, s)
		default:
			t.segments = append(t.segments, templateSegment{literal: s})
		}
	}
	return t, nil
}

func (t pathTemplate) hasParams() bool {
	for _, s := range t.segments {
		if s.param != "" {
			return true
		}
	}
	return false
}

// match reports whether path fits t and returns the parameter values.
// Parameters never match an empty segment.
func (t pathTemplate) match(path string) (map[string]string, bool) {
	in := splitPathSegments(path)
	if len(in) != len(t.segments) {
		return nil, false
	}
	var params map[string]string
	for i, s := range t.segments {
		if s.param == "" {
			if in[i] != s.literal {
				return nil, false
			}
			continue
		}
		if in[i] == "" {
			return nil, false
		}
		if params == nil {
			params = make(map[string]string, 1)
		}
		params[s.param] = in[i]
	}
	return params, true
}

func splitPathSegments(path string) []string {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
