package routing

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Allowlist lists, per binary, every route it may serve and the class of each.
type Allowlist struct {
	Version     int                   `yaml:"version"`
	Entrypoints map[string]Entrypoint `yaml:"entrypoints"`
}

type Entrypoint struct {
	Routes []Route `yaml:"routes"`
}

type Route struct {
	Path       string   `yaml:"path"`
	Methods    []string `yaml:"methods"`
	RouteClass string   `yaml:"route_class"`
}

var allowedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// ParseAllowlistYAML decodes and validates an allowlist. Every route needs a
// well-formed path, a known class and at least one method.
func ParseAllowlistYAML(b []byte) (Allowlist, error) {
	var a Allowlist
	if err := yaml.Unmarshal(b, &a); err != nil {
		return Allowlist{}, err
	}
	if a.Version != 1 {
		return Allowlist{}, errors.New("allowlist: unsupported version")
	}
	if a.Entrypoints == nil {
		return Allowlist{}, errors.New("allowlist: missing entrypoints")
	}
	for name, ep := range a.Entrypoints {
		if _, err := compileRoutes(name, ep.Routes); err != nil {
			return Allowlist{}, err
		}
	}
	return a, nil
}

func LoadAllowlist(path string) (Allowlist, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Allowlist{}, err
	}
	return ParseAllowlistYAML(b)
}

type compiledRoute struct {
	template pathTemplate
	methods  []string
	class    RouteClass
}

func compileRoutes(entrypoint string, routes []Route) ([]compiledRoute, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("allowlist: %s: no routes", entrypoint)
	}
	out := make([]compiledRoute, 0, len(routes))
	for _, r := range routes {
		tpl, err := compileTemplate(r.Path)
		if err != nil {
			return nil, fmt.Errorf("allowlist: %s: %w", entrypoint, err)
		}
		rc := RouteClass(r.RouteClass)
		if !rc.valid() {
			return nil, fmt.Errorf("allowlist: %s %s: unknown route class %q", entrypoint, r.Path, r.RouteClass)
		}
		if len(r.Methods) == 0 {
			return nil, fmt.Errorf("allowlist: %s %s: no methods", entrypoint, r.Path)
		}
		methods := make([]string, 0, len(r.Methods))
		for _, m := range r.Methods {
			m = strings.ToUpper(strings.TrimSpace(m))
			if !slices.Contains(allowedMethods, m) {
				return nil, fmt.Errorf("allowlist: %s %s: unsupported method %q", entrypoint, r.Path, m)
			}
			methods = append(methods, m)
		}
		out = append(out, compiledRoute{template: tpl, methods: methods, class: rc})
	}
	return out, nil
}

// Allows reports whether the entrypoint lists method on path. Path may be a
// concrete request path or the registered template itself.
func (a Allowlist) Allows(entrypoint string, method string, path string) bool {
	ep, ok := a.Entrypoints[entrypoint]
	if !ok {
		return false
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	for _, r := range ep.Routes {
		if r.Path != path {
			tpl, err := compileTemplate(r.Path)
			if err != nil {
				continue
			}
			if _, ok := tpl.match(path); !ok {
				continue
			}
		}
		for _, m := range r.Methods {
			if strings.EqualFold(strings.TrimSpace(m), method) {
				return true
			}
		}
	}
	return false
}

// Check returns an error naming the first registered route missing from the allowlist.
func (a Allowlist) Check(entrypoint string, registered []RegisteredRoute) error {
	for _, r := range registered {
		if !a.Allows(entrypoint, r.Method, r.Path) {
			return fmt.Errorf("allowlist: route not allowlisted: %s %s", r.Method, r.Path)
		}
	}
	return nil
}

type RegisteredRoute struct {
	Method string
	Path   string
}

func normalizeMethod(m string) string {
	m = strings.ToUpper(strings.TrimSpace(m))
	if m == "" {
		return http.MethodGet
	}
	return m
}
