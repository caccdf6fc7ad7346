package routing

import (
	"errors"
	"strings"
)

// RouteClass decides how a route authenticates and how its errors render.
type RouteClass string

const (
	RouteClassUI          RouteClass = "ui"
	RouteClassInternalAPI RouteClass = "internal_api"
	RouteClassPublicAPI   RouteClass = "public_api"
	RouteClassOps         RouteClass = "ops"
)

func (rc RouteClass) valid() bool {
	switch rc {
	case RouteClassUI, RouteClassInternalAPI, RouteClassPublicAPI, RouteClassOps:
		return true
	}
	return false
}

// Classifier maps request paths of one entrypoint to route classes.
// Allowlisted routes win; unlisted paths fall back to the path conventions:
// /v1/... is the public API, /{module}/api/... a module's internal API, and
// anything else is UI.
type Classifier struct {
	entrypoint string
	routes     []compiledRoute
}

func NewClassifier(a Allowlist, entrypoint string) (*Classifier, error) {
	ep, ok := a.Entrypoints[entrypoint]
	if !ok {
		return nil, errors.New("allowlist: missing entrypoint " + entrypoint)
	}
	routes, err := compileRoutes(entrypoint, ep.Routes)
	if err != nil {
		return nil, err
	}
	return &Classifier{entrypoint: entrypoint, routes: routes}, nil
}

func (c *Classifier) Entrypoint() string { return c.entrypoint }

func (c *Classifier) Classify(path string) RouteClass {
	for _, r := range c.routes {
		if _, ok := r.template.match(path); ok {
			return r.class
		}
	}
	return conventionClass(path)
}

func conventionClass(path string) RouteClass {
	if !strings.HasPrefix(path, "/") {
		return RouteClassUI
	}
	first, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if first == "v1" {
		return RouteClassPublicAPI
	}
	if first != "" && (rest == "api" || strings.HasPrefix(rest, "api/")) {
		return RouteClassInternalAPI
	}
	return RouteClassUI
}
