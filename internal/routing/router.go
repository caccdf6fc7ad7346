package routing

import (
	"io"
	"net/http"
	"runtime/debug"
	"sort"

	"github.com/charmbracelet/log"
)

type Router struct {
	classifier *Classifier
	routes     map[string]map[string]routeEntry
	patterns   []patternEntry
	logger     *log.Logger
}

type routeEntry struct {
	rc      RouteClass
	handler http.Handler
}

type patternEntry struct {
	template pathTemplate
	methods  map[string]routeEntry
}

func NewRouter(classifier *Classifier) *Router {
	return &Router{
		classifier: classifier,
		routes:     make(map[string]map[string]routeEntry),
		logger:     log.New(io.Discard),
	}
}

// SetLogger sets the logger that receives recovered handler panics.
func (r *Router) SetLogger(l *log.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Handle registers h for method on path. Paths with {name} segments are
// matched per segment and expose the values through Request.PathValue.
// Handle panics on a malformed path, like http.ServeMux.
func (r *Router) Handle(rc RouteClass, method string, path string, h http.Handler) {
	method = normalizeMethod(method)
	entry := routeEntry{rc: rc, handler: r.recovering(rc, h)}

	tpl, err := compileTemplate(path)
	if err != nil {
		panic("routing: " + err.Error())
	}
	if tpl.hasParams() {
		for i := range r.patterns {
			if r.patterns[i].template.raw == tpl.raw {
				r.patterns[i].methods[method] = entry
				return
			}
		}
		r.patterns = append(r.patterns, patternEntry{template: tpl, methods: map[string]routeEntry{method: entry}})
		return
	}

	if r.routes[path] == nil {
		r.routes[path] = make(map[string]routeEntry)
	}
	r.routes[path][method] = entry
}

func (r *Router) HandleFunc(rc RouteClass, method string, path string, f func(http.ResponseWriter, *http.Request)) {
	r.Handle(rc, method, path, http.HandlerFunc(f))
}

func (r *Router) recovering(rc RouteClass, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("handler panic", "method", req.Method, "path", req.URL.Path, "panic", rec, "stack", string(debug.Stack()))
				WriteError(w, req, rc, http.StatusInternalServerError, "internal_error", "internal error")
			}
		}()
		h.ServeHTTP(w, req)
	})
}

// Routes lists the registered method and path pairs in a stable order.
func (r *Router) Routes() []RegisteredRoute {
	var out []RegisteredRoute
	for path, methods := range r.routes {
		for m := range methods {
			out = append(out, RegisteredRoute{Method: m, Path: path})
		}
	}
	for _, p := range r.patterns {
		for m := range p.methods {
			out = append(out, RegisteredRoute{Method: m, Path: p.template.raw})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	methods, ok := r.routes[req.URL.Path]
	if !ok {
		for _, p := range r.patterns {
			params, matched := p.template.match(req.URL.Path)
			if !matched {
				continue
			}
			methods = p.methods
			ok = true
			for name, value := range params {
				req.SetPathValue(name, value)
			}
			break
		}
	}
	if !ok {
		WriteError(w, req, r.classifier.Classify(req.URL.Path), http.StatusNotFound, "not_found", "not found")
		return
	}
	entry, ok := methods[req.Method]
	if !ok {
		WriteError(w, req, entrypointClass(methods, r.classifier.Classify(req.URL.Path)), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	entry.handler.ServeHTTP(w, req)
}

func entrypointClass(methods map[string]routeEntry, fallback RouteClass) RouteClass {
	for _, e := range methods {
		return e.rc
	}
	return fallback
}
