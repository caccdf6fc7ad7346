package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacksonlee411/authhooks/internal/routing"
	"github.com/jacksonlee411/authhooks/modules/authconfig/presentation/controllers"
	"github.com/jacksonlee411/authhooks/modules/authconfig/services"
)

const Entrypoint = "server"

type HandlerOptions struct {
	Allowlist      routing.Allowlist
	Registry       *services.SessionRegistry
	Notifications  controllers.NotificationFeed
	Identity       IdentityResolver
	Logger         *log.Logger
	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator
}

// NewHandlerWithOptions builds the console HTTP handler. Every registered
// route must be present in the allowlist.
func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	if opts.Registry == nil {
		return nil, errors.New("server: missing session registry")
	}
	if opts.Identity == nil {
		return nil, errors.New("server: missing identity resolver")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	propagator := opts.Propagator
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}

	classifier, err := routing.NewClassifier(opts.Allowlist, Entrypoint)
	if err != nil {
		return nil, err
	}
	router := routing.NewRouter(classifier)
	router.SetLogger(logger)

	hooks := controllers.HooksController{Registry: opts.Registry, Notifications: opts.Notifications}

	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(handleHealth))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/authconfig/api/hooks/schema", http.HandlerFunc(hooks.HandleSchemaAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/authconfig/api/hooks/sessions", http.HandlerFunc(hooks.HandleSessionsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/authconfig/api/hooks/sessions", http.HandlerFunc(hooks.HandleSessionsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodDelete, "/authconfig/api/hooks/sessions", http.HandlerFunc(hooks.HandleSessionsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPatch, "/authconfig/api/hooks/sessions/fields", http.HandlerFunc(hooks.HandleFieldsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/authconfig/api/hooks/sessions/submit", http.HandlerFunc(hooks.HandleSubmitAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/authconfig/api/hooks/sessions/reset", http.HandlerFunc(hooks.HandleResetAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/authconfig/api/hooks/sessions/reload", http.HandlerFunc(hooks.HandleReloadAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/authconfig/api/hooks/notifications", http.HandlerFunc(hooks.HandleNotificationsAPI))

	if err := opts.Allowlist.Check(Entrypoint, router.Routes()); err != nil {
		return nil, err
	}

	var h http.Handler = router
	h = withIdentity(classifier, opts.Identity, logger, h)
	h = withRequestLog(logger, h)
	h = withTracing(tp, propagator, h)
	return h, nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	routing.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
