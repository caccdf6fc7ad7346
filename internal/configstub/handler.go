// Package configstub serves a local stand-in for the management API auth
// config endpoints and the identity provider whoami endpoint.
package configstub

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jacksonlee411/authhooks/internal/routing"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/ports"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
	"github.com/jacksonlee411/authhooks/pkg/accesstoken"
	"github.com/jacksonlee411/authhooks/pkg/httperr"
)

const Entrypoint = "configstub"

const authConfigPath = "/v1/projects/{ref}/config/auth"

type tokenVerifier interface {
	Verify(token string) (*accesstoken.Claims, error)
}

type Options struct {
	Allowlist  routing.Allowlist
	Repository ports.AuthConfigRepository
	Verifier   tokenVerifier
	Identities []Identity
	Logger     *log.Logger
}

type stub struct {
	repo       ports.AuthConfigRepository
	verifier   tokenVerifier
	identities map[string]Identity
	logger     *log.Logger
}

func NewHandler(opts Options) (http.Handler, error) {
	if opts.Repository == nil {
		return nil, errors.New("configstub: missing repository")
	}
	if opts.Verifier == nil {
		return nil, errors.New("configstub: missing token verifier")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &stub{
		repo:       opts.Repository,
		verifier:   opts.Verifier,
		identities: make(map[string]Identity, len(opts.Identities)),
		logger:     logger,
	}
	for _, ident := range opts.Identities {
		s.identities[ident.Token] = ident
	}

	classifier, err := routing.NewClassifier(opts.Allowlist, Entrypoint)
	if err != nil {
		return nil, err
	}
	router := routing.NewRouter(classifier)
	router.SetLogger(logger)

	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(handleHealth))
	router.Handle(routing.RouteClassOps, http.MethodGet, "/sessions/whoami", http.HandlerFunc(s.handleWhoami))
	router.Handle(routing.RouteClassPublicAPI, http.MethodGet, authConfigPath, s.withBearer(http.HandlerFunc(s.handleGetAuthConfig)))
	router.Handle(routing.RouteClassPublicAPI, http.MethodPatch, authConfigPath, s.withBearer(http.HandlerFunc(s.handlePatchAuthConfig)))

	if err := opts.Allowlist.Check(Entrypoint, router.Routes()); err != nil {
		return nil, err
	}
	return router, nil
}

// SeedProjects creates the listed projects with an empty config. Existing
// projects keep their values.
func SeedProjects(ctx context.Context, repo ports.AuthConfigRepository, refs []string) error {
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if _, err := repo.MergeAuthConfig(ctx, ref, types.RemoteConfig{}); err != nil {
			return err
		}
	}
	return nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	routing.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *stub) withBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := accesstoken.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		claims, err := s.verifier.Verify(token)
		if err != nil {
			s.logger.Debug("bearer rejected", "path", r.URL.Path, "err", err)
			routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
			return
		}
		s.logger.Debug("bearer accepted", "subject", claims.Subject, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *stub) handleGetAuthConfig(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	cfg, err := s.repo.GetAuthConfig(r.Context(), ref)
	if err != nil {
		s.writeRepoError(w, r, ref, err)
		return
	}
	routing.WriteJSON(w, http.StatusOK, cfg)
}

// handlePatchAuthConfig merges the body into the stored object. Keys absent
// from the body keep their values; null is stored as null.
func (s *stub) handlePatchAuthConfig(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	var patch types.RemoteConfig
	if err := httperr.DecodeJSONBody(w, r, 0, &patch); err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	if patch == nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "bad_json", "body must be a json object")
		return
	}
	if _, err := s.repo.GetAuthConfig(r.Context(), ref); err != nil {
		s.writeRepoError(w, r, ref, err)
		return
	}
	cfg, err := s.repo.MergeAuthConfig(r.Context(), ref, patch)
	if err != nil {
		s.writeRepoError(w, r, ref, err)
		return
	}
	s.logger.Info("auth config updated", "project_ref", ref, "keys", len(patch))
	routing.WriteJSON(w, http.StatusOK, cfg)
}

func (s *stub) writeRepoError(w http.ResponseWriter, r *http.Request, ref string, err error) {
	if errors.Is(err, ports.ErrProjectNotFound) {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusNotFound, "project_not_found", "project not found")
		return
	}
	s.logger.Error("auth config store failed", "project_ref", ref, "err", err)
	routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "storage_error", "storage error")
}

type whoamiResponse struct {
	Active   bool           `json:"active"`
	Identity whoamiIdentity `json:"identity"`
}

type whoamiIdentity struct {
	ID     string         `json:"id"`
	Traits map[string]any `json:"traits"`
}

func (s *stub) handleWhoami(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get("X-Session-Token"))
	ident, ok := s.identities[token]
	if token == "" || !ok {
		routing.WriteError(w, r, routing.RouteClassOps, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	routing.WriteJSON(w, http.StatusOK, whoamiResponse{
		Active:   true,
		Identity: whoamiIdentity{ID: ident.ID, Traits: ident.traits()},
	})
}
