package server

import (
	"context"
	"errors"
	"strings"

	"github.com/jacksonlee411/authhooks/modules/iam/infrastructure/kratos"
	"github.com/jacksonlee411/authhooks/pkg/authz"
)

var errUnauthenticated = errors.New("server: unauthenticated")

// IdentityResolver turns a session token into the principal whose role is
// checked before mutations.
type IdentityResolver interface {
	Resolve(ctx context.Context, sessionToken string) (authz.Principal, error)
}

type kratosIdentityResolver struct {
	client *kratos.Client
}

func NewKratosIdentityResolver(publicURL string) (IdentityResolver, error) {
	c, err := kratos.New(publicURL)
	if err != nil {
		return nil, err
	}
	return &kratosIdentityResolver{client: c}, nil
}

func (p *kratosIdentityResolver) Resolve(ctx context.Context, sessionToken string) (authz.Principal, error) {
	ident, err := p.client.Whoami(ctx, sessionToken)
	if err != nil {
		if kratos.IsUnauthenticated(err) {
			return authz.Principal{}, errUnauthenticated
		}
		return authz.Principal{}, err
	}
	return principalFromIdentity(ident)
}

func principalFromIdentity(ident kratos.Identity) (authz.Principal, error) {
	if strings.TrimSpace(ident.ID) == "" {
		return authz.Principal{}, errors.New("server: kratos missing identity id")
	}
	email, _ := ident.StringTrait("email")
	roleSlug, _ := ident.StringTrait("role_slug")

	var projectRoles map[string]string
	for ref, role := range ident.StringMapTrait("project_roles") {
		ref = authz.DomainFromProjectRef(ref)
		role = strings.ToLower(strings.TrimSpace(role))
		if ref == "" || role == "" {
			continue
		}
		if projectRoles == nil {
			projectRoles = make(map[string]string)
		}
		projectRoles[ref] = role
	}

	return authz.Principal{
		ID:           ident.ID,
		Email:        strings.ToLower(email),
		RoleSlug:     strings.ToLower(roleSlug),
		ProjectRoles: projectRoles,
	}, nil
}
