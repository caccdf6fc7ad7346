package authz

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
)

type Principal struct {
	ID           string
	Email        string
	RoleSlug     string
	// ProjectRoles overrides RoleSlug per project ref.
	ProjectRoles map[string]string
}

func (p Principal) RoleFor(projectRef string) string {
	if role, ok := p.ProjectRoles[DomainFromProjectRef(projectRef)]; ok && role != "" {
		return role
	}
	return p.RoleSlug
}

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	v := ctx.Value(principalContextKey{})
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// SubjectFromContext returns the policy subject of the request principal for a project,
// or the anonymous role.
func SubjectFromContext(ctx context.Context, projectRef string) string {
	roleSlug := RoleAnonymous
	if p, ok := PrincipalFromContext(ctx); ok {
		roleSlug = p.RoleFor(projectRef)
	}
	return SubjectFromRoleSlug(roleSlug)
}

// Checker answers mutation permission for the principal carried in ctx.
// Engine errors are denials. In shadow mode denials are logged and allowed.
type Checker struct {
	decider Decider
	logger  *log.Logger
}

func NewChecker(d Decider, logger *log.Logger) *Checker {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Checker{decider: d, logger: logger}
}

func (c *Checker) CanMutate(ctx context.Context, projectRef string, resourceKind string) bool {
	return c.Can(ctx, projectRef, resourceKind, ActionUpdate)
}

func (c *Checker) Can(ctx context.Context, projectRef string, resourceKind string, action string) bool {
	if c == nil || c.decider == nil {
		return false
	}
	subject := SubjectFromContext(ctx, projectRef)
	domain := DomainFromProjectRef(projectRef)
	object := ObjectForResource(resourceKind)

	allowed, enforced, err := c.decider.Authorize(subject, domain, object, action)
	if err != nil {
		c.logger.Warn("authz check failed", "subject", subject, "domain", domain, "object", object, "action", action, "err", err)
		return false
	}
	if !allowed && !enforced {
		c.logger.Info("authz shadow deny", "subject", subject, "domain", domain, "object", object, "action", action)
		return true
	}
	return allowed
}
