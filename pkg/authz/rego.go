package authz

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed policy.rego
var DefaultRegoPolicy string

const (
	DefaultRegoQuery = "data.authhooks.authz.allow"
	regoEvalTimeout  = 2 * time.Second
)

// RegoAuthorizer evaluates a prepared rego query against {subject, domain, object, action}.
type RegoAuthorizer struct {
	query rego.PreparedEvalQuery
	mode  Mode
}

func NewRegoAuthorizer(ctx context.Context, module string, query string, mode Mode) (*RegoAuthorizer, error) {
	if module == "" {
		module = DefaultRegoPolicy
	}
	if query == "" {
		query = DefaultRegoQuery
	}
	pq, err := rego.New(
		rego.Query(query),
		rego.Module("authz.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &RegoAuthorizer{query: pq, mode: mode}, nil
}

func (a *RegoAuthorizer) Mode() Mode { return a.mode }

func (a *RegoAuthorizer) Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), regoEvalTimeout)
	defer cancel()
	return a.AuthorizeContext(ctx, subject, domain, object, action)
}

func (a *RegoAuthorizer) AuthorizeContext(ctx context.Context, subject string, domain string, object string, action string) (allowed bool, enforced bool, err error) {
	switch a.mode {
	case ModeDisabled:
		return true, false, nil
	case ModeShadow, ModeEnforce:
	default:
		return false, false, errors.New("authz: unknown mode")
	}
	enforced = a.mode == ModeEnforce

	rs, err := a.query.Eval(ctx, rego.EvalInput(map[string]any{
		"subject": subject,
		"domain":  domain,
		"object":  object,
		"action":  action,
	}))
	if err != nil {
		return false, enforced, err
	}
	return rs.Allowed(), enforced, nil
}
