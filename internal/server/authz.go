package server

import (
	"context"
	"fmt"
	"os"

	"github.com/jacksonlee411/authhooks/internal/config"
	"github.com/jacksonlee411/authhooks/pkg/authz"
)

// LoadDecider builds the policy engine named by cfg.Engine. Without explicit
// paths the embedded model, policy and rego module are used.
func LoadDecider(ctx context.Context, cfg config.AuthzConfig, mode authz.Mode) (authz.Decider, error) {
	switch cfg.Engine {
	case config.EngineRego:
		module := ""
		if cfg.RegoPath != "" {
			b, err := os.ReadFile(cfg.RegoPath)
			if err != nil {
				return nil, fmt.Errorf("server: read rego policy: %w", err)
			}
			module = string(b)
		}
		a, err := authz.NewRegoAuthorizer(ctx, module, cfg.RegoQuery, mode)
		if err != nil {
			return nil, fmt.Errorf("server: rego authorizer: %w", err)
		}
		return a, nil

	case config.EngineCasbin, "":
		var (
			a   *authz.Authorizer
			err error
		)
		if cfg.ModelPath != "" && cfg.PolicyPath != "" {
			a, err = authz.NewAuthorizer(cfg.ModelPath, cfg.PolicyPath, mode)
		} else {
			a, err = authz.NewDefaultAuthorizer(mode)
		}
		if err != nil {
			return nil, fmt.Errorf("server: casbin authorizer: %w", err)
		}
		return a, nil

	default:
		return nil, fmt.Errorf("server: unknown authz engine %q", cfg.Engine)
	}
}
