package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/ports"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AuthConfigPGStore keeps one jsonb auth config object per project.
type AuthConfigPGStore struct {
	pool pgBeginner
}

func NewAuthConfigPGStore(pool pgBeginner) *AuthConfigPGStore {
	return &AuthConfigPGStore{pool: pool}
}

var _ ports.AuthConfigRepository = (*AuthConfigPGStore)(nil)

const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS authconfig;
CREATE TABLE IF NOT EXISTS authconfig.project_auth_config (
  project_ref text PRIMARY KEY,
  config jsonb NOT NULL DEFAULT '{}'::jsonb,
  updated_at timestamptz NOT NULL DEFAULT now(),
  CONSTRAINT project_auth_config_is_object CHECK (jsonb_typeof(config) = 'object')
);
`

func (s *AuthConfigPGStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, schemaDDL); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *AuthConfigPGStore) GetAuthConfig(ctx context.Context, projectRef string) (types.RemoteConfig, error) {
	projectRef = strings.TrimSpace(projectRef)
	if projectRef == "" {
		return nil, ports.ErrProjectNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_project', $1, true);`, projectRef); err != nil {
		return nil, err
	}

	var raw []byte
	if err := tx.QueryRow(ctx, `
SELECT config
FROM authconfig.project_auth_config
WHERE project_ref = $1
`, projectRef).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrProjectNotFound
		}
		return nil, err
	}

	out, err := decodeConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// MergeAuthConfig applies patch with jsonb concatenation and creates the project row on first write.
func (s *AuthConfigPGStore) MergeAuthConfig(ctx context.Context, projectRef string, patch types.RemoteConfig) (types.RemoteConfig, error) {
	projectRef = strings.TrimSpace(projectRef)
	if projectRef == "" {
		return nil, ports.ErrProjectNotFound
	}
	if patch == nil {
		patch = types.RemoteConfig{}
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_project', $1, true);`, projectRef); err != nil {
		return nil, err
	}

	var raw []byte
	if err := tx.QueryRow(ctx, `
INSERT INTO authconfig.project_auth_config (project_ref, config)
VALUES ($1, $2::jsonb)
ON CONFLICT (project_ref) DO UPDATE
SET config = authconfig.project_auth_config.config || EXCLUDED.config,
    updated_at = now()
RETURNING config
`, projectRef, body).Scan(&raw); err != nil {
		return nil, err
	}

	out, err := decodeConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeConfig(raw []byte) (types.RemoteConfig, error) {
	out := types.RemoteConfig{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = types.RemoteConfig{}
	}
	return out, nil
}
