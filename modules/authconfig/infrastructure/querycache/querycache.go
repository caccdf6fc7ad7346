package querycache

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/ports"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

// Backend stores auth config objects by project ref.
type Backend interface {
	Get(ctx context.Context, projectRef string) (types.RemoteConfig, bool, error)
	Set(ctx context.Context, projectRef string, cfg types.RemoteConfig, ttl time.Duration) error
	Delete(ctx context.Context, projectRef string) error
}

// Store is a read-through cache in front of a remote config store. A successful
// update replaces the cached object with the returned one; a failed update
// invalidates it. Backend failures fall through to the remote store.
type Store struct {
	next    ports.ConfigStore
	backend Backend
	ttl     time.Duration
	logger  *log.Logger
}

var (
	_ ports.ConfigStore       = (*Store)(nil)
	_ ports.ConfigInvalidator = (*Store)(nil)
)

func New(next ports.ConfigStore, backend Backend, ttl time.Duration, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Store{next: next, backend: backend, ttl: ttl, logger: logger}
}

func (s *Store) Fetch(ctx context.Context, projectRef string) (types.RemoteConfig, error) {
	projectRef = strings.TrimSpace(projectRef)
	if cfg, ok, err := s.backend.Get(ctx, projectRef); err != nil {
		s.logger.Warn("auth config cache read failed", "project_ref", projectRef, "err", err)
	} else if ok {
		return cfg, nil
	}

	cfg, err := s.next.Fetch(ctx, projectRef)
	if err != nil {
		return nil, err
	}
	if err := s.backend.Set(ctx, projectRef, cfg, s.ttl); err != nil {
		s.logger.Warn("auth config cache write failed", "project_ref", projectRef, "err", err)
	}
	return cfg, nil
}

func (s *Store) Update(ctx context.Context, projectRef string, payload types.Payload) (types.RemoteConfig, error) {
	projectRef = strings.TrimSpace(projectRef)
	cfg, err := s.next.Update(ctx, projectRef, payload)
	if err != nil {
		// The remote may have applied part of the write; drop what we hold.
		if delErr := s.backend.Delete(context.WithoutCancel(ctx), projectRef); delErr != nil {
			s.logger.Warn("auth config cache invalidate failed", "project_ref", projectRef, "err", delErr)
		}
		return nil, err
	}
	if err := s.backend.Set(ctx, projectRef, cfg, s.ttl); err != nil {
		s.logger.Warn("auth config cache write failed", "project_ref", projectRef, "err", err)
	}
	return cfg, nil
}

// Invalidate drops the cached object of a project.
func (s *Store) Invalidate(ctx context.Context, projectRef string) error {
	return s.backend.Delete(ctx, strings.TrimSpace(projectRef))
}
