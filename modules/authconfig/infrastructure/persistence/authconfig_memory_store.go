package persistence

import (
	"context"
	"strings"
	"sync"

	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/ports"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

// AuthConfigMemoryStore is the in-process repository used by the stub server and tests.
type AuthConfigMemoryStore struct {
	mu       sync.RWMutex
	projects map[string]types.RemoteConfig
}

func NewAuthConfigMemoryStore() *AuthConfigMemoryStore {
	return &AuthConfigMemoryStore{projects: map[string]types.RemoteConfig{}}
}

var _ ports.AuthConfigRepository = (*AuthConfigMemoryStore)(nil)

func (s *AuthConfigMemoryStore) GetAuthConfig(_ context.Context, projectRef string) (types.RemoteConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.projects[strings.TrimSpace(projectRef)]
	if !ok {
		return nil, ports.ErrProjectNotFound
	}
	return cfg.Clone(), nil
}

func (s *AuthConfigMemoryStore) MergeAuthConfig(_ context.Context, projectRef string, patch types.RemoteConfig) (types.RemoteConfig, error) {
	projectRef = strings.TrimSpace(projectRef)
	if projectRef == "" {
		return nil, ports.ErrProjectNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.projects[projectRef]
	if !ok {
		cfg = types.RemoteConfig{}
		s.projects[projectRef] = cfg
	}
	for k, v := range patch.Clone() {
		cfg[k] = v
	}
	return cfg.Clone(), nil
}
