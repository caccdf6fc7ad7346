package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

type memoryEntry struct {
	cfg     types.RemoteConfig
	expires time.Time
}

type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: map[string]memoryEntry{}, now: time.Now}
}

func (b *MemoryBackend) Get(_ context.Context, projectRef string) (types.RemoteConfig, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[projectRef]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !b.now().Before(e.expires) {
		delete(b.entries, projectRef)
		return nil, false, nil
	}
	return e.cfg.Clone(), true, nil
}

// Set stores cfg; ttl <= 0 keeps it until deleted.
func (b *MemoryBackend) Set(_ context.Context, projectRef string, cfg types.RemoteConfig, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := memoryEntry{cfg: cfg.Clone()}
	if ttl > 0 {
		e.expires = b.now().Add(ttl)
	}
	b.entries[projectRef] = e
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, projectRef string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, projectRef)
	return nil
}
