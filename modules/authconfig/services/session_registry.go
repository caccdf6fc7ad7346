package services

import (
	"context"
	"sync"
	"time"
)

// SessionRegistry owns the open edit sessions of a console process.
type SessionRegistry struct {
	synchronizer *Synchronizer
	idleTTL      time.Duration
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*registryEntry
}

type registryEntry struct {
	session  *Session
	lastUsed time.Time
}

func NewSessionRegistry(sy *Synchronizer, idleTTL time.Duration) *SessionRegistry {
	return &SessionRegistry{
		synchronizer: sy,
		idleTTL:      idleTTL,
		now:          time.Now,
		sessions:     map[string]*registryEntry{},
	}
}

func (r *SessionRegistry) Synchronizer() *Synchronizer { return r.synchronizer }

func (r *SessionRegistry) Open(ctx context.Context, projectRef string) (*Session, error) {
	s, err := r.synchronizer.Load(ctx, projectRef)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[s.ID()] = &registryEntry{session: s, lastUsed: r.now()}
	r.mu.Unlock()
	return s, nil
}

func (r *SessionRegistry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, newError(KindSessionNotFound, nil)
	}
	e.lastUsed = r.now()
	return e.session, nil
}

func (r *SessionRegistry) Close(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return newError(KindSessionNotFound, nil)
	}
	e.session.Close()
	return nil
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the registry TTL. A TTL <= 0 disables expiry.
// Sessions with a submit in flight are kept.
func (r *SessionRegistry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var expired []*Session
	for id, e := range r.sessions {
		if e.lastUsed.Before(cutoff) && !e.session.Submitting() {
			expired = append(expired, e.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	return len(expired)
}

// Run sweeps on every interval tick until ctx is done, then closes every session.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = map[string]*registryEntry{}
	r.mu.Unlock()
	for _, e := range all {
		e.session.Close()
	}
}
