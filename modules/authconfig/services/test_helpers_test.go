package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

type fakeStore struct {
	mu        sync.Mutex
	remote    types.RemoteConfig
	fetchErr  error
	updateErr error
	fetches   int
	updates   []types.Payload

	started chan struct{}
	release chan struct{}
}

func newFakeStore(remote map[string]any) *fakeStore {
	rc := types.RemoteConfig{}
	for k, v := range remote {
		b, _ := json.Marshal(v)
		rc[k] = b
	}
	return &fakeStore{remote: rc}
}

func (f *fakeStore) Fetch(ctx context.Context, _ string) (types.RemoteConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.remote.Clone(), nil
}

func (f *fakeStore) Update(ctx context.Context, _ string, payload types.Payload) (types.RemoteConfig, error) {
	f.mu.Lock()
	f.updates = append(f.updates, payload)
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for k, v := range payload {
		b, _ := json.Marshal(v)
		f.remote[string(k)] = b
	}
	return f.remote.Clone(), nil
}

func (f *fakeStore) lastUpdate(t *testing.T) types.Payload {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		t.Fatal("no update recorded")
	}
	return f.updates[len(f.updates)-1]
}

func (f *fakeStore) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type staticPerms bool

func (p staticPerms) CanMutate(context.Context, string, string) bool { return bool(p) }

type recordingNotifier struct {
	mu  sync.Mutex
	got []types.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note types.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, note)
}

func (n *recordingNotifier) all() []types.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.Notification(nil), n.got...)
}

func newTestSynchronizer(t *testing.T, store *fakeStore, perms bool, opts ...Option) *Synchronizer {
	t.Helper()
	sy, err := NewSynchronizer(store, staticPerms(perms), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return sy
}

func mustLoad(t *testing.T, sy *Synchronizer) *Session {
	t.Helper()
	s, err := sy.Load(context.Background(), "proj1")
	if err != nil {
		t.Fatalf("load err=%v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func mustSet(t *testing.T, sy *Synchronizer, s *Session, key types.Field, v types.Value) {
	t.Helper()
	if err := sy.SetField(s, key, v); err != nil {
		t.Fatalf("set %s err=%v", key, err)
	}
}
