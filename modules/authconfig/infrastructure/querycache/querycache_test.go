package querycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
	"github.com/redis/go-redis/v9"
)

type remoteStub struct {
	cfg       types.RemoteConfig
	fetchErr  error
	updateErr error
	fetches   int
	updates   int
}

func (r *remoteStub) Fetch(context.Context, string) (types.RemoteConfig, error) {
	r.fetches++
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return r.cfg.Clone(), nil
}

func (r *remoteStub) Update(_ context.Context, _ string, p types.Payload) (types.RemoteConfig, error) {
	r.updates++
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	for k, v := range p {
		b, _ := v.MarshalJSON()
		r.cfg[string(k)] = b
	}
	return r.cfg.Clone(), nil
}

type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) (types.RemoteConfig, bool, error) {
	return nil, false, errors.New("down")
}
func (brokenBackend) Set(context.Context, string, types.RemoteConfig, time.Duration) error {
	return errors.New("down")
}
func (brokenBackend) Delete(context.Context, string) error { return errors.New("down") }

func newRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBackend(client, ""), mr
}

func TestStore_ReadThrough(t *testing.T) {
	backends := []struct {
		name string
		mk   func(t *testing.T) Backend
	}{
		{name: "memory", mk: func(*testing.T) Backend { return NewMemoryBackend() }},
		{name: "redis", mk: func(t *testing.T) Backend {
			b, _ := newRedisBackend(t)
			return b
		}},
	}
	for _, tc := range backends {
		mk := tc.mk
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			remote := &remoteStub{cfg: types.RemoteConfig{"HOOK_SEND_SMS_ENABLED": []byte("false")}}
			s := New(remote, mk(t), time.Minute, nil)

			if _, err := s.Fetch(ctx, "p1"); err != nil {
				t.Fatal(err)
			}
			cfg, err := s.Fetch(ctx, "p1")
			if err != nil {
				t.Fatal(err)
			}
			if remote.fetches != 1 {
				t.Fatalf("fetches=%d", remote.fetches)
			}
			if string(cfg["HOOK_SEND_SMS_ENABLED"]) != "false" {
				t.Fatalf("cfg=%v", cfg)
			}

			// Success stores the returned object.
			if _, err := s.Update(ctx, "p1", types.Payload{types.FieldSendSMSEnabled: types.Bool(true)}); err != nil {
				t.Fatal(err)
			}
			cfg, err = s.Fetch(ctx, "p1")
			if err != nil {
				t.Fatal(err)
			}
			if string(cfg["HOOK_SEND_SMS_ENABLED"]) != "true" || remote.fetches != 1 {
				t.Fatalf("cfg=%v fetches=%d", cfg, remote.fetches)
			}

			// Failure invalidates.
			remote.updateErr = errors.New("502")
			if _, err := s.Update(ctx, "p1", types.Payload{}); err == nil {
				t.Fatal("expected error")
			}
			if _, err := s.Fetch(ctx, "p1"); err != nil {
				t.Fatal(err)
			}
			if remote.fetches != 2 {
				t.Fatalf("fetches=%d", remote.fetches)
			}

			if err := s.Invalidate(ctx, "p1"); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Fetch(ctx, "p1"); err != nil {
				t.Fatal(err)
			}
			if remote.fetches != 3 {
				t.Fatalf("fetches=%d", remote.fetches)
			}
		})
	}
}

func TestStore_FetchErrorNotCached(t *testing.T) {
	ctx := context.Background()
	remote := &remoteStub{fetchErr: errors.New("down")}
	backend := NewMemoryBackend()
	s := New(remote, backend, time.Minute, nil)
	if _, err := s.Fetch(ctx, "p1"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok, _ := backend.Get(ctx, "p1"); ok {
		t.Fatal("expected no entry")
	}
}

func TestStore_BrokenBackendFallsThrough(t *testing.T) {
	ctx := context.Background()
	remote := &remoteStub{cfg: types.RemoteConfig{}}
	s := New(remote, brokenBackend{}, time.Minute, nil)
	if _, err := s.Fetch(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Update(ctx, "p1", types.Payload{types.FieldSendSMSURI: types.Unset()}); err != nil {
		t.Fatal(err)
	}
	remote.updateErr = errors.New("boom")
	if _, err := s.Update(ctx, "p1", types.Payload{}); !errors.Is(err, remote.updateErr) {
		t.Fatalf("err=%v", err)
	}
}

func TestMemoryBackend_Expiry(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	now := time.Now()
	b.now = func() time.Time { return now }

	if err := b.Set(ctx, "p1", types.RemoteConfig{"A": []byte("1")}, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := b.Set(ctx, "p2", types.RemoteConfig{"A": []byte("1")}, 0); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Second)
	if _, ok, _ := b.Get(ctx, "p1"); ok {
		t.Fatal("expected expired")
	}
	if _, ok, _ := b.Get(ctx, "p2"); !ok {
		t.Fatal("expected no expiry")
	}
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	b, mr := newRedisBackend(t)

	if _, ok, err := b.Get(ctx, "p1"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if err := b.Set(ctx, "p1", types.RemoteConfig{"HOOK_SEND_SMS_URI": []byte("null")}, time.Minute); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(DefaultRedisPrefix + "p1") {
		t.Fatal("expected prefixed key")
	}
	if ttl := mr.TTL(DefaultRedisPrefix + "p1"); ttl != time.Minute {
		t.Fatalf("ttl=%s", ttl)
	}
	cfg, ok, err := b.Get(ctx, "p1")
	if err != nil || !ok || string(cfg["HOOK_SEND_SMS_URI"]) != "null" {
		t.Fatalf("cfg=%v ok=%v err=%v", cfg, ok, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := b.Get(ctx, "p1"); ok {
		t.Fatal("expected expired")
	}

	if err := mr.Set(DefaultRedisPrefix+"p2", "not json"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := b.Get(ctx, "p2"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if err := b.Delete(ctx, "p2"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(DefaultRedisPrefix + "p2") {
		t.Fatal("expected deleted")
	}

	mr.Close()
	if _, _, err := b.Get(ctx, "p1"); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestNewRedisBackendFromURL(t *testing.T) {
	if _, _, err := NewRedisBackendFromURL("http://nope", ""); err == nil {
		t.Fatal("expected error")
	}
	mr := miniredis.RunT(t)
	b, client, err := NewRedisBackendFromURL("redis://"+mr.Addr(), "x:")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	if err := b.Set(context.Background(), "p1", types.RemoteConfig{}, 0); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("x:p1") {
		t.Fatal("expected key")
	}
}
