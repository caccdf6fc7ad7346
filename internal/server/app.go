package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"

	"github.com/jacksonlee411/authhooks/internal/config"
	"github.com/jacksonlee411/authhooks/internal/routing"
	"github.com/jacksonlee411/authhooks/internal/telemetry"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/ports"
	"github.com/jacksonlee411/authhooks/modules/authconfig/infrastructure/gotrue"
	"github.com/jacksonlee411/authhooks/modules/authconfig/infrastructure/notify"
	"github.com/jacksonlee411/authhooks/modules/authconfig/infrastructure/querycache"
	"github.com/jacksonlee411/authhooks/modules/authconfig/services"
	"github.com/jacksonlee411/authhooks/pkg/accesstoken"
	"github.com/jacksonlee411/authhooks/pkg/authz"
)

const cacheKeyPrefix = "authhooks:authconfig:"

// App is the wired console: the HTTP handler plus the background session sweeper.
type App struct {
	Handler  http.Handler
	Registry *services.SessionRegistry

	closers []func()
}

// Close stops background work and releases connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build wires the console from cfg. The session sweeper runs until ctx is
// done or Close is called.
func Build(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	allowlist, err := routing.LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("server: load allowlist: %w", err)
	}

	mode, err := cfg.AuthzMode()
	if err != nil {
		return nil, err
	}
	decider, err := LoadDecider(ctx, cfg.Authz, mode)
	if err != nil {
		return nil, err
	}
	if mode != authz.ModeEnforce {
		logger.Warn("authorization is not enforced", "mode", mode, "engine", cfg.Authz.Engine)
	}

	minter, err := accesstoken.NewMinter(accesstoken.MinterConfig{
		Secret:   cfg.Token.Secret,
		Issuer:   cfg.Token.Issuer,
		Audience: cfg.Token.Audience,
		Subject:  cfg.Token.Subject,
		TTL:      cfg.Token.TTL,
	})
	if err != nil {
		return nil, err
	}
	client, err := gotrue.New(cfg.GoTrue.BaseURL,
		gotrue.WithTokenSource(minter),
		gotrue.WithTracerProvider(otel.GetTracerProvider()),
		gotrue.WithHTTPClient(&http.Client{Timeout: cfg.GoTrue.Timeout}),
	)
	if err != nil {
		return nil, err
	}

	var store ports.ConfigStore = client
	switch cfg.Cache.Backend {
	case config.CacheMemory:
		store = querycache.New(client, querycache.NewMemoryBackend(), cfg.Cache.TTL, logger)
	case config.CacheRedis:
		backend, rdb, err := querycache.NewRedisBackendFromURL(cfg.Cache.RedisURL, cacheKeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("server: redis cache: %w", err)
		}
		app.closers = append(app.closers, func() { _ = rdb.Close() })
		store = querycache.New(client, backend, cfg.Cache.TTL, logger)
	}

	flash := notify.NewFlash(cfg.Sessions.FlashLimit)
	opts := []services.Option{
		services.WithLogger(logger),
		services.WithNotifier(notify.Multi{flash, notify.NewLogger(logger)}),
	}
	if cfg.Sessions.ChangedFieldsOnly {
		opts = append(opts, services.WithChangedFieldsOnly())
	}
	sy, err := services.NewSynchronizer(store, authz.NewChecker(decider, logger), opts...)
	if err != nil {
		return nil, err
	}
	registry := services.NewSessionRegistry(sy, cfg.Sessions.IdleTTL)

	identity, err := NewKratosIdentityResolver(cfg.Kratos.PublicURL)
	if err != nil {
		return nil, err
	}
	handler, err := NewHandlerWithOptions(HandlerOptions{
		Allowlist:     allowlist,
		Registry:      registry,
		Notifications: flash,
		Identity:      identity,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		registry.Run(sweepCtx, cfg.Sessions.SweepInterval)
	}()
	app.closers = append(app.closers, func() {
		stopSweep()
		<-done
	})

	app.Handler = handler
	app.Registry = registry
	ok = true
	return app, nil
}

// Run serves the console until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	app, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           app.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("console listening", "addr", cfg.ListenAddr, "gotrue", cfg.GoTrue.BaseURL, "cache", cfg.Cache.Backend)
	return ListenAndServe(ctx, srv, logger)
}

// ListenAndServe runs srv until ctx is cancelled and shuts it down gracefully.
func ListenAndServe(ctx context.Context, srv *http.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "addr", srv.Addr)
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return <-errCh
}
