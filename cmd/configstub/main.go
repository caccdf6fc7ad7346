package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jacksonlee411/authhooks/internal/config"
	"github.com/jacksonlee411/authhooks/internal/configstub"
	"github.com/jacksonlee411/authhooks/internal/routing"
	"github.com/jacksonlee411/authhooks/internal/server"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/ports"
	"github.com/jacksonlee411/authhooks/modules/authconfig/infrastructure/persistence"
	"github.com/jacksonlee411/authhooks/pkg/accesstoken"
)

func main() {
	configPath := flag.String("config", os.Getenv("AUTHHOOKS_CONFIG"), "path to the YAML config file")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "configstub"})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", "err", err)
	}
	if err := cfg.ValidateStub(); err != nil {
		logger.Fatal("invalid config", "err", err)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("configstub stopped", "err", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	repo, closeRepo, err := openRepository(ctx, cfg.Stub.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeRepo()

	if err := configstub.SeedProjects(ctx, repo, cfg.Stub.Projects); err != nil {
		return err
	}
	identities, err := configstub.ParseIdentities(cfg.Stub.Identities)
	if err != nil {
		return err
	}
	verifier, err := accesstoken.NewVerifier(cfg.Token.Secret, cfg.Token.Issuer, cfg.Token.Audience)
	if err != nil {
		return err
	}
	allowlist, err := routing.LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		return err
	}
	handler, err := configstub.NewHandler(configstub.Options{
		Allowlist:  allowlist,
		Repository: repo,
		Verifier:   verifier,
		Identities: identities,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Stub.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("configstub listening", "addr", cfg.Stub.ListenAddr, "projects", len(cfg.Stub.Projects), "identities", len(identities))
	return server.ListenAndServe(ctx, srv, logger)
}

// openRepository uses Postgres when a database url is set and memory otherwise.
func openRepository(ctx context.Context, databaseURL string) (ports.AuthConfigRepository, func(), error) {
	if databaseURL == "" {
		return persistence.NewAuthConfigMemoryStore(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	store := persistence.NewAuthConfigPGStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}
