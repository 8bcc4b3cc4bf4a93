package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/optimal-cyber/launchpad-sub001/pkg/agents"
	"github.com/optimal-cyber/launchpad-sub001/pkg/config"
	"github.com/optimal-cyber/launchpad-sub001/pkg/logging"
	"github.com/optimal-cyber/launchpad-sub001/pkg/policy"
	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
	"github.com/optimal-cyber/launchpad-sub001/pkg/sso"
	"github.com/optimal-cyber/launchpad-sub001/pkg/storage"
	"github.com/optimal-cyber/launchpad-sub001/pkg/telemetry"
	"github.com/optimal-cyber/launchpad-sub001/pkg/tokens"
)

var (
	configPath = flag.String("config", "/etc/launchpad/server.yaml", "Config file path")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	Version    = "dev"
)

type Server struct {
	cfg         *config.ServerConfig
	logger      zerolog.Logger
	tokens      *tokens.Service
	agents      *agents.Registry
	scans       *scans.Repository
	policy      *policy.Policy
	services    *sso.Registry
	sso         *sso.Client // nil when SSO is disabled
	rateLimiter *RateLimiter
	started     time.Time
	now         func() time.Time
}

// stores bundles the persistence backends selected by the storage config.
type stores struct {
	tokens tokens.Store
	agents agents.Store
	scans  scans.Store
	close  func() error
}

func memoryStores() stores {
	return stores{
		tokens: tokens.NewMemoryStore(),
		agents: agents.NewMemoryStore(),
		scans:  scans.NewMemoryStore(),
		close:  func() error { return nil },
	}
}

func openStores(cfg config.StorageConfig) (stores, error) {
	if cfg.Driver == "memory" {
		return memoryStores(), nil
	}
	db, err := storage.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return stores{}, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return stores{}, fmt.Errorf("storage handle: %w", err)
	}
	return stores{
		tokens: storage.NewTokenStore(db),
		agents: storage.NewAgentStore(db),
		scans:  storage.NewScanStore(db),
		close:  sqlDB.Close,
	}, nil
}

func newServer(cfg *config.ServerConfig, logger zerolog.Logger, st stores, pol *policy.Policy, services *sso.Registry, ssoClient *sso.Client) *Server {
	if pol == nil {
		pol = &policy.Policy{}
	}
	if services == nil {
		services = sso.NewRegistry()
	}
	return &Server{
		cfg:         cfg,
		logger:      logger,
		tokens:      tokens.NewService(st.tokens, tokens.NewHasher([]byte(cfg.Auth.TokenPepper))),
		agents:      agents.NewRegistry(st.agents),
		scans:       scans.NewRepository(st.scans, cfg.Scans.Capacity),
		policy:      pol,
		services:    services,
		sso:         ssoClient,
		rateLimiter: NewRateLimiter(),
		started:     time.Now().UTC(),
		now:         time.Now,
	}
}

func buildServices(cfg config.SSOConfig) (*sso.Registry, error) {
	reg := sso.NewRegistry()
	for _, svc := range cfg.Services {
		if err := reg.Register(sso.ServiceConfig{
			ID:            svc.ID,
			URL:           svc.URL,
			ClientID:      svc.ClientID,
			RequiredRoles: svc.RequiredRoles,
		}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// buildSSO returns a nil client when SSO is disabled. The returned closer
// releases the session backend.
func buildSSO(ctx context.Context, cfg config.SSOConfig, services *sso.Registry, logger zerolog.Logger) (*sso.Client, func() error, error) {
	noop := func() error { return nil }
	if !cfg.Enabled {
		return nil, noop, nil
	}

	var sessions sso.SessionStore = sso.NewMemorySessionStore()
	closer := noop
	if cfg.SessionStore == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		sessions = sso.NewRedisSessionStore(rdb, cfg.Redis.Prefix)
		closer = rdb.Close
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("SSO sessions stored in redis")
	}

	client, err := sso.NewClient(sso.ProviderConfig{
		URL:          cfg.Provider.URL,
		Realm:        cfg.Provider.Realm,
		ClientSecret: cfg.Provider.ClientSecret,
		RedirectURI:  cfg.Provider.RedirectURI,
		AuthURL:      cfg.Provider.AuthURL,
		TokenURL:     cfg.Provider.TokenURL,
		UserInfoURL:  cfg.Provider.UserInfoURL,
		Timeout:      time.Duration(cfg.Provider.TimeoutS) * time.Second,
	}, services, sessions, &http.Client{})
	if err != nil {
		_ = closer()
		return nil, noop, err
	}
	return client, closer, nil
}

func main() {
	flag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, os.Stdout).With().Str("component", "server").Logger()
	logger.Info().Str("version", Version).Msg("Launchpad server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.SetupTracing(ctx, "launchpad-server", Version, cfg.Tracing, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	st, err := openStores(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to open storage")
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Warn().Err(err).Msg("storage close failed")
		}
	}()

	pol, err := policy.Load(cfg.Policy.File)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.Policy.File).Msg("failed to load policy")
	}
	logger.Info().Int("rules", len(pol.Rules)).Msg("policy loaded")

	services, err := buildServices(cfg.SSO)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid SSO service registration")
	}
	ssoClient, closeSessions, err := buildSSO(ctx, cfg.SSO, services, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise SSO")
	}
	defer func() { _ = closeSessions() }()

	if cfg.Auth.AdminToken == "" {
		logger.Warn().Msg("no admin token configured; token administration endpoints are disabled")
	}
	if !cfg.Auth.RequireToken {
		logger.Warn().Msg("API token enforcement is disabled")
	}

	srv := newServer(cfg, logger, st, pol, services, ssoClient)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", cfg.Listen).Msg("listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}
