package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/schoolhouse/pkg/api"
	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/bus"
	"github.com/platinummonkey/schoolhouse/pkg/cache"
	"github.com/platinummonkey/schoolhouse/pkg/config"
	"github.com/platinummonkey/schoolhouse/pkg/idp"
	"github.com/platinummonkey/schoolhouse/pkg/middleware"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
	"github.com/platinummonkey/schoolhouse/pkg/storage"
	"github.com/platinummonkey/schoolhouse/pkg/storage/memory"
	"github.com/platinummonkey/schoolhouse/pkg/storage/postgres"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

const (
	dbMaintenanceInterval = 30 * time.Second
	redisKeyPrefix        = "schoolhouse"
)

type closer struct {
	name string
	fn   observability.ShutdownFunc
}

// app owns every long lived component of the server
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics

	store users.Store
	uow   storage.UnitOfWork
	db    *sql.DB
	redis *redis.Client

	tracer  trace.TracerProvider
	stats   *users.StatsCollector
	handler http.Handler
	health  http.Handler

	// run in reverse order on shutdown
	closers []closer
}

func (a *app) onShutdown(name string, fn observability.ShutdownFunc) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// newApp wires the service from cfg. On failure everything opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config, logger *observability.Logger) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			a.close(ctx)
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = observability.NewMetrics(a.registry)

	if err := a.setupTracing(ctx); err != nil {
		return nil, err
	}
	if err := a.setupStorage(ctx); err != nil {
		return nil, err
	}
	if err := a.setupRedis(ctx); err != nil {
		return nil, err
	}

	policy := rbac.DefaultCreatePolicy()
	if cfg.Policy.CreatePolicyFile != "" {
		if policy, err = rbac.LoadCreatePolicy(cfg.Policy.CreatePolicyFile); err != nil {
			return nil, err
		}
		logger.WithField("file", cfg.Policy.CreatePolicyFile).Info("loaded create policy")
	}
	logger.WithField("matrix", policy.Matrix()).Info("create policy")

	provider, err := a.identityProvider(ctx)
	if err != nil {
		return nil, err
	}

	identities := a.identityCache()
	svc := users.NewService(a.store, provider,
		users.WithIdentityCache(identities),
		users.WithCreatePolicy(policy),
		users.WithTemporaryPassword(cfg.IdentityProvider.TemporaryPassword),
	)
	b, err := bus.New(a.uow, svc.Registrations(), bus.WithMetrics(a.metrics), bus.WithTracerProvider(a.tracer))
	if err != nil {
		return nil, err
	}

	verifier, err := a.tokenVerifier(ctx)
	if err != nil {
		return nil, err
	}
	authenticator := auth.NewAuthenticator(verifier, users.NewIdentityResolver(a.store, identities))

	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithTrustedProxies(proxies),
		api.WithMetrics(a.metrics),
		api.WithCreatePolicy(policy),
		api.WithTracerProvider(a.tracer),
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	}
	if limiter := a.rateLimiter(ctx); limiter != nil {
		opts = append(opts, api.WithRateLimiter(limiter))
	}
	server, err := api.NewServer(b, authenticator, opts...)
	if err != nil {
		return nil, err
	}
	a.handler = server

	if cfg.Stats.Schedule != "" {
		a.stats = users.NewStatsCollector(a.store, a.metrics, logger)
		if err := a.stats.Refresh(ctx); err != nil {
			logger.WithError(err).Warn("initial user stats refresh failed")
		}
		if err := a.stats.Start(cfg.Stats.Schedule); err != nil {
			return nil, err
		}
		a.onShutdown("stats", a.stats.Stop)
	}

	a.health = a.healthMux()
	return a, nil
}

func (a *app) setupTracing(ctx context.Context) error {
	providers, err := observability.InitOTel(ctx, a.cfg.Observability.OTel(), a.logger)
	if err != nil {
		return err
	}
	if providers == nil {
		return nil
	}
	a.tracer = providers.TracerProvider
	a.onShutdown("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, a.logger)
	})
	return nil
}

func (a *app) setupStorage(ctx context.Context) error {
	switch a.cfg.Storage.Type {
	case storage.TypeMemory:
		store := memory.New()
		a.store, a.uow = store, store
		// a fresh memory store is empty, so it is always seeded
		return a.seed(ctx, true)

	case storage.TypePostgres:
		conns, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfigFromStorage(a.cfg.Storage), a.logger)
		if err != nil {
			return err
		}
		a.onShutdown("postgres", func(context.Context) error { return conns.Close() })

		a.db = conns.Primary()
		if _, err := postgres.RunMigrations(ctx, a.db, a.logger); err != nil {
			return err
		}
		a.store = postgres.NewUserStore(conns)
		a.uow = postgres.NewTxManager(a.db)

		maintenanceCtx, cancel := context.WithCancel(context.Background())
		conns.StartMaintenance(maintenanceCtx, dbMaintenanceInterval, a.metrics)
		a.onShutdown("postgres maintenance", func(context.Context) error {
			cancel()
			return nil
		})
		return a.seed(ctx, a.cfg.Policy.Seed)
	}
	return fmt.Errorf("unknown storage type %q", a.cfg.Storage.Type)
}

func (a *app) seed(ctx context.Context, enabled bool) error {
	if !enabled {
		return nil
	}
	seed := users.DefaultSeed()
	if a.cfg.Policy.SeedFile != "" {
		loaded, err := users.LoadSeed(a.cfg.Policy.SeedFile)
		if err != nil {
			return err
		}
		seed = loaded
	}
	if err := users.ApplySeed(ctx, a.uow, a.store, seed); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	a.logger.WithFields(map[string]interface{}{
		"districts": len(seed.Districts),
		"users":     len(seed.Users),
	}).Info("seed applied")
	return nil
}

func (a *app) setupRedis(ctx context.Context) error {
	if a.cfg.Storage.RedisURL == "" {
		return nil
	}
	client, err := cache.NewRedisClient(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	a.redis = client
	a.onShutdown("redis", func(context.Context) error { return client.Close() })
	return nil
}

// identityCache lives in Redis when configured so that every instance sees
// invalidations; the in-process LRU is only used for a single instance.
func (a *app) identityCache() users.IdentityCache {
	if a.redis != nil {
		return cache.NewRedis(a.redis, a.cfg.Storage.IdentityCacheTTL, redisKeyPrefix, a.logger, a.metrics)
	}
	return cache.NewLRU(a.cfg.Storage.IdentityCacheSize, a.cfg.Storage.IdentityCacheTTL, a.metrics)
}

func (a *app) identityProvider(ctx context.Context) (idp.Provider, error) {
	cfg := a.cfg.IdentityProvider
	if cfg.Type != config.IdentityProviderCognito {
		a.logger.Warn("no identity provider configured, accounts exist only in the user store")
		return idp.NewNoop(a.logger), nil
	}
	return idp.NewCognito(ctx, idp.CognitoConfig{
		Region:       cfg.Region,
		UserPoolID:   cfg.UserPoolID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     cfg.Endpoint,
	}, a.metrics)
}

func (a *app) tokenVerifier(ctx context.Context) (auth.TokenVerifier, error) {
	cfg := a.cfg.Auth
	if cfg.Mode == config.AuthModeOIDC {
		return auth.NewOIDCVerifier(ctx, cfg.Issuer, cfg.ClientID)
	}
	a.logger.Warn("verifying HS256 tokens; use oidc outside development")
	return auth.NewHMACVerifier([]byte(cfg.HMACSecret), "schoolhouse"), nil
}

// rateLimiter shares counters through Redis when available
func (a *app) rateLimiter(ctx context.Context) middleware.Limiter {
	if !a.cfg.RateLimit.Enabled {
		return nil
	}
	limits := &middleware.RateLimitConfig{
		RequestsPerWindow: a.cfg.RateLimit.RequestsPerWindow,
		WindowDuration:    a.cfg.RateLimit.Window,
		BurstSize:         a.cfg.RateLimit.Burst,
	}
	if a.redis != nil {
		return middleware.NewDistributedRateLimiter(a.redis, limits, redisKeyPrefix+":ratelimit")
	}
	limiter := middleware.NewRateLimiter(limits)
	cleanupCtx, cancel := context.WithCancel(context.Background())
	limiter.StartCleanup(cleanupCtx, a.logger)
	a.onShutdown("rate limiter", func(context.Context) error {
		cancel()
		return nil
	})
	return limiter
}

// healthMux serves probes and, when enabled, /metrics on the health port
func (a *app) healthMux() http.Handler {
	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, observability.NewHealthChecker(a.db, a.redis))
	if a.cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(mux, a.registry)
	}
	return mux
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].fn(ctx); err != nil {
			a.logger.WithError(err).WithField("component", a.closers[i].name).Warn("close failed")
		}
	}
	a.closers = nil
}

// run serves the API and health ports until a signal or a server failure
func (a *app) run(ctx context.Context) error {
	srv := a.cfg.Server
	apiServer := &http.Server{
		Addr:         net.JoinHostPort(srv.Host, srv.Port),
		Handler:      a.handler,
		ReadTimeout:  srv.ReadTimeout,
		WriteTimeout: srv.WriteTimeout,
		IdleTimeout:  srv.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(srv.Host, srv.HealthPort),
		Handler:           a.health,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(a.logger, srv.ShutdownTimeout, apiServer, healthServer)
	for _, c := range a.closers {
		shutdown.RegisterShutdownFunc(c.name, c.fn)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range []*http.Server{apiServer, healthServer} {
		s := s
		g.Go(func() error {
			a.logger.WithField("addr", s.Addr).Info("listening")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", s.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})
	return g.Wait()
}
