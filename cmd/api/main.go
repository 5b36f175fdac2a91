package main

import (
	"context"
	"errors"
	"log"
	stdhttp "net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"shortly/pkg/cache"
	"shortly/pkg/config"
	"shortly/pkg/events"
	httphandler "shortly/pkg/http"
	"shortly/pkg/logging"
	"shortly/pkg/metrics"
	"shortly/pkg/middleware"
	"shortly/pkg/service"
	"shortly/pkg/storage"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.Logging.Level)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := storage.Migrate(cfg.Database.URL); err != nil {
		log.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal(err)
	}
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()

	store := storage.NewPostgresStore(pool, cfg.Database.OpTimeout)
	lookupCache := cache.NewRedisCache(redisClient, cfg.Redis.OpTimeout)

	dispatcher := events.NewDispatcher(store, logger, events.DispatcherConfig{
		Workers:       cfg.Events.Workers,
		BufferSize:    cfg.Events.BufferSize,
		BatchSize:     cfg.Events.BatchSize,
		FlushInterval: cfg.Events.FlushInterval,
	})
	dispatcher.Start()
	defer dispatcher.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	generator := service.NewCodeGenerator(store,
		cfg.Generator.CodeLength, cfg.Generator.MaxAttempts,
		cfg.Generator.AliasMinLen, cfg.Generator.AliasMaxLen)
	linkService := service.NewLinkService(store, store.Users(), lookupCache, generator, logger)
	resolver := service.NewResolver(store, lookupCache, dispatcher, logger, m, service.ResolverConfig{
		CacheTTL:          cfg.Resolver.CacheTTL,
		SideEffectTimeout: cfg.Resolver.SideEffectTimeout,
		ClickFlushEvery:   cfg.Resolver.ClickFlushEvery,
	})

	var oauthMiddleware *middleware.OAuthMiddleware
	if cfg.OIDC.IssuerURL != "" {
		oauthMiddleware, err = middleware.NewOAuthMiddleware(middleware.OAuthConfig{
			IssuerURL: cfg.OIDC.IssuerURL,
			Audience:  cfg.OIDC.Audience,
		}, logger)
		if err != nil {
			log.Fatal("failed to create OAuth middleware:", err)
		}
	} else {
		logger.Warn(ctx, "OIDC_ISSUER not set, API routes are unauthenticated")
	}

	handler := httphandler.NewHandler(linkService, resolver, m, logger, cfg.Server.BaseURL)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Correlation)
	r.Use(middleware.Metrics(m))
	r.Handle("/metrics", promhttp.Handler())
	httphandler.SetupAPIRoutes(r, handler, oauthMiddleware)

	srv := &stdhttp.Server{
		Addr:         cfg.Server.APIAddr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info(ctx, "starting API server", "addr", cfg.Server.APIAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "shutdown failed", "error", err)
	}
}
