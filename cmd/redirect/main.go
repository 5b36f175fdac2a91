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

// The redirect plane carries only the hot path so it can be scaled and
// deployed independently of the API plane.
func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.Logging.Level)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	resolver := service.NewResolver(store, lookupCache, dispatcher, logger, m, service.ResolverConfig{
		CacheTTL:          cfg.Resolver.CacheTTL,
		SideEffectTimeout: cfg.Resolver.SideEffectTimeout,
		ClickFlushEvery:   cfg.Resolver.ClickFlushEvery,
	})

	handler := httphandler.NewHandler(nil, resolver, m, logger, cfg.Server.BaseURL)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Correlation)
	r.Use(middleware.Metrics(m))
	r.Handle("/metrics", promhttp.Handler())
	httphandler.SetupRedirectRoutes(r, handler)

	srv := &stdhttp.Server{
		Addr:         cfg.Server.RedirectAddr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info(ctx, "starting redirect server", "addr", cfg.Server.RedirectAddr)
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
