package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	httpHandlers "github.com/jwinr/TechNexus-sub000/internal/adapters/http/handlers"
	httpMiddleware "github.com/jwinr/TechNexus-sub000/internal/adapters/http/middleware"
	"github.com/jwinr/TechNexus-sub000/internal/adapters/storage/async"
	"github.com/jwinr/TechNexus-sub000/internal/adapters/storage/memory"
	redisstorage "github.com/jwinr/TechNexus-sub000/internal/adapters/storage/redis"
	"github.com/jwinr/TechNexus-sub000/internal/config"
	"github.com/jwinr/TechNexus-sub000/internal/core/ports"
	"github.com/jwinr/TechNexus-sub000/internal/core/services"
	"github.com/jwinr/TechNexus-sub000/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := memory.NewCounterStore(
		cfg.RateLimiter.Capacity,
		cfg.RateLimiter.Window,
		memory.WithShards(cfg.RateLimiter.Shards),
		memory.WithCleanupEvery(cfg.RateLimiter.CleanupEvery),
	)
	if err != nil {
		logger.Fatalw("failed to create counter store", "error", err)
	}
	store.StartJanitor(ctx)

	limiter, err := services.NewRateLimiterService(store, services.Config{Rule: cfg.RateLimiter.Rule})
	if err != nil {
		logger.Fatalw("failed to create limiter", "error", err)
	}

	guard := services.NewAPIKeyService(cfg.Admission.APIKey, cfg.Admission.ProtectedPrefix)
	if cfg.Admission.APIKey == "" {
		logger.Warnw("API_KEY is empty, every protected route will be denied", "prefix", guard.Prefix())
	}

	sink, statsMem, closeSink, err := initStats(cfg.Stats)
	if err != nil {
		logger.Fatalw("failed to init stats storage", "storage", cfg.Stats.Storage, "error", err)
	}
	defer closeSink()

	var (
		recorder *async.Recorder
		dropped  func() int64
	)
	mwOpts := []httpMiddleware.Option{
		httpMiddleware.WithKeyFunc(httpMiddleware.ClientKeyFunc(cfg.Admission.TrustedIPHeader, cfg.Admission.TrustProxyHeaders)),
		httpMiddleware.WithAPIKeyHeader(cfg.Admission.APIKeyHeader),
		httpMiddleware.WithLogger(logger),
	}
	if sink != nil {
		recorder = async.NewRecorder(sink, cfg.Stats.Buffer, logger)
		dropped = recorder.Dropped
		mwOpts = append(mwOpts, httpMiddleware.WithStats(recorder))
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(httpMiddleware.NewAdmissionMiddleware(limiter, guard, mwOpts...))

	r.Get("/healthz", httpHandlers.HealthHandler)
	r.Get("/test", httpHandlers.TestHandler)
	r.Route(guard.Prefix(), func(r chi.Router) {
		r.Get("/test", httpHandlers.TestHandler)
		r.Get("/admission/stats", httpHandlers.StatsHandler(store, cfg.RateLimiter.Window.Milliseconds(), statsMem, dropped))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil {
			errCh <- err
		}
	}()

	logger.Infow("server started",
		"port", cfg.Server.Port,
		"capacity", store.Capacity(),
		"shards", store.Shards(),
		"window", cfg.RateLimiter.Window.String(),
		"stats", cfg.Stats.Storage,
	)

	select {
	case <-ctx.Done():
		logger.Infow("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("graceful shutdown failed", "error", err)
	}
	if recorder != nil {
		if err := recorder.Close(shutdownCtx); err != nil {
			logger.Warnw("stats queue not fully drained", "error", err, "dropped", recorder.Dropped())
		}
	}
}

// initStats devolve o sink configurado. O segundo retorno só é preenchido no
// modo memória, para o endpoint de estatísticas.
func initStats(cfg config.StatsConfig) (ports.StatsRecorder, *memory.StatsStorage, func(), error) {
	noop := func() {}

	switch cfg.Storage {
	case config.StatsStorageNone:
		return nil, nil, noop, nil
	case config.StatsStorageMemory:
		storage := memory.NewStatsStorage()
		return storage, storage, noop, nil
	case config.StatsStorageRedis:
		storage, err := redisstorage.New(redisstorage.Config{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return storage, nil, func() {
			if err := storage.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to close redis stats storage: %v\n", err)
			}
		}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported stats storage: %s", cfg.Storage)
	}
}
