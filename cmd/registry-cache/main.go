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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/registry-cache/internal/config"
	"github.com/Sternrassler/registry-cache/internal/registry"
	"github.com/Sternrassler/registry-cache/internal/upstream"
	"github.com/Sternrassler/registry-cache/pkg/cache"
	"github.com/Sternrassler/registry-cache/pkg/distribution"
	"github.com/Sternrassler/registry-cache/pkg/logging"
	"github.com/Sternrassler/registry-cache/pkg/metrics"
)

func main() {
	configPath := flag.String("config", os.Getenv("REGISTRY_CACHE_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(loggingConfig(cfg.Logging))

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer backend.close()
	logger.Info().Str("backend", cfg.Store.Backend).Msg("Cache store ready")

	catalog, err := loadCatalog(cfg.Content.CatalogFile)
	if err != nil {
		return err
	}

	client := upstream.New(upstreamConfig(cfg.Upstream), logging.NewLogger("upstream"))
	srv := registry.New(backend.store, catalog, client, registry.Options{
		ContentRoot:  cfg.Content.Root,
		BlobRedirect: cfg.Content.BlobRedirect,
		Tenant:       cfg.Tenant,
		TTL:          cfg.Cache.ExpiresTTL.Duration(),
		Logger:       logging.NewLogger("registry"),
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newMux(srv, backend.ready),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Listen).
			Str("expires_ttl", cfg.Cache.ExpiresTTL.String()).
			Msg("Starting registry cache server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// storeBackend is an opened cache store with its health check.
type storeBackend struct {
	store cache.Store
	ready func(ctx context.Context) error
	close func() error
}

func openStore(ctx context.Context, cfg config.StoreConfig) (*storeBackend, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return &storeBackend{
			store: cache.NewRedisStore(client),
			ready: func(ctx context.Context) error { return client.Ping(ctx).Err() },
			close: client.Close,
		}, nil
	case config.BackendLevelDB:
		store, err := cache.OpenLevelDBStore(cfg.LevelDB.Path)
		if err != nil {
			return nil, err
		}
		return &storeBackend{
			store: store,
			ready: func(context.Context) error { return nil },
			close: store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func loadCatalog(path string) (*distribution.Catalog, error) {
	logger := logging.NewLogger("catalog")
	if path == "" {
		log.Warn().Msg("No catalog file configured, serving no repositories")
		return distribution.NewCatalog(logger), nil
	}
	return distribution.LoadCatalog(path, logger)
}

func loggingConfig(cfg config.LoggingConfig) logging.Config {
	out := logging.DefaultConfig()
	out.Level = logging.LogLevel(cfg.Level)
	out.Pretty = cfg.Pretty
	out.File = cfg.File
	out.MaxSizeMB = cfg.MaxSizeMB
	out.MaxBackups = cfg.MaxBackups
	out.Compress = cfg.Compress
	return out
}

func upstreamConfig(cfg config.UpstreamConfig) upstream.Config {
	out := upstream.DefaultConfig()
	out.Timeout = cfg.Timeout
	out.UserAgent = cfg.UserAgent
	out.Retry.MaxAttempts = cfg.MaxRetries + 1
	if cfg.InitialBackoff > 0 {
		out.Retry.InitialBackoff = cfg.InitialBackoff
	}
	return out
}

func newMux(registryHandler http.Handler, ready func(ctx context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(ready))
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", registryHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := ready(ctx); err != nil {
			log.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "cache store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}
