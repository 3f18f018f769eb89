package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/gcpclient"
	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/providers"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
	"github.com/connexus-ai/ragbox-backend/internal/router"
	"github.com/connexus-ai/ragbox-backend/internal/service"
	"github.com/connexus-ai/ragbox-backend/internal/store"
)

const Version = "0.1.0"

// funcPinger adapts a plain health-check function to handler.Pinger.
type funcPinger func(ctx context.Context) error

func (f funcPinger) Ping(ctx context.Context) error { return f(ctx) }

// newQdrantClient connects to Qdrant's gRPC endpoint; QdrantURL is
// host:port, optionally prefixed with a scheme that only signals TLS.
func newQdrantClient(cfg *config.Config) (*qdrant.Client, error) {
	addr := cfg.QdrantURL
	useTLS := strings.HasPrefix(addr, "https://")
	addr = strings.TrimPrefix(strings.TrimPrefix(addr, "https://"), "http://")

	host, portStr, err := splitHostPort(addr, 6334)
	if err != nil {
		return nil, fmt.Errorf("main: parse QDRANT_URL: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("main: parse QDRANT_URL port: %w", err)
	}

	return qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: useTLS,
	})
}

func splitHostPort(addr string, defaultPort int) (string, string, error) {
	if !strings.Contains(addr, ":") {
		return addr, strconv.Itoa(defaultPort), nil
	}
	parts := strings.SplitN(addr, ":", 2)
	return parts[0], parts[1], nil
}

func newOpenSearchClient(cfg *config.Config) (*opensearchapi.Client, error) {
	return opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: []string{cfg.OpenSearchURL},
			Username:  cfg.OpenSearchUsername,
			Password:  cfg.OpenSearchPassword,
		},
	})
}

func newSharedCache(cfg *config.Config) cache.Shared {
	if cfg.RedisURL == "" {
		return cache.NewMemoryShared()
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL, falling back to in-process cache", "error", err)
		return cache.NewMemoryShared()
	}
	return cache.NewRedisShared(redis.NewClient(opts))
}

func newSaltProvider(cfg *config.Config) (*service.SaltProvider, error) {
	if cfg.VaultAddr == "" {
		return service.NewSaltProvider(nil, cfg.VaultSecretTemplate, cfg.FallbackSaltsJSON)
	}
	vCfg := vaultapi.DefaultConfig()
	vCfg.Address = cfg.VaultAddr
	client, err := vaultapi.NewClient(vCfg)
	if err != nil {
		return nil, fmt.Errorf("main: vault client: %w", err)
	}
	client.SetToken(cfg.VaultToken)
	return service.NewSaltProvider(client, cfg.VaultSecretTemplate, cfg.FallbackSaltsJSON)
}

// application bundles everything build() constructs so run() can close it
// down cleanly on shutdown.
type application struct {
	router      http.Handler
	tenantStore *service.TenantStore
	storage     *gcpclient.StorageAdapter
}

func build(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("main: load config: %w", err)
	}

	qdrantClient, err := newQdrantClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("main: qdrant client: %w", err)
	}
	osClient, err := newOpenSearchClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("main: opensearch client: %w", err)
	}
	shared := newSharedCache(cfg)

	embedAdapter, err := gcpclient.NewEmbeddingAdapter(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("main: embedding adapter: %w", err)
	}
	embedCache, err := cache.NewEmbeddingCache(embedAdapter, cfg.EmbeddingCacheSize, time.Duration(cfg.EmbeddingCacheTTL)*time.Second, shared)
	if err != nil {
		return nil, fmt.Errorf("main: embedding cache: %w", err)
	}
	queryCache := cache.NewQueryCache(time.Duration(cfg.SearchCacheTTL)*time.Second, shared)

	vectors := repository.NewVectorIndex(qdrantClient, cfg.QdrantCollection, cfg.EmbeddingDimensions)
	lexical := repository.NewLexicalIndex(osClient, cfg.OpenSearchIndex)

	fuser := service.NewFuser(cfg.RRFK)
	ranker, err := service.LoadLearnedRanker(cfg.LearnedRankerPath)
	if err != nil {
		return nil, fmt.Errorf("main: learned ranker: %w", err)
	}
	engine := service.NewHybridSearchEngine(embedCache, vectors, lexical, fuser, ranker, cfg.TopKVector, cfg.TopKBM25, cfg.PrivacyRepoIDs)

	stats := service.NewStatsTracker()
	rateLimiter := service.NewRateLimiter(cfg.RateLimitPerMinute, shared)
	apiKeys := service.NewAPIKeyValidator(nil, cfg.APIKeysRequired)
	tenantStore, err := service.NewTenantStore(cfg.TenantKeysPath, apiKeys)
	if err != nil {
		return nil, fmt.Errorf("main: tenant store: %w", err)
	}
	salts, err := newSaltProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("main: salt provider: %w", err)
	}

	rerankerRegistry, err := providers.NewRegistry[service.CrossEncoderProvider](cfg.RerankerProvider)
	if err != nil {
		return nil, fmt.Errorf("main: reranker registry: %w", err)
	}
	rerankerRegistry.Register(cfg.RerankerProvider, func() (service.CrossEncoderProvider, error) {
		return providers.NewHTTPCrossEncoder(cfg.RerankerURL), nil
	}, "huggingface", "http")
	rerankerProvider, resolution, err := rerankerRegistry.Create(cfg.RerankerProvider)
	if err != nil {
		return nil, fmt.Errorf("main: create reranker provider: %w", err)
	}
	if resolution.FallbackFrom != "" {
		slog.Warn("reranker provider fell back to default", "requested", resolution.FallbackFrom, "resolved", resolution.ResolvedKey)
	}
	reranker := service.NewCrossEncoderReranker(rerankerProvider)

	storage, err := gcpclient.NewStorageAdapter(ctx)
	if err != nil {
		return nil, fmt.Errorf("main: storage adapter: %w", err)
	}

	searchLog := store.NewJSONLWriter(cfg.SearchLogPath)
	feedbackLog := store.NewJSONLWriter(cfg.FeedbackLogPath)

	metricsReg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(metricsReg)

	backends := map[string]handler.Pinger{
		"qdrant":     funcPinger(func(ctx context.Context) error { _, err := qdrantClient.HealthCheck(ctx); return err }),
		"opensearch": funcPinger(func(ctx context.Context) error { _, err := osClient.Info(ctx, nil); return err }),
		"embedding":  funcPinger(embedAdapter.HealthCheck),
	}

	deps := &router.Dependencies{
		Backends:    backends,
		Version:     Version,
		FrontendURL: os.Getenv("FRONTEND_URL"),
		Metrics:     metrics,
		MetricsReg:  metricsReg,
		Search: handler.SearchDeps{
			Engine: engine, Cache: queryCache, RateLimiter: rateLimiter, APIKeys: apiKeys,
			Stats: stats, SearchLog: searchLog, PrivacyRepoIDs: cfg.PrivacyRepoIDs,
			DefaultAlpha: cfg.AlphaVector, DefaultBeta: cfg.BetaBM25,
			VariantAlpha: cfg.ABVariantAlpha, VariantBeta: cfg.ABVariantBeta,
		},
		IngestChunks: handler.IngestDeps{
			Vectors: vectors, Lexical: lexical, Embedder: embedCache, Stats: stats,
			APIKeys: apiKeys, Cache: queryCache, PrivacyRepoIDs: cfg.PrivacyRepoIDs,
		},
		CommitTus: handler.CommitTusDeps{
			Blobs: storage, Vectors: vectors, Lexical: lexical, Embedder: embedCache,
			Stats: stats, APIKeys: apiKeys, Cache: queryCache, Bucket: cfg.GCSUploadBucket, PrivacyRepoIDs: cfg.PrivacyRepoIDs,
		},
		FetchLines: handler.FetchLinesDeps{Reranker: reranker, APIKeys: apiKeys},
		Feedback:   handler.FeedbackDeps{FeedbackLog: feedbackLog, Stats: stats},
		Salts:      salts,
		Stats:      stats,
	}

	return &application{router: router.New(deps), tenantStore: tenantStore, storage: storage}, nil
}

func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}

func run() error {
	ctx := context.Background()
	app, err := build(ctx)
	if err != nil {
		return fmt.Errorf("main: build application: %w", err)
	}
	defer app.storage.Close()
	defer app.tenantStore.Close()

	port := getPort()
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      app.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("ragbox-backend v%s starting on port %s", Version, port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down gracefully", sig)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Println("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
