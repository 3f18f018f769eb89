package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
// It is immutable after Load() returns; request-scoped overrides (A/B weights)
// are never written back into it.
type Config struct {
	Port        int
	Environment string

	QdrantURL       string
	QdrantAPIKey    string
	QdrantCollection string

	OpenSearchURL      string
	OpenSearchUsername string
	OpenSearchPassword string
	OpenSearchIndex    string

	RedisURL string

	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	GCPProject          string
	VertexAILocation    string

	RerankerProvider string
	RerankerModel    string
	RerankerURL      string

	LearnedRankerPath string

	TopKVector  int
	TopKBM25    int
	FinalK      int
	AlphaVector float64
	BetaBM25    float64
	RRFK        int

	ABVariantAlpha float64
	ABVariantBeta  float64

	PrivacyRepoIDs map[string]bool

	RateLimitPerMinute int

	APIKeysRequired bool
	TenantKeysPath  string

	VaultAddr            string
	VaultToken           string
	VaultSecretTemplate  string
	FallbackSaltsJSON    string

	SearchLogPath   string
	FeedbackLogPath string

	GCSUploadBucket string

	EmbeddingCacheSize int
	EmbeddingCacheTTL  int
	SearchCacheTTL     int
}

// Load reads configuration from environment variables.
// Required variables (QDRANT_URL, OPENSEARCH_URL) cause an error if missing.
// Optional variables use sensible defaults.
func Load() (*Config, error) {
	qdrantURL := os.Getenv("QDRANT_URL")
	if qdrantURL == "" {
		return nil, fmt.Errorf("config.Load: QDRANT_URL is required")
	}

	osURL := os.Getenv("OPENSEARCH_URL")
	if osURL == "" {
		return nil, fmt.Errorf("config.Load: OPENSEARCH_URL is required")
	}

	cfg := &Config{
		Port:        envInt("PORT", 8080),
		Environment: envStr("ENVIRONMENT", "development"),

		QdrantURL:        qdrantURL,
		QdrantAPIKey:     envStr("QDRANT_API_KEY", ""),
		QdrantCollection: envStr("QDRANT_COLLECTION", "code_chunks"),

		OpenSearchURL:      osURL,
		OpenSearchUsername: envStr("OPENSEARCH_USERNAME", ""),
		OpenSearchPassword: envStr("OPENSEARCH_PASSWORD", ""),
		OpenSearchIndex:    envStr("OPENSEARCH_INDEX", "code_chunks"),

		RedisURL: envStr("REDIS_URL", ""),

		EmbeddingProvider:   envStr("EMBEDDING_PROVIDER", "vertexai"),
		EmbeddingModel:      envStr("EMBED_MODEL", "text-embedding-004"),
		EmbeddingDimensions: envInt("EMBEDDING_DIMENSIONS", 768),
		GCPProject:          envStr("GOOGLE_CLOUD_PROJECT", ""),
		VertexAILocation:    envStr("VERTEX_AI_EMBEDDING_LOCATION", "us-east4"),

		RerankerProvider: envStr("RERANKER_PROVIDER", "huggingface"),
		RerankerModel:    envStr("RERANKER_MODEL", "cross-encoder/ms-marco-MiniLM-L-6-v2"),
		RerankerURL:      envStr("RERANKER_URL", ""),

		LearnedRankerPath: envStr("LEARNED_RANKER_PATH", ""),

		TopKVector:  envInt("TOP_K_VECTOR", 50),
		TopKBM25:    envInt("TOP_K_BM25", 50),
		FinalK:      envInt("FINAL_K", 12),
		AlphaVector: envFloat("ALPHA_VEC", 0.6),
		BetaBM25:    envFloat("BETA_BM25", 0.4),
		RRFK:        envInt("RRF_K", 60),

		ABVariantAlpha: envFloat("AB_VARIANT_ALPHA", 0.5),
		ABVariantBeta:  envFloat("AB_VARIANT_BETA", 0.5),

		PrivacyRepoIDs: envSet("PRIVACY_REPOS"),

		RateLimitPerMinute: envInt("LIMIT_SEARCH_PER_MINUTE", 60),

		APIKeysRequired: envBool("REQUIRE_API_KEY", true),
		TenantKeysPath:  envStr("TENANT_KEYS_PATH", "./tenant_keys.json"),

		VaultAddr:           envStr("VAULT_ADDR", ""),
		VaultToken:          envStr("VAULT_TOKEN", ""),
		VaultSecretTemplate: envStr("VAULT_SECRET_TEMPLATE", "codesearch/tenants/%s"),
		FallbackSaltsJSON:   envStr("FALLBACK_SALTS_JSON", ""),

		SearchLogPath:   envStr("SEARCH_LOG_PATH", "./data/search_log.jsonl"),
		FeedbackLogPath: envStr("FEEDBACK_LOG_PATH", "./data/feedback_log.jsonl"),

		GCSUploadBucket: envStr("S3_UPLOAD_BUCKET", envStr("GCS_UPLOAD_BUCKET", "")),

		EmbeddingCacheSize: envInt("EMBED_CACHE_SIZE", 4096),
		EmbeddingCacheTTL:  envInt("EMBEDDING_CACHE_TTL_SECONDS", 3600),
		SearchCacheTTL:     envInt("SEARCH_CACHE_TTL_S", 30),
	}

	if cfg.Environment != "development" && cfg.APIKeysRequired && os.Getenv("TENANT_KEYS_PATH") == "" {
		return nil, fmt.Errorf("config.Load: TENANT_KEYS_PATH is required in %s environment", cfg.Environment)
	}

	return cfg, nil
}

// CollectionForTenant returns the per-tenant Qdrant collection name.
func (c *Config) CollectionForTenant(tenantID string) string {
	if tenantID == "" || tenantID == "default" {
		return c.QdrantCollection
	}
	return c.QdrantCollection + "_" + tenantID
}

// IndexForTenant returns the per-tenant OpenSearch index name.
func (c *Config) IndexForTenant(tenantID string) string {
	if tenantID == "" || tenantID == "default" {
		return c.OpenSearchIndex
	}
	return c.OpenSearchIndex + "_" + tenantID
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envSet(key string) map[string]bool {
	v := os.Getenv(key)
	set := make(map[string]bool)
	if v == "" {
		return set
	}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			set[part] = true
		}
	}
	return set
}
