// Package config loads pulsecorr's runtime configuration from environment
// variables (optionally backed by a .env file), following the knob names
// fixed by the external interface contract.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RedisConfig describes the KV/stream backend connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// QdrantConfig describes the vector store connection.
type QdrantConfig struct {
	DSN        string
	Dimensions int
	Metric     string // cosine|l2|euclidean|ip|dot|manhattan
}

// EmbeddingConfig describes the embedding backend HTTP endpoint.
type EmbeddingConfig struct {
	BaseURL   string
	Path      string
	Model     string
	APIKey    string
	APIHeader string
	Timeout   time.Duration
}

// AnthropicConfig describes the LLM classification backend.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// CollectionPrefixes names the three vector-store collection families.
type CollectionPrefixes struct {
	Log       string
	Prototype string
	Template  string
}

// Config is the full set of recognized runtime knobs.
type Config struct {
	HTTPAddr string
	LogLevel string
	LogPretty bool

	Redis      RedisConfig
	Qdrant     QdrantConfig
	Embedding  EmbeddingConfig
	Anthropic  AnthropicConfig
	EmbedID    string
	Collections CollectionPrefixes

	OnlineClusterDistanceThreshold        float64
	ClusterMinLogsForClassification       int
	ClusterCandidateRepublishEvery        int
	ClusterCandidateRepublishMinInterval  time.Duration
	ClusterDistanceThreshold              float64
	ClusterMinSize                        int

	IssueInactivity    time.Duration
	IssueMaxLogsForLLM int

	AlertsTTL time.Duration

	DisableHDBSCAN          bool
	DisableGlobalClustering bool
	CorrelationFallbackRedis bool
	EnvDiscoveryTimeout      time.Duration
	EnableClusterEnricher    bool
	EnableClusterMetrics     bool
	EnableClusterHypothesis  bool

	SimEnvIDs []string
}

// Load reads configuration from the environment, applying an optional .env
// file first (existing environment variables still win).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:  firstNonEmpty(os.Getenv("HTTP_ADDR"), ":8080"),
		LogLevel:  firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		LogPretty: boolFromEnv("LOG_PRETTY", false),

		Redis: RedisConfig{
			Addr:     firstNonEmpty(os.Getenv("REDIS_ADDR"), "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       intFromEnv("REDIS_DB", 0),
		},
		Qdrant: QdrantConfig{
			DSN:        firstNonEmpty(os.Getenv("QDRANT_DSN"), "http://localhost:6334"),
			Dimensions: intFromEnv("VECTOR_DIMENSIONS", 384),
			Metric:     firstNonEmpty(os.Getenv("VECTOR_METRIC"), "cosine"),
		},
		Embedding: EmbeddingConfig{
			BaseURL:   strings.TrimSpace(os.Getenv("EMBED_BASE_URL")),
			Path:      firstNonEmpty(os.Getenv("EMBED_PATH"), "/v1/embeddings"),
			Model:     strings.TrimSpace(os.Getenv("EMBED_MODEL")),
			APIKey:    strings.TrimSpace(os.Getenv("EMBED_API_KEY")),
			APIHeader: firstNonEmpty(os.Getenv("EMBED_API_HEADER"), "Authorization"),
			Timeout:   time.Duration(intFromEnv("EMBED_TIMEOUT_SEC", 30)) * time.Second,
		},
		Anthropic: AnthropicConfig{
			APIKey:  strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
			BaseURL: strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")),
			Model:   firstNonEmpty(os.Getenv("ANTHROPIC_MODEL"), "claude-3-7-sonnet-latest"),
		},
		EmbedID: firstNonEmpty(os.Getenv("EMBED_ID"), "default"),
		Collections: CollectionPrefixes{
			Log:       firstNonEmpty(os.Getenv("CHROMA_LOG_COLLECTION_PREFIX"), "logs_"),
			Prototype: firstNonEmpty(os.Getenv("CHROMA_PROTO_COLLECTION_PREFIX"), "prototypes_"),
			Template:  firstNonEmpty(os.Getenv("CHROMA_TEMPLATE_COLLECTION_PREFIX"), "templates_"),
		},

		OnlineClusterDistanceThreshold:       floatFromEnv("ONLINE_CLUSTER_DISTANCE_THRESHOLD", 0.35),
		ClusterMinLogsForClassification:      intFromEnv("CLUSTER_MIN_LOGS_FOR_CLASSIFICATION", 10),
		ClusterCandidateRepublishEvery:       intFromEnv("CLUSTER_CANDIDATE_REPUBLISH_EVERY", 0),
		ClusterCandidateRepublishMinInterval: time.Duration(intFromEnv("CLUSTER_CANDIDATE_REPUBLISH_MIN_INTERVAL_SEC", 60)) * time.Second,
		ClusterDistanceThreshold:             floatFromEnv("CLUSTER_DISTANCE_THRESHOLD", 0.4),
		ClusterMinSize:                       intFromEnv("CLUSTER_MIN_SIZE", 5),

		IssueInactivity:    time.Duration(intFromEnv("ISSUE_INACTIVITY_SEC", 120)) * time.Second,
		IssueMaxLogsForLLM: intFromEnv("ISSUE_MAX_LOGS_FOR_LLM", 30),

		AlertsTTL: time.Duration(intFromEnv("ALERTS_TTL_SEC", 7*24*3600)) * time.Second,

		DisableHDBSCAN:           boolFromEnv("DISABLE_HDBSCAN", false),
		DisableGlobalClustering:  boolFromEnv("DISABLE_GLOBAL_CLUSTERING", false),
		CorrelationFallbackRedis: boolFromEnv("CORRELATION_FALLBACK_REDIS", false),
		EnvDiscoveryTimeout:      time.Duration(floatFromEnv("ENV_DISCOVERY_TIMEOUT_SEC", 2) * float64(time.Second)),
		EnableClusterEnricher:    boolFromEnv("ENABLE_CLUSTER_ENRICHER", true),
		EnableClusterMetrics:     boolFromEnv("ENABLE_CLUSTER_METRICS", false),
		EnableClusterHypothesis:  boolFromEnv("ENABLE_CLUSTER_HYPOTHESIS", false),

		SimEnvIDs: parseCommaSeparatedList(firstNonEmpty(os.Getenv("SIM_ENV_IDS"), "env-001,env-002,env-003")),
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseCommaSeparatedList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}
	return def
}
