package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/hybridrank/internal/domain/ranking"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/query"
)

// Vector index backends.
const (
	BackendRedis  = "redis"
	BackendQdrant = "qdrant"
)

// Config holds the hybridrank service configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Reranker    RerankerConfig    `yaml:"reranker"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Ranking     RankingConfig     `yaml:"ranking"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds the query embedding provider settings.
type EmbeddingConfig struct {
	Provider         string      `yaml:"provider"`
	APIKey           string      `yaml:"api_key"`
	BaseURL          string      `yaml:"base_url"`
	Model            string      `yaml:"model"`
	Dimensions       int         `yaml:"dimensions"`
	QueryInstruction string      `yaml:"query_instruction"`
	TimeoutMs        int         `yaml:"timeout_ms"`
	Cache            CacheConfig `yaml:"cache"`
}

// CacheConfig controls the Redis embedding cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"` // 0 = no expiry
}

// RerankerConfig holds the semantic reranker service settings.
type RerankerConfig struct {
	Enabled             bool    `yaml:"enabled"`
	URL                 string  `yaml:"url"`
	Model               string  `yaml:"model"`
	TimeoutMs           int     `yaml:"timeout_ms"`
	RatePerSec          float64 `yaml:"rate_per_sec"` // 0 = unlimited
	Burst               int     `yaml:"burst"`
	MaxCandidatesFactor int     `yaml:"max_candidates_factor"`
}

// VectorIndexConfig selects where knowledge vectors are searched.
type VectorIndexConfig struct {
	Backend string       `yaml:"backend"` // redis (default), qdrant
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// RetrievalConfig holds per-source request defaults.
type RetrievalConfig struct {
	IndexTimeoutMs int            `yaml:"index_timeout_ms"`
	Knowledge      SourceDefaults `yaml:"knowledge"`
	Procedures     SourceDefaults `yaml:"procedures"`
}

// SourceDefaults apply when a request leaves an option unset.
type SourceDefaults struct {
	TopK                int      `yaml:"top_k"`
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	KeywordFallback     *bool    `yaml:"keyword_fallback"`
	KeywordBoost        *bool    `yaml:"keyword_boost"`
}

// Query converts the defaults for query validation.
func (s SourceDefaults) Query() query.Defaults {
	d := query.Defaults{TopK: s.TopK, KeywordFallback: true, KeywordBoost: true}
	if s.SimilarityThreshold != nil {
		d.SimilarityThreshold = *s.SimilarityThreshold
	}
	if s.KeywordFallback != nil {
		d.KeywordFallback = *s.KeywordFallback
	}
	if s.KeywordBoost != nil {
		d.KeywordBoost = *s.KeywordBoost
	}
	return d
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references, decodes data, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "hybridrank:"
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.TimeoutMs <= 0 {
		c.Embedding.TimeoutMs = 10_000
	}

	if c.Reranker.TimeoutMs <= 0 {
		c.Reranker.TimeoutMs = 15_000
	}
	if c.Reranker.Burst <= 0 {
		c.Reranker.Burst = 1
	}
	if c.Reranker.MaxCandidatesFactor <= 0 {
		c.Reranker.MaxCandidatesFactor = ranking.DefaultConfig().Rerank.MaxCandidatesFactor
	}

	if c.VectorIndex.Backend == "" {
		c.VectorIndex.Backend = BackendRedis
	}
	if c.VectorIndex.Qdrant.Port <= 0 {
		c.VectorIndex.Qdrant.Port = 6334
	}
	if c.VectorIndex.Qdrant.Collection == "" {
		c.VectorIndex.Qdrant.Collection = "knowledge"
	}

	if c.Retrieval.IndexTimeoutMs <= 0 {
		c.Retrieval.IndexTimeoutMs = 5_000
	}
	c.Retrieval.Knowledge.applyDefaults(3, 0.6)
	c.Retrieval.Procedures.applyDefaults(5, 0.75)
}

func (s *SourceDefaults) applyDefaults(topK int, threshold float64) {
	if s.TopK <= 0 {
		s.TopK = topK
	}
	if s.SimilarityThreshold == nil {
		s.SimilarityThreshold = &threshold
	}
	if s.KeywordFallback == nil {
		s.KeywordFallback = ptr(true)
	}
	if s.KeywordBoost == nil {
		s.KeywordBoost = ptr(true)
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return errors.New("database.addrs is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Reranker.Enabled && c.Reranker.URL == "" {
		return errors.New("reranker.url is required when the reranker is enabled")
	}
	if c.Reranker.RatePerSec < 0 {
		return fmt.Errorf("reranker.rate_per_sec must not be negative, got %v", c.Reranker.RatePerSec)
	}

	switch c.VectorIndex.Backend {
	case BackendRedis:
	case BackendQdrant:
		if c.VectorIndex.Qdrant.Host == "" {
			return errors.New("vector_index.qdrant.host is required for the qdrant backend")
		}
	default:
		return fmt.Errorf("vector_index.backend must be %q or %q, got %q",
			BackendRedis, BackendQdrant, c.VectorIndex.Backend)
	}

	for name, s := range map[string]SourceDefaults{
		"knowledge": c.Retrieval.Knowledge, "procedures": c.Retrieval.Procedures,
	} {
		if s.TopK > query.MaxTopK {
			return fmt.Errorf("retrieval.%s.top_k must be at most %d, got %d", name, query.MaxTopK, s.TopK)
		}
		if t := s.SimilarityThreshold; t != nil && (*t < 0 || *t > 1) {
			return fmt.Errorf("retrieval.%s.similarity_threshold must be between 0 and 1, got %v", name, *t)
		}
	}

	r := c.RankingConfig()
	if err := r.Validate(); err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	return nil
}

// Timeouts returns the embedding, index and rerank call bounds.
func (c *Config) Timeouts() (embedding, index, rerank time.Duration) {
	return time.Duration(c.Embedding.TimeoutMs) * time.Millisecond,
		time.Duration(c.Retrieval.IndexTimeoutMs) * time.Millisecond,
		time.Duration(c.Reranker.TimeoutMs) * time.Millisecond
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

func ptr[T any](v T) *T { return &v }
