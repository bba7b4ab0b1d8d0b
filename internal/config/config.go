// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.ferret/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Embedder: provider selection (ollama or gemini), model, dimensions
//   - Storage: PostgreSQL connection (see storage.go)
//   - Crawler: politeness delay, fetch timeout, user agent
//   - Retrieval: query defaults and cache TTL
//
// Sensitive data (the database password) is masked in MarshalJSON/String.
// Validation uses sentinel errors so callers can branch with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid embedding provider")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidVectorDim indicates the embedding dimensionality is out of range.
	ErrInvalidVectorDim = errors.New("invalid vector dimensions")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidCrawlDelay indicates the crawl delay is out of range.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay")

	// ErrInvalidCrawlTimeout indicates the crawl fetch timeout is out of range.
	ErrInvalidCrawlTimeout = errors.New("invalid crawl timeout")

	// ErrInvalidTopK indicates the default topK is out of range.
	ErrInvalidTopK = errors.New("invalid top k")

	// ErrInvalidThreshold indicates the similarity threshold is out of [0,1].
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidCacheTTL indicates the result cache TTL is negative.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")
)

// Embedding provider identifiers used in Config.Provider.
const (
	// ProviderOllama runs embeddings against a local Ollama server.
	ProviderOllama = "ollama"

	// ProviderGemini uses the hosted Google AI embedding API.
	ProviderGemini = "gemini"
)

const (
	// DefaultGeminiEmbedderModel is the hosted embedder used when no model is
	// configured. gemini-embedding-001 supports truncation to 768 dimensions,
	// matching the pgvector schema in db/migrations.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultOllamaEmbedderModel is the local embedder default.
	DefaultOllamaEmbedderModel = "nomic-embed-text"

	// DefaultVectorDim is the embedding dimensionality of the corpus. Every
	// document in one store must share this value.
	DefaultVectorDim = 768
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Embedding provider configuration
	Provider      string `mapstructure:"provider" json:"provider"` // "gemini" (default) or "ollama"
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	OllamaHost    string `mapstructure:"ollama_host" json:"ollama_host"`
	VectorDim     int    `mapstructure:"vector_dim" json:"vector_dim"`
	EmbedBatch    int    `mapstructure:"embed_batch" json:"embed_batch"` // per-call ceiling for batch embedding

	// Storage configuration (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Crawler configuration
	Crawler CrawlerConfig `mapstructure:"crawler" json:"crawler"`

	// Retrieval configuration
	Retrieval RetrievalConfig `mapstructure:"retrieval" json:"retrieval"`
}

// CrawlerConfig holds crawl engine knobs. Budgets (maxDepth/maxPages) are
// per-invocation arguments, not configuration.
type CrawlerConfig struct {
	DelayMs   int    `mapstructure:"delay_ms" json:"delay_ms"`     // fixed inter-request delay
	TimeoutMs int    `mapstructure:"timeout_ms" json:"timeout_ms"` // per-fetch timeout
	UserAgent string `mapstructure:"user_agent" json:"user_agent"`
}

// Delay returns the politeness delay as a duration.
func (c CrawlerConfig) Delay() time.Duration { return time.Duration(c.DelayMs) * time.Millisecond }

// Timeout returns the per-fetch timeout as a duration.
func (c CrawlerConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMs) * time.Millisecond }

// RetrievalConfig holds query-path defaults and the result cache TTL.
type RetrievalConfig struct {
	TopK                int     `mapstructure:"top_k" json:"top_k"`
	SimilarityThreshold float32 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	CacheTTLSeconds     int     `mapstructure:"cache_ttl_seconds" json:"cache_ttl_seconds"`
}

// CacheTTL returns the result cache TTL as a duration.
func (c RetrievalConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".ferret")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // also support current directory

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail fast: a Config that leaves Load is always valid.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("embedder_model", "")
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("vector_dim", DefaultVectorDim)
	v.SetDefault("embed_batch", 32)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "ferret")
	v.SetDefault("postgres_password", "ferret_dev_password")
	v.SetDefault("postgres_db_name", "ferret")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("crawler.delay_ms", 500)
	v.SetDefault("crawler.timeout_ms", 15000)
	v.SetDefault("crawler.user_agent", "ferret-crawler/1.0")

	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.similarity_threshold", 0.7)
	v.SetDefault("retrieval.cache_ttl_seconds", 300)
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by the Genkit plugin, not via viper.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "FERRET_PROVIDER")
	mustBind("embedder_model", "FERRET_EMBEDDER_MODEL")
	mustBind("ollama_host", "FERRET_OLLAMA_HOST")
	mustBind("crawler.user_agent", "FERRET_USER_AGENT")
}

// DefaultEmbedderModel resolves the embedder model, falling back to the
// provider's default when unset.
func (c *Config) DefaultEmbedderModel() string {
	if c.EmbedderModel != "" {
		return c.EmbedderModel
	}
	if c.Provider == ProviderOllama {
		return DefaultOllamaEmbedderModel
	}
	return DefaultGeminiEmbedderModel
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully masked;
// longer ones keep the first and last two characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
