package config

import (
	"errors"
	"strings"
	"testing"
)

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	return &Config{
		Provider:         ProviderGemini,
		EmbedderModel:    DefaultGeminiEmbedderModel,
		OllamaHost:       "http://localhost:11434",
		VectorDim:        DefaultVectorDim,
		EmbedBatch:       32,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "ferret",
		PostgresPassword: "secret-password-123",
		PostgresDBName:   "ferret",
		PostgresSSLMode:  "disable",
		Crawler: CrawlerConfig{
			DelayMs:   500,
			TimeoutMs: 15000,
			UserAgent: "ferret-crawler/1.0",
		},
		Retrieval: RetrievalConfig{
			TopK:                5,
			SimilarityThreshold: 0.7,
			CacheTTLSeconds:     300,
		},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "anthropic" },
			wantErr: ErrInvalidProvider,
		},
		{
			name: "ollama host without scheme",
			mutate: func(c *Config) {
				c.Provider = ProviderOllama
				c.OllamaHost = "localhost:11434"
			},
			wantErr: ErrInvalidOllamaHost,
		},
		{
			name:    "zero vector dims",
			mutate:  func(c *Config) { c.VectorDim = 0 },
			wantErr: ErrInvalidVectorDim,
		},
		{
			name:    "oversized vector dims",
			mutate:  func(c *Config) { c.VectorDim = 20000 },
			wantErr: ErrInvalidVectorDim,
		},
		{
			name:    "empty postgres host",
			mutate:  func(c *Config) { c.PostgresHost = "  " },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "empty db name",
			mutate:  func(c *Config) { c.PostgresDBName = "" },
			wantErr: ErrInvalidPostgresDBName,
		},
		{
			name:    "bogus sslmode",
			mutate:  func(c *Config) { c.PostgresSSLMode = "sometimes" },
			wantErr: ErrInvalidPostgresSSLMode,
		},
		{
			name:    "negative crawl delay",
			mutate:  func(c *Config) { c.Crawler.DelayMs = -1 },
			wantErr: ErrInvalidCrawlDelay,
		},
		{
			name:    "tiny crawl timeout",
			mutate:  func(c *Config) { c.Crawler.TimeoutMs = 10 },
			wantErr: ErrInvalidCrawlTimeout,
		},
		{
			name:    "zero topK",
			mutate:  func(c *Config) { c.Retrieval.TopK = 0 },
			wantErr: ErrInvalidTopK,
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Retrieval.SimilarityThreshold = 1.5 },
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "negative cache TTL",
			mutate:  func(c *Config) { c.Retrieval.CacheTTLSeconds = -5 },
			wantErr: ErrInvalidCacheTTL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want errors.Is(%v)", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() = %v, want ErrConfigNil", err)
	}
}

func TestDefaultEmbedderModel(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		want     string
	}{
		{"explicit model wins", ProviderGemini, "text-embedding-004", "text-embedding-004"},
		{"gemini default", ProviderGemini, "", DefaultGeminiEmbedderModel},
		{"ollama default", ProviderOllama, "", DefaultOllamaEmbedderModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Provider = tt.provider
			cfg.EmbedderModel = tt.model
			if got := cfg.DefaultEmbedderModel(); got != tt.want {
				t.Errorf("DefaultEmbedderModel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStringMasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super-secret-value"

	out := cfg.String()
	if strings.Contains(out, "super-secret-value") {
		t.Errorf("String() leaked the password: %s", out)
	}
	if !strings.Contains(out, maskedValue) {
		t.Errorf("String() should contain the mask placeholder: %s", out)
	}
}

func TestMaskSecretShortValuesFullyMasked(t *testing.T) {
	for _, s := range []string{"a", "12345678"} {
		if got := maskSecret(s); got != maskedValue {
			t.Errorf("maskSecret(%q) = %q, want fully masked", s, got)
		}
	}
	if got := maskSecret(""); got != "" {
		t.Errorf("maskSecret(\"\") = %q, want empty", got)
	}
}

func TestPostgresURLEncodesCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresUser = "user@host"
	cfg.PostgresPassword = "p@ss/word"

	u := cfg.PostgresURL()
	if !strings.HasPrefix(u, "postgres://") {
		t.Errorf("PostgresURL() = %q, want postgres:// scheme", u)
	}
	if strings.Contains(u, "p@ss/word") {
		t.Errorf("PostgresURL() should percent-encode the password: %q", u)
	}
}

func TestPostgresConnectionStringQuotesPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "has space 'quote'"

	dsn := cfg.PostgresConnectionString()
	if !strings.Contains(dsn, `password='has space \'quote\''`) {
		t.Errorf("DSN should quote the password, got %q", dsn)
	}
}
