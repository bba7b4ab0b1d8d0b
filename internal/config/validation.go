package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validSSLModes are the sslmode values accepted by libpq/pgx.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks the configuration for correctness.
// Returns a wrapped sentinel error for the first violation found, so callers
// can branch with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if err := c.validateEmbedder(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateCrawler(); err != nil {
		return err
	}
	return c.validateRetrieval()
}

func (c *Config) validateEmbedder() error {
	switch c.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}

	if c.Provider == ProviderOllama {
		u, err := url.Parse(c.OllamaHost)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q (expected URL like http://localhost:11434)",
				ErrInvalidOllamaHost, c.OllamaHost)
		}
	}

	// The model itself may be empty (provider default applies), but an
	// explicit value must not be only whitespace.
	if c.EmbedderModel != "" && strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: blank model name", ErrInvalidEmbedderModel)
	}

	// pgvector supports up to 16000 dimensions for the vector type.
	if c.VectorDim < 1 || c.VectorDim > 16000 {
		return fmt.Errorf("%w: %d (expected 1..16000)", ErrInvalidVectorDim, c.VectorDim)
	}

	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (expected 1..65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: empty database name", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}

func (c *Config) validateCrawler() error {
	// Zero delay is allowed for tests against local fixtures; an hour-plus
	// delay is almost certainly a unit mistake (ms vs s).
	if c.Crawler.DelayMs < 0 || c.Crawler.DelayMs > 60_000 {
		return fmt.Errorf("%w: %dms (expected 0..60000)", ErrInvalidCrawlDelay, c.Crawler.DelayMs)
	}
	if c.Crawler.TimeoutMs < 100 || c.Crawler.TimeoutMs > 300_000 {
		return fmt.Errorf("%w: %dms (expected 100..300000)", ErrInvalidCrawlTimeout, c.Crawler.TimeoutMs)
	}
	return nil
}

func (c *Config) validateRetrieval() error {
	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 100 {
		return fmt.Errorf("%w: %d (expected 1..100)", ErrInvalidTopK, c.Retrieval.TopK)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: %v (expected 0..1)", ErrInvalidThreshold, c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.CacheTTLSeconds < 0 {
		return fmt.Errorf("%w: %ds", ErrInvalidCacheTTL, c.Retrieval.CacheTTLSeconds)
	}
	return nil
}
