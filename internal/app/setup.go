package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/ferret0/ferret/db"
	"github.com/ferret0/ferret/internal/cache"
	"github.com/ferret0/ferret/internal/config"
	"github.com/ferret0/ferret/internal/crawler"
	"github.com/ferret0/ferret/internal/embed"
	"github.com/ferret0/ferret/internal/log"
	"github.com/ferret0/ferret/internal/retrieval"
	"github.com/ferret0/ferret/internal/store"
)

// Setup creates and initializes the application. On failure everything
// already initialized is released; on success the caller owns Close.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.New(log.Config{})
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, embedder, err := provideEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = embedder

	provider, err := embed.NewGenkit(embedder, cfg.EmbedBatch, logger)
	if err != nil {
		return nil, err
	}
	a.Provider = provider

	st, err := store.New(pool, cfg.VectorDim, logger)
	if err != nil {
		return nil, err
	}
	a.Store = st

	a.Cache = cache.NewTTL[retrieval.Result](cfg.Retrieval.CacheTTL(), logger)

	a.Crawler = crawler.New(crawler.Config{
		Delay:     cfg.Crawler.Delay(),
		Timeout:   cfg.Crawler.Timeout(),
		UserAgent: cfg.Crawler.UserAgent,
	}, logger)

	pipeline, err := retrieval.New(st, provider, a.Cache, a.Crawler, logger)
	if err != nil {
		return nil, err
	}
	a.Pipeline = pipeline

	return a, nil
}

// QueryOptions resolves the configured query defaults.
func (a *App) QueryOptions() retrieval.Options {
	opts := retrieval.DefaultOptions()
	if a.Config.Retrieval.TopK > 0 {
		opts.TopK = a.Config.Retrieval.TopK
	}
	opts.SimilarityThreshold = a.Config.Retrieval.SimilarityThreshold
	return opts
}

// provideDBPool runs migrations and creates the connection pool. pgvector
// types are registered on every new connection.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideEmbedder initializes Genkit with the configured provider plugin and
// returns the registered embedder. The provider is chosen here, once; nothing
// downstream branches on it again.
func provideEmbedder(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, ai.Embedder, error) {
	model := cfg.DefaultEmbedderModel()

	var (
		g        *genkit.Genkit
		embedder ai.Embedder
	)

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit registration (no auto-discovery).
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, model, nil)
		embedder = ollama.Embedder(g, cfg.OllamaHost)
		logger.Info("initialized ollama embedder", "model", model, "host", cfg.OllamaHost)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		embedder = googlegenai.GoogleAIEmbedder(g, model)
		logger.Info("initialized gemini embedder", "model", model)
	}

	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder %q not found for provider %q", model, cfg.Provider)
	}

	return g, embedder, nil
}
