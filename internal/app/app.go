// Package app wires configuration, storage, embedding, crawling, and the
// retrieval pipeline into one application container.
//
// Every component is constructed exactly once in Setup and passed by
// reference; there are no process-wide singletons and no component is
// reachable before it is fully initialized.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ferret0/ferret/internal/cache"
	"github.com/ferret0/ferret/internal/config"
	"github.com/ferret0/ferret/internal/crawler"
	"github.com/ferret0/ferret/internal/embed"
	"github.com/ferret0/ferret/internal/log"
	"github.com/ferret0/ferret/internal/retrieval"
	"github.com/ferret0/ferret/internal/store"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Store    *store.Store
	Provider *embed.Genkit
	Cache    *cache.TTL[retrieval.Result]
	Crawler  *crawler.Engine
	Pipeline *retrieval.Pipeline
}

// Close releases all resources. Safe to call on a partially-built App.
func (a *App) Close() error {
	if a.Cache != nil {
		a.Cache.Stop()
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Debug("database pool closed")
	}
	return nil
}
