package retrieval

import (
	"context"

	"github.com/ferret0/ferret/internal/crawler"
	"github.com/ferret0/ferret/internal/store"
)

// VectorStore is the persistence capability the pipeline depends on.
// *store.Store satisfies it.
type VectorStore interface {
	Insert(ctx context.Context, doc store.Document, embedding []float32) (string, error)
	InsertBatch(ctx context.Context, docs []store.Document, embeddings [][]float32) ([]string, error)
	NearestNeighbors(ctx context.Context, embedding []float32, k int, minSimilarity float32) ([]store.Match, error)
}

// Embedder turns text into vectors. *embed.Genkit satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ResultCache short-circuits repeat queries. *cache.TTL[Result] satisfies it.
// A nil ResultCache on the pipeline means every query is a miss.
type ResultCache interface {
	Get(key string) (Result, bool)
	Set(key string, value Result)
}

// Crawler produces pages for website indexing. *crawler.Engine satisfies it.
type Crawler interface {
	Crawl(ctx context.Context, seed string, budget crawler.Budget, filters crawler.Filters) ([]crawler.Page, error)
}

// Options tune a single query.
type Options struct {
	// TopK is the maximum number of matches to retrieve. Must be positive.
	TopK int
	// SimilarityThreshold excludes matches with lower cosine similarity.
	// Must be in [0,1].
	SimilarityThreshold float32
	// IncludeMetadata controls whether match metadata is carried in the
	// result.
	IncludeMetadata bool
}

// DefaultOptions returns the standard query options.
func DefaultOptions() Options {
	return Options{
		TopK:                5,
		SimilarityThreshold: 0.7,
		IncludeMetadata:     true,
	}
}

// Result is an answered retrieval query.
type Result struct {
	Query string
	// Context is the matched contents joined in rank order, each entry
	// rendered as "[i] content [Source: url]".
	Context string
	// Citations are the distinct source URLs of the matches, first-seen
	// order preserved.
	Citations []string
	// Matches are the raw ranked matches behind the context.
	Matches []store.Match
	// AverageSimilarity is the mean match similarity, 0 when no matches.
	AverageSimilarity float32
}

// DocumentInput is caller-supplied content for ingestion.
type DocumentInput struct {
	Content   string
	Metadata  map[string]any
	SourceURL string
}

// IndexReport summarizes one indexWebsite run.
type IndexReport struct {
	DocumentIDs []string
	PageCount   int
}
