// Package retrieval orchestrates embedding, vector search, and caching into
// the two halves of the system: answering queries with ranked context and
// citations, and ingesting documents singly, in batches, or from a website
// crawl.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ferret0/ferret/internal/crawler"
	"github.com/ferret0/ferret/internal/store"
)

var (
	// ErrEmptyQuery indicates a query with no text. Rejected before any I/O.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrEmptyContent indicates a document input with no content.
	// Rejected before any embedding call.
	ErrEmptyContent = errors.New("document content is empty")

	// ErrInvalidOptions indicates out-of-range query options.
	ErrInvalidOptions = errors.New("invalid query options")

	// ErrNoPages indicates a crawl produced no usable pages.
	ErrNoPages = errors.New("crawl produced no pages")
)

// Pipeline answers retrieval queries and ingests documents. Operations are
// independent per call; the store and cache provide their own concurrency
// control, so Pipeline itself holds no locks.
type Pipeline struct {
	store    VectorStore
	embedder Embedder
	cache    ResultCache // nil disables caching
	crawler  Crawler     // nil disables IndexWebsite
	logger   *slog.Logger
}

// New creates a Pipeline. store and embedder are required; cache and crawl
// may be nil, degrading the corresponding feature.
func New(store VectorStore, embedder Embedder, cache ResultCache, crawl Crawler, logger *slog.Logger) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		store:    store,
		embedder: embedder,
		cache:    cache,
		crawler:  crawl,
		logger:   logger,
	}, nil
}

// CacheKey derives the cache key for a query. It is a pure function of the
// query text and topK.
//
// The similarity threshold is deliberately not part of the key: two queries
// differing only in threshold share an entry, and a warm cache returns the
// first result unchanged. Callers that need threshold-exact results must
// bypass the cache.
func CacheKey(text string, topK int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d", text, topK))
	return hex.EncodeToString(sum[:])
}

// Query retrieves the documents most similar to text and assembles them into
// a ranked context with citations.
//
// The flow is cache-aside: on a hit the stored result is returned unchanged;
// on a miss the pipeline embeds, searches, assembles, and stores the result
// best-effort before returning it.
func (p *Pipeline) Query(ctx context.Context, text string, opts Options) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyQuery
	}
	if opts.TopK < 1 {
		return Result{}, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidOptions, opts.TopK)
	}
	if opts.SimilarityThreshold < 0 || opts.SimilarityThreshold > 1 {
		return Result{}, fmt.Errorf("%w: similarity threshold must be in [0,1], got %v",
			ErrInvalidOptions, opts.SimilarityThreshold)
	}

	key := CacheKey(text, opts.TopK)
	if p.cache != nil {
		if cached, ok := p.cache.Get(key); ok {
			p.logger.Debug("query cache hit", "key", key)
			return cached, nil
		}
	}

	vector, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := p.store.NearestNeighbors(ctx, vector, opts.TopK, opts.SimilarityThreshold)
	if err != nil {
		return Result{}, fmt.Errorf("searching for %q: %w", text, err)
	}

	result := assembleResult(text, matches, opts.IncludeMetadata)

	if p.cache != nil {
		p.cache.Set(key, result)
	}

	p.logger.Debug("query answered",
		"matches", len(matches),
		"avg_similarity", result.AverageSimilarity)
	return result, nil
}

// AddDocument embeds one document and inserts it, returning the assigned id.
// The id is returned only when both steps succeed.
func (p *Pipeline) AddDocument(ctx context.Context, input DocumentInput) (string, error) {
	if strings.TrimSpace(input.Content) == "" {
		return "", ErrEmptyContent
	}

	vector, err := p.embedder.Embed(ctx, input.Content)
	if err != nil {
		return "", fmt.Errorf("embedding document: %w", err)
	}

	id, err := p.store.Insert(ctx, store.Document{
		Content:   input.Content,
		Metadata:  input.Metadata,
		SourceURL: input.SourceURL,
	}, vector)
	if err != nil {
		return "", fmt.Errorf("storing document: %w", err)
	}

	return id, nil
}

// AddDocuments ingests a batch, returning ids in input order. Any failure
// aborts the whole batch; no partial ids are returned and no partial rows
// remain visible.
func (p *Pipeline) AddDocuments(ctx context.Context, inputs []DocumentInput) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(inputs))
	for i, input := range inputs {
		if strings.TrimSpace(input.Content) == "" {
			return nil, fmt.Errorf("document %d: %w", i, ErrEmptyContent)
		}
		texts[i] = input.Content
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding batch: %w", err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("embedded %d of %d documents", len(vectors), len(inputs))
	}

	docs := make([]store.Document, len(inputs))
	for i, input := range inputs {
		docs[i] = store.Document{
			Content:   input.Content,
			Metadata:  input.Metadata,
			SourceURL: input.SourceURL,
		}
	}

	ids, err := p.store.InsertBatch(ctx, docs, vectors)
	if err != nil {
		return nil, fmt.Errorf("storing batch: %w", err)
	}

	p.logger.Info("ingested document batch", "count", len(ids))
	return ids, nil
}

// IndexWebsite crawls a site and ingests every extracted page as a document.
func (p *Pipeline) IndexWebsite(ctx context.Context, seed string, budget crawler.Budget, filters crawler.Filters) (IndexReport, error) {
	if p.crawler == nil {
		return IndexReport{}, fmt.Errorf("no crawler configured")
	}

	pages, err := p.crawler.Crawl(ctx, seed, budget, filters)
	if err != nil {
		return IndexReport{}, fmt.Errorf("crawling %s: %w", seed, err)
	}
	if len(pages) == 0 {
		return IndexReport{}, fmt.Errorf("%w: %s", ErrNoPages, seed)
	}

	inputs := make([]DocumentInput, 0, len(pages))
	for _, page := range pages {
		inputs = append(inputs, pageToInput(page))
	}

	ids, err := p.AddDocuments(ctx, inputs)
	if err != nil {
		return IndexReport{}, fmt.Errorf("indexing %s: %w", seed, err)
	}

	p.logger.Info("indexed website", "seed", seed, "pages", len(pages), "documents", len(ids))
	return IndexReport{DocumentIDs: ids, PageCount: len(pages)}, nil
}

// pageToInput maps a crawled page onto a document. The title leads the
// content so it contributes to the embedding.
func pageToInput(page crawler.Page) DocumentInput {
	content := page.Content
	if page.Title != "" {
		content = page.Title + "\n\n" + page.Content
	}

	metadata := map[string]any{
		"title": page.Title,
		"url":   page.URL,
		"depth": page.Depth,
	}
	for k, v := range page.Metadata {
		metadata[k] = v
	}
	if !page.FetchedAt.IsZero() {
		metadata["fetched_at"] = page.FetchedAt.Format("2006-01-02T15:04:05Z07:00")
	}

	return DocumentInput{Content: content, Metadata: metadata, SourceURL: page.URL}
}

// assembleResult renders matches into the context/citations form.
func assembleResult(query string, matches []store.Match, includeMetadata bool) Result {
	result := Result{Query: query}

	var parts []string
	seen := make(map[string]struct{})
	var totalSimilarity float32

	for i, m := range matches {
		entry := fmt.Sprintf("[%d] %s", i+1, m.Document.Content)
		if m.Document.SourceURL != "" {
			entry += fmt.Sprintf(" [Source: %s]", m.Document.SourceURL)

			if _, dup := seen[m.Document.SourceURL]; !dup {
				seen[m.Document.SourceURL] = struct{}{}
				result.Citations = append(result.Citations, m.Document.SourceURL)
			}
		}
		parts = append(parts, entry)
		totalSimilarity += m.Similarity

		if !includeMetadata {
			m.Document.Metadata = nil
		}
		result.Matches = append(result.Matches, m)
	}

	result.Context = strings.Join(parts, "\n\n")
	if len(matches) > 0 {
		result.AverageSimilarity = totalSimilarity / float32(len(matches))
	}
	return result
}
