package retrieval

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/ferret0/ferret/internal/crawler"
	"github.com/ferret0/ferret/internal/log"
	"github.com/ferret0/ferret/internal/store"
)

// fakeStore implements VectorStore in memory.
type fakeStore struct {
	matches    []store.Match // returned by NearestNeighbors
	searchErr  error
	insertErr  error
	nextID     int
	inserted   []store.Document
	lastK      int
	lastMinSim float32
}

func (f *fakeStore) Insert(ctx context.Context, doc store.Document, embedding []float32) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.nextID++
	f.inserted = append(f.inserted, doc)
	return fmt.Sprintf("id-%d", f.nextID), nil
}

func (f *fakeStore) InsertBatch(ctx context.Context, docs []store.Document, embeddings [][]float32) ([]string, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		f.nextID++
		f.inserted = append(f.inserted, doc)
		ids[i] = fmt.Sprintf("id-%d", f.nextID)
	}
	return ids, nil
}

func (f *fakeStore) NearestNeighbors(ctx context.Context, embedding []float32, k int, minSimilarity float32) ([]store.Match, error) {
	f.lastK = k
	f.lastMinSim = minSimilarity
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches, nil
}

// fakeEmbedder implements Embedder with deterministic vectors.
type fakeEmbedder struct {
	embedErr error
	calls    int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

// fakeCache implements ResultCache in a plain map, no TTL.
type fakeCache struct {
	entries map[string]Result
	sets    int
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]Result{}} }

func (f *fakeCache) Get(key string) (Result, bool) {
	r, ok := f.entries[key]
	return r, ok
}

func (f *fakeCache) Set(key string, value Result) {
	f.sets++
	f.entries[key] = value
}

// fakeCrawler implements Crawler.
type fakeCrawler struct {
	pages    []crawler.Page
	crawlErr error
}

func (f *fakeCrawler) Crawl(ctx context.Context, seed string, budget crawler.Budget, filters crawler.Filters) ([]crawler.Page, error) {
	if f.crawlErr != nil {
		return nil, f.crawlErr
	}
	return f.pages, nil
}

func newTestPipeline(t *testing.T, st *fakeStore, emb *fakeEmbedder, c ResultCache, cr Crawler) *Pipeline {
	t.Helper()
	p, err := New(st, emb, c, cr, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func match(content, sourceURL string, similarity float32) store.Match {
	return store.Match{
		Document:   store.Document{Content: content, SourceURL: sourceURL, Metadata: map[string]any{"k": "v"}},
		Similarity: similarity,
		Distance:   1 - similarity,
	}
}

func TestQueryRejectsEmptyText(t *testing.T) {
	emb := &fakeEmbedder{}
	p := newTestPipeline(t, &fakeStore{}, emb, nil, nil)

	for _, text := range []string{"", "   "} {
		if _, err := p.Query(context.Background(), text, DefaultOptions()); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("Query(%q) = %v, want ErrEmptyQuery", text, err)
		}
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times for empty query, want 0", emb.calls)
	}
}

func TestQueryRejectsBadOptions(t *testing.T) {
	p := newTestPipeline(t, &fakeStore{}, &fakeEmbedder{}, nil, nil)

	bad := []Options{
		{TopK: 0, SimilarityThreshold: 0.5},
		{TopK: -1, SimilarityThreshold: 0.5},
		{TopK: 5, SimilarityThreshold: -0.1},
		{TopK: 5, SimilarityThreshold: 1.5},
	}
	for _, opts := range bad {
		if _, err := p.Query(context.Background(), "q", opts); !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("Query with %+v = %v, want ErrInvalidOptions", opts, err)
		}
	}
}

func TestQueryAssemblesContextAndCitations(t *testing.T) {
	st := &fakeStore{matches: []store.Match{
		match("First doc.", "https://a.test/1", 0.9),
		match("Second doc.", "https://a.test/1", 0.8), // same source as first
		match("Third doc.", "", 0.7),                  // no source
	}}
	p := newTestPipeline(t, st, &fakeEmbedder{}, nil, nil)

	result, err := p.Query(context.Background(), "question", DefaultOptions())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	wantContext := "[1] First doc. [Source: https://a.test/1]\n\n" +
		"[2] Second doc. [Source: https://a.test/1]\n\n" +
		"[3] Third doc."
	if result.Context != wantContext {
		t.Errorf("Context = %q, want %q", result.Context, wantContext)
	}
	if !reflect.DeepEqual(result.Citations, []string{"https://a.test/1"}) {
		t.Errorf("Citations = %v, want single deduplicated source", result.Citations)
	}

	wantAvg := float32(0.9+0.8+0.7) / 3
	if diff := result.AverageSimilarity - wantAvg; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("AverageSimilarity = %v, want %v", result.AverageSimilarity, wantAvg)
	}
}

func TestQueryNoMatchesYieldsZeroAverage(t *testing.T) {
	p := newTestPipeline(t, &fakeStore{}, &fakeEmbedder{}, nil, nil)

	result, err := p.Query(context.Background(), "question", DefaultOptions())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.AverageSimilarity != 0 {
		t.Errorf("AverageSimilarity = %v, want 0", result.AverageSimilarity)
	}
	if result.Context != "" || len(result.Citations) != 0 {
		t.Errorf("empty result carries context %q citations %v", result.Context, result.Citations)
	}
}

func TestQueryPassesOptionsToStore(t *testing.T) {
	st := &fakeStore{}
	p := newTestPipeline(t, st, &fakeEmbedder{}, nil, nil)

	opts := Options{TopK: 7, SimilarityThreshold: 0.25}
	if _, err := p.Query(context.Background(), "q", opts); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if st.lastK != 7 || st.lastMinSim != 0.25 {
		t.Errorf("store saw (k=%d, min=%v), want (7, 0.25)", st.lastK, st.lastMinSim)
	}
}

func TestQueryStripsMetadataWhenExcluded(t *testing.T) {
	st := &fakeStore{matches: []store.Match{match("Doc.", "https://a.test/", 0.9)}}
	p := newTestPipeline(t, st, &fakeEmbedder{}, nil, nil)

	opts := DefaultOptions()
	opts.IncludeMetadata = false
	result, err := p.Query(context.Background(), "q", opts)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Matches[0].Document.Metadata != nil {
		t.Errorf("Metadata = %v, want nil", result.Matches[0].Document.Metadata)
	}
}

func TestQueryCacheHitSkipsEmbedAndSearch(t *testing.T) {
	st := &fakeStore{matches: []store.Match{match("Doc.", "https://a.test/", 0.9)}}
	emb := &fakeEmbedder{}
	c := newFakeCache()
	p := newTestPipeline(t, st, emb, c, nil)

	first, err := p.Query(context.Background(), "question", DefaultOptions())
	if err != nil {
		t.Fatalf("first Query: %v", err)
	}
	if emb.calls != 1 || c.sets != 1 {
		t.Fatalf("after miss: embed calls = %d, cache sets = %d; want 1, 1", emb.calls, c.sets)
	}

	// Second call differs only in threshold; the key ignores it, so the
	// cached result comes back unchanged.
	opts := DefaultOptions()
	opts.SimilarityThreshold = 0.1
	second, err := p.Query(context.Background(), "question", opts)
	if err != nil {
		t.Fatalf("second Query: %v", err)
	}
	if emb.calls != 1 {
		t.Errorf("embedder called on cache hit: %d calls", emb.calls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached result differs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestQueryCacheKeyVariesWithTopK(t *testing.T) {
	if CacheKey("q", 5) == CacheKey("q", 6) {
		t.Error("cache key identical across topK values")
	}
	if CacheKey("a", 5) == CacheKey("b", 5) {
		t.Error("cache key identical across query texts")
	}
	if CacheKey("q", 5) != CacheKey("q", 5) {
		t.Error("cache key not deterministic")
	}
}

func TestQueryEmbedErrorPropagates(t *testing.T) {
	emb := &fakeEmbedder{embedErr: errors.New("provider down")}
	p := newTestPipeline(t, &fakeStore{}, emb, nil, nil)

	_, err := p.Query(context.Background(), "q", DefaultOptions())
	if err == nil || !strings.Contains(err.Error(), "provider down") {
		t.Errorf("Query = %v, want wrapped provider error", err)
	}
}

func TestAddDocumentRejectsEmptyContentBeforeEmbedding(t *testing.T) {
	emb := &fakeEmbedder{}
	p := newTestPipeline(t, &fakeStore{}, emb, nil, nil)

	_, err := p.AddDocument(context.Background(), DocumentInput{Content: ""})
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("AddDocument = %v, want ErrEmptyContent", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times, want 0", emb.calls)
	}
}

func TestAddDocumentReturnsIDOnSuccess(t *testing.T) {
	st := &fakeStore{}
	p := newTestPipeline(t, st, &fakeEmbedder{}, nil, nil)

	id, err := p.AddDocument(context.Background(), DocumentInput{
		Content:   "some content",
		SourceURL: "https://a.test/",
	})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if id == "" {
		t.Error("empty id on success")
	}
	if len(st.inserted) != 1 || st.inserted[0].SourceURL != "https://a.test/" {
		t.Errorf("inserted = %+v, want one document with source URL", st.inserted)
	}
}

func TestAddDocumentsReturnsIDsInOrder(t *testing.T) {
	st := &fakeStore{}
	p := newTestPipeline(t, st, &fakeEmbedder{}, nil, nil)

	inputs := []DocumentInput{
		{Content: "first"},
		{Content: "second"},
		{Content: "third"},
	}
	ids, err := p.AddDocuments(context.Background(), inputs)
	if err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"id-1", "id-2", "id-3"}) {
		t.Errorf("ids = %v, want id-1..id-3 in input order", ids)
	}
	for i, input := range inputs {
		if st.inserted[i].Content != input.Content {
			t.Errorf("inserted[%d].Content = %q, want %q", i, st.inserted[i].Content, input.Content)
		}
	}
}

func TestAddDocumentsAbortsOnEmbedFailure(t *testing.T) {
	st := &fakeStore{}
	emb := &fakeEmbedder{embedErr: errors.New("provider down")}
	p := newTestPipeline(t, st, emb, nil, nil)

	ids, err := p.AddDocuments(context.Background(), []DocumentInput{{Content: "a"}, {Content: "b"}})
	if err == nil {
		t.Fatal("AddDocuments = nil error, want failure")
	}
	if ids != nil {
		t.Errorf("ids = %v, want nil on abort", ids)
	}
	if len(st.inserted) != 0 {
		t.Errorf("%d documents inserted despite embed failure, want 0", len(st.inserted))
	}
}

func TestAddDocumentsRejectsAnyEmptyContent(t *testing.T) {
	emb := &fakeEmbedder{}
	p := newTestPipeline(t, &fakeStore{}, emb, nil, nil)

	_, err := p.AddDocuments(context.Background(), []DocumentInput{
		{Content: "fine"},
		{Content: "  "},
	})
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("AddDocuments = %v, want ErrEmptyContent", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times, want 0", emb.calls)
	}
}

func TestAddDocumentsEmptyBatch(t *testing.T) {
	p := newTestPipeline(t, &fakeStore{}, &fakeEmbedder{}, nil, nil)

	ids, err := p.AddDocuments(context.Background(), nil)
	if err != nil {
		t.Fatalf("AddDocuments(nil): %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want none", ids)
	}
}

func TestIndexWebsiteMapsPagesToDocuments(t *testing.T) {
	st := &fakeStore{}
	cr := &fakeCrawler{pages: []crawler.Page{
		{
			URL:      "https://a.test/",
			Title:    "Home",
			Content:  "Welcome text.",
			Metadata: map[string]string{"description": "A site."},
		},
		{URL: "https://a.test/docs", Title: "Docs", Content: "Doc text.", Depth: 1},
	}}
	p := newTestPipeline(t, st, &fakeEmbedder{}, nil, cr)

	report, err := p.IndexWebsite(context.Background(), "https://a.test/",
		crawler.Budget{MaxDepth: 1, MaxPages: 10}, crawler.Filters{})
	if err != nil {
		t.Fatalf("IndexWebsite: %v", err)
	}

	if report.PageCount != 2 || len(report.DocumentIDs) != 2 {
		t.Fatalf("report = %+v, want 2 pages and 2 ids", report)
	}

	doc := st.inserted[0]
	if doc.Content != "Home\n\nWelcome text." {
		t.Errorf("Content = %q, want title-prefixed body", doc.Content)
	}
	if doc.SourceURL != "https://a.test/" {
		t.Errorf("SourceURL = %q, want page URL", doc.SourceURL)
	}
	if doc.Metadata["title"] != "Home" || doc.Metadata["url"] != "https://a.test/" {
		t.Errorf("Metadata = %v, missing title/url", doc.Metadata)
	}
	if doc.Metadata["description"] != "A site." {
		t.Errorf("Metadata = %v, missing page metadata", doc.Metadata)
	}
}

func TestIndexWebsitePropagatesCrawlError(t *testing.T) {
	cr := &fakeCrawler{crawlErr: crawler.ErrInvalidSeed}
	p := newTestPipeline(t, &fakeStore{}, &fakeEmbedder{}, nil, cr)

	_, err := p.IndexWebsite(context.Background(), "://bad",
		crawler.Budget{MaxDepth: 1, MaxPages: 10}, crawler.Filters{})
	if !errors.Is(err, crawler.ErrInvalidSeed) {
		t.Errorf("IndexWebsite = %v, want ErrInvalidSeed", err)
	}
}

func TestIndexWebsiteNoPages(t *testing.T) {
	p := newTestPipeline(t, &fakeStore{}, &fakeEmbedder{}, nil, &fakeCrawler{})

	_, err := p.IndexWebsite(context.Background(), "https://a.test/",
		crawler.Budget{MaxDepth: 1, MaxPages: 10}, crawler.Filters{})
	if !errors.Is(err, ErrNoPages) {
		t.Errorf("IndexWebsite = %v, want ErrNoPages", err)
	}
}
