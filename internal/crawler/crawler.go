// Package crawler implements a bounded, polite, cycle-safe breadth-first
// website crawler.
//
// A crawl run is sequential: one fetch at a time, with a fixed inter-request
// delay after every attempt. The visited set and work queue live on the run,
// so independent runs share no mutable state and may execute concurrently.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/ferret0/ferret/internal/security"
)

var (
	// ErrInvalidSeed indicates a malformed or disallowed seed URL.
	// Returned before any network activity.
	ErrInvalidSeed = errors.New("invalid seed URL")

	// ErrInvalidBudget indicates a non-positive page budget or negative depth.
	ErrInvalidBudget = errors.New("invalid crawl budget")
)

// maxBodyBytes caps how much of a response body is read. Pages larger than
// this are truncated, not rejected.
const maxBodyBytes = 10 << 20

// Engine crawls websites. Safe for concurrent use; per-run state is scoped
// to each Crawl call.
type Engine struct {
	client    *http.Client
	validator *security.URL
	limiter   *rate.Limiter
	userAgent string
	logger    *slog.Logger
}

// Config carries crawl engine construction parameters.
type Config struct {
	// Delay is the pause enforced between consecutive fetch attempts.
	Delay time.Duration
	// Timeout bounds a single page fetch.
	Timeout time.Duration
	// UserAgent identifies the crawler to origin servers.
	UserAgent string
	// Validator screens every fetch target. When nil a default
	// deny-private-networks validator is used.
	Validator *security.URL
}

// New creates an Engine.
func New(cfg Config, logger *slog.Logger) *Engine {
	if cfg.Delay <= 0 {
		cfg.Delay = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ferret-crawler/1.0"
	}
	if cfg.Validator == nil {
		cfg.Validator = security.NewURL()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		client: &http.Client{
			Timeout:       cfg.Timeout,
			Transport:     cfg.Validator.SafeTransport(),
			CheckRedirect: cfg.Validator.CheckRedirect,
		},
		validator: cfg.Validator,
		limiter:   rate.NewLimiter(rate.Every(cfg.Delay), 1),
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// Crawl walks the site at seed breadth-first and returns the pages it could
// fetch and extract, in BFS level order.
//
// Only links on the seed's hostname are followed; cross-domain links appear
// in Page.Links but are never fetched. Per-page fetch failures are logged and
// skipped, never escalated.
func (e *Engine) Crawl(ctx context.Context, seed string, budget Budget, filters Filters) ([]Page, error) {
	seedURL, err := url.Parse(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if seedURL.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing hostname in %q", ErrInvalidSeed, seed)
	}
	if err := e.validator.Validate(seed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if budget.MaxPages < 1 {
		return nil, fmt.Errorf("%w: max pages must be positive, got %d", ErrInvalidBudget, budget.MaxPages)
	}
	if budget.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: max depth must be non-negative, got %d", ErrInvalidBudget, budget.MaxDepth)
	}

	host := seedURL.Hostname()
	visited := make(map[string]struct{})
	queue := []task{{url: seedURL.String(), depth: 0}}
	var pages []Page

	e.logger.Info("crawl started",
		"seed", seedURL.String(),
		"max_depth", budget.MaxDepth,
		"max_pages", budget.MaxPages)

	for len(queue) > 0 && len(pages) < budget.MaxPages {
		t := queue[0]
		queue = queue[1:]

		if _, done := visited[t.url]; done {
			continue
		}
		if t.depth > budget.MaxDepth {
			continue
		}
		if !filters.allow(t.url) {
			continue
		}

		// Mark before fetching so a slow page cannot be re-queued.
		visited[t.url] = struct{}{}

		if err := e.limiter.Wait(ctx); err != nil {
			return pages, fmt.Errorf("crawl interrupted: %w", err)
		}

		page, err := e.fetchPage(ctx, t)
		if err != nil {
			e.logger.Warn("page skipped", "url", t.url, "depth", t.depth, "error", err)
			continue
		}

		pages = append(pages, page)

		if t.depth < budget.MaxDepth {
			for _, link := range page.Links {
				if sameHost(link, host) {
					queue = append(queue, task{url: link, depth: t.depth + 1})
				}
			}
		}
	}

	e.logger.Info("crawl finished", "seed", seedURL.String(), "pages", len(pages))
	return pages, nil
}

// fetchPage fetches one URL and extracts it. Errors here are per-page and
// never abort the crawl.
func (e *Engine) fetchPage(ctx context.Context, t task) (Page, error) {
	if err := e.validator.Validate(t.url); err != nil {
		return Page{}, fmt.Errorf("validating target: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetching: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return Page{}, fmt.Errorf("unsupported content type %q", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("reading body: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return Page{}, fmt.Errorf("parsing HTML: %w", err)
	}

	// The request may have been redirected; extract relative to the final URL.
	base := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}

	page := extractPage(doc, base, string(body), t.depth)
	page.FetchedAt = time.Now().UTC()
	return page, nil
}

// allow applies exclude-then-include substring filtering.
func (f Filters) allow(rawURL string) bool {
	for _, sub := range f.Exclude {
		if sub != "" && strings.Contains(rawURL, sub) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, sub := range f.Include {
		if sub != "" && strings.Contains(rawURL, sub) {
			return true
		}
	}
	return false
}

func sameHost(rawURL, host string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), host)
}
