package crawler

import "time"

// Budget caps a crawl run. Both limits are hard ceilings: the engine never
// emits more than MaxPages pages and never fetches beyond MaxDepth link hops
// from the seed.
type Budget struct {
	MaxDepth int // 0 means seed page only
	MaxPages int // must be > 0
}

// Filters scope a crawl by URL substring match.
//
// Exclude wins: any match discards the URL. A non-empty Include list discards
// every URL that matches none of its entries; an empty Include list allows all.
type Filters struct {
	Include []string
	Exclude []string
}

// Page is one fetched and extracted page, produced at most once per unique
// URL per crawl run.
type Page struct {
	URL      string
	Title    string
	Content  string
	Metadata map[string]string // description, keywords, author, published
	Links    []string          // absolute outbound URLs, deduplicated

	Depth     int
	FetchedAt time.Time
}

// task is one pending unit of crawl work.
type task struct {
	url   string
	depth int
}
