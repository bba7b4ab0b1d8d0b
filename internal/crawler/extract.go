package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// contentSelectors are tried in priority order; the first region yielding at
// least minContentLength characters wins.
var contentSelectors = []string{
	"article",
	"main",
	"#content",
	".content",
	".post",
	".entry-content",
}

// minContentLength filters out navigation shells and cookie banners that
// match a content selector but carry no real text.
const minContentLength = 100

// extractPage pulls title, metadata, main content, and outbound links out of
// a parsed document. base is the fetched URL, used to absolutize links.
func extractPage(doc *goquery.Document, base *url.URL, rawHTML string, depth int) Page {
	page := Page{
		URL:      base.String(),
		Title:    extractTitle(doc),
		Metadata: extractMetadata(doc),
		Links:    extractLinks(doc, base),
		Depth:    depth,
	}

	page.Content = extractContent(doc)
	if page.Content == "" {
		// Selector heuristics found nothing usable; let readability score
		// the DOM before giving up and taking the whole body.
		if article, err := readability.FromReader(strings.NewReader(rawHTML), base); err == nil {
			page.Content = normalizeText(article.TextContent)
		}
	}
	if page.Content == "" {
		page.Content = normalizeText(doc.Find("body").Text())
	}

	return page
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	for _, sel := range []string{"h1", "h2"} {
		if heading := strings.TrimSpace(doc.Find(sel).First().Text()); heading != "" {
			return heading
		}
	}
	return ""
}

func extractMetadata(doc *goquery.Document) map[string]string {
	meta := make(map[string]string)

	names := map[string]string{
		"description":            "description",
		"keywords":               "keywords",
		"author":                 "author",
		"article:published_time": "published",
		"article:modified_time":  "modified",
	}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if name == "" {
			name, _ = s.Attr("property")
		}
		key, ok := names[strings.ToLower(name)]
		if !ok {
			return
		}
		if content, _ := s.Attr("content"); content != "" {
			meta[key] = strings.TrimSpace(content)
		}
	})

	return meta
}

func extractContent(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		text := normalizeText(doc.Find(sel).First().Text())
		if len(text) >= minContentLength {
			return text
		}
	}
	return ""
}

// extractLinks returns absolute http(s) outbound links, deduplicated
// preserving document order. Fragments are stripped so #section anchors do
// not manufacture distinct crawl targets.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""

		link := abs.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})

	return links
}

// normalizeText collapses runs of whitespace into single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
