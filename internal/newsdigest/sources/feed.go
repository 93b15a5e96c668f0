package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/news"
)

// FeedsConfig configures the feed-based adapters, one per endpoint.
type FeedsConfig struct {
	Enabled bool     `yaml:"enabled" env:"FEEDS_ENABLED"`
	URLs    []string `yaml:"urls" env:"RSS_FEEDS"`
}

// FeedSource fetches one RSS, Atom or JSON feed.
type FeedSource struct {
	url    string
	client *http.Client
	parser *gofeed.Parser
}

// NewFeedSource creates a source for a single feed URL.
func NewFeedSource(feedURL string) *FeedSource {
	return &FeedSource{
		url:    strings.TrimSpace(feedURL),
		client: &http.Client{Timeout: 15 * time.Second},
		parser: gofeed.NewParser(),
	}
}

// NewFeedSources creates one source per non-blank URL.
func NewFeedSources(urls []string) []*FeedSource {
	var out []*FeedSource
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		out = append(out, NewFeedSource(u))
	}
	return out
}

func (f *FeedSource) Name() string { return f.url }

func (f *FeedSource) Fetch(ctx context.Context) ([]news.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch feed %s: status %d", f.url, resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", f.url, err)
	}

	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = f.url
	}

	items := make([]news.RawItem, 0, len(feed.Items))
	for _, e := range feed.Items {
		if e == nil {
			continue
		}
		published := e.Published
		if published == "" {
			published = e.Updated
		}
		id := e.Link
		if id == "" {
			id = e.GUID
		}
		if id == "" && e.Title != "" {
			id = e.Title + published
		}
		items = append(items, news.RawItem{
			ID:           id,
			Title:        strings.TrimSpace(e.Title),
			URL:          e.Link,
			Source:       source,
			PublishedRaw: published,
			Snippet:      PlainText(e.Description, maxSnippetRunes),
		})
	}
	return items, nil
}
