package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/news"
)

const (
	hackerNewsAPI     = "https://hacker-news.firebaseio.com/v0"
	hnItemConcurrency = 5
)

// HackerNewsConfig configures the Hacker News top-stories adapter.
type HackerNewsConfig struct {
	Enabled  bool   `yaml:"enabled" env:"HACKERNEWS_ENABLED"`
	MaxItems int    `yaml:"max_items"`
	BaseURL  string `yaml:"base_url"`
}

// HackerNewsSource fetches top stories from the Hacker News API.
type HackerNewsSource struct {
	client   *http.Client
	baseURL  string
	maxItems int
}

// NewHackerNewsSource creates a new HN source.
func NewHackerNewsSource(cfg HackerNewsConfig) *HackerNewsSource {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 30
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = hackerNewsAPI
	}
	return &HackerNewsSource{
		client:   &http.Client{Timeout: 15 * time.Second},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		maxItems: cfg.MaxItems,
	}
}

func (h *HackerNewsSource) Name() string { return "Hacker News" }

func (h *HackerNewsSource) Fetch(ctx context.Context) ([]news.RawItem, error) {
	var ids []int
	if err := h.getJSON(ctx, h.baseURL+"/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("fetch top stories: %w", err)
	}
	if len(ids) > h.maxItems {
		ids = ids[:h.maxItems]
	}

	// Failed item fetches are skipped; results keep rank order. A panic in
	// one fetch resurfaces from Wait.
	stories := make([]*hnStory, len(ids))
	var g errgroup.Group
	g.SetLimit(hnItemConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			var story hnStory
			if err := h.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", h.baseURL, id), &story); err != nil {
				return nil
			}
			stories[i] = &story
			return nil
		})
	}
	_ = g.Wait()

	items := make([]news.RawItem, 0, len(stories))
	for _, s := range stories {
		if s == nil || s.Type != "story" || s.Dead || s.Deleted {
			continue
		}
		link := s.URL
		if link == "" {
			link = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", s.ID)
		}
		var published string
		if s.Time > 0 {
			published = time.Unix(s.Time, 0).UTC().Format(time.RFC3339)
		}
		items = append(items, news.RawItem{
			ID:           link,
			Title:        strings.TrimSpace(s.Title),
			URL:          link,
			Source:       h.Name(),
			PublishedRaw: published,
			Snippet:      PlainText(s.Text, maxSnippetRunes),
		})
	}
	return items, nil
}

type hnStory struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	By      string `json:"by"`
	Time    int64  `json:"time"`
	Text    string `json:"text"`
	Type    string `json:"type"`
	Score   int    `json:"score"`
	Dead    bool   `json:"dead"`
	Deleted bool   `json:"deleted"`
}

func (h *HackerNewsSource) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
