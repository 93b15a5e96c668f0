package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/news"
)

// DefaultNewsAPIQuery matches business and technology coverage.
const DefaultNewsAPIQuery = "(business OR technology) AND (startup OR ai OR product OR market)"

// NewsAPIConfig configures the query-based NewsAPI adapter.
type NewsAPIConfig struct {
	Enabled  bool   `yaml:"enabled" env:"NEWSAPI_ENABLED"`
	APIKey   string `yaml:"api_key" env:"NEWSAPI_KEY"`
	Query    string `yaml:"query" env:"NEWSAPI_QUERY"`
	PageSize int    `yaml:"page_size"`
	Language string `yaml:"language"`
	BaseURL  string `yaml:"base_url"`
}

// NewsAPISource queries the NewsAPI "everything" endpoint.
type NewsAPISource struct {
	cfg    NewsAPIConfig
	client *http.Client
}

// NewNewsAPISource creates the adapter, filling unset fields with defaults.
func NewNewsAPISource(cfg NewsAPIConfig) *NewsAPISource {
	if cfg.Query == "" {
		cfg.Query = DefaultNewsAPIQuery
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://newsapi.org"
	}
	return &NewsAPISource{
		cfg:    cfg,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

func (n *NewsAPISource) Name() string { return "NewsAPI" }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func (n *NewsAPISource) Fetch(ctx context.Context) ([]news.RawItem, error) {
	if n.cfg.APIKey == "" {
		return nil, fmt.Errorf("newsapi: %w", ErrMissingCredential)
	}

	params := url.Values{}
	params.Set("q", n.cfg.Query)
	params.Set("pageSize", strconv.Itoa(n.cfg.PageSize))
	params.Set("language", n.cfg.Language)
	params.Set("sortBy", "publishedAt")
	endpoint := strings.TrimRight(n.cfg.BaseURL, "/") + "/v2/everything?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Api-Key", n.cfg.APIKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch newsapi: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read newsapi response: %w", err)
	}

	var data newsAPIResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode newsapi response (%d): %w", resp.StatusCode, err)
	}
	if data.Status != "ok" {
		return nil, fmt.Errorf("newsapi error (%d): %s %s", resp.StatusCode, data.Code, data.Message)
	}

	items := make([]news.RawItem, 0, len(data.Articles))
	for _, a := range data.Articles {
		items = append(items, news.RawItem{
			ID:           a.URL,
			Title:        strings.TrimSpace(a.Title),
			URL:          a.URL,
			Source:       a.Source.Name,
			PublishedRaw: a.PublishedAt,
			Snippet:      PlainText(a.Description, maxSnippetRunes),
		})
	}
	return items, nil
}
