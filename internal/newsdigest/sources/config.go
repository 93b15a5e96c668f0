package sources

import (
	"log/slog"
	"time"
)

// Config enables and configures each source kind.
type Config struct {
	FetchTimeout time.Duration    `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
	NewsAPI      NewsAPIConfig    `yaml:"newsapi"`
	Feeds        FeedsConfig      `yaml:"feeds"`
	HackerNews   HackerNewsConfig `yaml:"hackernews"`
}

// Build returns a registry holding every enabled source.
func Build(cfg Config, logger *slog.Logger) *Registry {
	r := NewRegistry(cfg.FetchTimeout, logger)
	if cfg.NewsAPI.Enabled {
		r.Register(NewNewsAPISource(cfg.NewsAPI))
	}
	if cfg.Feeds.Enabled {
		for _, f := range NewFeedSources(cfg.Feeds.URLs) {
			r.Register(f)
		}
	}
	if cfg.HackerNews.Enabled {
		r.Register(NewHackerNewsSource(cfg.HackerNews))
	}
	return r
}
