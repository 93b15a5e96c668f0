package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/news"
	"github.com/RobinCoderZhao/newsdigest/pkg/llm"
)

// MaxFallbackSummaryRunes bounds the summary built from an unparseable response.
const MaxFallbackSummaryRunes = 400

// Config bounds how hard the classifier is driven.
type Config struct {
	Concurrency   int           `yaml:"concurrency" env:"ENRICH_CONCURRENCY"`
	RatePerSecond float64       `yaml:"rate_per_second" env:"ENRICH_RATE"`
	CallTimeout   time.Duration `yaml:"call_timeout" env:"ENRICH_TIMEOUT"`
}

// DefaultConfig returns the enrichment defaults: four calls in flight,
// no rate limit, 30 seconds per call.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		CallTimeout: 30 * time.Second,
	}
}

// Outcome is the degradation tier an item's enrichment came from.
type Outcome int

const (
	Structured Outcome = iota
	Malformed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Structured:
		return "structured"
	case Malformed:
		return "malformed"
	default:
		return "failed"
	}
}

// Stats counts items per degradation tier.
type Stats struct {
	Structured int `json:"structured"`
	Malformed  int `json:"malformed"`
	Failed     int `json:"failed"`
}

// Total is the number of items enriched.
func (s Stats) Total() int { return s.Structured + s.Malformed + s.Failed }

// Enricher turns raw items into digest items.
type Enricher struct {
	classifier Classifier
	cfg        Config
	loc        *time.Location
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates an Enricher. A nil classifier degrades every item to its title.
func New(classifier Classifier, cfg Config, loc *time.Location, logger *slog.Logger) *Enricher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Enricher{
		classifier: classifier,
		cfg:        cfg,
		loc:        loc,
		logger:     logger,
	}
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return e
}

// Enrich produces exactly one DigestItem per input item, in input order.
// It never fails: classifier errors, timeouts and panics degrade the
// affected item only.
func (e *Enricher) Enrich(ctx context.Context, items []news.RawItem) ([]news.DigestItem, Stats) {
	out := make([]news.DigestItem, len(items))
	outcomes := make([]Outcome, len(items))

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, it := range items {
		g.Go(func() error {
			enr, outcome := e.enrichOne(ctx, it)
			out[i] = news.NewDigestItem(it, NormalizeTime(it.PublishedRaw, e.loc), enr)
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	var stats Stats
	for _, o := range outcomes {
		switch o {
		case Structured:
			stats.Structured++
		case Malformed:
			stats.Malformed++
		default:
			stats.Failed++
		}
	}
	return out, stats
}

func (e *Enricher) enrichOne(ctx context.Context, it news.RawItem) (enr news.Enrichment, outcome Outcome) {
	key := it.Key()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("classifier panicked", "key", key, "panic", r)
			enr, outcome = news.DefaultEnrichment(it.Title), Failed
		}
	}()

	raw, err := e.classify(ctx, it)
	if err != nil {
		e.logger.Warn("classification unavailable, using title", "key", key, "error", err)
		return news.DefaultEnrichment(it.Title), Failed
	}

	enr, err = Parse(raw, it.Title)
	if err != nil {
		e.logger.Warn("classification malformed, using raw text", "key", key, "error", err)
		return fallbackFromText(raw, it.Title), Malformed
	}
	return enr, Structured
}

func (e *Enricher) classify(ctx context.Context, it news.RawItem) (string, error) {
	if e.classifier == nil {
		return "", fmt.Errorf("no classifier configured")
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}
	return e.classifier.Classify(ctx, Request{Title: it.Title, URL: it.URL, Snippet: it.Snippet})
}

type classification struct {
	Summary   string   `json:"summary"`
	Tags      []string `json:"tags"`
	Sentiment string   `json:"sentiment"`
	Score     *float64 `json:"score"`
}

// Parse decodes a structured classifier response and fills in defaults:
// tags fall back to ["Other"], unknown sentiment to Neutral, a missing score
// to 0.5, and an empty summary to title. Scores are clamped into [0, 1].
// A response that is not a JSON object, optionally fenced, is an error.
func Parse(raw, title string) (news.Enrichment, error) {
	body := llm.StripCodeFence(raw)
	if !strings.HasPrefix(body, "{") {
		return news.Enrichment{}, fmt.Errorf("response is not a JSON object")
	}
	var c classification
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return news.Enrichment{}, fmt.Errorf("decode classification: %w", err)
	}

	enr := news.Enrichment{
		Summary:   strings.TrimSpace(c.Summary),
		Sentiment: news.ParseSentiment(c.Sentiment),
		Score:     news.DefaultScore,
	}
	if enr.Summary == "" {
		enr.Summary = title
	}
	for _, t := range c.Tags {
		if t = strings.TrimSpace(t); t != "" {
			enr.Tags = append(enr.Tags, t)
		}
	}
	if len(enr.Tags) == 0 {
		enr.Tags = []string{news.DefaultTag}
	}
	if c.Score != nil {
		enr.Score = min(max(*c.Score, 0), 1)
	}
	return enr, nil
}

func fallbackFromText(raw, title string) news.Enrichment {
	text := strings.TrimSpace(raw)
	if text == "" {
		return news.DefaultEnrichment(title)
	}
	if r := []rune(text); len(r) > MaxFallbackSummaryRunes {
		text = string(r[:MaxFallbackSummaryRunes])
	}
	return news.DefaultEnrichment(text)
}
