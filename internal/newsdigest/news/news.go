// Package news defines the item model shared by every stage of the digest
// pipeline: raw items from sources, their enrichment, and the grouped digest.
package news

import (
	"strings"
	"time"
)

// DefaultTag is the tag used when a classification carries no usable tags.
const DefaultTag = "Other"

// DefaultScore is the relevance score used when none is available.
const DefaultScore = 0.5

// RawItem is a single candidate item as normalized by a source adapter.
// It is produced fresh on every run and never persisted directly.
type RawItem struct {
	ID           string `json:"id,omitempty"`
	Title        string `json:"title"`
	URL          string `json:"url,omitempty"`
	Source       string `json:"source"`
	PublishedRaw string `json:"published_raw,omitempty"`
	Snippet      string `json:"snippet,omitempty"`
}

// Key returns the stable identity of the item: explicit ID, then URL, then
// title. An empty key means the item has no identity and must be dropped.
func (r RawItem) Key() string {
	for _, candidate := range []string{r.ID, r.URL, r.Title} {
		if k := strings.TrimSpace(candidate); k != "" {
			return k
		}
	}
	return ""
}

// Sentiment is the tone assigned to an item by the classifier.
type Sentiment string

const (
	Positive Sentiment = "Positive"
	Neutral  Sentiment = "Neutral"
	Negative Sentiment = "Negative"
)

// ParseSentiment maps a free-form label onto the enum. Unknown labels are Neutral.
func ParseSentiment(s string) Sentiment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return Positive
	case "negative":
		return Negative
	default:
		return Neutral
	}
}

// Enrichment is the summary and classification attached to every surviving item.
type Enrichment struct {
	Summary   string    `json:"summary"`
	Tags      []string  `json:"tags"`
	Sentiment Sentiment `json:"sentiment"`
	Score     float64   `json:"score"`
}

// DefaultEnrichment returns the deterministic fallback enrichment.
func DefaultEnrichment(summary string) Enrichment {
	return Enrichment{
		Summary:   summary,
		Tags:      []string{DefaultTag},
		Sentiment: Neutral,
		Score:     DefaultScore,
	}
}

// PrimaryTag is the first non-blank tag, or DefaultTag.
func (e Enrichment) PrimaryTag() string {
	if len(e.Tags) == 0 {
		return DefaultTag
	}
	if t := strings.TrimSpace(e.Tags[0]); t != "" {
		return t
	}
	return DefaultTag
}

// DigestItem is an enriched item ready for grouping and delivery.
// Published holds the normalized timestamp, or "" when it could not be parsed.
type DigestItem struct {
	Key        string     `json:"key"`
	Title      string     `json:"title"`
	URL        string     `json:"url,omitempty"`
	Source     string     `json:"source"`
	Published  string     `json:"published,omitempty"`
	Enrichment Enrichment `json:"enrichment"`
}

// NewDigestItem combines a raw item with its normalized date and enrichment.
func NewDigestItem(raw RawItem, published string, e Enrichment) DigestItem {
	return DigestItem{
		Key:        raw.Key(),
		Title:      raw.Title,
		URL:        raw.URL,
		Source:     raw.Source,
		Published:  published,
		Enrichment: e,
	}
}

// SeenRecord is one persisted entry of the seen set.
type SeenRecord struct {
	Key    string    `json:"key"`
	SeenAt time.Time `json:"seen_at"`
}
