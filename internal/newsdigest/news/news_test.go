package news

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawItemKey(t *testing.T) {
	tests := []struct {
		name string
		item RawItem
		want string
	}{
		{"explicit id wins", RawItem{ID: "id-1", URL: "https://a", Title: "t"}, "id-1"},
		{"url when no id", RawItem{URL: "https://a", Title: "t"}, "https://a"},
		{"title as last resort", RawItem{Title: "Only a title"}, "Only a title"},
		{"blank id is skipped", RawItem{ID: "  ", URL: "https://b"}, "https://b"},
		{"nothing derivable", RawItem{Source: "feed"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.item.Key())
		})
	}
}

func TestParseSentiment(t *testing.T) {
	assert.Equal(t, Positive, ParseSentiment("positive"))
	assert.Equal(t, Negative, ParseSentiment(" NEGATIVE "))
	assert.Equal(t, Neutral, ParseSentiment("Neutral"))
	assert.Equal(t, Neutral, ParseSentiment("bullish"))
	assert.Equal(t, Neutral, ParseSentiment(""))
}

func TestDefaultEnrichment(t *testing.T) {
	e := DefaultEnrichment("hello")
	assert.Equal(t, "hello", e.Summary)
	assert.Equal(t, []string{"Other"}, e.Tags)
	assert.Equal(t, Neutral, e.Sentiment)
	assert.Equal(t, 0.5, e.Score)
}

func item(key string, tags ...string) DigestItem {
	return DigestItem{Key: key, Title: key, Enrichment: Enrichment{Tags: tags}}
}

func TestGroupByTag_OrderAndDefaults(t *testing.T) {
	items := []DigestItem{
		item("1", "AI", "Research"),
		item("2", "Markets"),
		item("3"),
		item("4", "AI"),
		item("5", ""),
	}

	g := GroupByTag(items)

	assert.Equal(t, []string{"AI", "Markets", "Other"}, g.Tags())
	require.Len(t, g.Get("AI"), 2)
	assert.Equal(t, "1", g.Get("AI")[0].Key)
	assert.Equal(t, "4", g.Get("AI")[1].Key)
	require.Len(t, g.Get("Other"), 2)
	assert.Equal(t, "3", g.Get("Other")[0].Key)
	assert.Equal(t, "5", g.Get("Other")[1].Key)
	assert.Nil(t, g.Get("Hiring"))
}

func TestGroupByTag_Conservation(t *testing.T) {
	tags := []string{"AI", "Markets", "", "Startups", "M&A"}
	for n := 0; n < 40; n += 7 {
		items := make([]DigestItem, n)
		for i := range items {
			items[i] = item(fmt.Sprint(i), tags[i%len(tags)])
		}
		assert.Equal(t, n, GroupByTag(items).Total(), "n=%d", n)
	}
}

func TestGroupByTag_Empty(t *testing.T) {
	g := GroupByTag(nil)
	assert.Equal(t, 0, g.Total())
	assert.Empty(t, g.Tags())
}
