// Package dedupe merges the output of all sources into an ordered batch of
// unique items that no earlier run has processed.
package dedupe

import (
	"context"
	"log/slog"
	"sort"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/news"
)

// Checker answers seen-set membership. seen.Store satisfies it.
type Checker interface {
	Has(ctx context.Context, key string) (bool, error)
}

// Exclusion is an item dropped because its membership check failed.
type Exclusion struct {
	Key string
	Err error
}

// Result is the outcome of Merge.
type Result struct {
	Items       []news.RawItem
	NoKey       int
	Duplicates  int
	AlreadySeen int
	Excluded    []Exclusion
}

// Merge orders items by PublishedRaw, newest first, and keeps the first
// occurrence of every key that is not in the seen set, up to limit items.
// The comparison is lexical, so mixed date formats only approximate recency.
// Items whose membership check fails are excluded rather than risk a
// duplicate delivery. A limit of zero or less means unbounded.
func Merge(ctx context.Context, items []news.RawItem, checker Checker, limit int, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}

	sorted := make([]news.RawItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedRaw > sorted[j].PublishedRaw
	})

	var res Result
	// Every key is checked once; later occurrences are duplicates whatever
	// the first outcome was.
	decided := make(map[string]bool)
	for _, it := range sorted {
		if limit > 0 && len(res.Items) >= limit {
			break
		}

		key := it.Key()
		if key == "" {
			res.NoKey++
			continue
		}
		if decided[key] {
			res.Duplicates++
			continue
		}
		decided[key] = true

		seen, err := checker.Has(ctx, key)
		if err != nil {
			logger.Error("seen check failed, excluding item", "key", key, "error", err)
			res.Excluded = append(res.Excluded, Exclusion{Key: key, Err: err})
			continue
		}
		if seen {
			res.AlreadySeen++
			continue
		}

		res.Items = append(res.Items, it)
	}
	return res
}
