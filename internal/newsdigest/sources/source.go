// Package sources defines the source adapter interface and its
// implementations. Every adapter normalizes its records into news.RawItem.
package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/news"
)

// ErrMissingCredential is returned by adapters that are enabled but have no credential.
var ErrMissingCredential = errors.New("missing credential")

const userAgent = "newsdigest/1.0 (+https://github.com/RobinCoderZhao/newsdigest)"

// Source is the interface that all news sources must implement.
type Source interface {
	// Name returns the human-readable name of the source.
	Name() string

	// Fetch retrieves items from this source. Zero results is not an error.
	Fetch(ctx context.Context) ([]news.RawItem, error)
}

// Result summarizes one source's contribution to a fetch.
type Result struct {
	Name     string
	Count    int
	Err      error
	Duration time.Duration
}

// Registry holds all registered sources.
type Registry struct {
	sources []Source
	timeout time.Duration
	logger  *slog.Logger
}

// NewRegistry creates a registry. timeout bounds each source's fetch; zero disables it.
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{timeout: timeout, logger: logger}
}

// Register adds a source to the registry.
func (r *Registry) Register(s Source) {
	r.sources = append(r.sources, s)
}

// Len returns the number of registered sources.
func (r *Registry) Len() int { return len(r.sources) }

// FetchAll fetches from all sources concurrently. A failing source contributes
// no items and never affects the others. Items are returned grouped in
// registration order.
func (r *Registry) FetchAll(ctx context.Context) ([]news.RawItem, []Result) {
	perSource := make([][]news.RawItem, len(r.sources))
	results := make([]Result, len(r.sources))

	var wg sync.WaitGroup
	for i, s := range r.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			start := time.Now()
			items, err := r.fetchOne(ctx, src)
			if err != nil {
				items = nil
			}
			perSource[i] = items
			results[i] = Result{Name: src.Name(), Count: len(items), Err: err, Duration: time.Since(start)}
		}(i, s)
	}
	wg.Wait()

	var all []news.RawItem
	for i, res := range results {
		if res.Err != nil {
			r.logger.Warn("source unavailable, skipping", "source", res.Name, "error", res.Err)
			continue
		}
		r.logger.Debug("source fetched", "source", res.Name, "items", res.Count, "duration", res.Duration)
		all = append(all, perSource[i]...)
	}
	return all, results
}

func (r *Registry) fetchOne(ctx context.Context, src Source) (items []news.RawItem, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("source %s panicked: %v", src.Name(), p)
		}
	}()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return src.Fetch(ctx)
}
