// Package pipeline sequences one digest run: fetch, dedupe, enrich, group
// and deliver, committing processed items to the seen set along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/dedupe"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/enrich"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/news"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/seen"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/sources"
)

var (
	// ErrDelivery wraps a failure reported by the Deliverer. Items recorded
	// as seen earlier in the run stay recorded.
	ErrDelivery = errors.New("delivery failed")

	// ErrAlreadyRunning is returned when Run is called while a run is in progress.
	ErrAlreadyRunning = errors.New("a run is already in progress")
)

// Fetcher collects raw items from every configured source. *sources.Registry
// satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]news.RawItem, []sources.Result)
}

// Enricher turns deduplicated items into digest items, one per input, in
// input order. *enrich.Enricher satisfies it.
type Enricher interface {
	Enrich(ctx context.Context, items []news.RawItem) ([]news.DigestItem, enrich.Stats)
}

// Store is the part of the seen set a run needs.
type Store interface {
	Has(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, key string) error
}

// Digest is the payload handed to the delivery capability.
type Digest struct {
	RunID       string
	Groups      news.GroupedDigest
	GeneratedAt time.Time
	TimeZone    string
	Total       int
}

// Deliverer renders and transmits a digest. A returned error fails the run.
type Deliverer interface {
	Deliver(ctx context.Context, d Digest) error
}

// Observer receives run events. Implementations must be safe for use from
// a single run goroutine; they are never called concurrently.
type Observer interface {
	SourceFetched(res sources.Result)
	Deduped(res dedupe.Result)
	Enriched(stats enrich.Stats)
	StoreFailed(op seen.Op)
	RunFinished(r *Report)
}

// Config is fixed at construction and read-only during runs.
type Config struct {
	MaxItems int
	Location *time.Location
}

// Pipeline runs digests. Runs never overlap.
type Pipeline struct {
	cfg       Config
	fetcher   Fetcher
	store     Store
	enricher  Enricher
	deliverer Deliverer
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	last    *Report
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver attaches a run observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger sets the logger runs derive theirs from.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline.
func New(cfg Config, fetcher Fetcher, store Store, enricher Enricher, deliverer Deliverer, opts ...Option) *Pipeline {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	p := &Pipeline{
		cfg:       cfg,
		fetcher:   fetcher,
		store:     store,
		enricher:  enricher,
		deliverer: deliverer,
		observer:  nopObserver{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Last returns the report of the most recent finished run, or nil.
func (p *Pipeline) Last() *Report {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Running reports whether a run is in progress.
func (p *Pipeline) Running() bool { return p.running.Load() }

// Run executes one digest run. The returned report is never nil; the error
// is non-nil only when the run ends in Failed or could not start.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if !p.running.CompareAndSwap(false, true) {
		return &Report{State: Idle, Error: ErrAlreadyRunning.Error()}, ErrAlreadyRunning
	}
	defer p.running.Store(false)

	r := &run{
		p:      p,
		report: newReport(uuid.NewString(), p.now()),
	}
	r.logger = p.logger.With("run_id", r.report.RunID)
	r.logger.Info("digest run started", "max_items", p.cfg.MaxItems, "timezone", p.cfg.Location.String())

	err := r.execute(ctx)

	r.report.FinishedAt = p.now()
	if err != nil {
		r.report.Error = err.Error()
		r.logger.Error("digest run failed", "state", r.report.State, "error", err)
	} else {
		r.logger.Info("digest run finished",
			"items", r.report.Items,
			"delivered", r.report.Delivered,
			"record_failures", r.report.RecordFailures,
			"duration", r.report.FinishedAt.Sub(r.report.StartedAt),
		)
	}
	p.observer.RunFinished(r.report)

	p.mu.Lock()
	p.last = r.report
	p.mu.Unlock()
	return r.report, err
}

// run carries the per-run state through the stages.
type run struct {
	p      *Pipeline
	report *Report
	logger *slog.Logger
}

func (r *run) transition(s State) {
	r.report.advance(s)
	r.logger.Debug("state", "state", s)
}

func (r *run) execute(ctx context.Context) error {
	p := r.p

	// Fetching never fails the run; sources degrade individually.
	r.transition(Fetching)
	raw, results := p.fetcher.FetchAll(ctx)
	for _, res := range results {
		r.report.Sources = append(r.report.Sources, newSourceReport(res))
		p.observer.SourceFetched(res)
	}
	r.report.Fetched = len(raw)

	r.transition(Deduping)
	merged := dedupe.Merge(ctx, raw, p.store, p.cfg.MaxItems, r.logger)
	r.report.Dedupe = DedupeReport{
		Kept:        len(merged.Items),
		NoKey:       merged.NoKey,
		Duplicates:  merged.Duplicates,
		AlreadySeen: merged.AlreadySeen,
		Excluded:    len(merged.Excluded),
	}
	p.observer.Deduped(merged)
	for range merged.Excluded {
		p.observer.StoreFailed(seen.OpHas)
	}

	r.transition(Enriching)
	items, stats := p.enricher.Enrich(ctx, merged.Items)
	r.report.Enrichment = stats
	p.observer.Enriched(stats)
	r.record(ctx, items)

	r.transition(Grouping)
	grouped := news.GroupByTag(items)
	r.report.Items = grouped.Total()
	r.report.Groups = grouped.Tags()

	if grouped.Total() == 0 {
		r.logger.Info("no new items, skipping delivery")
		r.report.DeliverySkipped = true
		r.transition(Done)
		return nil
	}

	r.transition(Delivering)
	digest := Digest{
		RunID:       r.report.RunID,
		Groups:      grouped,
		GeneratedAt: p.now().In(p.cfg.Location),
		TimeZone:    p.cfg.Location.String(),
		Total:       grouped.Total(),
	}
	if err := p.deliverer.Deliver(ctx, digest); err != nil {
		r.transition(Failed)
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	r.report.Delivered = true
	r.transition(Done)
	return nil
}

// record commits every enriched item to the seen set, in digest order.
// A failed write risks a repeat on the next run but does not hold back
// delivery now.
func (r *run) record(ctx context.Context, items []news.DigestItem) {
	for _, it := range items {
		if err := r.p.store.Record(ctx, it.Key); err != nil {
			r.report.RecordFailures++
			r.p.observer.StoreFailed(seen.OpRecord)
			r.logger.Error("failed to record item as seen", "key", it.Key, "error", err)
			continue
		}
		r.report.Recorded++
	}
}

type nopObserver struct{}

func (nopObserver) SourceFetched(sources.Result) {}
func (nopObserver) Deduped(dedupe.Result)        {}
func (nopObserver) Enriched(enrich.Stats)        {}
func (nopObserver) StoreFailed(seen.Op)          {}
func (nopObserver) RunFinished(*Report)          {}
