package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/dedupe"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/enrich"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/news"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/seen"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/sources"
	"github.com/RobinCoderZhao/newsdigest/pkg/storage"
)

type staticSource struct {
	name  string
	items []news.RawItem
	err   error
}

func (s staticSource) Name() string { return s.name }
func (s staticSource) Fetch(context.Context) ([]news.RawItem, error) {
	return s.items, s.err
}

type memStore struct {
	mu        sync.Mutex
	keys      map[string]bool
	order     []string
	failWrite map[string]bool
}

func newMemStore() *memStore {
	return &memStore{keys: map[string]bool{}, failWrite: map[string]bool{}}
}

func (m *memStore) Has(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memStore) Record(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite[key] {
		return &seen.Error{Op: seen.OpRecord, Key: key, Err: errors.New("disk full")}
	}
	m.keys[key] = true
	m.order = append(m.order, key)
	return nil
}

type recordingDeliverer struct {
	digests []Digest
	err     error
}

func (d *recordingDeliverer) Deliver(_ context.Context, digest Digest) error {
	d.digests = append(d.digests, digest)
	return d.err
}

type countingObserver struct {
	sources     int
	storeFailed map[seen.Op]int
	finished    []*Report
}

func (o *countingObserver) SourceFetched(sources.Result) { o.sources++ }
func (o *countingObserver) Deduped(dedupe.Result)        {}
func (o *countingObserver) Enriched(enrich.Stats)        {}
func (o *countingObserver) StoreFailed(op seen.Op) {
	if o.storeFailed == nil {
		o.storeFailed = map[seen.Op]int{}
	}
	o.storeFailed[op]++
}
func (o *countingObserver) RunFinished(r *Report) { o.finished = append(o.finished, r) }

func exampleRegistry() *sources.Registry {
	r := sources.NewRegistry(time.Second, nil)
	r.Register(staticSource{name: "api", items: []news.RawItem{
		{ID: "a", Title: "A", PublishedRaw: "2024-01-02"},
		{ID: "b", Title: "B", PublishedRaw: "2024-01-01"},
	}})
	r.Register(staticSource{name: "feed", items: []news.RawItem{
		{ID: "a", Title: "A again", PublishedRaw: "2024-01-02"},
	}})
	return r
}

func structuredClassifier() enrich.Classifier {
	return enrich.ClassifierFunc(func(ctx context.Context, req enrich.Request) (string, error) {
		return fmt.Sprintf(`{"summary":"about %s","tags":["AI"],"sentiment":"Neutral","score":0.7}`, req.Title), nil
	})
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC) }
}

func TestRun_ExampleScenarioAcrossTwoRuns(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.Config{DSN: filepath.Join(t.TempDir(), "seen.db")})
	require.NoError(t, err)
	defer db.Close()
	store, err := seen.NewSQLStore(ctx, db)
	require.NoError(t, err)

	deliverer := &recordingDeliverer{}
	p := New(Config{MaxItems: 10}, exampleRegistry(), store,
		enrich.New(structuredClassifier(), enrich.DefaultConfig(), nil, nil), deliverer,
		WithClock(fixedClock()))

	report, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []State{Idle, Fetching, Deduping, Enriching, Grouping, Delivering, Done}, report.States)
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 1, report.Dedupe.Duplicates)
	assert.Equal(t, 2, report.Recorded)

	require.Len(t, deliverer.digests, 1)
	digest := deliverer.digests[0]
	assert.Equal(t, 2, digest.Total)
	assert.Equal(t, report.RunID, digest.RunID)
	assert.Equal(t, "UTC", digest.TimeZone)
	items := digest.Groups.Get("AI")
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Key)
	assert.Equal(t, "b", items[1].Key)

	for _, k := range []string{"a", "b"} {
		ok, err := store.Has(ctx, k)
		require.NoError(t, err)
		assert.True(t, ok, "key %s recorded", k)
	}

	again, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []State{Idle, Fetching, Deduping, Enriching, Grouping, Done}, again.States)
	assert.True(t, again.DeliverySkipped)
	assert.Equal(t, 2, again.Dedupe.AlreadySeen)
	assert.Len(t, deliverer.digests, 1, "no delivery on the second run")
	assert.Same(t, again, p.Last())
}

func TestRun_DeliveryFailureKeepsSeenEntries(t *testing.T) {
	store := newMemStore()
	deliverer := &recordingDeliverer{err: errors.New("smtp: 554 rejected")}
	p := New(Config{MaxItems: 10}, exampleRegistry(), store,
		enrich.New(structuredClassifier(), enrich.DefaultConfig(), nil, nil), deliverer)

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Equal(t, Failed, report.State)
	assert.Equal(t, []State{Idle, Fetching, Deduping, Enriching, Grouping, Delivering, Failed}, report.States)
	assert.NotEmpty(t, report.Error)
	assert.Equal(t, []string{"a", "b"}, store.order, "seen entries are not rolled back")
}

func TestRun_RecordFailureDoesNotBlockDelivery(t *testing.T) {
	store := newMemStore()
	store.failWrite["b"] = true
	deliverer := &recordingDeliverer{}
	obs := &countingObserver{}
	p := New(Config{MaxItems: 10}, exampleRegistry(), store,
		enrich.New(structuredClassifier(), enrich.DefaultConfig(), nil, nil), deliverer,
		WithObserver(obs))

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recorded)
	assert.Equal(t, 1, report.RecordFailures)
	require.Len(t, deliverer.digests, 1)
	assert.Equal(t, 2, deliverer.digests[0].Total)
	assert.Equal(t, 1, obs.storeFailed[seen.OpRecord])
	assert.Equal(t, 2, obs.sources)
	require.Len(t, obs.finished, 1)
}

func TestRun_ClassifierDownStillDeliversEveryItem(t *testing.T) {
	down := enrich.ClassifierFunc(func(context.Context, enrich.Request) (string, error) {
		return "", errors.New("quota exceeded")
	})
	deliverer := &recordingDeliverer{}
	p := New(Config{MaxItems: 10}, exampleRegistry(), newMemStore(),
		enrich.New(down, enrich.DefaultConfig(), nil, nil), deliverer)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Enrichment.Failed)
	require.Len(t, deliverer.digests, 1)
	other := deliverer.digests[0].Groups.Get(news.DefaultTag)
	require.Len(t, other, 2)
	assert.Equal(t, "A", other[0].Enrichment.Summary)
}

func TestRun_FailingSourcesNeverFailTheRun(t *testing.T) {
	r := sources.NewRegistry(time.Second, nil)
	r.Register(staticSource{name: "down", err: errors.New("dial tcp: refused")})
	deliverer := &recordingDeliverer{}
	p := New(Config{MaxItems: 10}, r, newMemStore(), enrich.New(nil, enrich.DefaultConfig(), nil, nil), deliverer)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Done, report.State)
	require.Len(t, report.Sources, 1)
	assert.Contains(t, report.Sources[0].Error, "refused")
	assert.Empty(t, deliverer.digests)
}

func TestRun_TruncatesToMaxItems(t *testing.T) {
	var items []news.RawItem
	for i := 0; i < 40; i++ {
		items = append(items, news.RawItem{ID: fmt.Sprintf("k%02d", i), Title: "t", PublishedRaw: fmt.Sprintf("2024-01-%02d", i%28+1)})
	}
	r := sources.NewRegistry(time.Second, nil)
	r.Register(staticSource{name: "bulk", items: items})
	deliverer := &recordingDeliverer{}
	p := New(Config{MaxItems: 5}, r, newMemStore(), enrich.New(nil, enrich.DefaultConfig(), nil, nil), deliverer)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Items)
	assert.Equal(t, 5, deliverer.digests[0].Total)
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) FetchAll(context.Context) ([]news.RawItem, []sources.Result) {
	close(b.started)
	<-b.release
	return nil, nil
}

func TestRun_RejectsOverlappingRuns(t *testing.T) {
	f := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	p := New(Config{MaxItems: 1}, f, newMemStore(), enrich.New(nil, enrich.DefaultConfig(), nil, nil), &recordingDeliverer{})

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		done <- err
	}()
	<-f.started
	assert.True(t, p.Running())

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(f.release)
	require.NoError(t, <-done)
	assert.False(t, p.Running())
}

func TestReport_AdvanceRejectsBacktracking(t *testing.T) {
	r := newReport("id", time.Now())
	r.advance(Fetching)
	assert.Panics(t, func() { r.advance(Idle) })

	r.advance(Failed)
	assert.Panics(t, func() { r.advance(Done) })
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "delivering", Delivering.String())
	assert.Equal(t, "state(42)", State(42).String())
	b, err := Done.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "done", string(b))
}
