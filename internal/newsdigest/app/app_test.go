package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/config"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/pipeline"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/seen"
)

const feedBody = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Markets</title>
<item><title>Chipmaker beats estimates</title><link>https://m.example/chips</link><pubDate>Tue, 02 Jan 2024 10:00:00 +0000</pubDate></item>
<item><title>Central bank holds rates</title><link>https://m.example/rates</link></item>
</channel></rss>`

func testConfig(t *testing.T, feedURL string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.DSN = filepath.Join(t.TempDir(), "seen.db")
	cfg.Sources.NewsAPI.Enabled = false
	cfg.Sources.HackerNews.Enabled = false
	cfg.Sources.Feeds.Enabled = true
	cfg.Sources.Feeds.URLs = []string{feedURL}
	cfg.Sources.FetchTimeout = 5 * time.Second
	cfg.LLM.APIKey = ""
	require.NoError(t, cfg.Validate())
	return cfg
}

func feedServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedBody)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_DeliversOnceThenSkips(t *testing.T) {
	srv := feedServer(t)
	var out bytes.Buffer
	ctx := context.Background()

	a, err := New(ctx, testConfig(t, srv.URL), quietLogger(), &out)
	require.NoError(t, err)
	defer a.Close()

	rep, err := a.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Done, rep.State)
	assert.True(t, rep.Delivered)
	assert.Equal(t, 2, rep.Items)
	assert.Equal(t, 2, rep.Enrichment.Failed, "no classifier configured")
	assert.Contains(t, out.String(), "Chipmaker beats estimates")
	assert.Contains(t, out.String(), "Central bank holds rates")

	has, err := a.Store.Has(ctx, "https://m.example/chips")
	require.NoError(t, err)
	assert.True(t, has)

	out.Reset()
	rep, err = a.Run(ctx)
	require.NoError(t, err)
	assert.True(t, rep.DeliverySkipped)
	assert.Zero(t, rep.Items)
	assert.Empty(t, out.String())
}

func TestRun_StatePersistsAcrossProcesses(t *testing.T) {
	srv := feedServer(t)
	ctx := context.Background()
	cfg := testConfig(t, srv.URL)

	first, err := New(ctx, cfg, quietLogger(), io.Discard)
	require.NoError(t, err)
	_, err = first.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg, quietLogger(), io.Discard)
	require.NoError(t, err)
	defer second.Close()
	rep, err := second.Run(ctx)
	require.NoError(t, err)
	assert.True(t, rep.DeliverySkipped)
	assert.Equal(t, 2, rep.Dedupe.AlreadySeen)

	lister, ok := second.Store.(seen.Lister)
	require.True(t, ok)
	n, err := lister.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNew_RejectsBadDelivery(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1/feed")
	cfg.Delivery.Channels = []string{"webhook"}
	_, err := New(context.Background(), cfg, quietLogger(), io.Discard)
	assert.ErrorContains(t, err, "webhook")
}

func TestServe_StopsOnCancel(t *testing.T) {
	srv := feedServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.Schedule = "@every 1h"

	a, err := New(context.Background(), cfg, quietLogger(), io.Discard)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestServe_RunOnStart(t *testing.T) {
	srv := feedServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.MetricsAddr = ""
	cfg.Schedule = "@every 1h"
	cfg.RunOnStart = true

	a, err := New(context.Background(), cfg, quietLogger(), io.Discard)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool {
		rep := a.Pipeline.Last()
		return rep != nil && rep.Delivered
	}, 10*time.Second, 20*time.Millisecond, "startup run should deliver without waiting for the schedule")

	has, err := a.Store.Has(context.Background(), "https://m.example/rates")
	require.NoError(t, err)
	assert.True(t, has)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not return")
	}
}
