// Package app wires the configured components into a runnable digest
// service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/config"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/enrich"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/metrics"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/pipeline"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/publisher"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/scheduler"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/seen"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/server"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/sources"
	"github.com/RobinCoderZhao/newsdigest/pkg/llm"
)

// App holds the long-lived components of one process.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Store     seen.Store
	Metrics   *metrics.Metrics
	Publisher *publisher.Publisher
	Pipeline  *pipeline.Pipeline

	llm llm.Client
}

// New opens the seen store and builds the pipeline. Digests sent to the
// stdout channel are written to out.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}

	pub, err := publisher.New(cfg.Delivery, out, logger)
	if err != nil {
		return nil, fmt.Errorf("delivery: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, Publisher: pub, Metrics: metrics.New()}

	var classifier enrich.Classifier
	if cfg.ClassifierEnabled() {
		client, err := llm.NewClient(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("llm client: %w", err)
		}
		a.llm = client
		classifier = enrich.NewLLMClassifier(client)
		logger.Info("classifier enabled", "provider", client.Provider(), "model", cfg.LLM.Model)
	} else {
		logger.Warn("no LLM configured, items will carry their titles as summaries")
	}

	store, err := seen.Open(ctx, cfg.Store)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open seen store: %w", err)
	}
	a.Store = store

	registry := sources.Build(cfg.Sources, logger)
	if registry.Len() == 0 {
		logger.Warn("no sources enabled")
	}

	a.Pipeline = pipeline.New(
		pipeline.Config{MaxItems: cfg.MaxItems, Location: loc},
		registry,
		store,
		enrich.New(classifier, cfg.Enrich, loc, logger),
		pub,
		pipeline.WithObserver(a.Metrics),
		pipeline.WithLogger(logger),
	)
	return a, nil
}

// Run executes a single digest run.
func (a *App) Run(ctx context.Context) (*pipeline.Report, error) {
	return a.Pipeline.Run(ctx)
}

// Serve runs the digest on the configured schedule and serves the status
// endpoints until ctx is cancelled. With RunOnStart set, one digest runs as
// soon as the service is up.
func (a *App) Serve(ctx context.Context) error {
	loc, err := a.Config.Location()
	if err != nil {
		return err
	}
	sched := scheduler.New(loc, a.Logger)
	if err := sched.Add(scheduler.Job{
		Name:     "digest",
		Schedule: a.Config.Schedule,
		Fn: func(ctx context.Context) error {
			_, err := a.Pipeline.Run(ctx)
			return err
		},
	}); err != nil {
		return err
	}

	srv := server.New(a.Config.MetricsAddr, a.Pipeline, a.Metrics.Handler(),
		server.WithLogger(a.Logger),
		server.WithNextRun(sched.Next),
		server.WithTrigger(a.Pipeline, a.Config.TriggerSecret),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start(ctx)
		return nil
	})
	if a.Config.RunOnStart {
		g.Go(func() error {
			// A failed run is reported through /status; it does not stop the service.
			if err := sched.RunOnce(ctx); err != nil {
				a.Logger.Warn("startup run failed", "error", err)
			}
			return nil
		})
	}
	if a.Config.MetricsAddr != "" {
		g.Go(func() error { return srv.Start(ctx) })
	}
	return g.Wait()
}

// Close releases the store and the LLM client.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close seen store: %w", err))
		}
	}
	if a.llm != nil {
		if err := a.llm.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close llm client: %w", err))
		}
	}
	return errors.Join(errs...)
}
