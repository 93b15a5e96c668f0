// Package server exposes health, metrics and run status over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/pipeline"
)

const shutdownTimeout = 10 * time.Second

// Status reports on the digest pipeline.
type Status interface {
	Last() *pipeline.Report
	Running() bool
}

// Runner starts a digest run.
type Runner interface {
	Status
	Run(ctx context.Context) (*pipeline.Report, error)
}

// Server serves /healthz, /metrics, /status and, when a trigger secret is
// configured, POST /run.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	logger *slog.Logger

	status  Status
	metrics http.Handler
	next    func() time.Time
	runner  Runner
	secret  []byte

	baseCtx context.Context
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and lifecycle logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithNextRun reports the next scheduled activation on /status.
func WithNextRun(next func() time.Time) Option {
	return func(s *Server) { s.next = next }
}

// WithTrigger enables POST /run for requests bearing a token signed with
// secret. An empty secret leaves the route disabled.
func WithTrigger(r Runner, secret string) Option {
	return func(s *Server) {
		if secret == "" {
			return
		}
		s.runner = r
		s.secret = []byte(secret)
	}
}

// New builds the server. metrics may be nil.
func New(addr string, status Status, metrics http.Handler, opts ...Option) *Server {
	s := &Server{
		status:  status,
		metrics: metrics,
		logger:  slog.Default(),
		baseCtx: context.Background(),
	}
	for _, o := range opts {
		o(s)
	}

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	s.engine = gin.New()
	s.engine.Use(recovery(s.logger), requestID(), requestLogger(s.logger))
	s.routes()

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/status", s.handleStatus)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics))
	}
	if s.runner != nil {
		s.engine.POST("/run", s.requireToken(), s.handleRun)
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return <-errCh
}

var _ Runner = (*pipeline.Pipeline)(nil)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type statusResponse struct {
	Running bool             `json:"running"`
	NextRun *time.Time       `json:"next_run,omitempty"`
	Last    *pipeline.Report `json:"last,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{
		Running: s.status.Running(),
		Last:    s.status.Last(),
	}
	if s.next != nil {
		if next := s.next(); !next.IsZero() {
			resp.NextRun = &next
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleRun starts a run in the background and answers immediately.
func (s *Server) handleRun(c *gin.Context) {
	if s.runner.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": pipeline.ErrAlreadyRunning.Error()})
		return
	}
	requestedBy := c.GetString(subjectKey)
	go func() {
		rep, err := s.runner.Run(s.baseCtx)
		if err != nil {
			s.logger.Warn("triggered run failed", "requested_by", requestedBy, "error", err)
			return
		}
		s.logger.Info("triggered run finished", "requested_by", requestedBy, "run_id", rep.RunID, "state", rep.State)
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}
