// Package server exposes the scan engine over HTTP: an NDJSON streaming
// scan endpoint, a WebSocket variant of the same stream, and JSON endpoints
// for saved signals, clustering, themes, metrics, and health.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/radar/internal/cluster"
	"github.com/raphaelgruber/radar/internal/metrics"
	"github.com/raphaelgruber/radar/internal/scan"
	"github.com/raphaelgruber/radar/internal/store"
)

// shutdownTimeout bounds connection draining after Run's context ends.
const shutdownTimeout = 10 * time.Second

// Config carries the server's dependencies.
type Config struct {
	Addr         string
	Orchestrator *scan.Orchestrator
	Clusterer    *cluster.Clusterer
	Gateway      store.Gateway
	Collector    *metrics.Collector
	Logger       *slog.Logger
}

// Server is the HTTP API over the scan engine.
type Server struct {
	orchestrator *scan.Orchestrator
	clusterer    *cluster.Clusterer
	gateway      store.Gateway
	collector    *metrics.Collector
	engine       *gin.Engine
	http         *http.Server
	log          *slog.Logger
}

// New wires the routes. The server does not listen until Run.
func New(cfg Config) *Server {
	if cfg.Collector == nil {
		cfg.Collector = metrics.NewCollector()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		orchestrator: cfg.Orchestrator,
		clusterer:    cfg.Clusterer,
		gateway:      cfg.Gateway,
		collector:    cfg.Collector,
		engine:       engine,
		log:          cfg.Logger.With("component", "server"),
	}
	engine.Use(gin.Recovery(), RequestLogger(s.log))
	s.routes()

	s.http = &http.Server{
		Addr:        cfg.Addr,
		Handler:     engine,
		ReadTimeout: 5 * time.Second,
		// No write deadline: a streaming scan holds its response open for
		// the whole run.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	api.POST("/scan", s.handleScan)
	api.GET("/scan/ws", s.handleScanWS)
	api.GET("/signals", s.handleListSignals)
	api.POST("/signals/status", s.handleUpdateStatus)
	api.POST("/cluster", s.handleCluster)
	api.GET("/themes/:id", s.handleGetThemes)
	api.GET("/metrics", s.handleMetrics)
}

// Handler returns the routed engine, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
