package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeberg.org/mutker/nvidiamon/internal/errors"
	"codeberg.org/mutker/nvidiamon/internal/logger"
	"codeberg.org/mutker/nvidiamon/internal/monitor"
)

const readHeaderTimeout = 5 * time.Second

// StatsSource is the slice of the monitor the HTTP surface needs.
type StatsSource interface {
	Latest() monitor.Report
	ResetPeaks()
	ResetErrors()
}

type Config struct {
	Listen string
	Debug  bool
}

// Server owns the HTTP surface: the JSON API and the Prometheus
// scrape endpoint.
type Server struct {
	cfg        Config
	source     StatsSource
	httpServer *http.Server
}

func New(cfg Config, source StatsSource) (*Server, error) {
	errFactory := errors.New()

	if cfg.Listen == "" {
		return nil, errFactory.New(ErrInvalidListenAddr)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	// Browser dashboards poll the API from other origins.
	engine.Use(cors.Default())

	s := &Server{
		cfg:    cfg,
		source: source,
	}

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/api/gpu-stats", s.handleStats)
	engine.POST("/api/reset-peaks", s.handleResetPeaks)

	registry := prometheus.NewRegistry()
	registry.MustRegister(newReportCollector(source))
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s, nil
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logger.Info().Str("addr", s.cfg.Listen).Msg("HTTP server listening")

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New().Wrap(ErrListenFailed, err)
	}

	logger.Info().Msg("HTTP server stopped")

	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.New().Wrap(ErrShutdownFailed, err)
	}

	return nil
}

// Handler exposes the routing for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStats returns the most recent cycle report verbatim. A failed
// cycle still answers 200: the failure is carried in the body, and
// consumers poll through transient collection errors.
func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Latest())
}

// handleResetPeaks clears peak temperatures and the workload error
// counter in one operation.
func (s *Server) handleResetPeaks(c *gin.Context) {
	s.source.ResetPeaks()
	s.source.ResetErrors()

	logger.Info().Msg("Peak temperatures and workload errors reset")

	c.JSON(http.StatusOK, gin.H{"success": true})
}
