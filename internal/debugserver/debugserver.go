// Package debugserver exposes the operational endpoints of a running
// batch: Prometheus metrics and a liveness probe.
package debugserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the optional HTTP sidecar. It only runs when a listen address
// is configured; unattended fleet machines scrape it, interactive runs
// skip it.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func New(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		srv:    &http.Server{Addr: addr, Handler: engine},
		logger: logger,
	}
}

// Start serves in the background. Listen errors are logged, not fatal; a
// busy port must not kill a benchmark run.
func (s *Server) Start() {
	go func() {
		s.logger.Info("debug server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("debug server stopped", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("debug server shutdown", "error", err)
	}
}
