// Package api is the HTTP and WebSocket surface: mission execution and
// estimation, trace retrieval, live swarm status, health, and metrics.
// All domain behavior is delegated to the injected core components.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/hivemind-ai/hivemind/pkg/config"
	"github.com/hivemind-ai/hivemind/pkg/events"
	"github.com/hivemind-ai/hivemind/pkg/metrics"
	"github.com/hivemind-ai/hivemind/pkg/safety"
	"github.com/hivemind-ai/hivemind/pkg/swarm"
	"github.com/hivemind-ai/hivemind/pkg/tracestore"
)

// Server hosts the external interface over the orchestration core.
type Server struct {
	cfg     *config.Config
	engine  *swarm.Engine
	store   *tracestore.Store
	bus     *events.Bus
	scanner *safety.Scanner
	metrics *metrics.Registry

	httpSrv *http.Server
}

// NewServer wires the external interface from its collaborators.
func NewServer(
	cfg *config.Config,
	engine *swarm.Engine,
	store *tracestore.Store,
	bus *events.Bus,
	scanner *safety.Scanner,
	reg *metrics.Registry,
) *Server {
	return &Server{
		cfg:     cfg,
		engine:  engine,
		store:   store,
		bus:     bus,
		scanner: scanner,
		metrics: reg,
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders(), requestLogger())

	generalLimiter := newIPLimiter(rate.Limit(s.cfg.RateLimitRPS), s.cfg.RateLimitBurst)
	executeLimiter := newIPLimiter(rate.Limit(s.cfg.ExecuteLimitRPS), s.cfg.ExecuteLimitBurst)

	apiGroup := r.Group("/api", generalLimiter.middleware(1*time.Second))
	{
		apiGroup.POST("/mission/execute",
			executeLimiter.middleware(10*time.Second), s.handleExecuteMission)
		apiGroup.POST("/mission/estimate", s.handleEstimateMission)
		apiGroup.GET("/mission/:traceId", s.handleGetTrace)
		apiGroup.GET("/mission/:traceId/status", s.handleGetStatus)
		apiGroup.GET("/traces", s.handleListTraces)
		apiGroup.GET("/swarms/active", s.handleActiveSwarms)
		apiGroup.GET("/health", s.handleHealth)
	}

	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/ws", s.handleWebSocket)
	return r
}

// Start runs the HTTP server until Shutdown. Blocks.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.HTTPPort,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP server listening", "port", s.cfg.HTTPPort)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
