package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kbukum/tilekit/component"
	"github.com/kbukum/tilekit/engine"
	"github.com/kbukum/tilekit/logger"
	"github.com/kbukum/tilekit/observability"
	"github.com/kbukum/tilekit/resilience"
	"github.com/kbukum/tilekit/sse"
)

// Server exposes one engine over HTTP: on-demand tile computation, run
// management and a progress stream.
type Server struct {
	cfg        Config
	eng        *engine.Engine
	hub        *sse.Hub
	runs       *runManager
	limiter    *resilience.RateLimiter
	bulkhead   *resilience.Bulkhead
	metrics    *observability.Metrics
	httpServer *http.Server
	engine     *gin.Engine
	log        *logger.Logger
	listening  chan struct{}
}

// New creates a server around eng. The hub must already be running.
func New(cfg Config, eng *engine.Engine, hub *sse.Hub, log *logger.Logger) (*Server, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		eng:       eng,
		hub:       hub,
		runs:      newRunManager(),
		engine:    gin.New(),
		log:       log.WithComponent("server"),
		listening: make(chan struct{}),
	}

	if cfg.RateLimit > 0 {
		s.limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Name:  "tiles",
			Rate:  cfg.RateLimit,
			Burst: cfg.RateBurst,
			OnLimit: func(name string) {
				s.log.Warn("Request rate limited", map[string]interface{}{
					"limiter": name,
				})
			},
		})
	}
	s.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
		Name:          "tile-compute",
		MaxConcurrent: cfg.MaxComputes,
	})

	metrics, err := observability.NewMetrics(observability.Meter("tilekit/server"))
	if err != nil {
		return nil, err
	}
	s.metrics = metrics

	s.engine.Use(s.recovery())
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Name implements component.Component.
func (s *Server) Name() string { return "http-server" }

// Addr returns the bound listen address. Valid after Start returns.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start binds the port and begins serving. It returns once the listener is
// bound so the caller knows the port is ready; serving continues in a
// goroutine.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}

	tlsConfig, err := s.cfg.TLS.Build()
	if err != nil {
		listener.Close()
		return err
	}
	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}

	s.httpServer.Addr = listener.Addr().String()
	close(s.listening)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	s.log.Info("HTTP server started", map[string]interface{}{
		"addr": s.httpServer.Addr,
		"tls":  tlsConfig != nil,
	})
	return nil
}

// Stop cancels active runs and shuts the server down gracefully with a
// 5-second deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	s.runs.stopAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Health implements component.Component.
func (s *Server) Health(ctx context.Context) component.Health {
	h := component.Health{Name: s.Name(), Status: component.StatusHealthy}
	select {
	case <-s.listening:
	default:
		h.Status = component.StatusUnhealthy
		h.Message = "not listening"
	}
	return h
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// recovery converts panics into 500 responses without killing the server.
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("Panic recovered", map[string]interface{}{
					"error":  fmt.Sprintf("%v", rec),
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				})
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
