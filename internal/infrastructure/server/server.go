package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/zapic/internal/infrastructure/config"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/zapic/internal/page"
	"github.com/GriffinCanCode/zapic/internal/session"
)

// Session is the part of session.Session the debug server inspects.
type Session interface {
	Status() session.Status
	Page() (*page.CachedPage, bool)
	Dispatch(raw string)
	SetTap(fn func(script string))
	Metrics() *monitoring.Metrics
}

// Server is the optional debug HTTP server.
type Server struct {
	router  *gin.Engine
	hub     *Hub
	session Session
	config  config.DebugConfig
	logger  *zap.Logger
	metrics *monitoring.Metrics

	http     *http.Server
	listener net.Listener
}

// Option configures a Server.
type Option func(*options)

type options struct {
	logLevel http.Handler
}

// WithLogLevel mounts h at /loglevel for GET and PUT, letting local tooling
// change the host's log level while it runs.
func WithLogLevel(h http.Handler) Option {
	return func(o *options) { o.logLevel = h }
}

// New creates a debug server for s. The server takes over the session's
// bridge tap.
func New(cfg config.DebugConfig, s Session, logger *zap.Logger, development bool, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	metrics := s.Metrics()

	if !development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(corsMiddleware())
	if cfg.RateLimitEnabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimitRPS),
			zap.Int("burst", cfg.RateLimitBurst),
		)
		router.Use(rateLimit(RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		}))
	}

	hub := NewHub(s.Dispatch, logger.Named("hub"), metrics)
	s.SetTap(hub.Broadcast)

	srv := &Server{
		router:  router,
		hub:     hub,
		session: s,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}

	router.GET("/health", srv.health)
	router.GET("/state", srv.state)
	router.GET("/page", srv.page)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	router.GET("/bridge", hub.HandleConnection)
	if o.logLevel != nil {
		router.GET("/loglevel", gin.WrapH(o.logLevel))
		router.PUT("/loglevel", gin.WrapH(o.logLevel))
	}

	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the bridge tap hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting debug server", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Debug server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests, disconnects tap clients and waits for
// in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down debug server...")
	s.session.SetTap(nil)
	s.hub.Close()

	if s.http == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down debug server: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type stateResponse struct {
	session.Status
	TapClients int                 `json:"tapClients"`
	Counters   monitoring.Snapshot `json:"counters"`
}

func (s *Server) state(c *gin.Context) {
	c.JSON(http.StatusOK, stateResponse{
		Status:     s.session.Status(),
		TapClients: s.hub.Clients(),
		Counters:   s.metrics.Snapshot(),
	})
}

func (s *Server) page(c *gin.Context) {
	p, ok := s.session.Page()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cached page"})
		return
	}

	c.Header("X-Zapic-Validated-At", p.LastValidatedAt.UTC().Format(time.RFC3339))
	if etag := p.ETag(); etag != "" {
		c.Header("ETag", etag)
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(p.HTML))
}
