package api

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telekom/proxmox-multicluster/pkg/apiresponses"
	"github.com/telekom/proxmox-multicluster/pkg/metrics"
	"github.com/telekom/proxmox-multicluster/pkg/ratelimit"
	"github.com/telekom/proxmox-multicluster/pkg/system"
	"github.com/telekom/proxmox-multicluster/pkg/version"
)

// CorrelationIDHeader carries the request correlation id in and out.
const CorrelationIDHeader = "X-Correlation-ID"

type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

type ServerConfig struct {
	ListenAddress string
	TLSCertFile   string
	TLSKeyFile    string
	// TLSOptions are applied to the server's tls.Config when serving TLS
	TLSOptions []func(*tls.Config)
	Debug      bool
	// CORSOrigins are allowed in debug mode
	CORSOrigins []string
	RateLimit   ratelimit.Config
	// ShutdownTimeout bounds the graceful shutdown in Listen
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns the configuration used when flags are not given.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddress:   ":8080",
		CORSOrigins:     []string{"http://localhost:5173"},
		RateLimit:       ratelimit.DefaultAPIConfig(),
		ShutdownTimeout: 10 * time.Second,
	}
}

type Server struct {
	gin            *gin.Engine
	config         ServerConfig
	log            *zap.SugaredLogger
	apiRateLimiter *ratelimit.Limiter
}

func NewServer(log *zap.Logger, cfg ServerConfig) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
		correlationID(),
		requestLogger(log.Sugar()),
		requestMetrics(),
	)

	if cfg.Debug && len(cfg.CORSOrigins) > 0 {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins:  cfg.CORSOrigins,
				AllowMethods:  []string{"GET", "PUT", "POST", "DELETE", "OPTIONS"},
				AllowHeaders:  []string{"Origin", "Content-Type", CorrelationIDHeader},
				ExposeHeaders: []string{CorrelationIDHeader},
				MaxAge:        12 * time.Hour,
			}),
		)
	}

	s := &Server{
		gin:            engine,
		config:         cfg,
		log:            log.Sugar(),
		apiRateLimiter: ratelimit.New("api", cfg.RateLimit),
	}

	engine.NoRoute(func(c *gin.Context) {
		apiresponses.RespondNotFound(c, "route", c.Request.URL.Path)
	})
	engine.GET("healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.GET("api/version", s.getVersion)

	return s
}

// RegisterAll mounts every controller under /api/<BasePath>, behind the
// per-IP rate limiter and the controller's own handlers.
func (s *Server) RegisterAll(controllers []APIController) error {
	r := s.gin.Group("api", s.apiRateLimiter.Middleware())
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Listen serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if len(s.config.TLSOptions) > 0 {
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		for _, opt := range s.config.TLSOptions {
			opt(srv.TLSConfig)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
			err = srv.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	s.log.Infow("API server listening", "address", s.config.ListenAddress, "tls", s.config.TLSCertFile != "")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Infow("Shutting down API server", "timeout", s.config.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops background goroutines owned by the server.
func (s *Server) Close() {
	if s.apiRateLimiter != nil {
		s.apiRateLimiter.Stop()
	}
}

func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetBuildInfo())
}

// correlationID propagates the caller's correlation id or assigns a new one.
func correlationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(system.CorrelationIDKey, id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(system.ReqLoggerKey, system.EnrichReqLogger(c, log))
		c.Next()
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
