package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/orbit-cli/orbit/pkg/apiresponses"
	"github.com/orbit-cli/orbit/pkg/cli"
	"github.com/orbit-cli/orbit/pkg/config"
	"github.com/orbit-cli/orbit/pkg/metrics"
	"github.com/orbit-cli/orbit/pkg/system"
	"github.com/orbit-cli/orbit/pkg/version"
)

type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	gin    *gin.Engine
	config config.Config
	log    *zap.SugaredLogger
	health Pinger
	http2  bool
}

func NewServer(log *zap.Logger, cfg config.Config, debug bool, health Pinger) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	accessLog := redactingLogger{log: log}
	engine.Use(
		ginzap.GinzapWithConfig(accessLog, &ginzap.Config{
			TimeFormat:   time.RFC3339,
			UTC:          true,
			DefaultLevel: zapcore.InfoLevel,
		}),
		ginzap.RecoveryWithZap(accessLog, true),
		system.RequestLogger(log.Sugar()),
	)
	if len(cfg.Server.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			log.Sugar().Warnw("Ignoring invalid trusted proxies", "error", err)
		}
	} else {
		_ = engine.SetTrustedProxies(nil)
	}

	if origins := allowedOrigins(cfg, debug); len(origins) > 0 {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins:     origins,
				AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", system.RequestIDHeader},
				ExposeHeaders:    []string{system.RequestIDHeader},
				AllowCredentials: true,
				MaxAge:           12 * time.Hour,
			}),
		)
	}

	s := &Server{
		gin:    engine,
		config: cfg,
		log:    log.Sugar(),
		health: health,
	}

	engine.NoRoute(s.noRoute)
	engine.GET("/device", s.handleDeviceRedirect)
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.GET("api/version", s.handleVersion)

	return s
}

const devOrigin = "http://localhost:5173"

// allowedOrigins returns the configured CORS origins, plus the local
// frontend dev server when running in debug mode.
func allowedOrigins(cfg config.Config, debug bool) []string {
	origins := append([]string{}, cfg.Frontend.AllowedOrigins...)
	if len(origins) == 0 && cfg.Frontend.BaseURL != "" {
		origins = append(origins, strings.TrimRight(cfg.Frontend.BaseURL, "/"))
	}
	if debug && !slices.Contains(origins, devOrigin) {
		origins = append(origins, devOrigin)
	}
	return origins
}

func (s *Server) RegisterAll(controllers []APIController) error {
	r := s.gin.Group("api")
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return err
		}
	}
	return nil
}

// EnableHTTP2 allows HTTP/2 negotiation on the TLS listener.
func (s *Server) EnableHTTP2() {
	s.http2 = true
}

// Handler exposes the engine for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Listen serves until ctx is cancelled, then drains in-flight requests for at
// most the configured shutdown timeout.
func (s *Server) Listen(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.ListenAddress,
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}
	useTLS := s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != ""
	if useTLS {
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		if !s.http2 {
			cli.DisableHTTP2(srv.TLSConfig)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("Starting orbit-server", "address", srv.Addr, "tls", useTLS)
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS(s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout, err := s.config.ShutdownTimeout()
	if err != nil {
		timeout = 10 * time.Second
	}
	s.log.Infow("Shutting down orbit-server", "timeout", timeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) noRoute(c *gin.Context) {
	apiresponses.RespondNotFound(c, "route", c.Request.URL.Path)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health.Ping(c.Request.Context()); err != nil {
			system.GetReqLogger(c, s.log).Warnw("Health check failed", "error", err)
			apiresponses.RespondServiceUnavailable(c, "database")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetBuildInfo())
}
