// Package api exposes the case, verification, export and second-reading
// operations over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lirads-audit-server/internal/auth"
	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/internal/export"
	"github.com/lirads-audit-server/internal/middleware"
	"github.com/lirads-audit-server/internal/secondread"
	"github.com/lirads-audit-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Dependencies are the services the HTTP layer serves.
type Dependencies struct {
	Cases    *service.CaseService
	Readings secondread.Store
	// Tokens is nil when authentication is disabled.
	Tokens *auth.TokenManager
	// PDF renders printable reports; nil disables the PDF export.
	PDF export.HTMLRenderer
}

// Server represents the HTTP server
type Server struct {
	config   *domain.Config
	cases    *service.CaseService
	readings secondread.Store
	tokens   *auth.TokenManager
	pdf      export.HTMLRenderer
	log      *logrus.Logger
	router   *gin.Engine
	server   *http.Server
	started  time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, deps Dependencies, logger *logrus.Logger) (*Server, error) {
	if deps.Cases == nil {
		return nil, errors.New("api: case service is required")
	}
	if deps.Readings == nil {
		return nil, errors.New("api: second reading store is required")
	}
	if cfg.Auth.Enabled && deps.Tokens == nil {
		return nil, errors.New("api: auth is enabled but no token manager was given")
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.AuditLogger(logger))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.NewRateLimiter(cfg.RateLimit).Middleware())
	}
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	s := &Server{
		config:   cfg,
		cases:    deps.Cases,
		readings: deps.Readings,
		tokens:   deps.Tokens,
		pdf:      deps.PDF,
		log:      logger,
		router:   router,
		started:  time.Now(),
	}
	if !cfg.Auth.Enabled {
		s.tokens = nil
	}

	s.setupRoutes()
	return s, nil
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.log.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	// Target of the verify_url printed on every pack.
	s.router.GET("/verify", s.handlePublicVerify)
	if s.tokens != nil {
		s.router.POST("/auth/token", s.handleToken)
	}

	v1 := s.router.Group("/api/v1")
	if s.tokens != nil {
		v1.Use(middleware.BearerAuth(s.tokens))
	}
	{
		v1.POST("/analyze/:case_id", s.handleAnalyze)
		v1.POST("/classify", s.handleClassify)
		v1.POST("/extract", s.handleExtract)
		v1.POST("/agent/save", s.handleAgentSave)

		v1.GET("/cases", s.handleListCases)
		v1.GET("/cases/:case_id", s.handleGetCase)
		v1.GET("/cases/:case_id/versions", s.handleVersions)
		v1.GET("/cases/:case_id/chain", s.handleChain)
		v1.GET("/cases/:case_id/critical", s.handleCritical)
		v1.GET("/cases/:case_id/second-readings", s.handleCaseReadings)
		v1.GET("/verify/:case_id", s.handleVerify)
		v1.GET("/stats", s.handleStats)
		v1.GET("/checklist/:region", s.handleChecklist)

		v1.GET("/export/json/:case_id", s.handleExportJSON)
		v1.GET("/export/html/:case_id", s.handleExportHTML)
		v1.GET("/export/pdf/:case_id", s.handleExportPDF)
		v1.GET("/export/xlsx", s.handleExportXLSX)

		v1.POST("/second-readings", s.handleCreateReading)
		v1.POST("/second-readings/:id/complete", s.handleCompleteReading)
		v1.GET("/second-readings", s.handleListReadings)
	}
}

type stateReporter interface {
	State() string
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":         "healthy",
		"timestamp":      time.Now().UTC(),
		"version":        Version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"auth_enabled":   s.tokens != nil,
	}
	if sr, ok := s.pdf.(stateReporter); ok {
		body["pdf_renderer"] = sr.State()
	}
	c.JSON(http.StatusOK, body)
}

type tokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	token, exp, err := s.tokens.Login(req.Username, req.Password)
	if err != nil {
		s.log.WithField("username", req.Username).Warn("Login failed")
		c.JSON(http.StatusUnauthorized, domain.NewAPIError(domain.ErrAuthentication,
			"Invalid username or password", "", requestID(c)))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   exp,
	})
}
