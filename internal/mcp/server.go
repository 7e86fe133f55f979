// Package mcp exposes the classifier and the audit case store as MCP tools.
// The server needs no external services: packs and second readings live in
// SQLite under the data directory and latest packs are cached in memory.
package mcp

import (
	"context"
	"errors"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/lirads-audit-server/internal/cache"
	"github.com/lirads-audit-server/internal/config"
	"github.com/lirads-audit-server/internal/repository"
	"github.com/lirads-audit-server/internal/secondread"
	"github.com/lirads-audit-server/internal/service"
	"github.com/lirads-audit-server/pkg/auditpack"
)

const (
	ServerName    = "lirads-audit-mcp"
	ServerVersion = "v1.0.0"
)

// LiteServer is a standalone MCP server backed by local SQLite files.
type LiteServer struct {
	config    *config.LiteConfig
	mcpServer *sdkmcp.Server
	secret    []byte
	repo      repository.PackRepository
	readings  secondread.Store
	cases     *service.CaseService
	cache     *cache.MemoryCache
	clock     auditpack.Clock
	logger    *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// WithPackRepository replaces the SQLite pack store.
func WithPackRepository(repo repository.PackRepository) LiteServerOption {
	return func(s *LiteServer) error {
		s.repo = repo
		return nil
	}
}

// WithSecondReadingStore replaces the SQLite second-reading store.
func WithSecondReadingStore(store secondread.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.readings = store
		return nil
	}
}

// WithClock fixes the timestamp source of new packs.
func WithClock(c auditpack.Clock) LiteServerOption {
	return func(s *LiteServer) error {
		s.clock = c
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *config.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config: cfg,
		logger: logrus.New(),
	}

	if cfg.LogFormat == "text" {
		server.logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		server.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		server.logger.SetLevel(level)
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.AuditSecret == "" {
		return nil, fmt.Errorf("LIRADS_AUDIT_SECRET is not set: %w", auditpack.ErrMissingSecret)
	}
	server.secret = []byte(cfg.AuditSecret)

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if server.repo == nil {
		repo, err := repository.NewSQLitePackRepository(cfg.PacksDBPath(), server.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open pack store: %w", err)
		}
		server.repo = repo
	}
	if server.readings == nil {
		store, err := secondread.NewSQLiteStore(cfg.SecondReadingsDBPath())
		if err != nil {
			server.repo.Close()
			return nil, fmt.Errorf("failed to open second reading store: %w", err)
		}
		server.readings = store
	}

	server.cache = cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)

	svcOpts := []service.Option{service.WithCache(server.cache)}
	if server.clock != nil {
		svcOpts = append(svcOpts, service.WithClock(server.clock))
	}
	cases, err := service.NewCaseService(server.repo, server.secret, cfg.VerifyBaseURL, server.logger, svcOpts...)
	if err != nil {
		server.Close()
		return nil, fmt.Errorf("failed to create case service: %w", err)
	}
	server.cases = cases

	server.mcpServer = sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)
	server.mcpServer.AddReceivingMiddleware(server.auditMiddleware)
	server.registerCaseTools()
	server.registerSecondReadingTools()
	server.registerResources()
	server.registerPrompts()

	server.logger.WithField("data_dir", cfg.DataDir).Info("Lite server initialized successfully")
	return server, nil
}

// Start serves MCP over stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.Info("Starting LI-RADS audit MCP server")
	if err := s.mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	var errs []error
	if s.readings != nil {
		if err := s.readings.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close second reading store")
			errs = append(errs, err)
		}
	}
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close pack store")
			errs = append(errs, err)
		}
	}
	if s.cache != nil {
		s.cache.Close()
	}
	return errors.Join(errs...)
}

// MCPServer returns the underlying SDK server.
func (s *LiteServer) MCPServer() *sdkmcp.Server {
	return s.mcpServer
}
