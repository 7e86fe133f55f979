// Package main provides the HTTP entry point for the LI-RADS audit server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lirads-audit-server/internal/api"
	"github.com/lirads-audit-server/internal/auth"
	"github.com/lirads-audit-server/internal/cache"
	"github.com/lirads-audit-server/internal/config"
	"github.com/lirads-audit-server/internal/database"
	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/internal/export"
	"github.com/lirads-audit-server/internal/repository"
	"github.com/lirads-audit-server/internal/secondread"
	"github.com/lirads-audit-server/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lirads-audit-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configManager, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := configManager.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg := configManager.GetConfig()
	if configManager.IsProduction() && !cfg.Auth.Enabled {
		return fmt.Errorf("auth.enabled must be true in production")
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, readings, closeStores, err := openStores(ctx, configManager, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	packCache, err := cache.New(cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	defer packCache.Close()

	cases, err := service.NewCaseService(repo, []byte(cfg.Audit.Secret), cfg.Audit.VerifyBaseURL, logger,
		service.WithCache(packCache))
	if err != nil {
		return err
	}

	deps := api.Dependencies{
		Cases:    cases,
		Readings: readings,
		PDF:      export.NewBreakerRenderer(export.NewChromeRenderer(cfg.Export.ChromePath, cfg.Export.PDFTimeout), cfg.Export, logger),
	}
	if cfg.Auth.Enabled {
		if deps.Tokens, err = auth.NewTokenManager(cfg.Auth); err != nil {
			return fmt.Errorf("failed to configure auth: %w", err)
		}
	}

	server, err := api.NewServer(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":     cfg.Server.Host,
		"port":     cfg.Server.Port,
		"driver":   cfg.Database.Driver,
		"cache":    cfg.Cache.Backend,
		"auth":     cfg.Auth.Enabled,
		"version":  api.Version,
	}).Info("Starting LI-RADS audit server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, gracefully shutting down...")
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func newLogger(cfg domain.LoggingConfig) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	closeFn := func() {}
	var out io.Writer = os.Stdout
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}
	logger.SetOutput(out)
	return logger, closeFn, nil
}

// openStores opens the pack repository and the second-reading store on the
// configured driver. Postgres migrations run before either store is used.
func openStores(ctx context.Context, m domain.ConfigManager, logger *logrus.Logger) (repository.PackRepository, secondread.Store, func(), error) {
	cfg := *m.GetDatabaseConfig()

	if cfg.Driver == "postgres" {
		if cfg.AutoMigrate {
			runner, err := database.NewMigrationRunner(m.GetDatabaseURL(), cfg.MigrationsPath, logger)
			if err != nil {
				return nil, nil, nil, err
			}
			err = runner.Up(ctx)
			runner.Close()
			if err != nil {
				return nil, nil, nil, err
			}
		}

		db, err := database.NewConnection(ctx, cfg, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		readings, err := secondread.NewPostgresStoreFromURL(m.GetDatabaseURL())
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		repo := repository.NewPostgresPackRepository(db.Pool, logger)
		return repo, readings, func() {
			readings.Close()
			db.Close()
		}, nil
	}

	repo, err := repository.NewSQLitePackRepository(cfg.SQLitePath, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	readingsPath := filepath.Join(filepath.Dir(cfg.SQLitePath), "second_readings.db")
	readings, err := secondread.NewSQLiteStore(readingsPath)
	if err != nil {
		repo.Close()
		return nil, nil, nil, err
	}
	return repo, readings, func() {
		readings.Close()
		repo.Close()
	}, nil
}
