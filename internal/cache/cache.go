// Package cache keeps the latest audit pack of recently used cases close to
// the service so repeated reads skip the database.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/pkg/auditpack"
)

// PackCache stores latest packs keyed by case ID.
type PackCache interface {
	// Get returns the cached pack and true on a hit.
	Get(ctx context.Context, caseID string) (*auditpack.Pack, bool, error)
	Set(ctx context.Context, p *auditpack.Pack) error
	Delete(ctx context.Context, caseID string) error
	Close() error
}

// MemoryCache is an in-process LRU with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, *auditpack.Pack]
}

// NewMemoryCache creates a cache holding at most maxItems packs for ttl.
func NewMemoryCache(maxItems int, ttl time.Duration) *MemoryCache {
	if maxItems <= 0 {
		maxItems = 1000
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, *auditpack.Pack](maxItems, nil, ttl),
	}
}

// Get returns a shallow copy of the cached pack.
func (c *MemoryCache) Get(_ context.Context, caseID string) (*auditpack.Pack, bool, error) {
	p, ok := c.lru.Get(caseID)
	if !ok {
		return nil, false, nil
	}
	cp := *p
	return &cp, true, nil
}

func (c *MemoryCache) Set(_ context.Context, p *auditpack.Pack) error {
	cp := *p
	c.lru.Add(p.CaseID, &cp)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, caseID string) error {
	c.lru.Remove(caseID)
	return nil
}

// Len reports the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*auditpack.Pack, bool, error) { return nil, false, nil }
func (NoopCache) Set(context.Context, *auditpack.Pack) error                  { return nil }
func (NoopCache) Delete(context.Context, string) error                        { return nil }
func (NoopCache) Close() error                                                { return nil }

// New builds the cache selected by config.Backend.
func New(config domain.CacheConfig, logger *logrus.Logger) (PackCache, error) {
	switch config.Backend {
	case "", "memory":
		logger.WithFields(logrus.Fields{
			"max_items": config.MaxItems,
			"ttl":       config.DefaultTTL,
		}).Info("Using in-memory pack cache")
		return NewMemoryCache(config.MaxItems, config.DefaultTTL), nil
	case "redis":
		c, err := NewRedisCache(config)
		if err != nil {
			return nil, err
		}
		logger.Info("Using Redis pack cache")
		return c, nil
	case "none":
		return NoopCache{}, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %q", config.Backend)
	}
}
