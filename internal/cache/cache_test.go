package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/pkg/auditpack"
	"github.com/lirads-audit-server/pkg/lirads"
)

func samplePack(t *testing.T, caseID string) *auditpack.Pack {
	t.Helper()
	p, err := auditpack.Build([]byte("cache-secret"), auditpack.BuildRequest{
		CaseID:  caseID,
		Content: auditpack.NewContent(lirads.DSL{LesionSizeMM: 12}),
	})
	require.NoError(t, err)
	return p
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)

	_, ok, err := c.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.False(t, ok)

	p := samplePack(t, "case-1")
	require.NoError(t, c.Set(ctx, p))

	got, ok, err := c.Get(ctx, "case-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p, got)
	assert.NotSame(t, p, got)

	got.Signature = "changed"
	again, _, _ := c.Get(ctx, "case-1")
	assert.Equal(t, p.Signature, again.Signature)

	require.NoError(t, c.Delete(ctx, "case-1"))
	_, ok, _ = c.Get(ctx, "case-1")
	assert.False(t, ok)
}

func TestMemoryCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, samplePack(t, fmt.Sprintf("case-%d", i))))
	}

	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "case-0")
	assert.False(t, ok, "oldest entry is evicted")
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, 20*time.Millisecond)

	require.NoError(t, c.Set(ctx, samplePack(t, "case-1")))
	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "case-1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestNoopCache(t *testing.T) {
	ctx := context.Background()
	var c PackCache = NoopCache{}

	require.NoError(t, c.Set(ctx, samplePack(t, "case-1")))
	_, ok, err := c.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	logger, _ := test.NewNullLogger()

	c, err := New(domain.CacheConfig{Backend: "memory", MaxItems: 5, DefaultTTL: time.Minute}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	c, err = New(domain.CacheConfig{Backend: "none"}, logger)
	require.NoError(t, err)
	assert.IsType(t, NoopCache{}, c)

	_, err = New(domain.CacheConfig{Backend: "memcached"}, logger)
	assert.Error(t, err)

	_, err = New(domain.CacheConfig{Backend: "redis", RedisURL: "://bad"}, logger)
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	c, err := NewRedisCache(domain.CacheConfig{
		RedisURL:   "redis://" + endpoint,
		DefaultTTL: time.Minute,
		PoolSize:   2,
	})
	require.NoError(t, err)
	defer c.Close()

	p := samplePack(t, "case-1")
	require.NoError(t, c.Set(ctx, p))

	got, ok, err := c.Get(ctx, "case-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p, got)

	// Corrupted entries read as a miss and are removed
	require.NoError(t, c.redis.Set(ctx, packKey("case-2"), "{not json", time.Minute).Err())
	_, ok, err = c.Get(ctx, "case-2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, c.redis.Exists(ctx, packKey("case-2")).Val())

	require.NoError(t, c.Delete(ctx, "case-1"))
	_, ok, err = c.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
