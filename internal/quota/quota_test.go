package quota

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCountsPerSlot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.Incr(ctx, 1)
		require.NoError(t, err)
	}
	n, err := m.Incr(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	snap, err := m.Snapshot(ctx, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{1: 3, 2: 1, 3: 0}, snap)
}

func TestMemoryRollsOverAtUTCMidnight(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = m.Incr(ctx, 1)
	_, _ = m.Incr(ctx, 1)

	now = now.Add(2 * time.Minute)
	snap, err := m.Snapshot(ctx, []int{1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap[1])
}

func TestMemoryConcurrentIncr(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Incr(context.Background(), 4)
		}()
	}
	wg.Wait()
	snap, _ := m.Snapshot(context.Background(), []int{4})
	assert.Equal(t, int64(100), snap[4])
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	assert.Equal(t, "2026-03-02", Day(time.Date(2026, 3, 1, 22, 0, 0, 0, loc)))
}

// skipIfNoRedis skips the test if Redis is not available
func skipIfNoRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		addr = "localhost:6379"
	}
	r, err := NewRedis(context.Background(), RedisConfig{Addr: addr, DialTimeout: 2 * time.Second, KeyPrefix: "test:slotgw:"})
	if err != nil {
		t.Skipf("Redis not available at %s: %v", addr, err)
	}
	return r
}

func TestRedisCounter(t *testing.T) {
	r := skipIfNoRedis(t)
	defer r.Close()

	r.now = func() time.Time { return time.Date(2001, 1, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	keys := []string{r.key("2001-01-01", 1), r.key("2001-01-01", 2)}
	r.client.Del(ctx, keys...)
	defer r.client.Del(ctx, keys...)

	_, err := r.Incr(ctx, 1)
	require.NoError(t, err)
	n, err := r.Incr(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	snap, err := r.Snapshot(ctx, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{1: 2, 2: 0}, snap)

	ttl, err := r.client.TTL(ctx, r.key("2001-01-01", 1)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 24*time.Hour)
}
