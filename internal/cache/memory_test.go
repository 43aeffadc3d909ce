package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/cache"
)

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory("test", time.Minute)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory("", time.Minute)

	require.NoError(t, c.Set(ctx, "short", []byte("x"), 20*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	_, ok, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
}

// Un code de autorización solo puede canjearse una vez: N goroutines
// compitiendo por el mismo Take deben producir exactamente un ganador.
func TestMemory_TakeIsOneShot(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory("", time.Minute)

	require.NoError(t, c.Set(ctx, "code", []byte("payload"), time.Minute))

	const n = 32
	var (
		wins int64
		wg   sync.WaitGroup
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, ok, _ := c.Take(ctx, "code"); ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)

	_, ok, _ := c.Get(ctx, "code")
	assert.False(t, ok, "taken key must be gone")
}

func TestMemory_PrefixIsolation(t *testing.T) {
	ctx := context.Background()
	a := cache.NewMemory("a", time.Minute)
	b := cache.NewMemory("b", time.Minute)

	require.NoError(t, a.Set(ctx, "k", []byte("from-a"), time.Minute))
	_, ok, _ := b.Get(ctx, "k")
	assert.False(t, ok)
}
