package registry_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/dropDatabas3/janus/internal/registry"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

// countingRepo cuenta los hits al storage para verificar el cache.
type countingRepo struct {
	repository.ServiceRepository
	hits int64
}

func (c *countingRepo) GetByClientID(ctx context.Context, clientID string) (*repository.Service, error) {
	atomic.AddInt64(&c.hits, 1)
	return c.ServiceRepository.GetByClientID(ctx, clientID)
}

func seedService(t *testing.T, dal *memory.DAL, clientID, name string) {
	t.Helper()
	require.NoError(t, dal.Services().Create(context.Background(), &repository.Service{
		Name:         name,
		ClientID:     clientID,
		Type:         repository.ServiceTypePublic,
		RedirectURIs: []string{"https://rp.example/cb"},
	}))
}

func TestRegistry_CachesResolution(t *testing.T) {
	ctx := context.Background()
	dal := memory.New()
	seedService(t, dal, "client-1", "RP One")

	repo := &countingRepo{ServiceRepository: dal.Services()}
	reg := registry.New(repo, time.Minute)

	for i := 0; i < 5; i++ {
		svc, err := reg.Resolve(ctx, "client-1")
		require.NoError(t, err)
		assert.Equal(t, "RP One", svc.Name)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&repo.hits))
}

func TestRegistry_InvalidateForcesReload(t *testing.T) {
	ctx := context.Background()
	dal := memory.New()
	seedService(t, dal, "client-1", "Before")

	reg := registry.New(dal.Services(), time.Minute)

	svc, err := reg.Resolve(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "Before", svc.Name)

	updated := *svc
	updated.Name = "After"
	require.NoError(t, dal.Services().Update(ctx, &updated))

	// Sin invalidar se sirve la copia cacheada.
	svc, err = reg.Resolve(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "Before", svc.Name)

	reg.Invalidate("client-1")
	svc, err = reg.Resolve(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "After", svc.Name)
}

func TestRegistry_SingleflightOnMiss(t *testing.T) {
	ctx := context.Background()
	dal := memory.New()
	seedService(t, dal, "client-1", "RP One")

	repo := &countingRepo{ServiceRepository: dal.Services()}
	reg := registry.New(repo, time.Minute)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := reg.Resolve(ctx, "client-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// singleflight colapsa el estampido en una sola consulta.
	assert.LessOrEqual(t, atomic.LoadInt64(&repo.hits), int64(2))
}

func TestRegistry_UnknownClient(t *testing.T) {
	reg := registry.New(memory.New().Services(), time.Minute)
	_, err := reg.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
