package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client usando go-cache.
// Útil para desarrollo y testing; no comparte estado entre procesos.
type memoryClient struct {
	c      *gocache.Cache
	prefix string

	// go-cache no expone get-and-delete atómico; serializamos Take.
	mu sync.Mutex
}

// NewMemory crea un cliente de cache en memoria.
func NewMemory(prefix string, defaultTTL time.Duration) Client {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &memoryClient{
		c:      gocache.New(defaultTTL, time.Minute),
		prefix: prefix,
	}
}

func (m *memoryClient) key(k string) string {
	if m.prefix == "" {
		return k
	}
	return m.prefix + ":" + k
}

func (m *memoryClient) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	return b, true, nil
}

func (m *memoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(m.key(key), value, ttl)
	return nil
}

func (m *memoryClient) Delete(_ context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *memoryClient) Take(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.key(key)
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false, nil
	}
	m.c.Delete(k)
	b, _ := v.([]byte)
	return b, true, nil
}

func (m *memoryClient) Ping(context.Context) error { return nil }
func (m *memoryClient) Close() error               { return nil }
