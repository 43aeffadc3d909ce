// Package registry expone una vista read-mostly de los services registrados.
//
// Las rutas calientes (/authorize, /token) resuelven el service desde un
// cache TTL en memoria; las mutaciones admin invalidan la entrada para que
// el cambio aplique en el siguiente request.
package registry

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/janus/internal/domain/repository"
)

const defaultTTL = 30 * time.Second

// Registry resuelve services por client_id con cache y deduplicación
// de lookups concurrentes.
type Registry struct {
	repo  repository.ServiceRepository
	cache *gocache.Cache
	group singleflight.Group
}

func New(repo repository.ServiceRepository, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Registry{
		repo:  repo,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Resolve busca un service por client_id.
// Retorna repository.ErrNotFound si no existe.
func (r *Registry) Resolve(ctx context.Context, clientID string) (*repository.Service, error) {
	if v, ok := r.cache.Get(clientID); ok {
		return v.(*repository.Service), nil
	}

	v, err, _ := r.group.Do(clientID, func() (any, error) {
		svc, err := r.repo.GetByClientID(ctx, clientID)
		if err != nil {
			return nil, err
		}
		r.cache.SetDefault(clientID, svc)
		return svc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*repository.Service), nil
}

// Invalidate descarta la entrada cacheada de un client_id.
// Llamado por la capa admin tras crear, actualizar o borrar un service.
func (r *Registry) Invalidate(clientID string) {
	r.cache.Delete(clientID)
}
