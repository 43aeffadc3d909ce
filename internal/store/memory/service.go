package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/google/uuid"
)

type serviceRepo struct{ d *DAL }

func (r *serviceRepo) GetByClientID(_ context.Context, clientID string) (*repository.Service, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	s, ok := r.d.services[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	cp.RedirectURIs = copyStrings(s.RedirectURIs)
	cp.AllowedScopes = copyStrings(s.AllowedScopes)
	cp.GrantTypes = copyStrings(s.GrantTypes)
	return &cp, nil
}

func (r *serviceRepo) List(_ context.Context) ([]repository.Service, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	out := make([]repository.Service, 0, len(r.d.services))
	for _, s := range r.d.services {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func (r *serviceRepo) Create(_ context.Context, s *repository.Service) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, exists := r.d.services[s.ClientID]; exists {
		return repository.ErrConflict
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	cp := *s
	cp.RedirectURIs = copyStrings(s.RedirectURIs)
	cp.AllowedScopes = copyStrings(s.AllowedScopes)
	cp.GrantTypes = copyStrings(s.GrantTypes)
	r.d.services[s.ClientID] = &cp
	return nil
}

func (r *serviceRepo) Update(_ context.Context, s *repository.Service) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	cur, ok := r.d.services[s.ClientID]
	if !ok {
		return repository.ErrNotFound
	}
	cp := *s
	cp.ID = cur.ID
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	cp.RedirectURIs = copyStrings(s.RedirectURIs)
	cp.AllowedScopes = copyStrings(s.AllowedScopes)
	cp.GrantTypes = copyStrings(s.GrantTypes)
	r.d.services[s.ClientID] = &cp
	return nil
}

func (r *serviceRepo) Delete(_ context.Context, clientID string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.services[clientID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.d.services, clientID)
	return nil
}
