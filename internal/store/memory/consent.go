package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/google/uuid"
)

type consentRepo struct{ d *DAL }

func (r *consentRepo) Get(_ context.Context, userID, serviceID string) (*repository.Consent, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	c, ok := r.d.consents[consentKey{userID, serviceID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	cp.Scopes = copyStrings(c.Scopes)
	return &cp, nil
}

// Upsert es idempotente por par (user, service); el lock global serializa
// escrituras concurrentes del mismo par.
func (r *consentRepo) Upsert(_ context.Context, userID, serviceID string, scopes []string) (*repository.Consent, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	now := time.Now().UTC()
	key := consentKey{userID, serviceID}
	if cur, ok := r.d.consents[key]; ok {
		cur.Scopes = copyStrings(scopes)
		cur.UpdatedAt = now
		cp := *cur
		return &cp, nil
	}

	c := &repository.Consent{
		ID:        uuid.NewString(),
		UserID:    userID,
		ServiceID: serviceID,
		Scopes:    copyStrings(scopes),
		GrantedAt: now,
		UpdatedAt: now,
	}
	r.d.consents[key] = c
	cp := *c
	return &cp, nil
}

func (r *consentRepo) ListByUser(_ context.Context, userID string) ([]repository.Consent, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var out []repository.Consent
	for _, c := range r.d.consents {
		if c.UserID == userID {
			cp := *c
			cp.Scopes = copyStrings(c.Scopes)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}

func (r *consentRepo) Revoke(_ context.Context, userID, serviceID string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	key := consentKey{userID, serviceID}
	if _, ok := r.d.consents[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.d.consents, key)
	return nil
}
