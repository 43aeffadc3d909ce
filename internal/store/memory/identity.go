package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/google/uuid"
)

type identityRepo struct{ d *DAL }

func (r *identityRepo) GetByBackend(_ context.Context, backend, subject string) (*repository.ExternalIdentity, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	id, ok := r.d.identByKey[identityKey{backend, subject}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r.d.identities[id]
	cp.RawClaims = copyClaims(cp.RawClaims)
	return &cp, nil
}

func (r *identityRepo) ListByUser(_ context.Context, userID string) ([]repository.ExternalIdentity, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var out []repository.ExternalIdentity
	for _, ident := range r.d.identities {
		if ident.UserID == userID {
			out = append(out, *ident)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ResolveOrCreate corre completo bajo el lock de escritura: dos first-logins
// concurrentes del mismo (backend, subject) se serializan y el segundo
// resuelve al usuario creado por el primero.
func (r *identityRepo) ResolveOrCreate(_ context.Context, input repository.ResolveIdentityInput) (string, bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	key := identityKey{input.Backend, input.Subject}
	if id, ok := r.d.identByKey[key]; ok {
		ident := r.d.identities[id]
		ident.LastLoginAt = time.Now().UTC()
		ident.RawClaims = copyClaims(input.RawClaims)
		return ident.UserID, false, nil
	}

	now := time.Now().UTC()
	user := &repository.User{
		ID:            uuid.NewString(),
		Email:         input.Email,
		EmailVerified: input.EmailVerified,
		Name:          input.Name,
		GivenName:     input.GivenName,
		FamilyName:    input.FamilyName,
		Locale:        input.Locale,
		CreatedAt:     now,
	}
	r.d.users[user.ID] = user

	ident := &repository.ExternalIdentity{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		Backend:       input.Backend,
		Subject:       input.Subject,
		Email:         input.Email,
		EmailVerified: input.EmailVerified,
		RawClaims:     copyClaims(input.RawClaims),
		CreatedAt:     now,
		LastLoginAt:   now,
	}
	r.d.identities[ident.ID] = ident
	r.d.identByKey[key] = ident.ID
	return user.ID, true, nil
}

func (r *identityRepo) Link(_ context.Context, userID string, input repository.ResolveIdentityInput) (*repository.ExternalIdentity, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	if _, ok := r.d.users[userID]; !ok {
		return nil, repository.ErrNotFound
	}
	key := identityKey{input.Backend, input.Subject}
	if existing, ok := r.d.identByKey[key]; ok {
		if r.d.identities[existing].UserID != userID {
			return nil, repository.ErrIdentityLinked
		}
		cp := *r.d.identities[existing]
		return &cp, nil
	}

	now := time.Now().UTC()
	ident := &repository.ExternalIdentity{
		ID:            uuid.NewString(),
		UserID:        userID,
		Backend:       input.Backend,
		Subject:       input.Subject,
		Email:         input.Email,
		EmailVerified: input.EmailVerified,
		RawClaims:     copyClaims(input.RawClaims),
		CreatedAt:     now,
		LastLoginAt:   now,
	}
	r.d.identities[ident.ID] = ident
	r.d.identByKey[key] = ident.ID
	cp := *ident
	return &cp, nil
}

func (r *identityRepo) Unlink(_ context.Context, userID, identityID string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	ident, ok := r.d.identities[identityID]
	if !ok || ident.UserID != userID {
		return repository.ErrNotFound
	}

	count := 0
	for _, other := range r.d.identities {
		if other.UserID == userID {
			count++
		}
	}
	if count <= 1 {
		return repository.ErrLastIdentity
	}

	delete(r.d.identByKey, identityKey{ident.Backend, ident.Subject})
	delete(r.d.identities, identityID)
	return nil
}

func (r *identityRepo) TouchLogin(_ context.Context, identityID string, at time.Time, claims map[string]any) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	ident, ok := r.d.identities[identityID]
	if !ok {
		return repository.ErrNotFound
	}
	ident.LastLoginAt = at
	if claims != nil {
		ident.RawClaims = copyClaims(claims)
	}
	return nil
}
