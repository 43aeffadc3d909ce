package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/google/uuid"
)

type tokenRepo struct{ d *DAL }

func (r *tokenRepo) Create(_ context.Context, input repository.CreateRefreshTokenInput) (*repository.RefreshToken, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	now := time.Now().UTC()
	t := &repository.RefreshToken{
		ID:             uuid.NewString(),
		UserID:         input.UserID,
		ServiceID:      input.ServiceID,
		FamilyID:       input.FamilyID,
		Generation:     input.Generation,
		Scopes:         copyStrings(input.Scopes),
		TokenHash:      input.TokenHash,
		IssuedAt:       now,
		ExpiresAt:      input.ExpiresAt,
		FamilyIssuedAt: input.FamilyIssuedAt,
		RotatedFrom:    input.RotatedFrom,
	}
	if t.FamilyID == "" {
		t.FamilyID = uuid.NewString()
	}
	if t.FamilyIssuedAt.IsZero() {
		t.FamilyIssuedAt = now
	}
	r.d.tokens[t.ID] = t
	r.d.tokByHash[t.TokenHash] = t.ID
	cp := *t
	return &cp, nil
}

func (r *tokenRepo) GetByHash(_ context.Context, tokenHash string) (*repository.RefreshToken, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	id, ok := r.d.tokByHash[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r.d.tokens[id]
	cp.Scopes = copyStrings(cp.Scopes)
	return &cp, nil
}

func (r *tokenRepo) Revoke(_ context.Context, id string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	t, ok := r.d.tokens[id]
	// Un token ya revocado no se revoca dos veces, igual que el driver pg.
	if !ok || t.RevokedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	t.RevokedAt = &now
	return nil
}

func (r *tokenRepo) RevokeFamily(_ context.Context, familyID string) (int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for _, t := range r.d.tokens {
		if t.FamilyID == familyID && t.RevokedAt == nil {
			ts := now
			t.RevokedAt = &ts
			n++
		}
	}
	return n, nil
}

func (r *tokenRepo) RevokeByUserService(_ context.Context, userID, serviceID string) (int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for _, t := range r.d.tokens {
		if t.UserID == userID && t.ServiceID == serviceID && t.RevokedAt == nil {
			ts := now
			t.RevokedAt = &ts
			n++
		}
	}
	return n, nil
}
