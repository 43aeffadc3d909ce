package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

func TestTokenRepo_RevokeOnce(t *testing.T) {
	ctx := context.Background()
	dal := memory.New()
	repo := dal.RefreshTokens()

	rt, err := repo.Create(ctx, repository.CreateRefreshTokenInput{
		UserID:    "u1",
		ServiceID: "s1",
		TokenHash: "hash-once",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, repo.Revoke(ctx, rt.ID))

	got, err := repo.GetByHash(ctx, "hash-once")
	require.NoError(t, err)
	assert.NotNil(t, got.RevokedAt)

	// Revocar de nuevo falla, igual que el UPDATE con guarda del driver pg.
	assert.ErrorIs(t, repo.Revoke(ctx, rt.ID), repository.ErrNotFound)
	assert.ErrorIs(t, repo.Revoke(ctx, "no-such-id"), repository.ErrNotFound)
}

func TestTokenRepo_RevokeFamily(t *testing.T) {
	ctx := context.Background()
	dal := memory.New()
	repo := dal.RefreshTokens()

	first, err := repo.Create(ctx, repository.CreateRefreshTokenInput{
		UserID:    "u1",
		ServiceID: "s1",
		Scopes:    []string{"openid"},
		TokenHash: "hash-0",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.FamilyID, "family assigned on create")

	// Rotación: misma familia, generación siguiente.
	second, err := repo.Create(ctx, repository.CreateRefreshTokenInput{
		UserID:         "u1",
		ServiceID:      "s1",
		FamilyID:       first.FamilyID,
		Generation:     first.Generation + 1,
		Scopes:         []string{"openid"},
		TokenHash:      "hash-1",
		ExpiresAt:      time.Now().Add(time.Hour),
		FamilyIssuedAt: first.FamilyIssuedAt,
		RotatedFrom:    &first.ID,
	})
	require.NoError(t, err)

	// Token de otra familia, no debe tocarse.
	other, err := repo.Create(ctx, repository.CreateRefreshTokenInput{
		UserID:    "u1",
		ServiceID: "s2",
		TokenHash: "hash-other",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	n, err := repo.RevokeFamily(ctx, first.FamilyID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, hash := range []string{"hash-0", "hash-1"} {
		got, err := repo.GetByHash(ctx, hash)
		require.NoError(t, err)
		assert.NotNil(t, got.RevokedAt, "family member %s must be revoked", hash)
	}

	untouched, err := repo.GetByHash(ctx, "hash-other")
	require.NoError(t, err)
	assert.Nil(t, untouched.RevokedAt)
	_ = other
	_ = second
}

func TestTokenRepo_RevokeByUserService(t *testing.T) {
	ctx := context.Background()
	dal := memory.New()
	repo := dal.RefreshTokens()

	for i, hash := range []string{"a", "b"} {
		_, err := repo.Create(ctx, repository.CreateRefreshTokenInput{
			UserID:    "u1",
			ServiceID: "s1",
			Generation: i,
			TokenHash: hash,
			ExpiresAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, repository.CreateRefreshTokenInput{
		UserID:    "u2",
		ServiceID: "s1",
		TokenHash: "c",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	n, err := repo.RevokeByUserService(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := repo.GetByHash(ctx, "c")
	require.NoError(t, err)
	assert.Nil(t, got.RevokedAt, "other user's tokens stay valid")
}
