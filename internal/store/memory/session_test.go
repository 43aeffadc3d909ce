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

func newSession(t *testing.T, repo repository.SessionRepository, userID, hash string) *repository.Session {
	t.Helper()
	s, err := repo.Create(context.Background(), repository.CreateSessionInput{
		UserID:    userID,
		TokenHash: hash,
		Backend:   "google",
		AMR:       []string{"federated"},
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return s
}

func TestSessionRepo_AddVisitedServiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().Sessions()
	s := newSession(t, repo, "u1", "h1")

	require.NoError(t, repo.AddVisitedService(ctx, s.ID, "svc-a"))
	require.NoError(t, repo.AddVisitedService(ctx, s.ID, "svc-a"))
	require.NoError(t, repo.AddVisitedService(ctx, s.ID, "svc-b"))

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"svc-a", "svc-b"}, got.VisitedIDs)
}

func TestSessionRepo_EndTransitions(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().Sessions()
	s := newSession(t, repo, "u1", "h1")

	now := time.Now().UTC()
	require.NoError(t, repo.End(ctx, s.ID, now))

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionLoggedOut, got.Status(now, 0))

	// Cerrar dos veces no es un no-op silencioso.
	assert.ErrorIs(t, repo.End(ctx, s.ID, now), repository.ErrSessionEnded)
	assert.ErrorIs(t, repo.End(ctx, "nope", now), repository.ErrNotFound)
}

func TestSessionRepo_EndAllByUser(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().Sessions()

	newSession(t, repo, "u1", "h1")
	newSession(t, repo, "u1", "h2")
	other := newSession(t, repo, "u2", "h3")

	n, err := repo.EndAllByUser(ctx, "u1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := repo.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LoggedOutAt)
}

func TestSessionRepo_StatusIdleTimeout(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().Sessions()
	s := newSession(t, repo, "u1", "h1")

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)

	future := time.Now().Add(30 * time.Minute)
	assert.Equal(t, repository.SessionActive, got.Status(future, 0))
	assert.Equal(t, repository.SessionExpired, got.Status(future, 10*time.Minute))
}
