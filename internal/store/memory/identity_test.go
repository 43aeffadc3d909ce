package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

func googleAssertion(subject string) repository.ResolveIdentityInput {
	return repository.ResolveIdentityInput{
		Backend:       "google",
		Subject:       subject,
		Email:         subject + "@example.com",
		EmailVerified: true,
		Name:          "Test User",
	}
}

func TestResolveOrCreate_FirstLoginCreatesUser(t *testing.T) {
	ctx := context.Background()
	dal := memory.New()

	userID, isNew, err := dal.Identities().ResolveOrCreate(ctx, googleAssertion("sub-1"))
	require.NoError(t, err)
	assert.True(t, isNew)
	require.NotEmpty(t, userID)

	u, err := dal.Users().GetByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "sub-1@example.com", u.Email)

	// Segundo login: misma identidad, mismo usuario.
	again, isNew, err := dal.Identities().ResolveOrCreate(ctx, googleAssertion("sub-1"))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, userID, again)
}

// Dos logins concurrentes con la misma identidad nueva deben converger en
// un único usuario.
func TestResolveOrCreate_ConcurrentFirstLogin(t *testing.T) {
	ctx := context.Background()
	dal := memory.New()

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		userIDs = map[string]struct{}{}
		created int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			id, isNew, err := dal.Identities().ResolveOrCreate(ctx, googleAssertion("race"))
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			userIDs[id] = struct{}{}
			if isNew {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, userIDs, 1, "all logins must resolve to the same user")
	assert.Equal(t, 1, created, "exactly one login creates the user")
}

func TestLink_SecondBackend(t *testing.T) {
	ctx := context.Background()
	dal := memory.New()

	userID, _, err := dal.Identities().ResolveOrCreate(ctx, googleAssertion("sub-1"))
	require.NoError(t, err)

	adfs := repository.ResolveIdentityInput{Backend: "adfs", Subject: "emp-9"}
	ident, err := dal.Identities().Link(ctx, userID, adfs)
	require.NoError(t, err)
	assert.Equal(t, userID, ident.UserID)

	list, err := dal.Identities().ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// La misma identidad no puede vincularse a otro usuario.
	otherID, _, err := dal.Identities().ResolveOrCreate(ctx, googleAssertion("sub-2"))
	require.NoError(t, err)
	_, err = dal.Identities().Link(ctx, otherID, adfs)
	assert.ErrorIs(t, err, repository.ErrIdentityLinked)
}

func TestUnlink_LastIdentityRejected(t *testing.T) {
	ctx := context.Background()
	dal := memory.New()

	userID, _, err := dal.Identities().ResolveOrCreate(ctx, googleAssertion("sub-1"))
	require.NoError(t, err)

	list, err := dal.Identities().ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	err = dal.Identities().Unlink(ctx, userID, list[0].ID)
	assert.ErrorIs(t, err, repository.ErrLastIdentity)

	// Con una segunda identidad el unlink procede.
	_, err = dal.Identities().Link(ctx, userID, repository.ResolveIdentityInput{Backend: "adfs", Subject: "emp-9"})
	require.NoError(t, err)
	require.NoError(t, dal.Identities().Unlink(ctx, userID, list[0].ID))

	remaining, err := dal.Identities().ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
	assert.Equal(t, "adfs", remaining[0].Backend)
}
