package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/dropDatabas3/janus/internal/http/services/session"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

func newService(cfg session.Config) (session.Service, *memory.DAL) {
	dal := memory.New()
	return session.New(session.Deps{Sessions: dal.Sessions(), Config: cfg}), dal
}

func requestWithCookie(name, value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	r.AddCookie(&http.Cookie{Name: name, Value: value})
	return r
}

func TestEstablishAndResolve(t *testing.T) {
	svc, _ := newService(session.Config{})
	ctx := context.Background()

	sess, raw, err := svc.Establish(ctx, "user-1", "google", []string{"federated"})
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	assert.NotEqual(t, raw, sess.TokenHash, "solo el hash se persiste, nunca el valor crudo")

	got, err := svc.Resolve(ctx, requestWithCookie("janus_session", raw))
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, []string{"federated"}, got.AMR)
}

func TestResolve_NoCookie(t *testing.T) {
	svc, _ := newService(session.Config{})

	_, err := svc.Resolve(context.Background(), httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestResolve_UnknownToken(t *testing.T) {
	svc, _ := newService(session.Config{})

	_, err := svc.Resolve(context.Background(), requestWithCookie("janus_session", "garbage"))
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestResolve_EndedSession(t *testing.T) {
	svc, _ := newService(session.Config{})
	ctx := context.Background()

	sess, raw, err := svc.Establish(ctx, "user-1", "google", nil)
	require.NoError(t, err)
	require.NoError(t, svc.End(ctx, sess.ID))

	_, err = svc.Resolve(ctx, requestWithCookie("janus_session", raw))
	assert.ErrorIs(t, err, session.ErrSessionExpired)
}

func TestResolve_TTLExpiry(t *testing.T) {
	svc, _ := newService(session.Config{TTL: time.Millisecond})
	ctx := context.Background()

	_, raw, err := svc.Establish(ctx, "user-1", "google", nil)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = svc.Resolve(ctx, requestWithCookie("janus_session", raw))
	assert.ErrorIs(t, err, session.ErrSessionExpired)
}

func TestResolve_TouchesActivity(t *testing.T) {
	svc, dal := newService(session.Config{})
	ctx := context.Background()

	sess, raw, err := svc.Establish(ctx, "user-1", "google", nil)
	require.NoError(t, err)

	before, err := dal.Sessions().GetByID(ctx, sess.ID)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = svc.Resolve(ctx, requestWithCookie("janus_session", raw))
	require.NoError(t, err)

	after, err := dal.Sessions().GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, after.LastActivity.After(before.LastActivity))
}

func TestEndAll(t *testing.T) {
	svc, dal := newService(session.Config{})
	ctx := context.Background()

	a, _, err := svc.Establish(ctx, "user-1", "google", nil)
	require.NoError(t, err)
	b, _, err := svc.Establish(ctx, "user-1", "adfs", nil)
	require.NoError(t, err)
	other, _, err := svc.Establish(ctx, "user-2", "google", nil)
	require.NoError(t, err)

	n, err := svc.EndAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{a.ID, b.ID} {
		got, err := dal.Sessions().GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, repository.SessionLoggedOut, got.Status(time.Now(), 0))
	}
	got, err := dal.Sessions().GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionActive, got.Status(time.Now(), 0))
}

func TestCookies(t *testing.T) {
	svc, _ := newService(session.Config{
		CookieName: "sso",
		Domain:     "broker.test",
		Secure:     true,
		TTL:        time.Hour,
	})

	ck := svc.Cookie("raw-value")
	assert.Equal(t, "sso", ck.Name)
	assert.Equal(t, "raw-value", ck.Value)
	assert.Equal(t, "broker.test", ck.Domain)
	assert.Equal(t, 3600, ck.MaxAge)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)

	del := svc.ClearCookie()
	assert.Equal(t, "sso", del.Name)
	assert.Empty(t, del.Value)
	assert.Negative(t, del.MaxAge)

	assert.Equal(t, "sso", svc.CookieName())
}
