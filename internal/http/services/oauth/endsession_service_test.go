package oauth_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	dto "github.com/dropDatabas3/janus/internal/http/dto/oauth"
	oauthsvc "github.com/dropDatabas3/janus/internal/http/services/oauth"
	jwtx "github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/security/token"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

type endSessionFixture struct {
	dal     *memory.DAL
	issuer  *jwtx.Issuer
	service oauthsvc.EndSessionService
	seq     int
}

func newEndSessionFixture(t *testing.T) *endSessionFixture {
	t.Helper()
	dal := memory.New()
	ks, err := jwtx.OpenKeystore(t.TempDir())
	require.NoError(t, err)
	issuer := jwtx.NewIssuer("https://broker.test", ks)

	return &endSessionFixture{
		dal:    dal,
		issuer: issuer,
		service: oauthsvc.NewEndSessionService(oauthsvc.EndSessionDeps{
			Sessions:  dal.Sessions(),
			Services:  dal.Services(),
			Issuer:    issuer,
			UIBaseURL: "http://ui.test",
		}),
	}
}

func (f *endSessionFixture) seedService(t *testing.T, clientID, channel, logoutURI string) *repository.Service {
	t.Helper()
	svc := &repository.Service{
		Name:          clientID,
		ClientID:      clientID,
		Type:          repository.ServiceTypePublic,
		RedirectURIs:  []string{"https://" + clientID + ".example/cb"},
		AllowedScopes: []string{"openid"},
		LogoutChannel: channel,
		LogoutURI:     logoutURI,
	}
	require.NoError(t, f.dal.Services().Create(context.Background(), svc))
	return svc
}

// seedSession crea usuario + sesión con los services dados ya visitados.
func (f *endSessionFixture) seedSession(t *testing.T, visited ...*repository.Service) (*repository.Session, *http.Request) {
	t.Helper()
	ctx := context.Background()

	userID, _, err := f.dal.Identities().ResolveOrCreate(ctx, repository.ResolveIdentityInput{
		Backend: "google", Subject: "sub-logout", Email: "ana@example.com",
	})
	require.NoError(t, err)

	f.seq++
	raw := fmt.Sprintf("session-raw-%d", f.seq)
	sess, err := f.dal.Sessions().Create(ctx, repository.CreateSessionInput{
		UserID:    userID,
		TokenHash: token.SHA256Base64URL(raw),
		Backend:   "google",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	for _, svc := range visited {
		require.NoError(t, f.dal.Sessions().AddVisitedService(ctx, sess.ID, svc.ID))
	}

	r := httptest.NewRequest(http.MethodGet, "/oauth2/end-session", nil)
	r.AddCookie(&http.Cookie{Name: "janus_session", Value: raw})
	return sess, r
}

func findNotification(ns []dto.LogoutNotification, clientID string) (dto.LogoutNotification, bool) {
	for _, n := range ns {
		if n.ClientID == clientID {
			return n, true
		}
	}
	return dto.LogoutNotification{}, false
}

func TestEndSession_FanOut(t *testing.T) {
	f := newEndSessionFixture(t)

	var (
		mu       sync.Mutex
		received []string
	)
	okBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		received = append(received, r.PostFormValue("logout_token"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer okBackend.Close()
	downBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound) // 4xx no se reintenta
	}))
	defer downBackend.Close()

	back := f.seedService(t, "rp-back", repository.LogoutChannelBack, okBackend.URL)
	down := f.seedService(t, "rp-down", repository.LogoutChannelBack, downBackend.URL)
	front := f.seedService(t, "rp-front", repository.LogoutChannelFront, "https://rp-front.example/fc-logout")
	silent := f.seedService(t, "rp-silent", repository.LogoutChannelNone, "")

	sess, r := f.seedSession(t, back, down, front, silent)

	res, err := f.service.EndSession(context.Background(), r, dto.EndSessionRequest{AllServices: true})
	require.NoError(t, err)
	assert.True(t, res.SessionEnded)
	assert.Equal(t, "http://ui.test/logged-out", res.RedirectTo)
	assert.Len(t, res.Notifications, 3, "el service sin logout channel no participa")

	n, ok := findNotification(res.Notifications, "rp-back")
	require.True(t, ok)
	assert.True(t, n.OK)

	n, ok = findNotification(res.Notifications, "rp-down")
	require.True(t, ok)
	assert.False(t, n.OK)
	assert.NotEmpty(t, n.Error)

	n, ok = findNotification(res.Notifications, "rp-front")
	require.True(t, ok)
	assert.True(t, n.OK)
	u, err := url.Parse(n.FrontchannelURI)
	require.NoError(t, err)
	assert.Equal(t, "https://broker.test", u.Query().Get("iss"))
	assert.Equal(t, sess.ID, u.Query().Get("sid"))

	// El logout token recibido es un JWT firmado por el broker con el
	// events claim de backchannel logout y el sid de la sesión.
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	claims, err := f.issuer.Parse(received[0])
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, claims["sub"])
	assert.Equal(t, sess.ID, claims["sid"])
	events, ok := claims["events"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, events, "http://schemas.openid.net/event/backchannel-logout")
	_, hasNonce := claims["nonce"]
	assert.False(t, hasNonce, "logout tokens nunca llevan nonce")

	// La sesión quedó cerrada.
	got, err := f.dal.Sessions().GetByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionLoggedOut, got.Status(time.Now(), 0))
}

func TestEndSession_LocalLogoutSkipsFanOut(t *testing.T) {
	f := newEndSessionFixture(t)

	var (
		mu    sync.Mutex
		posts int
	)
	backendRP := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		posts++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer backendRP.Close()

	back := f.seedService(t, "rp-back", repository.LogoutChannelBack, backendRP.URL)
	sess, r := f.seedSession(t, back)

	other, err := f.dal.Sessions().Create(context.Background(), repository.CreateSessionInput{
		UserID:    sess.UserID,
		TokenHash: token.SHA256Base64URL("other-device-local"),
		Backend:   "google",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	res, err := f.service.EndSession(context.Background(), r, dto.EndSessionRequest{})
	require.NoError(t, err)
	assert.True(t, res.SessionEnded)
	assert.Empty(t, res.Notifications, "sin all_services no hay fan-out")

	mu.Lock()
	assert.Zero(t, posts, "el RP de backchannel no recibe nada")
	mu.Unlock()

	// Las otras sesiones del usuario siguen activas.
	got, err := f.dal.Sessions().GetByID(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionActive, got.Status(time.Now(), 0))
}

func TestEndSession_WithoutSessionIsNoOp(t *testing.T) {
	f := newEndSessionFixture(t)

	r := httptest.NewRequest(http.MethodGet, "/oauth2/end-session", nil)
	res, err := f.service.EndSession(context.Background(), r, dto.EndSessionRequest{State: "st"})
	require.NoError(t, err)
	assert.False(t, res.SessionEnded)
	assert.Empty(t, res.Notifications)
	assert.Equal(t, "http://ui.test/logged-out", res.RedirectTo)
	assert.Equal(t, "st", res.State)
}

func TestEndSession_PostLogoutRedirectValidation(t *testing.T) {
	f := newEndSessionFixture(t)
	f.seedService(t, "rp-a", repository.LogoutChannelNone, "")

	t.Run("registered uri accepted", func(t *testing.T) {
		_, r := f.seedSession(t)
		res, err := f.service.EndSession(context.Background(), r, dto.EndSessionRequest{
			ClientID:              "rp-a",
			PostLogoutRedirectURI: "https://rp-a.example/cb",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://rp-a.example/cb", res.RedirectTo)
	})

	t.Run("unregistered uri falls back to ui", func(t *testing.T) {
		_, r := f.seedSession(t)
		res, err := f.service.EndSession(context.Background(), r, dto.EndSessionRequest{
			ClientID:              "rp-a",
			PostLogoutRedirectURI: "https://evil.example/phish",
		})
		require.NoError(t, err)
		assert.Equal(t, "http://ui.test/logged-out", res.RedirectTo)
	})

	t.Run("uri without client is ignored", func(t *testing.T) {
		_, r := f.seedSession(t)
		res, err := f.service.EndSession(context.Background(), r, dto.EndSessionRequest{
			PostLogoutRedirectURI: "https://rp-a.example/cb",
		})
		require.NoError(t, err)
		assert.Equal(t, "http://ui.test/logged-out", res.RedirectTo)
	})
}

func TestEndSession_IDTokenHintIdentifiesClient(t *testing.T) {
	f := newEndSessionFixture(t)
	f.seedService(t, "rp-a", repository.LogoutChannelNone, "")

	idToken, _, err := f.issuer.IssueIDToken("user-1", "rp-a", nil, 0)
	require.NoError(t, err)

	_, r := f.seedSession(t)
	res, err := f.service.EndSession(context.Background(), r, dto.EndSessionRequest{
		IDTokenHint:           idToken,
		PostLogoutRedirectURI: "https://rp-a.example/cb",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://rp-a.example/cb", res.RedirectTo)
}

func TestEndSession_AllServicesEndsOtherSessions(t *testing.T) {
	f := newEndSessionFixture(t)
	ctx := context.Background()

	sess, r := f.seedSession(t)

	other, err := f.dal.Sessions().Create(ctx, repository.CreateSessionInput{
		UserID:    sess.UserID,
		TokenHash: token.SHA256Base64URL("other-device"),
		Backend:   "google",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	res, err := f.service.EndSession(ctx, r, dto.EndSessionRequest{AllServices: true})
	require.NoError(t, err)
	assert.True(t, res.SessionEnded)

	got, err := f.dal.Sessions().GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionLoggedOut, got.Status(time.Now(), 0))
}

func TestEndSession_DoubleLogoutIsIdempotent(t *testing.T) {
	f := newEndSessionFixture(t)
	_, r := f.seedSession(t)

	res, err := f.service.EndSession(context.Background(), r, dto.EndSessionRequest{})
	require.NoError(t, err)
	assert.True(t, res.SessionEnded)

	// Misma cookie de nuevo: la sesión ya no resuelve, no-op.
	res, err = f.service.EndSession(context.Background(), r, dto.EndSessionRequest{})
	require.NoError(t, err)
	assert.False(t, res.SessionEnded)
}
