package oauth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/cache"
	"github.com/dropDatabas3/janus/internal/domain/repository"
	dto "github.com/dropDatabas3/janus/internal/http/dto/oauth"
	oauthsvc "github.com/dropDatabas3/janus/internal/http/services/oauth"
	"github.com/dropDatabas3/janus/internal/registry"
	"github.com/dropDatabas3/janus/internal/security/token"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

// fakeStarter simula el arranque de login contra un backend externo.
type fakeStarter struct {
	names []string
}

func (f *fakeStarter) StartLogin(_ context.Context, backend, state string) (string, error) {
	return "https://idp.example/" + backend + "/auth?state=" + state, nil
}
func (f *fakeStarter) HasBackend(name string) bool {
	for _, n := range f.names {
		if n == name {
			return true
		}
	}
	return false
}
func (f *fakeStarter) BackendNames() []string { return f.names }

type authFixture struct {
	dal     *memory.DAL
	cache   cache.Client
	service oauthsvc.AuthorizeService
	svc     *repository.Service
}

func newAuthFixture(t *testing.T, backends []string) *authFixture {
	t.Helper()
	dal := memory.New()
	c := cache.NewMemory("", time.Minute)

	svc := &repository.Service{
		Name:          "Demo RP",
		ClientID:      "demo",
		Type:          repository.ServiceTypePublic,
		RedirectURIs:  []string{"https://rp.example/cb"},
		AllowedScopes: []string{"openid", "email", "profile"},
	}
	require.NoError(t, dal.Services().Create(context.Background(), svc))

	service := oauthsvc.NewAuthorizeService(oauthsvc.AuthorizeDeps{
		DAL:       dal,
		Registry:  registry.New(dal.Services(), time.Minute),
		Cache:     c,
		Backends:  &fakeStarter{names: backends},
		UIBaseURL: "http://ui.test",
	})
	return &authFixture{dal: dal, cache: c, service: service, svc: svc}
}

// login crea usuario, sesión y devuelve un request con la cookie puesta.
func (f *authFixture) login(t *testing.T) (*repository.Session, *http.Request) {
	t.Helper()
	ctx := context.Background()

	userID, _, err := f.dal.Identities().ResolveOrCreate(ctx, repository.ResolveIdentityInput{
		Backend: "google", Subject: "sub-1", Email: "ana@example.com", EmailVerified: true,
	})
	require.NoError(t, err)

	raw := "session-raw-value"
	sess, err := f.dal.Sessions().Create(ctx, repository.CreateSessionInput{
		UserID:    userID,
		TokenHash: token.SHA256Base64URL(raw),
		Backend:   "google",
		AMR:       []string{"federated"},
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/oauth2/authorize", nil)
	r.AddCookie(&http.Cookie{Name: "janus_session", Value: raw})
	return sess, r
}

func (f *authFixture) grantConsent(t *testing.T, userID string, scopes []string) {
	t.Helper()
	_, err := f.dal.Consents().Upsert(context.Background(), userID, f.svc.ID, scopes)
	require.NoError(t, err)
}

func validRequest() dto.AuthorizeRequest {
	return dto.AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "demo",
		RedirectURI:         "https://rp.example/cb",
		Scope:               "openid email",
		State:               "xyz",
		Nonce:               "n-1",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
	}
}

func TestAuthorize_UnknownClientIsJSONError(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})
	req := validRequest()
	req.ClientID = "ghost"

	_, err := f.service.Authorize(context.Background(), httptest.NewRequest("GET", "/", nil), req)
	assert.ErrorIs(t, err, oauthsvc.ErrInvalidClient)
}

func TestAuthorize_RedirectURIExactMatch(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})

	for _, uri := range []string{
		"",
		"https://rp.example/cb/",       // trailing slash
		"https://rp.example/cb?x=1",    // extra query
		"https://RP.example/cb",        // casing
		"https://rp.example/cb/deeper", // prefijo
		"https://evil.example/cb",
	} {
		req := validRequest()
		req.RedirectURI = uri
		_, err := f.service.Authorize(context.Background(), httptest.NewRequest("GET", "/", nil), req)
		assert.ErrorIs(t, err, oauthsvc.ErrInvalidRedirect, "uri %q must be rejected", uri)
	}
}

func TestAuthorize_RedirectStyleErrors(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})
	sess, r := f.login(t)
	f.grantConsent(t, sess.UserID, []string{"openid", "email"})

	cases := []struct {
		name   string
		mutate func(*dto.AuthorizeRequest)
		code   string
	}{
		{"response_type", func(q *dto.AuthorizeRequest) { q.ResponseType = "token" }, "unsupported_response_type"},
		{"missing openid", func(q *dto.AuthorizeRequest) { q.Scope = "email" }, "invalid_scope"},
		{"scope not allowed", func(q *dto.AuthorizeRequest) { q.Scope = "openid admin" }, "invalid_scope"},
		{"pkce missing", func(q *dto.AuthorizeRequest) { q.CodeChallenge = "" }, "invalid_request"},
		{"pkce plain", func(q *dto.AuthorizeRequest) { q.CodeChallengeMethod = "plain" }, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			res, err := f.service.Authorize(context.Background(), r, req)
			require.NoError(t, err)
			assert.Equal(t, dto.AuthResultError, res.Type)
			assert.Equal(t, tc.code, res.ErrorCode)
			assert.Equal(t, "xyz", res.State, "state se preserva en el error")
		})
	}
}

func TestAuthorize_NoSessionParksForLogin(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})

	res, err := f.service.Authorize(context.Background(), httptest.NewRequest("GET", "/", nil), validRequest())
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultNeedLogin, res.Type)
	assert.NotEmpty(t, res.ResumeToken)
	// Backend único: directo al IdP, sin picker.
	assert.True(t, strings.HasPrefix(res.RedirectTo, "https://idp.example/google/"), res.RedirectTo)
}

func TestAuthorize_MultipleBackendsGoToPicker(t *testing.T) {
	f := newAuthFixture(t, []string{"adfs", "google"})

	res, err := f.service.Authorize(context.Background(), httptest.NewRequest("GET", "/", nil), validRequest())
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultNeedLogin, res.Type)
	assert.True(t, strings.HasPrefix(res.RedirectTo, "http://ui.test/login?resume="), res.RedirectTo)
}

func TestAuthorize_PromptNoneWithoutSession(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})
	req := validRequest()
	req.Prompt = "none"

	res, err := f.service.Authorize(context.Background(), httptest.NewRequest("GET", "/", nil), req)
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultError, res.Type)
	assert.Equal(t, "login_required", res.ErrorCode)
}

func TestAuthorize_PromptNoneWithoutConsent(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})
	_, r := f.login(t)
	req := validRequest()
	req.Prompt = "none"

	res, err := f.service.Authorize(context.Background(), r, req)
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultError, res.Type)
	assert.Equal(t, "consent_required", res.ErrorCode)
}

func TestAuthorize_ConsentCoveredMintsCode(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})
	sess, r := f.login(t)
	f.grantConsent(t, sess.UserID, []string{"openid", "email", "profile"})

	res, err := f.service.Authorize(context.Background(), r, validRequest())
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultSuccess, res.Type)
	assert.NotEmpty(t, res.Code)
	assert.Equal(t, "xyz", res.State)
	assert.Equal(t, "https://rp.example/cb", res.RedirectURI)

	// El service queda registrado en la sesión para el logout fan-out.
	got, err := f.dal.Sessions().GetByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Contains(t, got.VisitedIDs, f.svc.ID)
}

func TestAuthorize_PartialConsentParksForConsent(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})
	sess, r := f.login(t)
	f.grantConsent(t, sess.UserID, []string{"openid"}) // falta email

	res, err := f.service.Authorize(context.Background(), r, validRequest())
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultConsentRequired, res.Type)
	assert.True(t, strings.HasPrefix(res.RedirectTo, "http://ui.test/consent?resume="), res.RedirectTo)
}

func TestAuthorize_PromptLoginForcesReauth(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})
	sess, r := f.login(t)
	f.grantConsent(t, sess.UserID, []string{"openid", "email"})

	req := validRequest()
	req.Prompt = "login"
	res, err := f.service.Authorize(context.Background(), r, req)
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultNeedLogin, res.Type)
}

func TestResume_CompletesAfterLogin(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})

	// 1. Sin sesión: el request queda parkeado.
	parked, err := f.service.Authorize(context.Background(), httptest.NewRequest("GET", "/", nil), validRequest())
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultNeedLogin, parked.Type)

	// 2. Login externo completado, consent previo presente.
	sess, _ := f.login(t)
	f.grantConsent(t, sess.UserID, []string{"openid", "email"})

	res, err := f.service.Resume(context.Background(), httptest.NewRequest("GET", "/", nil), parked.ResumeToken, sess)
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultSuccess, res.Type)
	assert.NotEmpty(t, res.Code)

	// 3. El resume token es one-shot.
	_, err = f.service.Resume(context.Background(), httptest.NewRequest("GET", "/", nil), parked.ResumeToken, sess)
	assert.ErrorIs(t, err, oauthsvc.ErrInvalidResume)
}

func TestResume_WithoutConsentParksForConsent(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})

	parked, err := f.service.Authorize(context.Background(), httptest.NewRequest("GET", "/", nil), validRequest())
	require.NoError(t, err)

	sess, _ := f.login(t)
	res, err := f.service.Resume(context.Background(), httptest.NewRequest("GET", "/", nil), parked.ResumeToken, sess)
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultConsentRequired, res.Type)
}

func TestConsentFlow_ApproveMintsAndPersists(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})
	sess, r := f.login(t)

	parked, err := f.service.Authorize(context.Background(), r, validRequest())
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultConsentRequired, parked.Type)

	prompt, err := f.service.ConsentPrompt(context.Background(), parked.ResumeToken)
	require.NoError(t, err)
	assert.Equal(t, "Demo RP", prompt.ServiceName)
	assert.ElementsMatch(t, []string{"openid", "email"}, prompt.Scopes)

	res, err := f.service.ApproveConsent(context.Background(), r, parked.ResumeToken, sess, []string{"openid", "email"})
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultSuccess, res.Type)

	// El consent queda persistido: el próximo authorize no re-pregunta.
	res, err = f.service.Authorize(context.Background(), r, validRequest())
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultSuccess, res.Type)
}

func TestConsentFlow_ApproveSupersetRejected(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})
	sess, r := f.login(t)

	parked, err := f.service.Authorize(context.Background(), r, validRequest())
	require.NoError(t, err)

	_, err = f.service.ApproveConsent(context.Background(), r, parked.ResumeToken, sess,
		[]string{"openid", "email", "profile"}) // profile no fue pedido
	assert.ErrorIs(t, err, oauthsvc.ErrInvalidResume)
}

func TestConsentFlow_ReducedScopesDenied(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})
	sess, r := f.login(t)

	parked, err := f.service.Authorize(context.Background(), r, validRequest())
	require.NoError(t, err)

	res, err := f.service.ApproveConsent(context.Background(), r, parked.ResumeToken, sess, []string{"openid"})
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultError, res.Type)
	assert.Equal(t, "access_denied", res.ErrorCode)
}

func TestConsentFlow_Deny(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})
	_, r := f.login(t)

	parked, err := f.service.Authorize(context.Background(), r, validRequest())
	require.NoError(t, err)

	res, err := f.service.DenyConsent(context.Background(), parked.ResumeToken)
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultError, res.Type)
	assert.Equal(t, "access_denied", res.ErrorCode)
	assert.Equal(t, "https://rp.example/cb", res.RedirectURI)
}

func TestConsentFlow_UnionMerge(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})
	sess, r := f.login(t)
	f.grantConsent(t, sess.UserID, []string{"openid", "profile"})

	// Pide email, que no estaba cubierto.
	parked, err := f.service.Authorize(context.Background(), r, validRequest())
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultConsentRequired, parked.Type)

	_, err = f.service.ApproveConsent(context.Background(), r, parked.ResumeToken, sess, []string{"openid", "email"})
	require.NoError(t, err)

	consent, err := f.dal.Consents().Get(context.Background(), sess.UserID, f.svc.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"openid", "profile", "email"}, consent.Scopes,
		"la aprobación se une con lo ya otorgado")
}

func TestAuthorize_ConfidentialWithoutPKCEAllowed(t *testing.T) {
	f := newAuthFixture(t, []string{"google"})

	conf := &repository.Service{
		Name:          "Machine RP",
		ClientID:      "conf",
		Type:          repository.ServiceTypeConfidential,
		RedirectURIs:  []string{"https://conf.example/cb"},
		AllowedScopes: []string{"openid"},
	}
	require.NoError(t, f.dal.Services().Create(context.Background(), conf))

	sess, r := f.login(t)
	_, err := f.dal.Consents().Upsert(context.Background(), sess.UserID, conf.ID, []string{"openid"})
	require.NoError(t, err)

	req := dto.AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "conf",
		RedirectURI:  "https://conf.example/cb",
		Scope:        "openid",
	}
	res, err := f.service.Authorize(context.Background(), r, req)
	require.NoError(t, err)
	assert.Equal(t, dto.AuthResultSuccess, res.Type)
}
