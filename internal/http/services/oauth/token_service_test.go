package oauth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/janus/internal/cache"
	"github.com/dropDatabas3/janus/internal/domain/repository"
	dto "github.com/dropDatabas3/janus/internal/http/dto/oauth"
	oauthsvc "github.com/dropDatabas3/janus/internal/http/services/oauth"
	jwtx "github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/registry"
	"github.com/dropDatabas3/janus/internal/security/token"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

const pkceVerifier = "correct-horse-battery-staple-correct-horse-battery"

type tokenFixture struct {
	dal       *memory.DAL
	cache     cache.Client
	issuer    *jwtx.Issuer
	authorize oauthsvc.AuthorizeService
	tokens    oauthsvc.TokenService
	svc       *repository.Service
	userID    string
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()
	dal := memory.New()
	c := cache.NewMemory("", time.Minute)

	ks, err := jwtx.OpenKeystore(t.TempDir())
	require.NoError(t, err)
	issuer := jwtx.NewIssuer("https://broker.test", ks)

	svc := &repository.Service{
		Name:            "Demo RP",
		ClientID:        "demo",
		Type:            repository.ServiceTypePublic,
		RedirectURIs:    []string{"https://rp.example/cb"},
		AllowedScopes:   []string{"openid", "email", "profile"},
		RefreshEligible: true,
	}
	require.NoError(t, dal.Services().Create(context.Background(), svc))

	reg := registry.New(dal.Services(), time.Minute)
	f := &tokenFixture{
		dal:    dal,
		cache:  c,
		issuer: issuer,
		svc:    svc,
		authorize: oauthsvc.NewAuthorizeService(oauthsvc.AuthorizeDeps{
			DAL:      dal,
			Registry: reg,
			Cache:    c,
			Backends: &fakeStarter{names: []string{"google"}},
			CodeTTL:  time.Minute,
		}),
		tokens: oauthsvc.NewTokenService(oauthsvc.TokenDeps{
			DAL:      dal,
			Registry: reg,
			Issuer:   issuer,
			Cache:    c,
		}),
	}

	userID, _, err := dal.Identities().ResolveOrCreate(context.Background(), repository.ResolveIdentityInput{
		Backend: "google", Subject: "sub-1",
		Email: "ana@example.com", EmailVerified: true, Name: "Ana Demo",
	})
	require.NoError(t, err)
	f.userID = userID
	return f
}

// mintCode corre el flujo authorize completo y devuelve el code emitido.
func (f *tokenFixture) mintCode(t *testing.T, scope string) string {
	t.Helper()
	ctx := context.Background()

	raw := "session-raw-value"
	_, err := f.dal.Sessions().Create(ctx, repository.CreateSessionInput{
		UserID:    f.userID,
		TokenHash: token.SHA256Base64URL(raw),
		Backend:   "google",
		AMR:       []string{"federated"},
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = f.dal.Consents().Upsert(ctx, f.userID, f.svc.ID, []string{"openid", "email", "profile"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/oauth2/authorize", nil)
	r.AddCookie(&http.Cookie{Name: "janus_session", Value: raw})

	res, err := f.authorize.Authorize(ctx, r, dto.AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "demo",
		RedirectURI:         "https://rp.example/cb",
		Scope:               scope,
		State:               "xyz",
		Nonce:               "n-1",
		CodeChallenge:       token.SHA256Base64URL(pkceVerifier),
		CodeChallengeMethod: "S256",
	})
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultSuccess, res.Type, "error: %s %s", res.ErrorCode, res.ErrorDescription)
	return res.Code
}

func codeRequest(code string) dto.TokenRequest {
	return dto.TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://rp.example/cb",
		CodeVerifier: pkceVerifier,
		ClientID:     "demo",
	}
}

func TestExchangeCode_HappyPath(t *testing.T) {
	f := newTokenFixture(t)
	code := f.mintCode(t, "openid email")

	res, err := f.tokens.ExchangeAuthorizationCode(context.Background(), codeRequest(code))
	require.NoError(t, err)

	assert.Equal(t, "Bearer", res.TokenType)
	assert.Equal(t, "openid email", res.Scope)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Greater(t, res.ExpiresIn, int64(0))

	// Access token firmado por el broker, aud = client_id.
	claims, err := f.issuer.Parse(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.userID, claims["sub"])
	aud, _ := claims.GetAudience()
	assert.Contains(t, aud, "demo")
	assert.Equal(t, "openid email", claims["scope"])

	// ID token con nonce y at_hash del access token.
	idClaims, err := f.issuer.Parse(res.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "n-1", idClaims["nonce"])
	assert.Equal(t, jwtx.AtHash(res.AccessToken), idClaims["at_hash"])
	assert.Equal(t, "ana@example.com", idClaims["email"])
	assert.Equal(t, true, idClaims["email_verified"])
}

func TestExchangeCode_SingleUseAndReplayRevokesFamily(t *testing.T) {
	f := newTokenFixture(t)
	code := f.mintCode(t, "openid email")

	first, err := f.tokens.ExchangeAuthorizationCode(context.Background(), codeRequest(code))
	require.NoError(t, err)

	// Segundo canje del mismo code: invalid_grant y la familia de refresh
	// del primer canje cae entera.
	_, err = f.tokens.ExchangeAuthorizationCode(context.Background(), codeRequest(code))
	assert.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant)

	rt, err := f.dal.RefreshTokens().GetByHash(context.Background(), token.SHA256Base64URL(first.RefreshToken))
	require.NoError(t, err)
	assert.NotNil(t, rt.RevokedAt, "el replay del code revoca la familia derivada")
}

func TestExchangeCode_WrongVerifier(t *testing.T) {
	f := newTokenFixture(t)
	code := f.mintCode(t, "openid")

	req := codeRequest(code)
	req.CodeVerifier = "not-the-right-verifier-not-the-right-verifier-xx"
	_, err := f.tokens.ExchangeAuthorizationCode(context.Background(), req)
	assert.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant)

	// El code ya fue consumido por el intento fallido.
	_, err = f.tokens.ExchangeAuthorizationCode(context.Background(), codeRequest(code))
	assert.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant)
}

func TestExchangeCode_RedirectURIMismatch(t *testing.T) {
	f := newTokenFixture(t)
	code := f.mintCode(t, "openid")

	req := codeRequest(code)
	req.RedirectURI = "https://rp.example/cb/other"
	_, err := f.tokens.ExchangeAuthorizationCode(context.Background(), req)
	assert.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant)
}

func TestExchangeCode_DisabledUser(t *testing.T) {
	f := newTokenFixture(t)
	code := f.mintCode(t, "openid")

	require.NoError(t, f.dal.Users().Disable(context.Background(), f.userID, "admin", "fraude"))

	_, err := f.tokens.ExchangeAuthorizationCode(context.Background(), codeRequest(code))
	assert.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant)
}

func refreshRequest(raw string) dto.TokenRequest {
	return dto.TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: raw,
		ClientID:     "demo",
	}
}

func TestRefresh_RotationAdvancesGeneration(t *testing.T) {
	f := newTokenFixture(t)
	code := f.mintCode(t, "openid email")

	first, err := f.tokens.ExchangeAuthorizationCode(context.Background(), codeRequest(code))
	require.NoError(t, err)

	rotated, err := f.tokens.ExchangeRefreshToken(context.Background(), refreshRequest(first.RefreshToken))
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, rotated.RefreshToken)
	assert.NotEmpty(t, rotated.IDToken, "openid en los scopes produce id_token")

	old, err := f.dal.RefreshTokens().GetByHash(context.Background(), token.SHA256Base64URL(first.RefreshToken))
	require.NoError(t, err)
	next, err := f.dal.RefreshTokens().GetByHash(context.Background(), token.SHA256Base64URL(rotated.RefreshToken))
	require.NoError(t, err)

	assert.NotNil(t, old.RevokedAt)
	assert.Nil(t, next.RevokedAt)
	assert.Equal(t, old.FamilyID, next.FamilyID)
	assert.Equal(t, old.Generation+1, next.Generation)
	require.NotNil(t, next.RotatedFrom)
	assert.Equal(t, old.ID, *next.RotatedFrom)
}

func TestRefresh_ReplayOfRotatedTokenKillsFamily(t *testing.T) {
	f := newTokenFixture(t)
	code := f.mintCode(t, "openid email")

	first, err := f.tokens.ExchangeAuthorizationCode(context.Background(), codeRequest(code))
	require.NoError(t, err)
	rotated, err := f.tokens.ExchangeRefreshToken(context.Background(), refreshRequest(first.RefreshToken))
	require.NoError(t, err)

	// Presentar el token viejo otra vez revoca la cadena completa.
	_, err = f.tokens.ExchangeRefreshToken(context.Background(), refreshRequest(first.RefreshToken))
	assert.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant)

	_, err = f.tokens.ExchangeRefreshToken(context.Background(), refreshRequest(rotated.RefreshToken))
	assert.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant, "el token vigente también cae")
}

func TestRefresh_ConsentRevokedInvalidates(t *testing.T) {
	f := newTokenFixture(t)
	code := f.mintCode(t, "openid email")

	first, err := f.tokens.ExchangeAuthorizationCode(context.Background(), codeRequest(code))
	require.NoError(t, err)

	require.NoError(t, f.dal.Consents().Revoke(context.Background(), f.userID, f.svc.ID))

	_, err = f.tokens.ExchangeRefreshToken(context.Background(), refreshRequest(first.RefreshToken))
	assert.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant)
}

func TestRefresh_ScopeNarrowing(t *testing.T) {
	f := newTokenFixture(t)
	code := f.mintCode(t, "openid email")

	first, err := f.tokens.ExchangeAuthorizationCode(context.Background(), codeRequest(code))
	require.NoError(t, err)

	req := refreshRequest(first.RefreshToken)
	req.Scope = "openid"
	res, err := f.tokens.ExchangeRefreshToken(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "openid", res.Scope)

	// El token rotado conserva los scopes originales: un refresh posterior
	// puede volver a pedir el set completo.
	res2, err := f.tokens.ExchangeRefreshToken(context.Background(), refreshRequest(res.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, "openid email", res2.Scope)
}

func TestRefresh_ScopeWideningRejected(t *testing.T) {
	f := newTokenFixture(t)
	code := f.mintCode(t, "openid")

	first, err := f.tokens.ExchangeAuthorizationCode(context.Background(), codeRequest(code))
	require.NoError(t, err)

	req := refreshRequest(first.RefreshToken)
	req.Scope = "openid email"
	_, err = f.tokens.ExchangeRefreshToken(context.Background(), req)
	assert.ErrorIs(t, err, oauthsvc.ErrTokenInvalidScope)
}

func TestClientCredentials(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	conf := &repository.Service{
		Name:             "Batch Job",
		ClientID:         "batch",
		Type:             repository.ServiceTypeConfidential,
		ClientSecretHash: string(hash),
		AllowedScopes:    []string{"reports:read", "reports:write"},
		GrantTypes:       []string{"client_credentials"},
	}
	require.NoError(t, f.dal.Services().Create(ctx, conf))

	t.Run("happy path", func(t *testing.T) {
		res, err := f.tokens.ExchangeClientCredentials(ctx, dto.TokenRequest{
			GrantType: "client_credentials", ClientID: "batch", ClientSecret: "s3cret", Scope: "reports:read",
		})
		require.NoError(t, err)
		assert.Equal(t, "reports:read", res.Scope)
		assert.Empty(t, res.RefreshToken)

		claims, err := f.issuer.Parse(res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "batch", claims["sub"], "sub es el propio client")
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := f.tokens.ExchangeClientCredentials(ctx, dto.TokenRequest{
			GrantType: "client_credentials", ClientID: "batch", ClientSecret: "nope",
		})
		assert.ErrorIs(t, err, oauthsvc.ErrTokenInvalidClient)
	})

	t.Run("public client rejected", func(t *testing.T) {
		_, err := f.tokens.ExchangeClientCredentials(ctx, dto.TokenRequest{
			GrantType: "client_credentials", ClientID: "demo",
		})
		assert.ErrorIs(t, err, oauthsvc.ErrTokenUnauthorizedClient)
	})

	t.Run("scope outside allowed set", func(t *testing.T) {
		_, err := f.tokens.ExchangeClientCredentials(ctx, dto.TokenRequest{
			GrantType: "client_credentials", ClientID: "batch", ClientSecret: "s3cret", Scope: "admin",
		})
		assert.ErrorIs(t, err, oauthsvc.ErrTokenInvalidScope)
	})
}

func TestRefresh_GrantDisabledForClient(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	// Un client sin refresh habilitado no llega ni a mirar el token.
	noRefresh := &repository.Service{
		Name:          "One Shot",
		ClientID:      "oneshot",
		Type:          repository.ServiceTypePublic,
		RedirectURIs:  []string{"https://one.example/cb"},
		AllowedScopes: []string{"openid"},
	}
	require.NoError(t, f.dal.Services().Create(ctx, noRefresh))

	_, err := f.tokens.ExchangeRefreshToken(ctx, dto.TokenRequest{
		GrantType: "refresh_token", RefreshToken: "whatever", ClientID: "oneshot",
	})
	assert.ErrorIs(t, err, oauthsvc.ErrTokenUnauthorizedClient)
}
