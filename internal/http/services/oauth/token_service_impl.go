package oauth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/janus/internal/cache"
	"github.com/dropDatabas3/janus/internal/domain/repository"
	dto "github.com/dropDatabas3/janus/internal/http/dto/oauth"
	jwtx "github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/metrics"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/registry"
	tokens "github.com/dropDatabas3/janus/internal/security/token"
	"github.com/dropDatabas3/janus/internal/store"
	"github.com/dropDatabas3/janus/internal/validation"
)

// TokenDeps contiene las dependencias del token service.
type TokenDeps struct {
	DAL      store.DataAccessLayer
	Registry *registry.Registry
	Issuer   *jwtx.Issuer
	Cache    cache.Client

	// RefreshTTL es el TTL por defecto de refresh tokens; los services
	// pueden sobreescribirlo.
	RefreshTTL time.Duration

	// RefreshFamilyMax acota la vida total de una familia de rotación.
	// 0 = sin tope.
	RefreshFamilyMax time.Duration
}

type tokenService struct {
	dal        store.DataAccessLayer
	reg        *registry.Registry
	issuer     *jwtx.Issuer
	cache      cache.Client
	refreshTTL time.Duration
	familyMax  time.Duration
}

// NewTokenService crea el TokenService.
func NewTokenService(d TokenDeps) TokenService {
	ttl := d.RefreshTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &tokenService{
		dal:        d.DAL,
		reg:        d.Registry,
		issuer:     d.Issuer,
		cache:      d.Cache,
		refreshTTL: ttl,
		familyMax:  d.RefreshFamilyMax,
	}
}

// authenticateClient resuelve y autentica el client del request.
// Confidential exige secret (bcrypt); public se identifica solo.
func (s *tokenService) authenticateClient(ctx context.Context, req dto.TokenRequest) (*repository.Service, error) {
	if req.ClientID == "" {
		return nil, ErrTokenInvalidClient
	}
	svc, err := s.reg.Resolve(ctx, req.ClientID)
	if err != nil {
		return nil, ErrTokenInvalidClient
	}
	if svc.Type == repository.ServiceTypeConfidential {
		if req.ClientSecret == "" || svc.ClientSecretHash == "" {
			return nil, ErrTokenInvalidClient
		}
		if bcrypt.CompareHashAndPassword([]byte(svc.ClientSecretHash), []byte(req.ClientSecret)) != nil {
			return nil, ErrTokenInvalidClient
		}
	}
	return svc, nil
}

// ExchangeAuthorizationCode maneja grant_type=authorization_code.
func (s *tokenService) ExchangeAuthorizationCode(ctx context.Context, req dto.TokenRequest) (*dto.TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.authcode"))

	if req.Code == "" || req.RedirectURI == "" {
		return nil, ErrTokenInvalidRequest
	}

	svc, err := s.authenticateClient(ctx, req)
	if err != nil {
		log.Warn("client authentication failed", logger.ClientID(req.ClientID))
		return nil, err
	}
	if !svc.AllowsGrantType("authorization_code") {
		return nil, ErrTokenUnauthorizedClient
	}

	// Consumo one-shot: Take es atómico, dos exchanges concurrentes del
	// mismo code entregan el payload exactamente a uno.
	codeHash := tokens.SHA256Base64URL(req.Code)
	data, found, err := s.cache.Take(ctx, cacheKeyPrefixCode+codeHash)
	if err != nil {
		log.Error("code lookup failed", logger.Err(err))
		return nil, ErrTokenServerError
	}
	if !found {
		// ¿Replay? El tombstone del primer canje revoca la familia entera.
		s.handlePossibleReplay(ctx, codeHash)
		log.Warn("authorization code not found")
		return nil, ErrTokenInvalidGrant
	}

	var ac dto.AuthCodePayload
	if err := json.Unmarshal(data, &ac); err != nil {
		log.Warn("authorization code corrupted", logger.Err(err))
		return nil, ErrTokenInvalidGrant
	}

	if time.Now().After(ac.ExpiresAt) {
		log.Warn("authorization code expired")
		return nil, ErrTokenInvalidGrant
	}
	if ac.ClientID != svc.ClientID || ac.RedirectURI != req.RedirectURI {
		log.Warn("client/redirect_uri mismatch")
		return nil, ErrTokenInvalidGrant
	}
	if ac.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, ErrTokenInvalidRequest
		}
		verifierHash := tokens.SHA256Base64URL(req.CodeVerifier)
		if subtle.ConstantTimeCompare([]byte(verifierHash), []byte(ac.CodeChallenge)) != 1 {
			log.Warn("PKCE verification failed")
			return nil, ErrTokenInvalidGrant
		}
	}

	user, err := s.dal.Users().GetByID(ctx, ac.UserID)
	if err != nil || user.Disabled() {
		log.Warn("user unavailable for exchange", logger.UserID(ac.UserID))
		return nil, ErrTokenInvalidGrant
	}

	scopes := validation.ParseScopes(ac.Scope)

	access, exp, err := s.issueAccess(svc, ac.UserID, scopes, ac.AMR, ac.SessionID)
	if err != nil {
		log.Error("failed to issue access token", logger.Err(err))
		return nil, ErrTokenServerError
	}

	// Refresh token: familia nueva, generación 0.
	var rawRT, familyID string
	if svc.RefreshEligible && svc.AllowsGrantType("refresh_token") {
		var rt *repository.RefreshToken
		rawRT, rt, err = s.createRefreshToken(ctx, svc, ac.UserID, scopes, "", 0, nil, time.Time{})
		if err != nil {
			log.Error("failed to create refresh token", logger.Err(err))
			return nil, ErrTokenServerError
		}
		familyID = rt.FamilyID
	}

	// Tombstone del code consumido: un segundo canje lo encuentra y
	// revoca la familia que este canje creó.
	tomb, _ := json.Marshal(dto.UsedCodeTombstone{FamilyID: familyID, UsedAt: time.Now().UTC()})
	if err := s.cache.Set(ctx, cacheKeyPrefixUsedCode+codeHash, tomb, usedCodeTTL); err != nil {
		log.Warn("used-code tombstone not stored", logger.Err(err))
	}

	idToken, err := s.issueIDToken(svc, user, scopes, ac, access)
	if err != nil {
		log.Error("failed to issue id_token", logger.Err(err))
		return nil, ErrTokenServerError
	}

	metrics.AuthCodesConsumed.Inc()
	metrics.TokensIssued.WithLabelValues("authorization_code").Inc()
	log.Info("authorization_code exchanged",
		logger.UserID(ac.UserID),
		logger.ClientID(svc.ClientID),
	)

	return &dto.TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(exp).Seconds()),
		RefreshToken: rawRT,
		IDToken:      idToken,
		Scope:        validation.JoinScopes(scopes),
	}, nil
}

// handlePossibleReplay revisa el tombstone de un code ausente y, si el
// code ya fue canjeado, revoca la familia de refresh tokens derivada.
func (s *tokenService) handlePossibleReplay(ctx context.Context, codeHash string) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.replay"))

	b, found, err := s.cache.Get(ctx, cacheKeyPrefixUsedCode+codeHash)
	if err != nil || !found {
		return
	}
	metrics.CodeReplaysDetected.Inc()

	var tomb dto.UsedCodeTombstone
	if err := json.Unmarshal(b, &tomb); err != nil || tomb.FamilyID == "" {
		log.Warn("code replay detected, no token family to revoke")
		return
	}
	n, err := s.dal.RefreshTokens().RevokeFamily(ctx, tomb.FamilyID)
	if err != nil {
		log.Error("family revocation failed", logger.Err(err))
		return
	}
	log.Warn("code replay detected, token family revoked", logger.Count(n))
}

// ExchangeRefreshToken maneja grant_type=refresh_token con rotación.
func (s *tokenService) ExchangeRefreshToken(ctx context.Context, req dto.TokenRequest) (*dto.TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.refresh"))

	if req.RefreshToken == "" {
		return nil, ErrTokenInvalidRequest
	}

	svc, err := s.authenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	if !svc.AllowsGrantType("refresh_token") || !svc.RefreshEligible {
		return nil, ErrTokenUnauthorizedClient
	}

	rt, err := s.dal.RefreshTokens().GetByHash(ctx, tokens.SHA256Base64URL(req.RefreshToken))
	if err != nil {
		log.Warn("refresh token not found")
		return nil, ErrTokenInvalidGrant
	}

	now := time.Now().UTC()

	// Un token revocado presentado de nuevo es un evento de seguridad:
	// alguien tiene una copia vieja de la cadena. Cae la familia entera.
	if rt.RevokedAt != nil {
		metrics.RefreshReplaysDetected.Inc()
		n, _ := s.dal.RefreshTokens().RevokeFamily(ctx, rt.FamilyID)
		log.Warn("revoked refresh token replayed, family revoked",
			logger.UserID(rt.UserID), logger.Count(n))
		return nil, ErrTokenInvalidGrant
	}
	if now.After(rt.ExpiresAt) {
		return nil, ErrTokenInvalidGrant
	}
	if rt.ServiceID != svc.ID {
		log.Warn("refresh token presented by wrong client", logger.ClientID(svc.ClientID))
		return nil, ErrTokenInvalidGrant
	}
	if s.familyMax > 0 && now.After(rt.FamilyIssuedAt.Add(s.familyMax)) {
		_, _ = s.dal.RefreshTokens().RevokeFamily(ctx, rt.FamilyID)
		log.Info("refresh family exceeded max lifetime", logger.UserID(rt.UserID))
		return nil, ErrTokenInvalidGrant
	}

	// El consent debe seguir vigente; revocarlo invalida los refresh
	// tokens derivados aunque la cascada de revocación haya fallado.
	consent, err := s.dal.Consents().Get(ctx, rt.UserID, rt.ServiceID)
	if err != nil || !consent.Covers(rt.Scopes) {
		_, _ = s.dal.RefreshTokens().RevokeFamily(ctx, rt.FamilyID)
		log.Info("consent no longer covers refresh token", logger.UserID(rt.UserID))
		return nil, ErrTokenInvalidGrant
	}

	user, err := s.dal.Users().GetByID(ctx, rt.UserID)
	if err != nil || user.Disabled() {
		_, _ = s.dal.RefreshTokens().RevokeFamily(ctx, rt.FamilyID)
		return nil, ErrTokenInvalidGrant
	}

	// Scope reducido opcional (RFC 6749 §6).
	grantScopes := rt.Scopes
	if req.Scope != "" {
		requested := validation.ParseScopes(req.Scope)
		if !validation.ScopesSubset(requested, rt.Scopes) {
			return nil, ErrTokenInvalidScope
		}
		grantScopes = requested
	}

	// Rotación: el token presentado muere, nace el siguiente de la familia.
	if err := s.dal.RefreshTokens().Revoke(ctx, rt.ID); err != nil {
		log.Error("rotation revoke failed", logger.Err(err))
		return nil, ErrTokenServerError
	}
	rawRT, _, err := s.createRefreshToken(ctx, svc, rt.UserID, rt.Scopes, rt.FamilyID, rt.Generation+1, &rt.ID, rt.FamilyIssuedAt)
	if err != nil {
		log.Error("rotation create failed", logger.Err(err))
		return nil, ErrTokenServerError
	}

	access, exp, err := s.issueAccess(svc, rt.UserID, grantScopes, nil, "")
	if err != nil {
		log.Error("failed to issue access token", logger.Err(err))
		return nil, ErrTokenServerError
	}

	var idToken string
	if containsScope(grantScopes, "openid") {
		idToken, err = s.issueIDToken(svc, user, grantScopes, dto.AuthCodePayload{UserID: rt.UserID}, access)
		if err != nil {
			log.Error("failed to issue id_token", logger.Err(err))
			return nil, ErrTokenServerError
		}
	}

	metrics.TokensIssued.WithLabelValues("refresh_token").Inc()
	log.Info("refresh token rotated",
		logger.UserID(rt.UserID),
		logger.ClientID(svc.ClientID),
		logger.Int("generation", rt.Generation+1),
	)

	return &dto.TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(exp).Seconds()),
		RefreshToken: rawRT,
		IDToken:      idToken,
		Scope:        validation.JoinScopes(grantScopes),
	}, nil
}

// ExchangeClientCredentials maneja grant_type=client_credentials.
func (s *tokenService) ExchangeClientCredentials(ctx context.Context, req dto.TokenRequest) (*dto.TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.clientcreds"))

	svc, err := s.authenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	// Solo clients confidential; el grant debe estar habilitado explícitamente.
	if svc.Type != repository.ServiceTypeConfidential {
		return nil, ErrTokenUnauthorizedClient
	}
	if !svc.AllowsGrantType("client_credentials") {
		return nil, ErrTokenUnauthorizedClient
	}

	granted := svc.AllowedScopes
	if req.Scope != "" {
		requested := validation.ParseScopes(req.Scope)
		for _, sc := range requested {
			if !svc.AllowsScope(sc) {
				return nil, ErrTokenInvalidScope
			}
		}
		granted = requested
	}

	access, exp, err := s.issueAccess(svc, svc.ClientID, granted, nil, "")
	if err != nil {
		log.Error("failed to issue access token", logger.Err(err))
		return nil, ErrTokenServerError
	}

	metrics.TokensIssued.WithLabelValues("client_credentials").Inc()
	log.Info("client_credentials exchanged", logger.ClientID(svc.ClientID))

	return &dto.TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(exp).Seconds()),
		Scope:       validation.JoinScopes(granted),
	}, nil
}

// issueAccess emite el access token con los claims del broker.
func (s *tokenService) issueAccess(svc *repository.Service, sub string, scopes, amr []string, sid string) (string, time.Time, error) {
	extra := map[string]any{
		"scope": validation.JoinScopes(scopes),
		"scp":   scopes,
	}
	if len(amr) > 0 {
		extra["amr"] = amr
	}
	if sid != "" {
		extra["sid"] = sid
	}
	return s.issuer.IssueAccess(sub, svc.ClientID, extra, svc.AccessTokenTTL)
}

// issueIDToken emite el ID token, enriquecido según los scopes otorgados.
func (s *tokenService) issueIDToken(svc *repository.Service, user *repository.User, scopes []string, ac dto.AuthCodePayload, access string) (string, error) {
	extra := map[string]any{
		"at_hash": jwtx.AtHash(access),
		"azp":     svc.ClientID,
	}
	if ac.Nonce != "" {
		extra["nonce"] = ac.Nonce
	}
	if len(ac.AMR) > 0 {
		extra["amr"] = ac.AMR
	}
	if ac.SessionID != "" {
		extra["sid"] = ac.SessionID
	}
	if !ac.AuthTime.IsZero() {
		extra["auth_time"] = ac.AuthTime.Unix()
	}
	enrichClaimsFromScopes(extra, user, scopes)

	idToken, _, err := s.issuer.IssueIDToken(user.ID, svc.ClientID, extra, svc.IDTokenTTL)
	return idToken, err
}

// createRefreshToken genera un refresh token opaco y persiste su hash.
// familyID vacío crea una familia nueva.
func (s *tokenService) createRefreshToken(ctx context.Context, svc *repository.Service, userID string, scopes []string, familyID string, generation int, rotatedFrom *string, familyIssuedAt time.Time) (string, *repository.RefreshToken, error) {
	raw, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", nil, err
	}
	ttl := s.refreshTTL
	if svc.RefreshTokenTTL > 0 {
		ttl = time.Duration(svc.RefreshTokenTTL) * time.Second
	}
	rt, err := s.dal.RefreshTokens().Create(ctx, repository.CreateRefreshTokenInput{
		UserID:         userID,
		ServiceID:      svc.ID,
		FamilyID:       familyID,
		Generation:     generation,
		Scopes:         scopes,
		TokenHash:      tokens.SHA256Base64URL(raw),
		ExpiresAt:      time.Now().UTC().Add(ttl),
		FamilyIssuedAt: familyIssuedAt,
		RotatedFrom:    rotatedFrom,
	})
	if err != nil {
		return "", nil, err
	}
	return raw, rt, nil
}

// enrichClaimsFromScopes agrega claims de perfil según los scopes.
func enrichClaimsFromScopes(dst map[string]any, user *repository.User, scopes []string) {
	for _, sc := range scopes {
		switch sc {
		case "email":
			if user.Email != "" {
				dst["email"] = user.Email
				dst["email_verified"] = user.EmailVerified
			}
		case "profile":
			if user.Name != "" {
				dst["name"] = user.Name
			}
			if user.GivenName != "" {
				dst["given_name"] = user.GivenName
			}
			if user.FamilyName != "" {
				dst["family_name"] = user.FamilyName
			}
			if user.Locale != "" {
				dst["locale"] = user.Locale
			}
		}
	}
}
