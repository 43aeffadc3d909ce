// Package oauth contiene los services del dominio OAuth2/OIDC.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/janus/internal/cache"
	"github.com/dropDatabas3/janus/internal/domain/repository"
	dto "github.com/dropDatabas3/janus/internal/http/dto/oauth"
	"github.com/dropDatabas3/janus/internal/metrics"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/registry"
	tokens "github.com/dropDatabas3/janus/internal/security/token"
	"github.com/dropDatabas3/janus/internal/validation"
)

// Prefijos de keys en cache.
const (
	cacheKeyPrefixCode     = "code:"
	cacheKeyPrefixUsedCode = "usedcode:"
	cacheKeyPrefixPending  = "pending:"
)

// TTLs del flujo de autorización.
const (
	defaultCodeTTL    = 30 * time.Second
	pendingRequestTTL = 10 * time.Minute
	usedCodeTTL       = 24 * time.Hour
)

// Políticas de merge de consent.
const (
	ConsentMergeUnion   = "union"
	ConsentMergeReplace = "replace"
)

// Errores del flujo authorize que se responden como JSON (antes de que el
// redirect_uri esté validado nunca se redirige).
var (
	ErrInvalidClient   = errors.New("invalid client")
	ErrInvalidRedirect = errors.New("redirect_uri not allowed")
	ErrInvalidResume   = errors.New("resume token invalid or expired")
)

// AuthorizeService maneja el flujo de autorización multi-request.
type AuthorizeService interface {
	// Authorize procesa GET /authorize.
	Authorize(ctx context.Context, r *http.Request, req dto.AuthorizeRequest) (dto.AuthResult, error)

	// Resume retoma un request pendiente tras un login externo exitoso.
	Resume(ctx context.Context, r *http.Request, resumeToken string, sess *repository.Session) (dto.AuthResult, error)

	// ConsentPrompt describe lo que el UI de consent debe mostrar.
	ConsentPrompt(ctx context.Context, resumeToken string) (dto.ConsentPrompt, error)

	// ApproveConsent registra la aprobación del usuario y retoma el flujo.
	ApproveConsent(ctx context.Context, r *http.Request, resumeToken string, sess *repository.Session, scopes []string) (dto.AuthResult, error)

	// DenyConsent descarta el request pendiente y produce el error
	// access_denied hacia el client.
	DenyConsent(ctx context.Context, resumeToken string) (dto.AuthResult, error)
}

// BackendStarter abstrae el arranque de un login externo.
// Implementado por backends.Registry.
type BackendStarter interface {
	StartLogin(ctx context.Context, backendName, state string) (redirectURL string, err error)
	HasBackend(name string) bool
	BackendNames() []string
}

// AuthorizeDeps contiene las dependencias del service.
type AuthorizeDeps struct {
	DAL      dalConsents
	Registry *registry.Registry
	Cache    cache.Client
	Backends BackendStarter

	UIBaseURL    string
	CookieName   string
	CodeTTL      time.Duration
	ConsentMerge string // union | replace
}

// dalConsents es el subconjunto del DAL que usa authorize.
type dalConsents interface {
	Consents() repository.ConsentRepository
	Sessions() repository.SessionRepository
	LoginEntries() repository.LoginEntryRepository
}

type authorizeService struct {
	dal          dalConsents
	reg          *registry.Registry
	cache        cache.Client
	backends     BackendStarter
	uiBaseURL    string
	cookieName   string
	codeTTL      time.Duration
	consentMerge string
}

// NewAuthorizeService crea el AuthorizeService.
func NewAuthorizeService(d AuthorizeDeps) AuthorizeService {
	codeTTL := d.CodeTTL
	if codeTTL <= 0 {
		codeTTL = defaultCodeTTL
	}
	merge := d.ConsentMerge
	if merge == "" {
		merge = ConsentMergeUnion
	}
	uiBase := strings.TrimRight(d.UIBaseURL, "/")
	if uiBase == "" {
		uiBase = "http://localhost:3000"
	}
	cookieName := d.CookieName
	if cookieName == "" {
		cookieName = "janus_session"
	}
	return &authorizeService{
		dal:          d.DAL,
		reg:          d.Registry,
		cache:        d.Cache,
		backends:     d.Backends,
		uiBaseURL:    uiBase,
		cookieName:   cookieName,
		codeTTL:      codeTTL,
		consentMerge: merge,
	}
}

func (s *authorizeService) Authorize(ctx context.Context, r *http.Request, req dto.AuthorizeRequest) (dto.AuthResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.authorize"))

	// 1. Client y redirect_uri se validan antes que todo. Si cualquiera
	// falla, el error va como JSON: nunca se redirige a una URI que no
	// esté registrada.
	svc, err := s.reg.Resolve(ctx, req.ClientID)
	if err != nil {
		log.Debug("client resolution failed", logger.ClientID(req.ClientID), logger.Err(err))
		return dto.AuthResult{}, ErrInvalidClient
	}
	if req.RedirectURI == "" || !svc.AllowsRedirectURI(req.RedirectURI) {
		log.Debug("redirect_uri rejected", logger.ClientID(req.ClientID))
		return dto.AuthResult{}, ErrInvalidRedirect
	}

	// 2. A partir de acá los errores viajan por redirect.
	if req.ResponseType != "code" {
		return s.errResult(req, "unsupported_response_type", "only response_type=code is supported"), nil
	}
	scopes := validation.ParseScopes(req.Scope)
	if len(scopes) == 0 || !containsScope(scopes, "openid") {
		return s.errResult(req, "invalid_scope", "scope must include openid"), nil
	}
	for _, sc := range scopes {
		if !svc.AllowsScope(sc) {
			return s.errResult(req, "invalid_scope", "scope not allowed for client"), nil
		}
	}
	if err := s.validatePKCE(svc, req); err != nil {
		return s.errResult(req, "invalid_request", err.Error()), nil
	}
	if !svc.AllowsGrantType("authorization_code") {
		return s.errResult(req, "unauthorized_client", "authorization_code grant not enabled"), nil
	}

	// 3. Sesión broker.
	sess := sessionFromRequest(ctx, r, s.cookieName, s.dal.Sessions())
	prompts := strings.Fields(req.Prompt)

	if sess == nil || hasPrompt(prompts, "login") {
		if hasPrompt(prompts, "none") {
			return s.errResult(req, "login_required", ""), nil
		}
		return s.parkForLogin(ctx, req)
	}

	// 4. Consent.
	consent, err := s.dal.Consents().Get(ctx, sess.UserID, svc.ID)
	covered := err == nil && consent.Covers(scopes)
	if hasPrompt(prompts, "consent") || !covered {
		if hasPrompt(prompts, "none") {
			return s.errResult(req, "consent_required", ""), nil
		}
		return s.parkForConsent(ctx, req)
	}

	// 5. Emitir el code.
	return s.mintCode(ctx, r, req, svc, sess)
}

func (s *authorizeService) Resume(ctx context.Context, r *http.Request, resumeToken string, sess *repository.Session) (dto.AuthResult, error) {
	pending, err := s.takePending(ctx, resumeToken)
	if err != nil {
		return dto.AuthResult{}, err
	}
	req := pending.Request

	svc, err := s.reg.Resolve(ctx, req.ClientID)
	if err != nil {
		return dto.AuthResult{}, ErrInvalidClient
	}

	scopes := validation.ParseScopes(req.Scope)
	consent, err := s.dal.Consents().Get(ctx, sess.UserID, svc.ID)
	covered := err == nil && consent.Covers(scopes)
	prompts := strings.Fields(req.Prompt)
	if hasPrompt(prompts, "consent") || !covered {
		return s.parkForConsent(ctx, req)
	}

	return s.mintCode(ctx, r, req, svc, sess)
}

func (s *authorizeService) ConsentPrompt(ctx context.Context, resumeToken string) (dto.ConsentPrompt, error) {
	pending, err := s.peekPending(ctx, resumeToken)
	if err != nil {
		return dto.ConsentPrompt{}, err
	}
	svc, err := s.reg.Resolve(ctx, pending.Request.ClientID)
	if err != nil {
		return dto.ConsentPrompt{}, ErrInvalidClient
	}
	return dto.ConsentPrompt{
		ResumeToken: resumeToken,
		ServiceName: svc.Name,
		ClientID:    svc.ClientID,
		Scopes:      validation.ParseScopes(pending.Request.Scope),
	}, nil
}

func (s *authorizeService) ApproveConsent(ctx context.Context, r *http.Request, resumeToken string, sess *repository.Session, approved []string) (dto.AuthResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.consent.approve"))

	pending, err := s.takePending(ctx, resumeToken)
	if err != nil {
		return dto.AuthResult{}, err
	}
	req := pending.Request

	svc, err := s.reg.Resolve(ctx, req.ClientID)
	if err != nil {
		return dto.AuthResult{}, ErrInvalidClient
	}

	requested := validation.ParseScopes(req.Scope)
	if len(approved) == 0 {
		approved = requested
	}
	// Solo se puede aprobar lo pedido.
	if !validation.ScopesSubset(approved, requested) {
		return dto.AuthResult{}, ErrInvalidResume
	}
	// Aprobar menos que lo pedido deja el request sin cobertura.
	if !validation.ScopesSubset(requested, approved) {
		return s.errResult(req, "access_denied", "user approved a reduced scope set"), nil
	}

	granted := approved
	if s.consentMerge == ConsentMergeUnion {
		if existing, err := s.dal.Consents().Get(ctx, sess.UserID, svc.ID); err == nil {
			granted = validation.UnionScopes(existing.Scopes, approved)
		}
	}
	if _, err := s.dal.Consents().Upsert(ctx, sess.UserID, svc.ID, granted); err != nil {
		log.Error("consent upsert failed", logger.Err(err))
		return dto.AuthResult{}, err
	}

	log.Info("consent granted",
		logger.UserID(sess.UserID),
		logger.ServiceID(svc.ID),
		logger.Scope(validation.JoinScopes(granted)),
	)
	return s.mintCode(ctx, r, req, svc, sess)
}

func (s *authorizeService) DenyConsent(ctx context.Context, resumeToken string) (dto.AuthResult, error) {
	pending, err := s.takePending(ctx, resumeToken)
	if err != nil {
		return dto.AuthResult{}, err
	}
	return s.errResult(pending.Request, "access_denied", "user denied consent"), nil
}

// validatePKCE exige S256 para clients públicos; si un confidential lo
// envía, también debe ser S256.
func (s *authorizeService) validatePKCE(svc *repository.Service, req dto.AuthorizeRequest) error {
	if svc.Type == repository.ServiceTypePublic {
		if req.CodeChallenge == "" || !strings.EqualFold(req.CodeChallengeMethod, "S256") {
			return errors.New("PKCE S256 required for public clients")
		}
		return nil
	}
	if req.CodeChallenge != "" && !strings.EqualFold(req.CodeChallengeMethod, "S256") {
		return errors.New("only S256 code_challenge_method is supported")
	}
	return nil
}

// parkForLogin persiste el request y decide a dónde mandar al usuario.
func (s *authorizeService) parkForLogin(ctx context.Context, req dto.AuthorizeRequest) (dto.AuthResult, error) {
	backend := req.Backend
	if backend != "" && !s.backends.HasBackend(backend) {
		return s.errResult(req, "invalid_request", "unknown backend"), nil
	}
	if backend == "" {
		if names := s.backends.BackendNames(); len(names) == 1 {
			backend = names[0]
		}
	}

	resume, err := s.storePending(ctx, dto.PendingRequest{
		Request:   req,
		Backend:   backend,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return dto.AuthResult{}, err
	}

	if backend == "" {
		// Varios backends y ninguno pedido: el UI de login elige.
		return dto.AuthResult{
			Type:        dto.AuthResultNeedLogin,
			RedirectTo:  s.uiBaseURL + "/login?resume=" + url.QueryEscape(resume),
			ResumeToken: resume,
		}, nil
	}

	redirectTo, err := s.backends.StartLogin(ctx, backend, resume)
	if err != nil {
		return dto.AuthResult{}, err
	}
	return dto.AuthResult{
		Type:        dto.AuthResultNeedLogin,
		RedirectTo:  redirectTo,
		ResumeToken: resume,
	}, nil
}

func (s *authorizeService) parkForConsent(ctx context.Context, req dto.AuthorizeRequest) (dto.AuthResult, error) {
	resume, err := s.storePending(ctx, dto.PendingRequest{
		Request:   req,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return dto.AuthResult{}, err
	}
	return dto.AuthResult{
		Type:        dto.AuthResultConsentRequired,
		RedirectTo:  s.uiBaseURL + "/consent?resume=" + url.QueryEscape(resume),
		ResumeToken: resume,
	}, nil
}

// mintCode emite el authorization code y lo deja en cache bajo su hash.
func (s *authorizeService) mintCode(ctx context.Context, r *http.Request, req dto.AuthorizeRequest, svc *repository.Service, sess *repository.Session) (dto.AuthResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.authorize"))

	code, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		log.Error("code generation failed", logger.Err(err))
		return dto.AuthResult{}, err
	}

	now := time.Now().UTC()
	payload := dto.AuthCodePayload{
		UserID:          sess.UserID,
		ServiceID:       svc.ID,
		ClientID:        req.ClientID,
		SessionID:       sess.ID,
		RedirectURI:     req.RedirectURI,
		Scope:           validation.JoinScopes(validation.ParseScopes(req.Scope)),
		Nonce:           req.Nonce,
		CodeChallenge:   req.CodeChallenge,
		ChallengeMethod: req.CodeChallengeMethod,
		AMR:             sess.AMR,
		AuthTime:        sess.CreatedAt,
		ExpiresAt:       now.Add(s.codeTTL),
	}
	payloadBytes, _ := json.Marshal(payload)
	codeHash := tokens.SHA256Base64URL(code)
	if err := s.cache.Set(ctx, cacheKeyPrefixCode+codeHash, payloadBytes, s.codeTTL); err != nil {
		log.Error("code store failed", logger.Err(err))
		return dto.AuthResult{}, err
	}

	if err := s.dal.Sessions().AddVisitedService(ctx, sess.ID, svc.ID); err != nil {
		log.Warn("visited service not recorded", logger.Err(err))
	}
	s.recordLogin(ctx, r, sess.UserID, svc.ID)

	metrics.AuthCodesIssued.WithLabelValues(req.ClientID).Inc()
	log.Info("auth code issued",
		logger.UserID(sess.UserID),
		logger.ClientID(req.ClientID),
		logger.SessionID(sess.ID),
	)

	return dto.AuthResult{
		Type:        dto.AuthResultSuccess,
		Code:        code,
		State:       req.State,
		RedirectURI: req.RedirectURI,
	}, nil
}

// recordLogin registra el par (device, service) del request.
func (s *authorizeService) recordLogin(ctx context.Context, r *http.Request, userID, serviceID string) {
	ua := r.UserAgent()
	ip := clientIP(r)
	_, err := s.dal.LoginEntries().Append(ctx, repository.AppendLoginEntryInput{
		UserID:            userID,
		ServiceID:         serviceID,
		DeviceFingerprint: tokens.SHA256Base64URL(ua + "|" + ip)[:16],
		DeviceName:        truncate(ua, 120),
		IPAddress:         ip,
		At:                time.Now().UTC(),
	})
	if err != nil {
		logger.From(ctx).Warn("login entry not recorded", logger.Err(err))
	}
}

func (s *authorizeService) storePending(ctx context.Context, pending dto.PendingRequest) (string, error) {
	resume, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", err
	}
	b, _ := json.Marshal(pending)
	key := cacheKeyPrefixPending + tokens.SHA256Base64URL(resume)
	if err := s.cache.Set(ctx, key, b, pendingRequestTTL); err != nil {
		return "", err
	}
	return resume, nil
}

func (s *authorizeService) takePending(ctx context.Context, resumeToken string) (*dto.PendingRequest, error) {
	key := cacheKeyPrefixPending + tokens.SHA256Base64URL(resumeToken)
	b, found, err := s.cache.Take(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidResume
	}
	var pending dto.PendingRequest
	if err := json.Unmarshal(b, &pending); err != nil {
		return nil, ErrInvalidResume
	}
	return &pending, nil
}

func (s *authorizeService) peekPending(ctx context.Context, resumeToken string) (*dto.PendingRequest, error) {
	key := cacheKeyPrefixPending + tokens.SHA256Base64URL(resumeToken)
	b, found, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidResume
	}
	var pending dto.PendingRequest
	if err := json.Unmarshal(b, &pending); err != nil {
		return nil, ErrInvalidResume
	}
	return &pending, nil
}

func (s *authorizeService) errResult(req dto.AuthorizeRequest, code, description string) dto.AuthResult {
	return dto.AuthResult{
		Type:             dto.AuthResultError,
		RedirectURI:      req.RedirectURI,
		State:            req.State,
		ErrorCode:        code,
		ErrorDescription: description,
	}
}

// sessionFromRequest resuelve la sesión broker por cookie, nil si no hay
// o no está activa. La resolución no toca last_activity; eso lo hace el
// middleware de sesión en las rutas self-service.
func sessionFromRequest(ctx context.Context, r *http.Request, cookieName string, sessions repository.SessionRepository) *repository.Session {
	ck, err := r.Cookie(cookieName)
	if err != nil || strings.TrimSpace(ck.Value) == "" {
		return nil
	}
	sess, err := sessions.GetByTokenHash(ctx, tokens.SHA256Base64URL(ck.Value))
	if err != nil {
		return nil
	}
	if sess.Status(time.Now().UTC(), 0) != repository.SessionActive {
		return nil
	}
	return sess
}

func hasPrompt(prompts []string, p string) bool {
	for _, v := range prompts {
		if v == p {
			return true
		}
	}
	return false
}

func containsScope(scopes []string, s string) bool {
	for _, v := range scopes {
		if v == s {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
