// Package session implementa la sesión SSO a nivel broker.
//
// La sesión vive en una cookie HttpOnly cuyo valor es un token opaco;
// el storage guarda solo el hash. Es la base del single sign-on: un
// usuario con sesión activa no vuelve a pasar por el backend externo.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	tokens "github.com/dropDatabas3/janus/internal/security/token"
)

// Errores del ciclo de vida de sesión.
var (
	ErrNoSession      = errors.New("session: no session cookie")
	ErrSessionExpired = errors.New("session: session expired or logged out")
)

// Config controla cookie y expiración.
type Config struct {
	CookieName  string
	Domain      string
	SameSite    http.SameSite
	Secure      bool
	TTL         time.Duration
	IdleTimeout time.Duration
}

// Service gestiona sesiones broker.
type Service interface {
	// Establish crea una sesión Active y retorna el valor crudo de la
	// cookie. El valor nunca se persiste; solo su hash.
	Establish(ctx context.Context, userID, backend string, amr []string) (*repository.Session, string, error)

	// Resolve busca la sesión del request y valida que siga activa.
	// Actualiza last_activity.
	Resolve(ctx context.Context, r *http.Request) (*repository.Session, error)

	// End cierra una sesión.
	End(ctx context.Context, sessionID string) error

	// EndAll cierra todas las sesiones del usuario. Retorna cuántas cerró.
	EndAll(ctx context.Context, userID string) (int, error)

	// Cookie construye la cookie de sesión para el valor crudo dado.
	Cookie(raw string) *http.Cookie

	// ClearCookie construye la cookie de borrado.
	ClearCookie() *http.Cookie

	// CookieName expone el nombre configurado.
	CookieName() string
}

// Deps contiene las dependencias del service.
type Deps struct {
	Sessions repository.SessionRepository
	Config   Config
}

type service struct {
	sessions repository.SessionRepository
	cfg      Config
}

// New crea el Service con defaults razonables.
func New(d Deps) Service {
	cfg := d.Config
	if cfg.CookieName == "" {
		cfg.CookieName = "janus_session"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	return &service{sessions: d.Sessions, cfg: cfg}
}

func (s *service) Establish(ctx context.Context, userID, backend string, amr []string) (*repository.Session, string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("session.Establish"))

	raw, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, "", err
	}

	sess, err := s.sessions.Create(ctx, repository.CreateSessionInput{
		UserID:    userID,
		TokenHash: tokens.SHA256Base64URL(raw),
		Backend:   backend,
		AMR:       amr,
		ExpiresAt: time.Now().UTC().Add(s.cfg.TTL),
	})
	if err != nil {
		return nil, "", err
	}

	log.Info("session established",
		logger.UserID(userID),
		logger.SessionID(sess.ID),
		logger.Backend(backend),
	)
	return sess, raw, nil
}

func (s *service) Resolve(ctx context.Context, r *http.Request) (*repository.Session, error) {
	ck, err := r.Cookie(s.cfg.CookieName)
	if err != nil || strings.TrimSpace(ck.Value) == "" {
		return nil, ErrNoSession
	}

	sess, err := s.sessions.GetByTokenHash(ctx, tokens.SHA256Base64URL(ck.Value))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNoSession
		}
		return nil, err
	}

	now := time.Now().UTC()
	if sess.Status(now, s.cfg.IdleTimeout) != repository.SessionActive {
		return nil, ErrSessionExpired
	}

	// Best effort; una sesión válida no se cae por un touch fallido.
	if err := s.sessions.TouchActivity(ctx, sess.ID, now); err != nil {
		logger.From(ctx).Warn("touch activity failed",
			logger.SessionID(sess.ID), logger.Err(err))
	}
	return sess, nil
}

func (s *service) End(ctx context.Context, sessionID string) error {
	return s.sessions.End(ctx, sessionID, time.Now().UTC())
}

func (s *service) EndAll(ctx context.Context, userID string) (int, error) {
	return s.sessions.EndAllByUser(ctx, userID, time.Now().UTC())
}

func (s *service) Cookie(raw string) *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    raw,
		Path:     "/",
		Domain:   s.cfg.Domain,
		MaxAge:   int(s.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: s.cfg.SameSite,
	}
}

func (s *service) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: s.cfg.SameSite,
	}
}

func (s *service) CookieName() string { return s.cfg.CookieName }
