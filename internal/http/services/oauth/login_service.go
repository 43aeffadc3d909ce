package oauth

import (
	"context"
	"errors"

	"github.com/dropDatabas3/janus/internal/backends"
	"github.com/dropDatabas3/janus/internal/domain/repository"
	session "github.com/dropDatabas3/janus/internal/http/services/session"
	"github.com/dropDatabas3/janus/internal/metrics"
	"github.com/dropDatabas3/janus/internal/observability/logger"
)

// Errores del callback de login externo.
var (
	ErrUnknownBackend = errors.New("unknown backend")
	ErrUserDisabled   = errors.New("user account is disabled")
	ErrLoginFailed    = errors.New("external login failed")
)

// LoginService completa logins contra backends externos: valida la
// respuesta del proveedor, resuelve la identidad a un usuario broker y
// establece la sesión SSO.
type LoginService interface {
	// Complete valida el callback y establece la sesión.
	// Retorna la sesión, el valor crudo de la cookie y si el usuario es nuevo.
	Complete(ctx context.Context, backendName, code, state string) (*repository.Session, string, bool, error)
}

// LoginDeps contiene las dependencias del service.
type LoginDeps struct {
	Backends   *backends.Registry
	Identities repository.IdentityRepository
	Users      repository.UserRepository
	Sessions   session.Service
}

type loginService struct {
	backends   *backends.Registry
	identities repository.IdentityRepository
	users      repository.UserRepository
	sessions   session.Service
}

// NewLoginService crea el LoginService.
func NewLoginService(d LoginDeps) LoginService {
	return &loginService{
		backends:   d.Backends,
		identities: d.Identities,
		users:      d.Users,
		sessions:   d.Sessions,
	}
}

func (s *loginService) Complete(ctx context.Context, backendName, code, state string) (*repository.Session, string, bool, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.login.complete"), logger.Backend(backendName))

	b, ok := s.backends.Get(backendName)
	if !ok {
		return nil, "", false, ErrUnknownBackend
	}

	assertion, err := b.Complete(ctx, code, state)
	if err != nil {
		metrics.UpstreamLogins.WithLabelValues(backendName, "failure").Inc()
		log.Warn("backend completion failed", logger.Err(err))
		return nil, "", false, ErrLoginFailed
	}

	userID, isNew, err := s.identities.ResolveOrCreate(ctx, repository.ResolveIdentityInput{
		Backend:       assertion.Backend,
		Subject:       assertion.Subject,
		Email:         assertion.Email,
		EmailVerified: assertion.EmailVerified,
		Name:          assertion.Name,
		GivenName:     assertion.GivenName,
		FamilyName:    assertion.FamilyName,
		Locale:        assertion.Locale,
		RawClaims:     assertion.RawClaims,
	})
	if err != nil {
		metrics.UpstreamLogins.WithLabelValues(backendName, "failure").Inc()
		log.Error("identity resolution failed", logger.Err(err))
		return nil, "", false, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, "", false, err
	}
	if user.Disabled() {
		metrics.UpstreamLogins.WithLabelValues(backendName, "disabled").Inc()
		log.Warn("disabled user attempted login", logger.UserID(userID))
		return nil, "", false, ErrUserDisabled
	}

	sess, raw, err := s.sessions.Establish(ctx, userID, backendName, assertion.AMR)
	if err != nil {
		return nil, "", false, err
	}

	metrics.UpstreamLogins.WithLabelValues(backendName, "success").Inc()
	log.Info("external login completed",
		logger.UserID(userID),
		logger.SessionID(sess.ID),
		logger.Bool("new_user", isNew),
	)
	return sess, raw, isNew, nil
}
