// Package account implementa el self-service de usuario: perfil,
// identidades vinculadas, devices, connected services y sesiones.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	dto "github.com/dropDatabas3/janus/internal/http/dto/account"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/store"
)

// Service expone las operaciones de la cuenta del usuario autenticado.
// Todas las operaciones están acotadas al userID resuelto de la sesión;
// nunca aceptan IDs de terceros.
type Service interface {
	Profile(ctx context.Context, userID string) (*dto.Profile, error)

	ListIdentities(ctx context.Context, userID string) ([]dto.Identity, error)
	// UnlinkIdentity retorna repository.ErrLastIdentity si el usuario
	// quedaría sin identidades.
	UnlinkIdentity(ctx context.Context, userID, identityID string) error

	ListLoginEntries(ctx context.Context, userID string) ([]dto.LoginEntry, error)
	RevokeLoginEntry(ctx context.Context, userID, entryID string) error

	ListConsents(ctx context.Context, userID string) ([]dto.Consent, error)
	// RevokeConsent elimina el consent y revoca los refresh tokens
	// derivados de ese par (user, service).
	RevokeConsent(ctx context.Context, userID, serviceID string) error

	ListSessions(ctx context.Context, userID, currentSessionID string) ([]dto.Session, error)
	// EndAllSessions cierra todas las sesiones del usuario y retorna
	// cuántas cerró.
	EndAllSessions(ctx context.Context, userID string) (int, error)
}

// Deps contiene las dependencias del service.
type Deps struct {
	DAL         store.DataAccessLayer
	IdleTimeout time.Duration
}

type accountService struct {
	dal         store.DataAccessLayer
	idleTimeout time.Duration
}

// New crea el account Service.
func New(d Deps) Service {
	return &accountService{dal: d.DAL, idleTimeout: d.IdleTimeout}
}

func (s *accountService) Profile(ctx context.Context, userID string) (*dto.Profile, error) {
	u, err := s.dal.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.Profile{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Name:          u.Name,
		GivenName:     u.GivenName,
		FamilyName:    u.FamilyName,
		Locale:        u.Locale,
		CreatedAt:     u.CreatedAt,
	}, nil
}

func (s *accountService) ListIdentities(ctx context.Context, userID string) ([]dto.Identity, error) {
	ids, err := s.dal.Identities().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.Identity, 0, len(ids))
	for _, id := range ids {
		out = append(out, dto.Identity{
			ID:          id.ID,
			Backend:     id.Backend,
			Email:       id.Email,
			CreatedAt:   id.CreatedAt,
			LastLoginAt: id.LastLoginAt,
		})
	}
	return out, nil
}

func (s *accountService) UnlinkIdentity(ctx context.Context, userID, identityID string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("account.unlink"))

	if err := s.dal.Identities().Unlink(ctx, userID, identityID); err != nil {
		if errors.Is(err, repository.ErrLastIdentity) {
			log.Warn("unlink rejected, last identity", logger.UserID(userID))
		}
		return err
	}
	log.Info("identity unlinked", logger.UserID(userID))
	return nil
}

func (s *accountService) ListLoginEntries(ctx context.Context, userID string) ([]dto.LoginEntry, error) {
	entries, err := s.dal.LoginEntries().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := s.serviceNames(ctx)
	out := make([]dto.LoginEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.LoginEntry{
			ID:          e.ID,
			ServiceName: names[e.ServiceID],
			DeviceName:  e.DeviceName,
			IPAddress:   e.IPAddress,
			CreatedAt:   e.CreatedAt,
			LastUsedAt:  e.LastUsedAt,
			RevokedAt:   e.RevokedAt,
		})
	}
	return out, nil
}

func (s *accountService) RevokeLoginEntry(ctx context.Context, userID, entryID string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("account.revoke_login"))

	if err := s.dal.LoginEntries().Revoke(ctx, userID, entryID); err != nil {
		return err
	}
	log.Info("login entry revoked", logger.UserID(userID))
	return nil
}

func (s *accountService) ListConsents(ctx context.Context, userID string) ([]dto.Consent, error) {
	consents, err := s.dal.Consents().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	svcs, err := s.dal.Services().List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*repository.Service, len(svcs))
	for i := range svcs {
		byID[svcs[i].ID] = &svcs[i]
	}

	out := make([]dto.Consent, 0, len(consents))
	for _, c := range consents {
		item := dto.Consent{
			ServiceID: c.ServiceID,
			Scopes:    c.Scopes,
			GrantedAt: c.GrantedAt,
			UpdatedAt: c.UpdatedAt,
		}
		if svc, ok := byID[c.ServiceID]; ok {
			item.ServiceName = svc.Name
			item.ClientID = svc.ClientID
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *accountService) RevokeConsent(ctx context.Context, userID, serviceID string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("account.revoke_consent"))

	if err := s.dal.Consents().Revoke(ctx, userID, serviceID); err != nil {
		return err
	}
	// Sin consent los refresh tokens del par dejan de ser válidos;
	// revocarlos acá evita esperar al chequeo en el refresh.
	n, err := s.dal.RefreshTokens().RevokeByUserService(ctx, userID, serviceID)
	if err != nil {
		log.Error("refresh revocation after consent revoke failed",
			logger.UserID(userID), logger.Err(err))
		return err
	}
	log.Info("consent revoked", logger.UserID(userID), logger.Count(n))
	return nil
}

func (s *accountService) ListSessions(ctx context.Context, userID, currentSessionID string) ([]dto.Session, error) {
	sessions, err := s.dal.Sessions().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]dto.Session, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, dto.Session{
			ID:           sess.ID,
			Backend:      sess.Backend,
			Status:       sess.Status(now, s.idleTimeout),
			Current:      sess.ID == currentSessionID,
			CreatedAt:    sess.CreatedAt,
			LastActivity: sess.LastActivity,
			ExpiresAt:    sess.ExpiresAt,
		})
	}
	return out, nil
}

func (s *accountService) EndAllSessions(ctx context.Context, userID string) (int, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("account.end_all"))

	n, err := s.dal.Sessions().EndAllByUser(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	log.Info("all sessions ended", logger.UserID(userID), logger.Count(n))
	return n, nil
}

// serviceNames es best-effort: si el listado falla, los nombres quedan vacíos.
func (s *accountService) serviceNames(ctx context.Context) map[string]string {
	svcs, err := s.dal.Services().List(ctx)
	if err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(svcs))
	for _, svc := range svcs {
		out[svc.ID] = svc.Name
	}
	return out
}
