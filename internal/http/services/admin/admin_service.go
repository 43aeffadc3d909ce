// Package admin implementa la administración de services y usuarios.
// La superficie se protege por API key; no hay self-signup de services.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	dto "github.com/dropDatabas3/janus/internal/http/dto/admin"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/registry"
	"github.com/dropDatabas3/janus/internal/security/token"
	"github.com/dropDatabas3/janus/internal/store"
	"github.com/dropDatabas3/janus/internal/validation"
)

// ErrValidation indica un request de admin con campos inválidos. El
// detalle viaja envuelto.
var ErrValidation = errors.New("validation failed")

// Service expone las operaciones administrativas.
type Service interface {
	// CreateService registra un relying party. Para clients confidential
	// genera el secret y lo retorna en texto plano una única vez.
	CreateService(ctx context.Context, req dto.ServiceRequest) (*dto.ServiceResponse, error)
	UpdateService(ctx context.Context, clientID string, req dto.ServiceRequest) (*dto.ServiceResponse, error)
	DeleteService(ctx context.Context, clientID string) error
	GetService(ctx context.Context, clientID string) (*dto.ServiceResponse, error)
	ListServices(ctx context.Context) ([]dto.ServiceResponse, error)
	// RotateSecret regenera el secret de un client confidential.
	RotateSecret(ctx context.Context, clientID string) (*dto.ServiceResponse, error)

	ListUsers(ctx context.Context, filter repository.ListUsersFilter) ([]dto.UserResponse, error)
	GetUser(ctx context.Context, userID string) (*dto.UserResponse, error)
	// DisableUser corta el acceso: cierra sesiones y revoca nada más;
	// los refresh tokens mueren en el siguiente chequeo de usuario.
	DisableUser(ctx context.Context, userID, by, reason string) error
	EnableUser(ctx context.Context, userID, by string) error
}

// Deps contiene las dependencias del service.
type Deps struct {
	DAL      store.DataAccessLayer
	Registry *registry.Registry
}

type adminService struct {
	dal      store.DataAccessLayer
	registry *registry.Registry
}

// New crea el admin Service.
func New(d Deps) Service {
	return &adminService{dal: d.DAL, registry: d.Registry}
}

func (s *adminService) CreateService(ctx context.Context, req dto.ServiceRequest) (*dto.ServiceResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("admin.create_service"))

	if err := validateServiceRequest(req); err != nil {
		return nil, err
	}

	svc := serviceFromRequest(req)

	var plaintext string
	if svc.Type == repository.ServiceTypeConfidential {
		secret, hash, err := newClientSecret()
		if err != nil {
			return nil, err
		}
		plaintext = secret
		svc.ClientSecretHash = hash
	}

	if err := s.dal.Services().Create(ctx, svc); err != nil {
		return nil, err
	}
	s.registry.Invalidate(svc.ClientID)
	log.Info("service created", logger.ClientID(svc.ClientID))

	resp := serviceResponse(svc)
	resp.ClientSecret = plaintext
	return resp, nil
}

func (s *adminService) UpdateService(ctx context.Context, clientID string, req dto.ServiceRequest) (*dto.ServiceResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("admin.update_service"))

	if err := validateServiceRequest(req); err != nil {
		return nil, err
	}

	current, err := s.dal.Services().GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	svc := serviceFromRequest(req)
	svc.ID = current.ID
	svc.ClientID = clientID
	svc.ClientSecretHash = current.ClientSecretHash
	svc.CreatedAt = current.CreatedAt

	// Cambio de tipo a public invalida el secret; a confidential exige
	// rotarlo explícitamente después.
	if svc.Type == repository.ServiceTypePublic {
		svc.ClientSecretHash = ""
	}

	if err := s.dal.Services().Update(ctx, svc); err != nil {
		return nil, err
	}
	s.registry.Invalidate(clientID)
	log.Info("service updated", logger.ClientID(clientID))

	return serviceResponse(svc), nil
}

func (s *adminService) DeleteService(ctx context.Context, clientID string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("admin.delete_service"))

	if err := s.dal.Services().Delete(ctx, clientID); err != nil {
		return err
	}
	s.registry.Invalidate(clientID)
	log.Info("service deleted", logger.ClientID(clientID))
	return nil
}

func (s *adminService) GetService(ctx context.Context, clientID string) (*dto.ServiceResponse, error) {
	svc, err := s.dal.Services().GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return serviceResponse(svc), nil
}

func (s *adminService) ListServices(ctx context.Context) ([]dto.ServiceResponse, error) {
	svcs, err := s.dal.Services().List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ServiceResponse, 0, len(svcs))
	for i := range svcs {
		out = append(out, *serviceResponse(&svcs[i]))
	}
	return out, nil
}

func (s *adminService) RotateSecret(ctx context.Context, clientID string) (*dto.ServiceResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("admin.rotate_secret"))

	svc, err := s.dal.Services().GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if svc.Type != repository.ServiceTypeConfidential {
		return nil, fmt.Errorf("%w: public clients have no secret", ErrValidation)
	}

	secret, hash, err := newClientSecret()
	if err != nil {
		return nil, err
	}
	svc.ClientSecretHash = hash
	if err := s.dal.Services().Update(ctx, svc); err != nil {
		return nil, err
	}
	s.registry.Invalidate(clientID)
	log.Info("client secret rotated", logger.ClientID(clientID))

	resp := serviceResponse(svc)
	resp.ClientSecret = secret
	return resp, nil
}

func (s *adminService) ListUsers(ctx context.Context, filter repository.ListUsersFilter) ([]dto.UserResponse, error) {
	users, err := s.dal.Users().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, *userResponse(&users[i]))
	}
	return out, nil
}

func (s *adminService) GetUser(ctx context.Context, userID string) (*dto.UserResponse, error) {
	u, err := s.dal.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userResponse(u), nil
}

func (s *adminService) DisableUser(ctx context.Context, userID, by, reason string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("admin.disable_user"))

	if err := s.dal.Users().Disable(ctx, userID, by, reason); err != nil {
		return err
	}
	// Las sesiones vivas dejan de servir de inmediato.
	n, err := s.dal.Sessions().EndAllByUser(ctx, userID, time.Now().UTC())
	if err != nil {
		log.Error("session teardown after disable failed",
			logger.UserID(userID), logger.Err(err))
		return err
	}
	log.Info("user disabled", logger.UserID(userID), logger.Count(n))
	return nil
}

func (s *adminService) EnableUser(ctx context.Context, userID, by string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("admin.enable_user"))

	if err := s.dal.Users().Enable(ctx, userID, by); err != nil {
		return err
	}
	log.Info("user enabled", logger.UserID(userID))
	return nil
}

func validateServiceRequest(req dto.ServiceRequest) error {
	if req.Name == "" || req.ClientID == "" {
		return fmt.Errorf("%w: name and client_id are required", ErrValidation)
	}
	if req.Type != repository.ServiceTypeConfidential && req.Type != repository.ServiceTypePublic {
		return fmt.Errorf("%w: type must be confidential or public", ErrValidation)
	}
	if len(req.RedirectURIs) == 0 {
		return fmt.Errorf("%w: at least one redirect_uri is required", ErrValidation)
	}
	for _, uri := range req.RedirectURIs {
		if !validation.ValidRedirectURI(uri) {
			return fmt.Errorf("%w: invalid redirect_uri %q", ErrValidation, uri)
		}
	}
	for _, sc := range req.AllowedScopes {
		if !validation.ValidScopeName(sc) {
			return fmt.Errorf("%w: invalid scope %q", ErrValidation, sc)
		}
	}
	switch req.LogoutChannel {
	case repository.LogoutChannelNone, repository.LogoutChannelFront, repository.LogoutChannelBack:
	default:
		return fmt.Errorf("%w: invalid logout_channel %q", ErrValidation, req.LogoutChannel)
	}
	if req.LogoutChannel != repository.LogoutChannelNone && req.LogoutURI == "" {
		return fmt.Errorf("%w: logout_uri required when logout_channel is set", ErrValidation)
	}
	return nil
}

func serviceFromRequest(req dto.ServiceRequest) *repository.Service {
	return &repository.Service{
		Name:            req.Name,
		ClientID:        req.ClientID,
		Type:            req.Type,
		RedirectURIs:    req.RedirectURIs,
		AllowedScopes:   req.AllowedScopes,
		GrantTypes:      req.GrantTypes,
		AccessTokenTTL:  req.AccessTokenTTL,
		IDTokenTTL:      req.IDTokenTTL,
		RefreshTokenTTL: req.RefreshTokenTTL,
		RefreshEligible: req.RefreshEligible,
		LogoutURI:       req.LogoutURI,
		LogoutChannel:   req.LogoutChannel,
	}
}

func serviceResponse(svc *repository.Service) *dto.ServiceResponse {
	return &dto.ServiceResponse{
		ID:              svc.ID,
		Name:            svc.Name,
		ClientID:        svc.ClientID,
		Type:            svc.Type,
		RedirectURIs:    svc.RedirectURIs,
		AllowedScopes:   svc.AllowedScopes,
		GrantTypes:      svc.GrantTypes,
		AccessTokenTTL:  svc.AccessTokenTTL,
		IDTokenTTL:      svc.IDTokenTTL,
		RefreshTokenTTL: svc.RefreshTokenTTL,
		RefreshEligible: svc.RefreshEligible,
		LogoutURI:       svc.LogoutURI,
		LogoutChannel:   svc.LogoutChannel,
		CreatedAt:       svc.CreatedAt,
		UpdatedAt:       svc.UpdatedAt,
	}
}

func userResponse(u *repository.User) *dto.UserResponse {
	return &dto.UserResponse{
		ID:             u.ID,
		Email:          u.Email,
		EmailVerified:  u.EmailVerified,
		Name:           u.Name,
		CreatedAt:      u.CreatedAt,
		DisabledAt:     u.DisabledAt,
		DisabledReason: u.DisabledReason,
	}
}

// newClientSecret genera un secret opaco y su hash bcrypt.
func newClientSecret() (secret, hash string, err error) {
	secret, err = token.GenerateOpaqueToken(32)
	if err != nil {
		return "", "", err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return secret, string(h), nil
}
