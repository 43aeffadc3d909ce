package oidc

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/dropDatabas3/janus/internal/http/dto/oidc"
	jwtx "github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/observability/logger"
)

var (
	// ErrInvalidToken indica un access token ausente, malformado o vencido.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrInsufficientScope indica que el token no tiene scope openid.
	ErrInsufficientScope = errors.New("token lacks openid scope")
)

// UserInfoService resuelve los claims del usuario detrás de un access token.
type UserInfoService interface {
	// UserInfo valida el bearer token y retorna los claims permitidos
	// por los scopes del token.
	UserInfo(ctx context.Context, bearer string) (*oidc.UserInfoResponse, error)
}

// UserInfoDeps contiene las dependencias del service.
type UserInfoDeps struct {
	Users  repository.UserRepository
	Issuer *jwtx.Issuer
}

type userInfoService struct {
	users  repository.UserRepository
	issuer *jwtx.Issuer
}

// NewUserInfoService crea el UserInfoService.
func NewUserInfoService(d UserInfoDeps) UserInfoService {
	return &userInfoService{users: d.Users, issuer: d.Issuer}
}

func (s *userInfoService) UserInfo(ctx context.Context, bearer string) (*oidc.UserInfoResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oidc.userinfo"))

	if bearer == "" {
		return nil, ErrInvalidToken
	}
	claims, err := s.issuer.Parse(bearer)
	if err != nil {
		log.Debug("token parse failed", logger.Err(err))
		return nil, ErrInvalidToken
	}

	scopes := tokenScopes(claims)
	if !slices.Contains(scopes, "openid") {
		return nil, ErrInsufficientScope
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}

	u, err := s.users.GetByID(ctx, sub)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		log.Error("user lookup failed", logger.UserID(sub), logger.Err(err))
		return nil, err
	}
	if u.Disabled() {
		return nil, ErrInvalidToken
	}

	resp := &oidc.UserInfoResponse{Sub: u.ID}
	if slices.Contains(scopes, "email") {
		resp.Email = u.Email
		resp.EmailVerified = u.EmailVerified
	}
	if slices.Contains(scopes, "profile") {
		resp.Name = u.Name
		resp.GivenName = u.GivenName
		resp.FamilyName = u.FamilyName
		resp.Locale = u.Locale
	}
	return resp, nil
}

// tokenScopes extrae los scopes del claim "scope" (space-separated) o
// del claim "scp" (array).
func tokenScopes(claims map[string]any) []string {
	if raw, ok := claims["scope"].(string); ok && raw != "" {
		return strings.Fields(raw)
	}
	if arr, ok := claims["scp"].([]any); ok {
		out := make([]string, 0, len(arr))
		for _, v := range arr {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
