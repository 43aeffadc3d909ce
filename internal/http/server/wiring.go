// Package server arma el handler del broker con todas sus dependencias.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/janus/internal/backends"
	"github.com/dropDatabas3/janus/internal/cache"
	"github.com/dropDatabas3/janus/internal/config"
	accountctrl "github.com/dropDatabas3/janus/internal/http/controllers/account"
	adminctrl "github.com/dropDatabas3/janus/internal/http/controllers/admin"
	healthctrl "github.com/dropDatabas3/janus/internal/http/controllers/health"
	oauthctrl "github.com/dropDatabas3/janus/internal/http/controllers/oauth"
	oidcctrl "github.com/dropDatabas3/janus/internal/http/controllers/oidc"
	"github.com/dropDatabas3/janus/internal/http/router"
	accountsvc "github.com/dropDatabas3/janus/internal/http/services/account"
	adminsvc "github.com/dropDatabas3/janus/internal/http/services/admin"
	healthsvc "github.com/dropDatabas3/janus/internal/http/services/health"
	oauthsvc "github.com/dropDatabas3/janus/internal/http/services/oauth"
	oidcsvc "github.com/dropDatabas3/janus/internal/http/services/oidc"
	sessionsvc "github.com/dropDatabas3/janus/internal/http/services/session"
	jwtx "github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/metrics"
	"github.com/dropDatabas3/janus/internal/rate"
	"github.com/dropDatabas3/janus/internal/registry"
	"github.com/dropDatabas3/janus/internal/store"

	// Registran sus drivers via init().
	_ "github.com/dropDatabas3/janus/internal/store/memory"
	_ "github.com/dropDatabas3/janus/internal/store/pg"
)

// Build arma el handler HTTP completo. El cleanup cierra store y cache.
func Build(ctx context.Context, cfg *config.Config, version string) (http.Handler, func() error, error) {
	// 1. Storage.
	dal, err := store.Open(ctx, store.Config{
		Driver:          cfg.Storage.Driver,
		DSN:             cfg.Storage.DSN,
		MaxConns:        cfg.Storage.Postgres.MaxConns,
		ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("store open: %w", err)
	}

	// 2. Cache (codes, pending requests, tombstones).
	cacheClient, err := cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: config.ParseD(cfg.Cache.Memory.DefaultTTL, 10*time.Minute),
	})
	if err != nil {
		_ = dal.Close()
		return nil, nil, fmt.Errorf("cache init: %w", err)
	}

	cleanup := func() error {
		_ = cacheClient.Close()
		return dal.Close()
	}

	// 3. Claves de firma e issuer.
	keystore, err := jwtx.OpenKeystore(cfg.Issuer.KeysDir)
	if err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("keystore: %w", err)
	}
	issuer := jwtx.NewIssuer(cfg.Server.BaseURL, keystore)

	// 4. Backends externos.
	backendRegistry, err := backends.NewRegistry(ctx, backendConfigs(cfg), cfg.Server.BaseURL+"/oauth2/callback")
	if err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("backends: %w", err)
	}

	// 5. Registry de services con cache de resolución.
	svcRegistry := registry.New(dal.Services(), 30*time.Second)

	// 6. Métricas.
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}

	// 7. Services.
	sessions := sessionsvc.New(sessionsvc.Deps{
		Sessions: dal.Sessions(),
		Config: sessionsvc.Config{
			CookieName:  cfg.Session.CookieName,
			Domain:      cfg.Session.Domain,
			SameSite:    cfg.SessionSameSite(),
			Secure:      cfg.Session.Secure,
			TTL:         config.ParseD(cfg.Session.TTL, 720*time.Hour),
			IdleTimeout: config.ParseD(cfg.Session.IdleTimeout, 0),
		},
	})

	starter := oauthsvc.NewBackendStarter(backendRegistry)
	authorize := oauthsvc.NewAuthorizeService(oauthsvc.AuthorizeDeps{
		DAL:          dal,
		Registry:     svcRegistry,
		Cache:        cacheClient,
		Backends:     starter,
		UIBaseURL:    cfg.Login.UIBaseURL,
		CookieName:   cfg.Session.CookieName,
		CodeTTL:      cfg.CodeTTL(),
		ConsentMerge: cfg.Consent.Merge,
	})
	login := oauthsvc.NewLoginService(oauthsvc.LoginDeps{
		Backends:   backendRegistry,
		Identities: dal.Identities(),
		Users:      dal.Users(),
		Sessions:   sessions,
	})
	tokens := oauthsvc.NewTokenService(oauthsvc.TokenDeps{
		DAL:              dal,
		Registry:         svcRegistry,
		Issuer:           issuer,
		Cache:            cacheClient,
		RefreshTTL:       config.ParseD(cfg.Issuer.RefreshTTL, 720*time.Hour),
		RefreshFamilyMax: config.ParseD(cfg.Issuer.RefreshFamilyMax, 2160*time.Hour),
	})
	endSession := oauthsvc.NewEndSessionService(oauthsvc.EndSessionDeps{
		Sessions:   dal.Sessions(),
		Services:   dal.Services(),
		Issuer:     issuer,
		CookieName: cfg.Session.CookieName,
		UIBaseURL:  cfg.Login.UIBaseURL,
	})

	discovery := oidcsvc.NewDiscoveryService(cfg.Server.BaseURL)
	userInfo := oidcsvc.NewUserInfoService(oidcsvc.UserInfoDeps{
		Users:  dal.Users(),
		Issuer: issuer,
	})
	account := accountsvc.New(accountsvc.Deps{
		DAL:         dal,
		IdleTimeout: config.ParseD(cfg.Session.IdleTimeout, 0),
	})
	admin := adminsvc.New(adminsvc.Deps{DAL: dal, Registry: svcRegistry})
	health := healthsvc.New(healthsvc.Deps{
		DAL:      dal,
		Cache:    cacheClient,
		Keystore: keystore,
		Version:  version,
	})

	// 8. Router.
	handler := router.New(router.Deps{
		Authorize:  oauthctrl.NewAuthorizeController(authorize),
		Callback:   oauthctrl.NewCallbackController(login, authorize, sessions, cfg.Login.UIBaseURL),
		Consent:    oauthctrl.NewConsentController(authorize, sessions),
		Login:      oauthctrl.NewLoginController(starter),
		Token:      oauthctrl.NewTokenController(tokens),
		EndSession: oauthctrl.NewEndSessionController(endSession, sessions),

		Discovery: oidcctrl.NewDiscoveryController(discovery, keystore),
		UserInfo:  oidcctrl.NewUserInfoController(userInfo),

		Account: accountctrl.NewController(account, sessions),
		Admin:   adminctrl.NewController(admin),
		Health:  healthctrl.NewController(health),

		SessionResolver: sessions.Resolve,
		AdminAPIKey:     cfg.Admin.APIKey,

		AuthorizeLimiter: buildLimiter(cfg, cfg.Rate.Authorize.Limit, cfg.Rate.Authorize.Window, "rl:authz"),
		TokenLimiter:     buildLimiter(cfg, cfg.Rate.Token.Limit, cfg.Rate.Token.Window, "rl:token"),
	})

	return handler, cleanup, nil
}

// buildLimiter crea el rate limiter del endpoint. Con redis el contador
// es compartido entre réplicas; con cache en memoria es per-proceso.
func buildLimiter(cfg *config.Config, limit int, window, prefix string) rate.Limiter {
	if !cfg.Rate.Enabled || limit <= 0 {
		return nil
	}
	w := config.ParseD(window, time.Minute)
	if cfg.Cache.Kind == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		return rate.NewRedisLimiter(client, prefix, limit, w)
	}
	return rate.NewMemoryLimiter(limit, w)
}

func backendConfigs(cfg *config.Config) []backends.Config {
	out := make([]backends.Config, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		out = append(out, backends.Config{
			Name:         b.Name,
			Kind:         b.Kind,
			IssuerURL:    b.IssuerURL,
			ClientID:     b.ClientID,
			ClientSecret: b.ClientSecret,
			Scopes:       b.Scopes,
			Subject:      b.Subject,
			Email:        b.Email,
			Claims:       b.Claims,
		})
	}
	return out
}
