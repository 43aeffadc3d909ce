package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	dto "github.com/dropDatabas3/janus/internal/http/dto/oauth"
	jwtx "github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/metrics"
	"github.com/dropDatabas3/janus/internal/observability/logger"
)

// backchannelTimeout acota el fan-out completo de logout.
const backchannelTimeout = 10 * time.Second

// EndSessionService maneja el cierre de sesión SSO y la propagación del
// logout a los services visitados.
type EndSessionService interface {
	// EndSession cierra la sesión del request y notifica a los services.
	// Es best-effort: un service caído no bloquea el cierre local.
	EndSession(ctx context.Context, r *http.Request, req dto.EndSessionRequest) (dto.EndSessionResult, error)
}

// EndSessionDeps contiene las dependencias del service.
type EndSessionDeps struct {
	Sessions   repository.SessionRepository
	Services   repository.ServiceRepository
	Issuer     *jwtx.Issuer
	CookieName string
	UIBaseURL  string
}

type endSessionService struct {
	sessions   repository.SessionRepository
	services   repository.ServiceRepository
	issuer     *jwtx.Issuer
	cookieName string
	uiBaseURL  string
	client     *retryablehttp.Client
}

// NewEndSessionService crea el EndSessionService.
func NewEndSessionService(d EndSessionDeps) EndSessionService {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 1 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	cookieName := d.CookieName
	if cookieName == "" {
		cookieName = "janus_session"
	}
	return &endSessionService{
		sessions:   d.Sessions,
		services:   d.Services,
		issuer:     d.Issuer,
		cookieName: cookieName,
		uiBaseURL:  strings.TrimRight(d.UIBaseURL, "/"),
		client:     rc,
	}
}

func (s *endSessionService) EndSession(ctx context.Context, r *http.Request, req dto.EndSessionRequest) (dto.EndSessionResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.endsession"))

	result := dto.EndSessionResult{
		RedirectTo: s.uiBaseURL + "/logged-out",
		State:      req.State,
	}

	sess := sessionFromRequest(ctx, r, s.cookieName, s.sessions)
	if sess == nil {
		// Sin sesión el logout es un no-op idempotente.
		log.Debug("end-session without active session")
		if to := s.validatedPostLogout(ctx, req); to != "" {
			result.RedirectTo = to
		}
		return result, nil
	}

	if err := s.sessions.End(ctx, sess.ID, time.Now().UTC()); err != nil &&
		!errors.Is(err, repository.ErrSessionEnded) {
		log.Error("session end failed", logger.SessionID(sess.ID), logger.Err(err))
		return result, err
	}
	result.SessionEnded = true
	log.Info("session ended", logger.UserID(sess.UserID), logger.SessionID(sess.ID))

	// El scope local termina acá: solo con all_services se cierran las
	// demás sesiones y se propaga el logout a los services visitados.
	if req.AllServices {
		if n, err := s.sessions.EndAllByUser(ctx, sess.UserID, time.Now().UTC()); err != nil {
			log.Error("end all sessions failed", logger.UserID(sess.UserID), logger.Err(err))
		} else {
			log.Info("other sessions ended", logger.UserID(sess.UserID), logger.Count(n))
		}
		result.Notifications = s.notifyVisited(ctx, sess)
	}

	if to := s.validatedPostLogout(ctx, req); to != "" {
		result.RedirectTo = to
	}
	return result, nil
}

// notifyVisited propaga el logout a cada service autorizado en la sesión.
// Los backchannel se hacen en paralelo; los frontchannel solo se
// recolectan, los carga el UI en iframes.
func (s *endSessionService) notifyVisited(ctx context.Context, sess *repository.Session) []dto.LogoutNotification {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.endsession.fanout"))

	if len(sess.VisitedIDs) == 0 {
		return nil
	}

	all, err := s.services.List(ctx)
	if err != nil {
		log.Error("service list failed, logout not propagated", logger.Err(err))
		return nil
	}
	byID := make(map[string]*repository.Service, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}

	notifCtx, cancel := context.WithTimeout(ctx, backchannelTimeout)
	defer cancel()

	var (
		out []dto.LogoutNotification
		g   errgroup.Group
		// Cada goroutine escribe solo su slot.
		slots = make([]dto.LogoutNotification, len(sess.VisitedIDs))
		used  = make([]bool, len(sess.VisitedIDs))
	)

	for i, id := range sess.VisitedIDs {
		svc, ok := byID[id]
		if !ok || svc.LogoutChannel == repository.LogoutChannelNone || svc.LogoutURI == "" {
			continue
		}
		used[i] = true

		switch svc.LogoutChannel {
		case repository.LogoutChannelFront:
			slots[i] = dto.LogoutNotification{
				ClientID:        svc.ClientID,
				Channel:         svc.LogoutChannel,
				OK:              true,
				FrontchannelURI: frontchannelURI(svc.LogoutURI, s.issuer.Iss, sess.ID),
			}

		case repository.LogoutChannelBack:
			i, svc := i, svc
			g.Go(func() error {
				slots[i] = s.sendBackchannel(notifCtx, svc, sess)
				return nil
			})
		}
	}
	_ = g.Wait()

	for i := range slots {
		if !used[i] {
			continue
		}
		n := slots[i]
		res := "ok"
		if !n.OK {
			res = "failed"
		}
		metrics.LogoutNotifications.WithLabelValues(res).Inc()
		out = append(out, n)
	}

	log.Info("logout fan-out completed",
		logger.SessionID(sess.ID),
		logger.Count(len(out)),
	)
	return out
}

// sendBackchannel envía el logout token firmado al service.
func (s *endSessionService) sendBackchannel(ctx context.Context, svc *repository.Service, sess *repository.Session) dto.LogoutNotification {
	n := dto.LogoutNotification{ClientID: svc.ClientID, Channel: svc.LogoutChannel}

	logoutToken, err := s.issuer.IssueLogoutToken(sess.UserID, svc.ClientID, sess.ID)
	if err != nil {
		n.Error = "logout token signing failed"
		return n
	}

	form := url.Values{"logout_token": {logoutToken}}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, svc.LogoutURI,
		strings.NewReader(form.Encode()))
	if err != nil {
		n.Error = err.Error()
		return n
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		n.Error = err.Error()
		return n
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.Error = resp.Status
		return n
	}
	n.OK = true
	return n
}

// validatedPostLogout acepta post_logout_redirect_uri solo si está
// registrada para el client que la pide. Sin validación no se redirige
// a destinos arbitrarios.
func (s *endSessionService) validatedPostLogout(ctx context.Context, req dto.EndSessionRequest) string {
	if req.PostLogoutRedirectURI == "" {
		return ""
	}

	clientID := req.ClientID
	if clientID == "" && req.IDTokenHint != "" {
		if claims, err := s.issuer.Parse(req.IDTokenHint); err == nil {
			clientID, _ = claims["aud"].(string)
		}
	}
	if clientID == "" {
		return ""
	}

	svc, err := s.services.GetByClientID(ctx, clientID)
	if err != nil {
		return ""
	}
	if svc.AllowsRedirectURI(req.PostLogoutRedirectURI) || svc.LogoutURI == req.PostLogoutRedirectURI {
		return req.PostLogoutRedirectURI
	}
	return ""
}

// frontchannelURI agrega iss y sid a la URI de logout del service
// (OIDC Front-Channel Logout 1.0).
func frontchannelURI(base, iss, sid string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("iss", iss)
	q.Set("sid", sid)
	u.RawQuery = q.Encode()
	return u.String()
}
