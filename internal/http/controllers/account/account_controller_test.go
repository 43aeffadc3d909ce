package account_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	accountctrl "github.com/dropDatabas3/janus/internal/http/controllers/account"
	dto "github.com/dropDatabas3/janus/internal/http/dto/account"
	mw "github.com/dropDatabas3/janus/internal/http/middlewares"
	accountsvc "github.com/dropDatabas3/janus/internal/http/services/account"
	sessionsvc "github.com/dropDatabas3/janus/internal/http/services/session"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

type accountFixture struct {
	dal      *memory.DAL
	sessions sessionsvc.Service
	ctrl     *accountctrl.Controller
	userID   string
	raw      string
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	dal := memory.New()
	sessions := sessionsvc.New(sessionsvc.Deps{Sessions: dal.Sessions()})

	userID, _, err := dal.Identities().ResolveOrCreate(context.Background(), repository.ResolveIdentityInput{
		Backend: "google", Subject: "sub-acct",
		Email: "ana@example.com", EmailVerified: true, Name: "Ana Demo",
	})
	require.NoError(t, err)

	_, raw, err := sessions.Establish(context.Background(), userID, "google", []string{"federated"})
	require.NoError(t, err)

	svc := accountsvc.New(accountsvc.Deps{DAL: dal})
	return &accountFixture{
		dal:      dal,
		sessions: sessions,
		ctrl:     accountctrl.NewController(svc, sessions),
		userID:   userID,
		raw:      raw,
	}
}

// serve pasa el request por WithSession, igual que el router en /v1/me.
func (f *accountFixture) serve(handler http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mw.Chain(handler, mw.WithSession(f.sessions.Resolve)).ServeHTTP(w, r)
	return w
}

func (f *accountFixture) authedRequest(method, target string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.AddCookie(&http.Cookie{Name: "janus_session", Value: f.raw})
	return r
}

func TestProfile(t *testing.T) {
	f := newAccountFixture(t)

	w := f.serve(f.ctrl.Profile, f.authedRequest(http.MethodGet, "/v1/me"))
	require.Equal(t, http.StatusOK, w.Code)

	var p dto.Profile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, f.userID, p.ID)
	assert.Equal(t, "ana@example.com", p.Email)
	assert.True(t, p.EmailVerified)
}

func TestProfile_WithoutSessionIs401(t *testing.T) {
	f := newAccountFixture(t)

	w := f.serve(f.ctrl.Profile, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListSessions_MarksCurrent(t *testing.T) {
	f := newAccountFixture(t)

	// Segunda sesión del mismo usuario desde otro dispositivo.
	other, _, err := f.sessions.Establish(context.Background(), f.userID, "google", nil)
	require.NoError(t, err)

	w := f.serve(f.ctrl.ListSessions, f.authedRequest(http.MethodGet, "/v1/me/sessions"))
	require.Equal(t, http.StatusOK, w.Code)

	var sessions []dto.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	require.Len(t, sessions, 2)

	var current int
	for _, s := range sessions {
		if s.Current {
			current++
			assert.NotEqual(t, other.ID, s.ID)
		}
	}
	assert.Equal(t, 1, current, "exactamente una sesión es la del request")
}

func TestEndAllSessions(t *testing.T) {
	f := newAccountFixture(t)

	other, _, err := f.sessions.Establish(context.Background(), f.userID, "google", nil)
	require.NoError(t, err)

	w := f.serve(f.ctrl.EndAllSessions, f.authedRequest(http.MethodPost, "/v1/me/sessions/end-all"))
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Ended int `json:"ended"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Ended)

	// La respuesta borra la cookie de sesión.
	cleared := false
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "janus_session" && ck.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)

	sess, err := f.dal.Sessions().GetByID(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionLoggedOut, sess.Status(time.Now(), 0))
}
