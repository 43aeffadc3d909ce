// Package health implementa el readiness check del broker.
package health

import (
	"context"
	"time"

	"github.com/dropDatabas3/janus/internal/cache"
	jwtx "github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/store"
)

// Component es el estado de una dependencia.
type Component struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // ok | degraded | down
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response es el body de /readyz.
type Response struct {
	Status      string      `json:"status"` // ready | degraded | unavailable
	Version     string      `json:"version,omitempty"`
	ActiveKeyID string      `json:"active_kid,omitempty"`
	Components  []Component `json:"components"`
}

// Service chequea las dependencias del broker.
type Service interface {
	Check(ctx context.Context) Response
}

// Deps contiene las dependencias a chequear.
type Deps struct {
	DAL      store.DataAccessLayer
	Cache    cache.Client
	Keystore *jwtx.Keystore
	Version  string
}

type healthService struct {
	deps Deps
}

// New crea el health Service.
func New(d Deps) Service {
	return &healthService{deps: d}
}

func (s *healthService) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp := Response{Status: "ready", Version: s.deps.Version}
	if kid, _, _, err := s.deps.Keystore.Active(); err == nil {
		resp.ActiveKeyID = kid
	}

	resp.Components = append(resp.Components, s.probe(ctx, "store", s.deps.DAL.Ping))
	resp.Components = append(resp.Components, s.probe(ctx, "cache", s.deps.Cache.Ping))

	for _, c := range resp.Components {
		switch {
		// Sin store el broker no puede operar.
		case c.Name == "store" && c.Status == "down":
			resp.Status = "unavailable"
		case c.Status == "down" && resp.Status == "ready":
			// El cache en memoria absorbe la caída de redis.
			resp.Status = "degraded"
		}
	}
	return resp
}

func (s *healthService) probe(ctx context.Context, name string, ping func(context.Context) error) Component {
	start := time.Now()
	if err := ping(ctx); err != nil {
		return Component{Name: name, Status: "down", Error: err.Error()}
	}
	return Component{Name: name, Status: "ok", Latency: time.Since(start).Round(time.Microsecond).String()}
}
