package oauth

import (
	"context"

	"github.com/dropDatabas3/janus/internal/backends"
)

// backendStarter adapta backends.Registry a la interfaz BackendStarter.
type backendStarter struct {
	reg *backends.Registry
}

// NewBackendStarter envuelve el registry de backends para authorize.
func NewBackendStarter(reg *backends.Registry) BackendStarter {
	return &backendStarter{reg: reg}
}

func (a *backendStarter) StartLogin(ctx context.Context, backendName, state string) (string, error) {
	b, ok := a.reg.Get(backendName)
	if !ok {
		return "", ErrUnknownBackend
	}
	return b.Start(ctx, state)
}

func (a *backendStarter) HasBackend(name string) bool {
	_, ok := a.reg.Get(name)
	return ok
}

func (a *backendStarter) BackendNames() []string {
	return a.reg.Names()
}
