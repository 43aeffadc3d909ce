// Package memory implementa el DataAccessLayer en memoria.
// Para desarrollo y tests; un único RWMutex serializa todas las escrituras,
// lo que hace triviales las garantías de atomicidad de los repositorios.
package memory

import (
	"context"
	"sync"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/dropDatabas3/janus/internal/store"
)

func init() {
	store.RegisterDriver("memory", func(_ context.Context, _ store.Config) (store.DataAccessLayer, error) {
		return New(), nil
	})
}

// DAL es el adapter en memoria.
type DAL struct {
	mu sync.RWMutex

	users      map[string]*repository.User             // by ID
	identities map[string]*repository.ExternalIdentity // by ID
	identByKey map[identityKey]string                  // (backend,subject) -> identity ID
	services   map[string]*repository.Service          // by clientID
	consents   map[consentKey]*repository.Consent
	sessions   map[string]*repository.Session // by ID
	sessByHash map[string]string              // token hash -> session ID
	entries    map[string]*repository.LoginEntry
	tokens     map[string]*repository.RefreshToken // by ID
	tokByHash  map[string]string                   // token hash -> token ID
}

type identityKey struct{ backend, subject string }
type consentKey struct{ userID, serviceID string }

// New crea un DAL en memoria vacío.
func New() *DAL {
	return &DAL{
		users:      map[string]*repository.User{},
		identities: map[string]*repository.ExternalIdentity{},
		identByKey: map[identityKey]string{},
		services:   map[string]*repository.Service{},
		consents:   map[consentKey]*repository.Consent{},
		sessions:   map[string]*repository.Session{},
		sessByHash: map[string]string{},
		entries:    map[string]*repository.LoginEntry{},
		tokens:     map[string]*repository.RefreshToken{},
		tokByHash:  map[string]string{},
	}
}

func (d *DAL) Users() repository.UserRepository            { return &userRepo{d} }
func (d *DAL) Identities() repository.IdentityRepository   { return &identityRepo{d} }
func (d *DAL) Services() repository.ServiceRepository      { return &serviceRepo{d} }
func (d *DAL) Consents() repository.ConsentRepository      { return &consentRepo{d} }
func (d *DAL) Sessions() repository.SessionRepository      { return &sessionRepo{d} }
func (d *DAL) LoginEntries() repository.LoginEntryRepository { return &loginEntryRepo{d} }
func (d *DAL) RefreshTokens() repository.TokenRepository   { return &tokenRepo{d} }

func (d *DAL) Ping(context.Context) error { return nil }
func (d *DAL) Close() error               { return nil }

// copyStrings evita aliasing de slices compartidos entre callers.
func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyClaims(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
