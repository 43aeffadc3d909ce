// Package store expone el DataAccessLayer del broker.
//
// Los engines de protocolo acceden al estado durable únicamente a través
// de las interfaces de internal/domain/repository; este paquete resuelve
// qué driver las implementa (postgres o memoria).
package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/janus/internal/domain/repository"
)

// DataAccessLayer agrupa los repositorios del broker.
type DataAccessLayer interface {
	Users() repository.UserRepository
	Identities() repository.IdentityRepository
	Services() repository.ServiceRepository
	Consents() repository.ConsentRepository
	Sessions() repository.SessionRepository
	LoginEntries() repository.LoginEntryRepository
	RefreshTokens() repository.TokenRepository

	Ping(ctx context.Context) error
	Close() error
}

// Config configuración del storage.
type Config struct {
	Driver          string // "memory" | "postgres"
	DSN             string
	MaxConns        int
	ConnMaxLifetime string
}

// opener registrado por cada driver (pg se registra via init).
type opener func(ctx context.Context, cfg Config) (DataAccessLayer, error)

var openers = map[string]opener{}

// RegisterDriver registra un driver. Llamado desde init() de cada adapter.
func RegisterDriver(name string, fn opener) {
	openers[name] = fn
}

// Open crea el DAL según la configuración.
func Open(ctx context.Context, cfg Config) (DataAccessLayer, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "memory"
	}
	fn, ok := openers[driver]
	if !ok {
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
	return fn(ctx, cfg)
}
