// Package pg implementa el DataAccessLayer sobre PostgreSQL.
// Usa pgxpool directamente; el schema se aplica de forma idempotente
// al conectar.
package pg

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/dropDatabas3/janus/internal/store"
)

//go:embed schema.sql
var schemaSQL string

func init() {
	store.RegisterDriver("postgres", open)
}

func open(ctx context.Context, cfg store.Config) (store.DataAccessLayer, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.ConnMaxLifetime != "" {
		d, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("pg: conn max lifetime: %w", err)
		}
		poolCfg.MaxConnLifetime = d
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: apply schema: %w", err)
	}

	return &dal{pool: pool}, nil
}

// dal implementa store.DataAccessLayer para PostgreSQL.
type dal struct {
	pool *pgxpool.Pool
}

func (d *dal) Users() repository.UserRepository              { return &userRepo{pool: d.pool} }
func (d *dal) Identities() repository.IdentityRepository     { return &identityRepo{pool: d.pool} }
func (d *dal) Services() repository.ServiceRepository        { return &serviceRepo{pool: d.pool} }
func (d *dal) Consents() repository.ConsentRepository        { return &consentRepo{pool: d.pool} }
func (d *dal) Sessions() repository.SessionRepository        { return &sessionRepo{pool: d.pool} }
func (d *dal) LoginEntries() repository.LoginEntryRepository { return &loginEntryRepo{pool: d.pool} }
func (d *dal) RefreshTokens() repository.TokenRepository     { return &tokenRepo{pool: d.pool} }

func (d *dal) Ping(ctx context.Context) error { return d.pool.Ping(ctx) }

func (d *dal) Close() error {
	d.pool.Close()
	return nil
}

// nullIfEmpty convierte "" en NULL para columnas opcionales.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
