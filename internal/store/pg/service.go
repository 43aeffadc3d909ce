package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/janus/internal/domain/repository"
)

type serviceRepo struct{ pool *pgxpool.Pool }

const serviceColumns = `id, name, client_id, client_secret_hash, client_type,
	redirect_uris, allowed_scopes, grant_types,
	access_token_ttl, id_token_ttl, refresh_token_ttl, refresh_eligible,
	logout_uri, logout_channel, created_at, updated_at`

func scanService(row pgx.Row) (*repository.Service, error) {
	var s repository.Service
	err := row.Scan(
		&s.ID, &s.Name, &s.ClientID, &s.ClientSecretHash, &s.Type,
		&s.RedirectURIs, &s.AllowedScopes, &s.GrantTypes,
		&s.AccessTokenTTL, &s.IDTokenTTL, &s.RefreshTokenTTL, &s.RefreshEligible,
		&s.LogoutURI, &s.LogoutChannel, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *serviceRepo) GetByClientID(ctx context.Context, clientID string) (*repository.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM rp_service WHERE client_id = $1`
	return scanService(r.pool.QueryRow(ctx, query, clientID))
}

func (r *serviceRepo) List(ctx context.Context) ([]repository.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM rp_service ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *serviceRepo) Create(ctx context.Context, s *repository.Service) error {
	const query = `
		INSERT INTO rp_service (name, client_id, client_secret_hash, client_type,
			redirect_uris, allowed_scopes, grant_types,
			access_token_ttl, id_token_ttl, refresh_token_ttl, refresh_eligible,
			logout_uri, logout_channel)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		s.Name, s.ClientID, s.ClientSecretHash, s.Type,
		s.RedirectURIs, s.AllowedScopes, s.GrantTypes,
		s.AccessTokenTTL, s.IDTokenTTL, s.RefreshTokenTTL, s.RefreshEligible,
		s.LogoutURI, s.LogoutChannel,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

func (r *serviceRepo) Update(ctx context.Context, s *repository.Service) error {
	const query = `
		UPDATE rp_service
		SET name = $2, client_secret_hash = $3, client_type = $4,
		    redirect_uris = $5, allowed_scopes = $6, grant_types = $7,
		    access_token_ttl = $8, id_token_ttl = $9, refresh_token_ttl = $10,
		    refresh_eligible = $11, logout_uri = $12, logout_channel = $13,
		    updated_at = NOW()
		WHERE client_id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		s.ClientID, s.Name, s.ClientSecretHash, s.Type,
		s.RedirectURIs, s.AllowedScopes, s.GrantTypes,
		s.AccessTokenTTL, s.IDTokenTTL, s.RefreshTokenTTL,
		s.RefreshEligible, s.LogoutURI, s.LogoutChannel,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *serviceRepo) Delete(ctx context.Context, clientID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rp_service WHERE client_id = $1`, clientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
