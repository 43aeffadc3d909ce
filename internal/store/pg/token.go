package pg

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/janus/internal/domain/repository"
)

type tokenRepo struct{ pool *pgxpool.Pool }

const tokenColumns = `id, user_id, service_id, family_id, generation, scopes,
	token_hash, issued_at, expires_at, family_issued_at, rotated_from, revoked_at`

func scanToken(row pgx.Row) (*repository.RefreshToken, error) {
	var t repository.RefreshToken
	err := row.Scan(
		&t.ID, &t.UserID, &t.ServiceID, &t.FamilyID, &t.Generation, &t.Scopes,
		&t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.FamilyIssuedAt, &t.RotatedFrom, &t.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepo) Create(ctx context.Context, input repository.CreateRefreshTokenInput) (*repository.RefreshToken, error) {
	familyID := input.FamilyID
	if familyID == "" {
		familyID = uuid.NewString()
	}
	scopes := input.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	query := `
		INSERT INTO refresh_token (user_id, service_id, family_id, generation, scopes,
			token_hash, expires_at, family_issued_at, rotated_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), $9)
		RETURNING ` + tokenColumns
	var familyIssuedAt any
	if !input.FamilyIssuedAt.IsZero() {
		familyIssuedAt = input.FamilyIssuedAt
	}
	return scanToken(r.pool.QueryRow(ctx, query,
		input.UserID, input.ServiceID, familyID, input.Generation, scopes,
		input.TokenHash, input.ExpiresAt, familyIssuedAt, input.RotatedFrom,
	))
}

func (r *tokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_token WHERE token_hash = $1`
	return scanToken(r.pool.QueryRow(ctx, query, tokenHash))
}

func (r *tokenRepo) Revoke(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_token SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *tokenRepo) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_token SET revoked_at = NOW() WHERE family_id = $1 AND revoked_at IS NULL`,
		familyID,
	)
	return int(tag.RowsAffected()), err
}

func (r *tokenRepo) RevokeByUserService(ctx context.Context, userID, serviceID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_token SET revoked_at = NOW() WHERE user_id = $1 AND service_id = $2 AND revoked_at IS NULL`,
		userID, serviceID,
	)
	return int(tag.RowsAffected()), err
}
