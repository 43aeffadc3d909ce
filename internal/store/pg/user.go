package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/janus/internal/domain/repository"
)

type userRepo struct{ pool *pgxpool.Pool }

const userColumns = `id, email, email_verified, name, given_name, family_name,
	locale, claims, created_at, disabled_at, disabled_reason`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	err := row.Scan(
		&u.ID, &u.Email, &u.EmailVerified, &u.Name, &u.GivenName, &u.FamilyName,
		&u.Locale, &u.Claims, &u.CreatedAt, &u.DisabledAt, &u.DisabledReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, userID string) (*repository.User, error) {
	query := `SELECT ` + userColumns + ` FROM app_user WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, userID))
}

func (r *userRepo) List(ctx context.Context, filter repository.ListUsersFilter) ([]repository.User, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := `SELECT ` + userColumns + ` FROM app_user`
	args := []any{}
	if filter.Search != "" {
		query += ` WHERE email ILIKE $1 OR name ILIKE $1`
		args = append(args, "%"+filter.Search+"%")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *userRepo) Create(ctx context.Context, u *repository.User) error {
	claims := u.Claims
	if claims == nil {
		claims = map[string]any{}
	}
	const query = `
		INSERT INTO app_user (email, email_verified, name, given_name, family_name, locale, claims)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return r.pool.QueryRow(ctx, query,
		u.Email, u.EmailVerified, u.Name, u.GivenName, u.FamilyName, u.Locale, claims,
	).Scan(&u.ID, &u.CreatedAt)
}

func (r *userRepo) Update(ctx context.Context, u *repository.User) error {
	claims := u.Claims
	if claims == nil {
		claims = map[string]any{}
	}
	const query = `
		UPDATE app_user
		SET email = $2, email_verified = $3, name = $4, given_name = $5,
		    family_name = $6, locale = $7, claims = $8
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		u.ID, u.Email, u.EmailVerified, u.Name, u.GivenName, u.FamilyName, u.Locale, claims,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepo) Disable(ctx context.Context, userID, by, reason string) error {
	const query = `
		UPDATE app_user SET disabled_at = NOW(), disabled_reason = $2
		WHERE id = $1 AND disabled_at IS NULL
	`
	full := reason
	if by != "" {
		full = fmt.Sprintf("%s (by %s)", reason, by)
	}
	tag, err := r.pool.Exec(ctx, query, userID, nullIfEmpty(full))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepo) Enable(ctx context.Context, userID, by string) error {
	const query = `
		UPDATE app_user SET disabled_at = NULL, disabled_reason = NULL
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
