package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/janus/internal/domain/repository"
)

type sessionRepo struct{ pool *pgxpool.Pool }

const sessionColumns = `id, user_id, token_hash, backend, amr, visited_ids,
	created_at, last_activity, expires_at, logged_out_at`

func scanSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.Backend, &s.AMR, &s.VisitedIDs,
		&s.CreatedAt, &s.LastActivity, &s.ExpiresAt, &s.LoggedOutAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) Create(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	amr := input.AMR
	if amr == nil {
		amr = []string{}
	}
	query := `
		INSERT INTO broker_session (user_id, token_hash, backend, amr, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + sessionColumns
	return scanSession(r.pool.QueryRow(ctx, query,
		input.UserID, input.TokenHash, input.Backend, amr, input.ExpiresAt,
	))
}

func (r *sessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*repository.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM broker_session WHERE token_hash = $1`
	return scanSession(r.pool.QueryRow(ctx, query, tokenHash))
}

func (r *sessionRepo) GetByID(ctx context.Context, sessionID string) (*repository.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM broker_session WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, sessionID))
}

func (r *sessionRepo) TouchActivity(ctx context.Context, sessionID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE broker_session SET last_activity = $2 WHERE id = $1`, sessionID, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) AddVisitedService(ctx context.Context, sessionID, serviceID string) error {
	const query = `
		UPDATE broker_session
		SET visited_ids = array_append(visited_ids, $2)
		WHERE id = $1 AND NOT ($2 = ANY (visited_ids))
	`
	_, err := r.pool.Exec(ctx, query, sessionID, serviceID)
	return err
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string) ([]repository.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM broker_session WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *sessionRepo) End(ctx context.Context, sessionID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE broker_session SET logged_out_at = $2 WHERE id = $1 AND logged_out_at IS NULL`,
		sessionID, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguir entre inexistente y ya cerrada.
		if _, err := r.GetByID(ctx, sessionID); err != nil {
			return err
		}
		return repository.ErrSessionEnded
	}
	return nil
}

func (r *sessionRepo) EndAllByUser(ctx context.Context, userID string, at time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE broker_session SET logged_out_at = $2 WHERE user_id = $1 AND logged_out_at IS NULL`,
		userID, at,
	)
	return int(tag.RowsAffected()), err
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM broker_session WHERE expires_at < $1 OR logged_out_at IS NOT NULL`, before,
	)
	return int(tag.RowsAffected()), err
}
