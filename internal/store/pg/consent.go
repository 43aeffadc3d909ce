package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/janus/internal/domain/repository"
)

type consentRepo struct{ pool *pgxpool.Pool }

const consentColumns = `id, user_id, service_id, scopes, granted_at, updated_at`

func scanConsent(row pgx.Row) (*repository.Consent, error) {
	var c repository.Consent
	err := row.Scan(&c.ID, &c.UserID, &c.ServiceID, &c.Scopes, &c.GrantedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *consentRepo) Get(ctx context.Context, userID, serviceID string) (*repository.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM user_consent WHERE user_id = $1 AND service_id = $2`
	return scanConsent(r.pool.QueryRow(ctx, query, userID, serviceID))
}

// Upsert escribe el scope set recibido. El UNIQUE (user_id, service_id)
// serializa escrituras concurrentes del mismo par.
func (r *consentRepo) Upsert(ctx context.Context, userID, serviceID string, scopes []string) (*repository.Consent, error) {
	if scopes == nil {
		scopes = []string{}
	}
	query := `
		INSERT INTO user_consent (user_id, service_id, scopes)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, service_id)
		DO UPDATE SET scopes = EXCLUDED.scopes, updated_at = NOW()
		RETURNING ` + consentColumns
	return scanConsent(r.pool.QueryRow(ctx, query, userID, serviceID, scopes))
}

func (r *consentRepo) ListByUser(ctx context.Context, userID string) ([]repository.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM user_consent WHERE user_id = $1 ORDER BY granted_at`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *consentRepo) Revoke(ctx context.Context, userID, serviceID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_consent WHERE user_id = $1 AND service_id = $2`, userID, serviceID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
