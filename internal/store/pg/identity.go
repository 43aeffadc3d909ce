package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/janus/internal/domain/repository"
)

type identityRepo struct{ pool *pgxpool.Pool }

const identityColumns = `id, user_id, backend, subject, email, email_verified,
	raw_claims, created_at, last_login_at`

func scanIdentity(row pgx.Row) (*repository.ExternalIdentity, error) {
	var ident repository.ExternalIdentity
	err := row.Scan(
		&ident.ID, &ident.UserID, &ident.Backend, &ident.Subject,
		&ident.Email, &ident.EmailVerified, &ident.RawClaims,
		&ident.CreatedAt, &ident.LastLoginAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

func (r *identityRepo) GetByBackend(ctx context.Context, backend, subject string) (*repository.ExternalIdentity, error) {
	query := `SELECT ` + identityColumns + ` FROM external_identity WHERE backend = $1 AND subject = $2`
	return scanIdentity(r.pool.QueryRow(ctx, query, backend, subject))
}

func (r *identityRepo) ListByUser(ctx context.Context, userID string) ([]repository.ExternalIdentity, error) {
	query := `SELECT ` + identityColumns + ` FROM external_identity WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.ExternalIdentity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ident)
	}
	return out, rows.Err()
}

// ResolveOrCreate crea usuario + identidad en una transacción. El UNIQUE
// (backend, subject) garantiza que bajo first-logins concurrentes gana
// exactamente uno; los perdedores hacen rollback y releen al ganador.
func (r *identityRepo) ResolveOrCreate(ctx context.Context, input repository.ResolveIdentityInput) (string, bool, error) {
	// Fast path: identidad conocida.
	var userID, identityID string
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id FROM external_identity WHERE backend = $1 AND subject = $2`,
		input.Backend, input.Subject,
	).Scan(&identityID, &userID)
	if err == nil {
		_ = r.TouchLogin(ctx, identityID, time.Now().UTC(), input.RawClaims)
		return userID, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback(ctx)

	claims := input.RawClaims
	if claims == nil {
		claims = map[string]any{}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO app_user (email, email_verified, name, given_name, family_name, locale)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, input.Email, input.EmailVerified, input.Name, input.GivenName, input.FamilyName, input.Locale,
	).Scan(&userID)
	if err != nil {
		return "", false, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO external_identity (user_id, backend, subject, email, email_verified, raw_claims)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (backend, subject) DO NOTHING
		RETURNING id
	`, userID, input.Backend, input.Subject, input.Email, input.EmailVerified, claims,
	).Scan(&identityID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Perdimos la carrera: otro request creó la identidad. Descartamos
		// el usuario provisional y resolvemos al dueño existente.
		_ = tx.Rollback(ctx)
		err = r.pool.QueryRow(ctx,
			`SELECT user_id FROM external_identity WHERE backend = $1 AND subject = $2`,
			input.Backend, input.Subject,
		).Scan(&userID)
		if err != nil {
			return "", false, err
		}
		return userID, false, nil
	}
	if err != nil {
		return "", false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (r *identityRepo) Link(ctx context.Context, userID string, input repository.ResolveIdentityInput) (*repository.ExternalIdentity, error) {
	existing, err := r.GetByBackend(ctx, input.Backend, input.Subject)
	if err == nil {
		if existing.UserID == userID {
			return existing, nil
		}
		return nil, repository.ErrIdentityLinked
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	claims := input.RawClaims
	if claims == nil {
		claims = map[string]any{}
	}
	query := `
		INSERT INTO external_identity (user_id, backend, subject, email, email_verified, raw_claims)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (backend, subject) DO NOTHING
		RETURNING ` + identityColumns
	ident, err := scanIdentity(r.pool.QueryRow(ctx, query,
		userID, input.Backend, input.Subject, input.Email, input.EmailVerified, claims,
	))
	if errors.Is(err, repository.ErrNotFound) {
		// Carrera con otro Link del mismo par.
		return nil, repository.ErrIdentityLinked
	}
	return ident, err
}

func (r *identityRepo) Unlink(ctx context.Context, userID, identityID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM external_identity WHERE user_id = $1`, userID,
	).Scan(&count); err != nil {
		return err
	}
	if count <= 1 {
		return repository.ErrLastIdentity
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM external_identity WHERE id = $1 AND user_id = $2`, identityID, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *identityRepo) TouchLogin(ctx context.Context, identityID string, at time.Time, claims map[string]any) error {
	if claims == nil {
		claims = map[string]any{}
	}
	const query = `UPDATE external_identity SET last_login_at = $2, raw_claims = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, identityID, at, claims)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
