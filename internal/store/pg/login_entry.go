package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/janus/internal/domain/repository"
)

type loginEntryRepo struct{ pool *pgxpool.Pool }

const loginEntryColumns = `id, user_id, service_id, device_fingerprint, device_name,
	ip_address, created_at, last_used_at, revoked_at`

func scanLoginEntry(row pgx.Row) (*repository.LoginEntry, error) {
	var e repository.LoginEntry
	err := row.Scan(
		&e.ID, &e.UserID, &e.ServiceID, &e.DeviceFingerprint, &e.DeviceName,
		&e.IPAddress, &e.CreatedAt, &e.LastUsedAt, &e.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *loginEntryRepo) Append(ctx context.Context, input repository.AppendLoginEntryInput) (*repository.LoginEntry, error) {
	// Reusar la entry activa del triple si existe.
	updateQuery := `
		UPDATE login_entry SET last_used_at = $4, device_name = $5, ip_address = $6
		WHERE user_id = $1 AND service_id = $2 AND device_fingerprint = $3 AND revoked_at IS NULL
		RETURNING ` + loginEntryColumns
	entry, err := scanLoginEntry(r.pool.QueryRow(ctx, updateQuery,
		input.UserID, input.ServiceID, input.DeviceFingerprint,
		input.At, input.DeviceName, input.IPAddress,
	))
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	insertQuery := `
		INSERT INTO login_entry (user_id, service_id, device_fingerprint, device_name, ip_address, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING ` + loginEntryColumns
	return scanLoginEntry(r.pool.QueryRow(ctx, insertQuery,
		input.UserID, input.ServiceID, input.DeviceFingerprint,
		input.DeviceName, input.IPAddress, input.At,
	))
}

func (r *loginEntryRepo) ListByUser(ctx context.Context, userID string) ([]repository.LoginEntry, error) {
	query := `SELECT ` + loginEntryColumns + ` FROM login_entry WHERE user_id = $1 ORDER BY last_used_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.LoginEntry
	for rows.Next() {
		e, err := scanLoginEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *loginEntryRepo) Revoke(ctx context.Context, userID, entryID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE login_entry SET revoked_at = NOW() WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		entryID, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *loginEntryRepo) IsRevoked(ctx context.Context, userID, serviceID, fingerprint string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM login_entry
			WHERE user_id = $1 AND service_id = $2 AND device_fingerprint = $3 AND revoked_at IS NOT NULL
		)
	`
	var revoked bool
	err := r.pool.QueryRow(ctx, query, userID, serviceID, fingerprint).Scan(&revoked)
	return revoked, err
}
