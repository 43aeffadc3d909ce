package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/google/uuid"
)

type loginEntryRepo struct{ d *DAL }

func (r *loginEntryRepo) Append(_ context.Context, input repository.AppendLoginEntryInput) (*repository.LoginEntry, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	// Entry activa existente para el triple: solo refresca last_used.
	for _, e := range r.d.entries {
		if e.UserID == input.UserID && e.ServiceID == input.ServiceID &&
			e.DeviceFingerprint == input.DeviceFingerprint && e.RevokedAt == nil {
			e.LastUsedAt = at
			cp := *e
			return &cp, nil
		}
	}

	e := &repository.LoginEntry{
		ID:                uuid.NewString(),
		UserID:            input.UserID,
		ServiceID:         input.ServiceID,
		DeviceFingerprint: input.DeviceFingerprint,
		DeviceName:        input.DeviceName,
		IPAddress:         input.IPAddress,
		CreatedAt:         at,
		LastUsedAt:        at,
	}
	r.d.entries[e.ID] = e
	cp := *e
	return &cp, nil
}

func (r *loginEntryRepo) ListByUser(_ context.Context, userID string) ([]repository.LoginEntry, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var out []repository.LoginEntry
	for _, e := range r.d.entries {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}

func (r *loginEntryRepo) Revoke(_ context.Context, userID, entryID string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	e, ok := r.d.entries[entryID]
	if !ok || e.UserID != userID {
		return repository.ErrNotFound
	}
	if e.RevokedAt == nil {
		now := time.Now().UTC()
		e.RevokedAt = &now
	}
	return nil
}

func (r *loginEntryRepo) IsRevoked(_ context.Context, userID, serviceID, fingerprint string) (bool, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	for _, e := range r.d.entries {
		if e.UserID == userID && e.ServiceID == serviceID && e.DeviceFingerprint == fingerprint {
			return e.RevokedAt != nil, nil
		}
	}
	return false, nil
}
