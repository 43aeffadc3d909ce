package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/google/uuid"
)

type sessionRepo struct{ d *DAL }

func (r *sessionRepo) Create(_ context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	now := time.Now().UTC()
	s := &repository.Session{
		ID:           uuid.NewString(),
		UserID:       input.UserID,
		TokenHash:    input.TokenHash,
		Backend:      input.Backend,
		AMR:          copyStrings(input.AMR),
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    input.ExpiresAt,
	}
	r.d.sessions[s.ID] = s
	r.d.sessByHash[s.TokenHash] = s.ID
	cp := r.cloneLocked(s)
	return cp, nil
}

func (r *sessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*repository.Session, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	id, ok := r.d.sessByHash[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.cloneLocked(r.d.sessions[id]), nil
}

func (r *sessionRepo) GetByID(_ context.Context, sessionID string) (*repository.Session, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	s, ok := r.d.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.cloneLocked(s), nil
}

func (r *sessionRepo) TouchActivity(_ context.Context, sessionID string, at time.Time) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	s, ok := r.d.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	s.LastActivity = at
	return nil
}

func (r *sessionRepo) AddVisitedService(_ context.Context, sessionID, serviceID string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	s, ok := r.d.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, v := range s.VisitedIDs {
		if v == serviceID {
			return nil
		}
	}
	s.VisitedIDs = append(s.VisitedIDs, serviceID)
	return nil
}

func (r *sessionRepo) ListByUser(_ context.Context, userID string) ([]repository.Session, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var out []repository.Session
	for _, s := range r.d.sessions {
		if s.UserID == userID {
			out = append(out, *r.cloneLocked(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *sessionRepo) End(_ context.Context, sessionID string, at time.Time) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	s, ok := r.d.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	if s.LoggedOutAt != nil {
		return repository.ErrSessionEnded
	}
	s.LoggedOutAt = &at
	return nil
}

func (r *sessionRepo) EndAllByUser(_ context.Context, userID string, at time.Time) (int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	n := 0
	for _, s := range r.d.sessions {
		if s.UserID == userID && s.LoggedOutAt == nil {
			t := at
			s.LoggedOutAt = &t
			n++
		}
	}
	return n, nil
}

func (r *sessionRepo) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	n := 0
	for id, s := range r.d.sessions {
		if s.LoggedOutAt != nil || s.ExpiresAt.Before(before) {
			delete(r.d.sessByHash, s.TokenHash)
			delete(r.d.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *sessionRepo) cloneLocked(s *repository.Session) *repository.Session {
	cp := *s
	cp.AMR = copyStrings(s.AMR)
	cp.VisitedIDs = copyStrings(s.VisitedIDs)
	if s.LoggedOutAt != nil {
		t := *s.LoggedOutAt
		cp.LoggedOutAt = &t
	}
	return &cp
}
