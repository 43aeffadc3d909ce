package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dropDatabas3/janus/internal/domain/repository"
	"github.com/google/uuid"
)

type userRepo struct{ d *DAL }

func (r *userRepo) GetByID(_ context.Context, userID string) (*repository.User, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	u, ok := r.d.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	cp.Claims = copyClaims(u.Claims)
	return &cp, nil
}

func (r *userRepo) List(_ context.Context, filter repository.ListUsersFilter) ([]repository.User, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	all := make([]repository.User, 0, len(r.d.users))
	q := strings.ToLower(filter.Search)
	for _, u := range r.d.users {
		if q != "" && !strings.Contains(strings.ToLower(u.Email), q) && !strings.Contains(strings.ToLower(u.Name), q) {
			continue
		}
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	if filter.Offset >= len(all) {
		return []repository.User{}, nil
	}
	end := filter.Offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[filter.Offset:end], nil
}

func (r *userRepo) Create(_ context.Context, u *repository.User) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if _, exists := r.d.users[u.ID]; exists {
		return repository.ErrConflict
	}
	cp := *u
	cp.Claims = copyClaims(u.Claims)
	r.d.users[u.ID] = &cp
	return nil
}

func (r *userRepo) Update(_ context.Context, u *repository.User) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	cur, ok := r.d.users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Email = u.Email
	cur.EmailVerified = u.EmailVerified
	cur.Name = u.Name
	cur.GivenName = u.GivenName
	cur.FamilyName = u.FamilyName
	cur.Locale = u.Locale
	cur.Claims = copyClaims(u.Claims)
	return nil
}

func (r *userRepo) Disable(_ context.Context, userID, _ string, reason string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	u, ok := r.d.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	u.DisabledAt = &now
	u.DisabledReason = &reason
	return nil
}

func (r *userRepo) Enable(_ context.Context, userID, _ string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	u, ok := r.d.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.DisabledAt = nil
	u.DisabledReason = nil
	return nil
}
