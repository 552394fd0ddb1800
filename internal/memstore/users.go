package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/user"
)

// Users implements user.Repository.
type Users struct {
	s *Store
}

func (r *Users) Create(ctx context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.d.users {
		if existing.Email == u.Email {
			return user.ErrEmailTaken
		}
	}
	u.ID = newID()
	u.CreatedAt = r.s.now()
	c := *u
	r.s.d.users[u.ID] = &c
	id := u.ID
	r.s.onRollback(ctx, func(d *data) { delete(d.users, id) })
	return nil
}

func (r *Users) GetByID(_ context.Context, id string) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.d.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.d.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *Users) Refs(_ context.Context, id string) (*user.Refs, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.d
	refs := &user.Refs{
		Assignments:   []string{},
		TAAssignments: []string{},
		EditingTeams:  []string{},
		StudentTeams:  []string{},
	}
	for _, a := range d.sortedAssignments() {
		if a.AssignedTo == id {
			refs.Assignments = append(refs.Assignments, a.ID)
		}
		if a.IsTA(id) {
			refs.TAAssignments = append(refs.TAAssignments, a.ID)
		}
	}

	type membership struct {
		teamID string
		rec    memberRecord
	}
	var ms []membership
	for k, rec := range d.members {
		if k.userID == id {
			ms = append(ms, membership{k.teamID, rec})
		}
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].rec.seq < ms[j].rec.seq })
	for _, m := range ms {
		if m.rec.role == team.RoleEditor {
			refs.EditingTeams = append(refs.EditingTeams, m.teamID)
		} else {
			refs.StudentTeams = append(refs.StudentTeams, m.teamID)
		}
	}
	return refs, nil
}

func (r *Users) CreateSession(ctx context.Context, sess *user.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := *sess
	r.s.d.sessions[sess.TokenHash] = &c
	r.s.onRollback(ctx, func(d *data) { delete(d.sessions, c.TokenHash) })
	return nil
}

func (r *Users) GetSessionUser(_ context.Context, tokenHash string, now time.Time) (*user.User, time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sess, ok := r.s.d.sessions[tokenHash]
	if !ok || !sess.ExpiresAt.After(now) {
		return nil, time.Time{}, user.ErrNotFound
	}
	u, ok := r.s.d.users[sess.UserID]
	if !ok {
		return nil, time.Time{}, user.ErrNotFound
	}
	c := *u
	return &c, sess.ExpiresAt, nil
}

func (r *Users) DeleteSession(ctx context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if prev, ok := r.s.d.sessions[tokenHash]; ok {
		delete(r.s.d.sessions, tokenHash)
		r.s.onRollback(ctx, func(d *data) { d.sessions[tokenHash] = prev })
	}
	return nil
}

func (r *Users) CleanExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for k, sess := range r.s.d.sessions {
		if sess.ExpiresAt.Before(now) {
			delete(r.s.d.sessions, k)
			k, sess := k, sess
			r.s.onRollback(ctx, func(d *data) { d.sessions[k] = sess })
			n++
		}
	}
	return n, nil
}

var _ user.Repository = (*Users)(nil)
