package memstore

import (
	"context"
	"sort"

	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/user"
)

// Teams implements team.Repository.
type Teams struct {
	s *Store
}

func (r *Teams) Create(ctx context.Context, t *team.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t.ID = newID()
	t.CreatedAt = r.s.now()
	c := *t
	r.s.d.teams[t.ID] = &c
	r.s.d.teamSeq[t.ID] = r.s.d.next()
	r.s.onRollback(ctx, func(d *data) {
		delete(d.teams, c.ID)
		delete(d.teamSeq, c.ID)
	})
	return nil
}

func (r *Teams) Get(_ context.Context, id string) (*team.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.d.teams[id]
	if !ok {
		return nil, team.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r *Teams) ListForUser(_ context.Context, userID string) (*team.Listing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.d
	var ids []string
	for k := range d.members {
		if k.userID == userID {
			ids = append(ids, k.teamID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return d.teamSeq[ids[i]] < d.teamSeq[ids[j]] })

	out := &team.Listing{EditingTeams: []*team.Team{}, StudentTeams: []*team.Team{}}
	for _, id := range ids {
		t, ok := d.teams[id]
		if !ok {
			continue
		}
		c := *t
		if d.members[memberKey{id, userID}].role == team.RoleEditor {
			out.EditingTeams = append(out.EditingTeams, &c)
		} else {
			out.StudentTeams = append(out.StudentTeams, &c)
		}
	}
	return out, nil
}

func (r *Teams) Role(_ context.Context, teamID, userID string) (team.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.d.members[memberKey{teamID, userID}]
	if !ok {
		return team.RoleNone, nil
	}
	return rec.role, nil
}

func (r *Teams) Members(_ context.Context, teamID string) ([]team.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.d
	type row struct {
		m   team.Member
		seq int64
	}
	var rows []row
	for k, rec := range d.members {
		if k.teamID != teamID {
			continue
		}
		u, ok := d.users[k.userID]
		if !ok {
			continue
		}
		rows = append(rows, row{team.Member{Summary: u.Summary(), Role: rec.role}, rec.seq})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	members := make([]team.Member, len(rows))
	for i, rw := range rows {
		members[i] = rw.m
	}
	return members, nil
}

func (r *Teams) SetMember(ctx context.Context, teamID, userID string, role team.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.d
	if _, ok := d.teams[teamID]; !ok {
		return team.ErrNotFound
	}
	if _, ok := d.users[userID]; !ok {
		return user.ErrNotFound
	}
	key := memberKey{teamID, userID}
	prev, existed := d.members[key]
	rec := prev
	if !existed {
		rec.seq = d.next()
	}
	rec.role = role
	d.members[key] = rec
	r.s.onRollback(ctx, func(d *data) { restoreMember(d, key, prev, existed) })
	return nil
}

func (r *Teams) AddMember(ctx context.Context, teamID, userID string, role team.Role) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.s.d
	if _, ok := d.teams[teamID]; !ok {
		return false, team.ErrNotFound
	}
	if _, ok := d.users[userID]; !ok {
		return false, user.ErrNotFound
	}
	key := memberKey{teamID, userID}
	if _, ok := d.members[key]; ok {
		return false, nil
	}
	d.members[key] = memberRecord{role: role, seq: d.next()}
	r.s.onRollback(ctx, func(d *data) { delete(d.members, key) })
	return true, nil
}

func (r *Teams) RemoveMember(ctx context.Context, teamID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := memberKey{teamID, userID}
	if prev, ok := r.s.d.members[key]; ok {
		delete(r.s.d.members, key)
		r.s.onRollback(ctx, func(d *data) { d.members[key] = prev })
	}
	return nil
}

func restoreMember(d *data, key memberKey, prev memberRecord, existed bool) {
	if existed {
		d.members[key] = prev
		return
	}
	delete(d.members, key)
}

func (r *Teams) CountEditors(_ context.Context, teamID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for k, rec := range r.s.d.members {
		if k.teamID == teamID && rec.role == team.RoleEditor {
			n++
		}
	}
	return n, nil
}

func (r *Teams) AssignmentIDs(_ context.Context, teamID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids := []string{}
	for _, a := range r.s.d.sortedAssignments() {
		if a.TeamID == teamID {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

var _ team.Repository = (*Teams)(nil)
