package memstore

import (
	"context"
	"sort"

	"github.com/samely/samely/internal/assignment"
	"github.com/samely/samely/internal/team"
)

// Assignments implements assignment.Repository.
type Assignments struct {
	s *Store
}

// sortedAssignments returns the stored assignments in insertion order. The
// caller holds mu.
func (d *data) sortedAssignments() []*assignment.Assignment {
	out := make([]*assignment.Assignment, 0, len(d.assignments))
	for _, a := range d.assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return d.assignSeq[out[i].ID] < d.assignSeq[out[j].ID] })
	return out
}

func (d *data) view(a *assignment.Assignment) *assignment.View {
	v := &assignment.View{Assignment: copyAssignment(a)}
	if u, ok := d.users[a.AssignedTo]; ok {
		sum := u.Summary()
		v.Student = &sum
	}
	if a.HasTA() {
		if u, ok := d.users[*a.TA]; ok {
			sum := u.Summary()
			v.TAInfo = &sum
		}
	}
	return v
}

func (r *Assignments) Create(ctx context.Context, a *assignment.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a.ID = newID()
	if a.Version == 0 {
		a.Version = 1
	}
	id := a.ID
	r.s.d.assignments[id] = copyAssignment(a)
	r.s.d.assignSeq[id] = r.s.d.next()
	r.s.onRollback(ctx, func(d *data) {
		delete(d.assignments, id)
		delete(d.assignSeq, id)
	})
	return nil
}

func (r *Assignments) Get(_ context.Context, id string) (*assignment.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.d.assignments[id]
	if !ok {
		return nil, assignment.ErrNotFound
	}
	return copyAssignment(a), nil
}

func (r *Assignments) GetView(_ context.Context, id string) (*assignment.View, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.d.assignments[id]
	if !ok {
		return nil, assignment.ErrNotFound
	}
	return r.s.d.view(a), nil
}

func (r *Assignments) Update(ctx context.Context, a *assignment.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.d.assignments[a.ID]
	if !ok {
		return assignment.ErrNotFound
	}
	if stored.Version != a.Version {
		return assignment.ErrConflict
	}
	a.Version++
	next := copyAssignment(a)
	next.TeamID = stored.TeamID
	next.CreatedBy = stored.CreatedBy
	next.CreatedAt = stored.CreatedAt
	r.s.d.assignments[a.ID] = next
	r.s.onRollback(ctx, func(d *data) { d.assignments[stored.ID] = stored })
	return nil
}

func (r *Assignments) Delete(ctx context.Context, id string, version int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.d.assignments[id]
	if !ok {
		return assignment.ErrNotFound
	}
	if stored.Version != version {
		return assignment.ErrConflict
	}
	seq := r.s.d.assignSeq[id]
	delete(r.s.d.assignments, id)
	delete(r.s.d.assignSeq, id)
	r.s.onRollback(ctx, func(d *data) {
		d.assignments[id] = stored
		d.assignSeq[id] = seq
	})
	return nil
}

func (r *Assignments) ListByAssignee(_ context.Context, userID, teamID string) ([]*assignment.View, error) {
	return r.list(func(a *assignment.Assignment) bool {
		return a.AssignedTo == userID && (teamID == "" || a.TeamID == teamID)
	}), nil
}

func (r *Assignments) ListByTeam(_ context.Context, teamID string) ([]*assignment.View, error) {
	return r.list(func(a *assignment.Assignment) bool {
		return a.TeamID == teamID
	}), nil
}

func (r *Assignments) ListByTA(_ context.Context, userID, teamID string) ([]*assignment.View, error) {
	return r.list(func(a *assignment.Assignment) bool {
		return a.IsTA(userID) && (teamID == "" || a.TeamID == teamID)
	}), nil
}

func (r *Assignments) ListSupervised(_ context.Context, userID string) ([]*assignment.View, error) {
	r.s.mu.Lock()
	edited := make(map[string]bool)
	for k, rec := range r.s.d.members {
		if k.userID == userID && rec.role == team.RoleEditor {
			edited[k.teamID] = true
		}
	}
	r.s.mu.Unlock()

	return r.list(func(a *assignment.Assignment) bool {
		return edited[a.TeamID] || a.IsTA(userID)
	}), nil
}

func (r *Assignments) list(match func(*assignment.Assignment) bool) []*assignment.View {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	views := []*assignment.View{}
	for _, a := range r.s.d.sortedAssignments() {
		if match(a) {
			views = append(views, r.s.d.view(a))
		}
	}
	return views
}

var _ assignment.Repository = (*Assignments)(nil)
