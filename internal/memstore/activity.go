package memstore

import (
	"context"
	"sort"

	"github.com/samely/samely/internal/activity"
)

// Activity implements activity.Repository.
type Activity struct {
	s *Store
}

func (r *Activity) BatchInsert(ctx context.Context, entries []activity.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inserted := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			e.ID = newID()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = r.s.now()
		}
		r.s.d.activity = append(r.s.d.activity, e)
		inserted[e.ID] = true
	}
	r.s.onRollback(ctx, func(d *data) {
		kept := d.activity[:0]
		for _, e := range d.activity {
			if !inserted[e.ID] {
				kept = append(kept, e)
			}
		}
		d.activity = kept
	})
	return nil
}

func (r *Activity) List(_ context.Context, q activity.Query) ([]*activity.Entry, string, error) {
	limit := activity.ClampLimit(q.Limit)

	var after func(e *activity.Entry) bool
	if q.Cursor != "" {
		ts, id, err := activity.DecodeCursor(q.Cursor)
		if err != nil {
			return nil, "", err
		}
		after = func(e *activity.Entry) bool {
			return e.CreatedAt.Before(ts) || (e.CreatedAt.Equal(ts) && e.ID < id)
		}
	}

	r.s.mu.Lock()
	var entries []*activity.Entry
	for i := range r.s.d.activity {
		e := r.s.d.activity[i]
		if e.TeamID != q.TeamID {
			continue
		}
		if after != nil && !after(&e) {
			continue
		}
		entries = append(entries, &e)
	}
	r.s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
	if len(entries) > limit+1 {
		entries = entries[:limit+1]
	}
	entries, next := activity.Page(entries, limit)
	return entries, next, nil
}

var _ activity.Repository = (*Activity)(nil)
