// Package memstore keeps every repository in process memory. It backs the
// "memory" database driver and the package tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samely/samely/internal/activity"
	"github.com/samely/samely/internal/assignment"
	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/user"
)

type memberKey struct {
	teamID string
	userID string
}

type memberRecord struct {
	role team.Role
	seq  int64
}

type txKey struct{}

// undoLog collects the inverse of every write made inside a transaction.
type undoLog struct {
	fns []func(d *data)
}

// data is everything the store holds.
type data struct {
	users       map[string]*user.User
	sessions    map[string]*user.Session
	teams       map[string]*team.Team
	teamSeq     map[string]int64
	members     map[memberKey]memberRecord
	assignments map[string]*assignment.Assignment
	assignSeq   map[string]int64
	activity    []activity.Entry
	seq         int64
}

func newData() *data {
	return &data{
		users:       make(map[string]*user.User),
		sessions:    make(map[string]*user.Session),
		teams:       make(map[string]*team.Team),
		teamSeq:     make(map[string]int64),
		members:     make(map[memberKey]memberRecord),
		assignments: make(map[string]*assignment.Assignment),
		assignSeq:   make(map[string]int64),
	}
}

func (d *data) next() int64 {
	d.seq++
	return d.seq
}

// Store is an in-memory implementation of the user, team, assignment and
// activity repositories plus db.TxRunner.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	d    *data
	now  func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{d: newData(), now: time.Now}
}

// SetClock replaces the time source used for generated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// InTx runs fn and reverts the writes made through its context if it fails.
// Transactions are serialized. Writes made under any other context are not
// part of the transaction and survive a rollback.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	log := &undoLog{}
	if err := fn(context.WithValue(ctx, txKey{}, log)); err != nil {
		s.mu.Lock()
		for i := len(log.fns) - 1; i >= 0; i-- {
			log.fns[i](s.d)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// onRollback registers undo for a write made under ctx. It is a no-op
// outside a transaction. The caller holds mu.
func (s *Store) onRollback(ctx context.Context, undo func(d *data)) {
	if log, ok := ctx.Value(txKey{}).(*undoLog); ok {
		log.fns = append(log.fns, undo)
	}
}

// Users returns the user repository.
func (s *Store) Users() *Users { return &Users{s: s} }

// Teams returns the team repository.
func (s *Store) Teams() *Teams { return &Teams{s: s} }

// Assignments returns the assignment repository.
func (s *Store) Assignments() *Assignments { return &Assignments{s: s} }

// Activity returns the activity repository.
func (s *Store) Activity() *Activity { return &Activity{s: s} }

func newID() string {
	return uuid.NewString()
}

func copyAssignment(a *assignment.Assignment) *assignment.Assignment {
	c := *a
	if a.TA != nil {
		ta := *a.TA
		c.TA = &ta
	}
	if a.Grade != nil {
		g := *a.Grade
		c.Grade = &g
	}
	if a.GradedBy != nil {
		by := *a.GradedBy
		c.GradedBy = &by
	}
	if a.GradedAt != nil {
		at := *a.GradedAt
		c.GradedAt = &at
	}
	return &c
}
