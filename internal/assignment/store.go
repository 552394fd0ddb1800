package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samely/samely/internal/db"
	"github.com/samely/samely/internal/user"
)

var (
	ErrNotFound = errors.New("assignment not found")
	ErrConflict = errors.New("assignment was modified concurrently, reload and retry")
)

// Repository is the persistence contract for assignments. List methods
// return views carrying both counterpart summaries.
type Repository interface {
	Create(ctx context.Context, a *Assignment) error
	Get(ctx context.Context, id string) (*Assignment, error)
	GetView(ctx context.Context, id string) (*View, error)
	// Update writes a if the stored version equals a.Version, then
	// increments a.Version.
	Update(ctx context.Context, a *Assignment) error
	Delete(ctx context.Context, id string, version int) error

	// ListByAssignee returns the user's assignments, limited to teamID
	// when it is not empty.
	ListByAssignee(ctx context.Context, userID, teamID string) ([]*View, error)
	ListByTeam(ctx context.Context, teamID string) ([]*View, error)
	// ListByTA returns assignments supervised by the user, limited to
	// teamID when it is not empty.
	ListByTA(ctx context.Context, userID, teamID string) ([]*View, error)
	// ListSupervised returns every assignment in teams the user edits
	// together with those the user supervises elsewhere.
	ListSupervised(ctx context.Context, userID string) ([]*View, error)
}

// Store provides Postgres operations for assignments.
type Store struct {
	db *db.DB
}

// NewStore creates a new assignment store backed by the given database.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

const assignmentColumns = `a.id, a.team_id, a.assigned_to, a.ta, a.created_by,
	a.start_surah, a.start_verse, a.end_surah, a.end_verse,
	a.type, a.status, a.grade, a.notes, a.start_time, a.end_time,
	a.created_at, a.updated_at, a.graded_by, a.graded_at, a.version`

const viewSelect = `SELECT ` + assignmentColumns + `,
	s.id, s.name, s.email, t.id, t.name, t.email
	FROM assignments a
	JOIN users s ON s.id = a.assigned_to
	LEFT JOIN users t ON t.id = a.ta`

func assignmentDest(a *Assignment) []any {
	return []any{
		&a.ID, &a.TeamID, &a.AssignedTo, &a.TA, &a.CreatedBy,
		&a.Start.Surah, &a.Start.Verse, &a.End.Surah, &a.End.Verse,
		&a.Type, &a.Status, &a.Grade, &a.Notes, &a.StartTime, &a.EndTime,
		&a.CreatedAt, &a.UpdatedAt, &a.GradedBy, &a.GradedAt, &a.Version,
	}
}

func scanView(row pgx.Row) (*View, error) {
	a := &Assignment{}
	var student user.Summary
	var taID, taName, taEmail *string
	dest := append(assignmentDest(a), &student.ID, &student.Name, &student.Email, &taID, &taName, &taEmail)
	if err := row.Scan(dest...); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	v := &View{Assignment: a, Student: &student}
	if taID != nil {
		v.TAInfo = &user.Summary{ID: *taID, Name: deref(taName), Email: deref(taEmail)}
	}
	return v, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Create inserts a and fills in its id.
func (s *Store) Create(ctx context.Context, a *Assignment) error {
	if a.Version == 0 {
		a.Version = 1
	}
	err := s.db.Conn(ctx).QueryRow(ctx,
		`INSERT INTO assignments (team_id, assigned_to, ta, created_by,
			start_surah, start_verse, end_surah, end_verse,
			type, status, grade, notes, start_time, end_time,
			created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING id`,
		a.TeamID, a.AssignedTo, a.TA, a.CreatedBy,
		a.Start.Surah, a.Start.Verse, a.End.Surah, a.End.Verse,
		string(a.Type), string(a.Status), a.Grade, a.Notes, a.StartTime, a.EndTime,
		a.CreatedAt, a.UpdatedAt, a.Version,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("creating assignment: %w", err)
	}
	return nil
}

// Get retrieves an assignment by id.
func (s *Store) Get(ctx context.Context, id string) (*Assignment, error) {
	a := &Assignment{}
	err := s.db.Conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments a WHERE a.id = $1`, id,
	).Scan(assignmentDest(a)...)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting assignment: %w", err)
	}
	return a, nil
}

// GetView retrieves an assignment with its counterpart summaries.
func (s *Store) GetView(ctx context.Context, id string) (*View, error) {
	v, err := scanView(s.db.Conn(ctx).QueryRow(ctx, viewSelect+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting assignment view: %w", err)
	}
	return v, nil
}

// Update replaces the mutable fields of a, guarded by its version.
func (s *Store) Update(ctx context.Context, a *Assignment) error {
	var version int
	err := s.db.Conn(ctx).QueryRow(ctx,
		`UPDATE assignments SET
			assigned_to = $3, ta = $4,
			start_surah = $5, start_verse = $6, end_surah = $7, end_verse = $8,
			type = $9, status = $10, grade = $11, notes = $12,
			start_time = $13, end_time = $14,
			graded_by = $15, graded_at = $16, updated_at = $17,
			version = version + 1
		 WHERE id = $1 AND version = $2
		 RETURNING version`,
		a.ID, a.Version,
		a.AssignedTo, a.TA,
		a.Start.Surah, a.Start.Verse, a.End.Surah, a.End.Verse,
		string(a.Type), string(a.Status), a.Grade, a.Notes,
		a.StartTime, a.EndTime,
		a.GradedBy, a.GradedAt, a.UpdatedAt,
	).Scan(&version)
	if err != nil {
		if db.IsNoRows(err) {
			return s.missOrConflict(ctx, a.ID)
		}
		return fmt.Errorf("updating assignment: %w", err)
	}
	a.Version = version
	return nil
}

// Delete removes the assignment if its stored version matches.
func (s *Store) Delete(ctx context.Context, id string, version int) error {
	tag, err := s.db.Conn(ctx).Exec(ctx,
		`DELETE FROM assignments WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return fmt.Errorf("deleting assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

func (s *Store) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	err := s.db.Conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM assignments WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking assignment: %w", err)
	}
	if exists {
		return ErrConflict
	}
	return ErrNotFound
}

// ListByAssignee returns the user's assignments, oldest first.
func (s *Store) ListByAssignee(ctx context.Context, userID, teamID string) ([]*View, error) {
	if teamID == "" {
		return s.listViews(ctx, `WHERE a.assigned_to = $1`, userID)
	}
	return s.listViews(ctx, `WHERE a.assigned_to = $1 AND a.team_id = $2`, userID, teamID)
}

// ListByTeam returns every assignment of the team, oldest first.
func (s *Store) ListByTeam(ctx context.Context, teamID string) ([]*View, error) {
	return s.listViews(ctx, `WHERE a.team_id = $1`, teamID)
}

// ListByTA returns the assignments the user supervises, oldest first.
func (s *Store) ListByTA(ctx context.Context, userID, teamID string) ([]*View, error) {
	if teamID == "" {
		return s.listViews(ctx, `WHERE a.ta = $1`, userID)
	}
	return s.listViews(ctx, `WHERE a.ta = $1 AND a.team_id = $2`, userID, teamID)
}

// ListSupervised returns assignments in teams the user edits plus those the
// user supervises, oldest first and without duplicates.
func (s *Store) ListSupervised(ctx context.Context, userID string) ([]*View, error) {
	return s.listViews(ctx,
		`WHERE a.ta = $1 OR a.team_id IN (
			SELECT team_id FROM team_members WHERE user_id = $1 AND role = 'editor')`,
		userID)
}

func (s *Store) listViews(ctx context.Context, where string, args ...any) ([]*View, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, viewSelect+` `+where+` ORDER BY a.created_at, a.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer rows.Close()

	views := []*View{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning assignment row: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

var _ Repository = (*Store)(nil)
