package team

import (
	"context"
	"errors"
	"fmt"

	"github.com/samely/samely/internal/db"
)

var ErrNotFound = errors.New("team not found")

// Repository is the persistence contract for teams and membership records.
type Repository interface {
	Create(ctx context.Context, t *Team) error
	Get(ctx context.Context, id string) (*Team, error)
	ListForUser(ctx context.Context, userID string) (*Listing, error)

	Role(ctx context.Context, teamID, userID string) (Role, error)
	Members(ctx context.Context, teamID string) ([]Member, error)
	SetMember(ctx context.Context, teamID, userID string, role Role) error
	// AddMember inserts a membership record only if the user has none and
	// reports whether a row was written.
	AddMember(ctx context.Context, teamID, userID string, role Role) (bool, error)
	RemoveMember(ctx context.Context, teamID, userID string) error
	CountEditors(ctx context.Context, teamID string) (int, error)

	AssignmentIDs(ctx context.Context, teamID string) ([]string, error)
}

// Store provides Postgres operations for teams.
type Store struct {
	db *db.DB
}

// NewStore creates a new team store backed by the given database.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

func scanTeam(scan func(dest ...any) error) (*Team, error) {
	t := &Team{}
	if err := scan(&t.ID, &t.Name, &t.Description, &t.CreatedBy, &t.CreatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// Create inserts t and fills in its id and creation time.
func (s *Store) Create(ctx context.Context, t *Team) error {
	err := s.db.Conn(ctx).QueryRow(ctx,
		`INSERT INTO teams (name, description, created_by)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		t.Name, t.Description, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating team: %w", err)
	}
	return nil
}

// Get retrieves a team by id.
func (s *Store) Get(ctx context.Context, id string) (*Team, error) {
	t, err := scanTeam(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			`SELECT id, name, description, created_by, created_at FROM teams WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting team: %w", err)
	}
	return t, nil
}

// ListForUser returns the teams the user belongs to, split by role.
func (s *Store) ListForUser(ctx context.Context, userID string) (*Listing, error) {
	rows, err := s.db.Conn(ctx).Query(ctx,
		`SELECT t.id, t.name, t.description, t.created_by, t.created_at, m.role::text
		 FROM team_members m JOIN teams t ON t.id = m.team_id
		 WHERE m.user_id = $1
		 ORDER BY t.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing teams for user: %w", err)
	}
	defer rows.Close()

	out := &Listing{EditingTeams: []*Team{}, StudentTeams: []*Team{}}
	for rows.Next() {
		t := &Team{}
		var role string
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedBy, &t.CreatedAt, &role); err != nil {
			return nil, fmt.Errorf("scanning team row: %w", err)
		}
		if Role(role) == RoleEditor {
			out.EditingTeams = append(out.EditingTeams, t)
		} else {
			out.StudentTeams = append(out.StudentTeams, t)
		}
	}
	return out, rows.Err()
}

// Role returns the user's role in the team, or RoleNone.
func (s *Store) Role(ctx context.Context, teamID, userID string) (Role, error) {
	var role string
	err := s.db.Conn(ctx).QueryRow(ctx,
		`SELECT role::text FROM team_members WHERE team_id = $1 AND user_id = $2`,
		teamID, userID,
	).Scan(&role)
	if err != nil {
		if db.IsNoRows(err) {
			return RoleNone, nil
		}
		return RoleNone, fmt.Errorf("getting member role: %w", err)
	}
	return Role(role), nil
}

// Members returns every member of the team in join order.
func (s *Store) Members(ctx context.Context, teamID string) ([]Member, error) {
	rows, err := s.db.Conn(ctx).Query(ctx,
		`SELECT u.id, u.name, u.email, m.role::text
		 FROM team_members m JOIN users u ON u.id = m.user_id
		 WHERE m.team_id = $1
		 ORDER BY m.created_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var role string
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &role); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		m.Role = Role(role)
		members = append(members, m)
	}
	return members, rows.Err()
}

// SetMember inserts or replaces the user's membership record.
func (s *Store) SetMember(ctx context.Context, teamID, userID string, role Role) error {
	_, err := s.db.Conn(ctx).Exec(ctx,
		`INSERT INTO team_members (team_id, user_id, role)
		 VALUES ($1, $2, $3::team_role)
		 ON CONFLICT (team_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		teamID, userID, string(role),
	)
	if err != nil {
		return fmt.Errorf("setting member: %w", err)
	}
	return nil
}

// AddMember inserts the user's membership record unless one already exists.
func (s *Store) AddMember(ctx context.Context, teamID, userID string, role Role) (bool, error) {
	tag, err := s.db.Conn(ctx).Exec(ctx,
		`INSERT INTO team_members (team_id, user_id, role)
		 VALUES ($1, $2, $3::team_role)
		 ON CONFLICT (team_id, user_id) DO NOTHING`,
		teamID, userID, string(role),
	)
	if err != nil {
		return false, fmt.Errorf("adding member: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveMember deletes the user's membership record if present.
func (s *Store) RemoveMember(ctx context.Context, teamID, userID string) error {
	_, err := s.db.Conn(ctx).Exec(ctx,
		`DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("removing member: %w", err)
	}
	return nil
}

// CountEditors returns the number of editors in the team.
func (s *Store) CountEditors(ctx context.Context, teamID string) (int, error) {
	var n int
	err := s.db.Conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM team_members WHERE team_id = $1 AND role = 'editor'`, teamID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting editors: %w", err)
	}
	return n, nil
}

// AssignmentIDs returns the ids of the team's assignments, oldest first.
func (s *Store) AssignmentIDs(ctx context.Context, teamID string) ([]string, error) {
	var ids []string
	err := s.db.Conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(array_agg(id::text ORDER BY created_at), '{}') FROM assignments WHERE team_id = $1`,
		teamID,
	).Scan(&ids)
	if err != nil {
		return nil, fmt.Errorf("listing team assignment ids: %w", err)
	}
	return ids, nil
}

var _ Repository = (*Store)(nil)
