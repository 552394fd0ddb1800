package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samely/samely/internal/db"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("user already exists")
)

// Repository is the persistence contract for users and sessions.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Refs(ctx context.Context, id string) (*Refs, error)

	CreateSession(ctx context.Context, s *Session) error
	GetSessionUser(ctx context.Context, tokenHash string, now time.Time) (*User, time.Time, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	CleanExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Store provides Postgres operations for users and sessions.
type Store struct {
	db *db.DB
}

// NewStore creates a new user store backed by the given database.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

const userColumns = `id, email, password_hash, name, birth_date, created_at`

func scanUser(scan func(dest ...any) error) (*User, error) {
	u := &User{}
	if err := scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.BirthDate, &u.CreatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// Create inserts u and fills in its id and creation time.
func (s *Store) Create(ctx context.Context, u *User) error {
	err := s.db.Conn(ctx).QueryRow(ctx,
		`INSERT INTO users (email, password_hash, name, birth_date)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		u.Email, u.PasswordHash, u.Name, u.BirthDate,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email address.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
		).Scan(dest...)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// Refs computes the reference lists for the user with the given id.
func (s *Store) Refs(ctx context.Context, id string) (*Refs, error) {
	r := &Refs{}
	err := s.db.Conn(ctx).QueryRow(ctx,
		`SELECT
			COALESCE((SELECT array_agg(id::text ORDER BY created_at) FROM assignments WHERE assigned_to = $1), '{}'),
			COALESCE((SELECT array_agg(id::text ORDER BY created_at) FROM assignments WHERE ta = $1), '{}'),
			COALESCE((SELECT array_agg(team_id::text ORDER BY created_at) FROM team_members WHERE user_id = $1 AND role = 'editor'), '{}'),
			COALESCE((SELECT array_agg(team_id::text ORDER BY created_at) FROM team_members WHERE user_id = $1 AND role = 'student'), '{}')`,
		id,
	).Scan(&r.Assignments, &r.TAAssignments, &r.EditingTeams, &r.StudentTeams)
	if err != nil {
		return nil, fmt.Errorf("computing user refs: %w", err)
	}
	return r, nil
}

// CreateSession stores a session keyed by the hash of its token.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	_, err := s.db.Conn(ctx).Exec(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		sess.TokenHash, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetSessionUser returns the user owning an unexpired session and the
// session's expiry.
func (s *Store) GetSessionUser(ctx context.Context, tokenHash string, now time.Time) (*User, time.Time, error) {
	var expiresAt time.Time
	u, err := scanUser(func(dest ...any) error {
		return s.db.Conn(ctx).QueryRow(ctx,
			`SELECT u.id, u.email, u.password_hash, u.name, u.birth_date, u.created_at, s.expires_at
			 FROM sessions s JOIN users u ON s.user_id = u.id
			 WHERE s.token_hash = $1 AND s.expires_at > $2`,
			tokenHash, now,
		).Scan(append(dest, &expiresAt)...)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, time.Time{}, err
		}
		return nil, time.Time{}, fmt.Errorf("getting session user: %w", err)
	}
	return u, expiresAt, nil
}

// DeleteSession removes a session by its token hash.
func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.Conn(ctx).Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// CleanExpiredSessions deletes all sessions that expired before now.
func (s *Store) CleanExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Conn(ctx).Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("cleaning expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
