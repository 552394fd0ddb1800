package activity

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samely/samely/internal/db"
)

var ErrInvalidCursor = errors.New("invalid cursor")

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Repository persists and pages activity entries.
type Repository interface {
	BatchInserter
	List(ctx context.Context, q Query) ([]*Entry, string, error)
}

// Store provides Postgres operations for the activity log.
type Store struct {
	db *db.DB
}

// NewStore creates a new Store backed by the given database.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

// BatchInsert writes entries in a single multi-row INSERT statement. It is a
// no-op when entries is empty.
func (s *Store) BatchInsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	const cols = 6
	args := make([]any, 0, len(entries)*cols)
	rows := make([]string, 0, len(entries))

	for i, e := range entries {
		base := i * cols
		rows = append(rows, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6))
		var assignmentID any
		if e.AssignmentID != "" {
			assignmentID = e.AssignmentID
		}
		args = append(args, e.TeamID, assignmentID, e.ActorID, e.Action, e.Detail, e.CreatedAt)
	}

	query := `INSERT INTO activity (team_id, assignment_id, actor_id, action, detail, created_at)
		VALUES ` + strings.Join(rows, ", ")

	if _, err := s.db.Conn(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("batch inserting activity: %w", err)
	}
	return nil
}

// List returns a page of a team's entries ordered by created_at DESC, id DESC,
// and the cursor of the next page (empty when there is none).
func (s *Store) List(ctx context.Context, q Query) ([]*Entry, string, error) {
	limit := ClampLimit(q.Limit)

	where := " WHERE team_id = $1"
	args := []any{q.TeamID}
	if q.Cursor != "" {
		ts, id, err := DecodeCursor(q.Cursor)
		if err != nil {
			return nil, "", err
		}
		where += " AND (created_at, id) < ($2, $3)"
		args = append(args, ts, id)
	}

	query := `SELECT id, team_id, COALESCE(assignment_id::text, ''), actor_id, action, detail, created_at
		FROM activity` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := s.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TeamID, &e.AssignmentID, &e.ActorID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, "", fmt.Errorf("scanning activity row: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating activity rows: %w", err)
	}

	entries, next := Page(entries, limit)
	return entries, next, nil
}

// Page trims a result fetched with limit+1 rows and derives the next cursor.
func Page(entries []*Entry, limit int) ([]*Entry, string) {
	if len(entries) <= limit {
		return entries, ""
	}
	last := entries[limit-1]
	return entries[:limit], EncodeCursor(last.CreatedAt, last.ID)
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// EncodeCursor encodes a timestamp and id into an opaque cursor string.
func EncodeCursor(ts time.Time, id string) string {
	raw := ts.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes an opaque cursor string into a timestamp and id.
func DecodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("%w: malformed", ErrInvalidCursor)
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return ts, parts[1], nil
}
