// Package auth carries the authenticated user through request contexts.
package auth

import "context"

// User represents an authenticated caller.
type User struct {
	ID    string
	Email string
	Name  string
}

// SessionLookup is the interface for resolving session tokens to users.
type SessionLookup interface {
	LookupSession(ctx context.Context, token string) (*User, error)
}
