package user

import (
	"context"

	"github.com/samely/samely/internal/auth"
)

// AuthAdapter adapts the user service to the auth.SessionLookup interface.
type AuthAdapter struct {
	svc *Service
}

// NewAuthAdapter creates a new AuthAdapter wrapping the given service.
func NewAuthAdapter(svc *Service) *AuthAdapter {
	return &AuthAdapter{svc: svc}
}

// LookupSession looks up a session token and returns the associated auth.User.
func (a *AuthAdapter) LookupSession(ctx context.Context, token string) (*auth.User, error) {
	u, err := a.svc.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return &auth.User{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
	}, nil
}
