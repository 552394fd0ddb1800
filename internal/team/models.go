package team

import (
	"time"

	"github.com/samely/samely/internal/user"
)

// Role is a user's role within one team. A user holds at most one role per
// team; editor outranks student.
type Role string

const (
	RoleNone    Role = ""
	RoleEditor  Role = "editor"
	RoleStudent Role = "student"
)

// Valid reports whether r is a role that can be granted.
func (r Role) Valid() bool {
	return r == RoleEditor || r == RoleStudent
}

// Team is a group of editors and students.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Member is a membership record joined with the member's public fields.
type Member struct {
	user.Summary
	Role Role `json:"role"`
}

// Detail is the team view returned by Get. Non-members see empty lists.
type Detail struct {
	*Team
	Editors     []user.Summary `json:"editors"`
	Students    []user.Summary `json:"students"`
	Assignments []string       `json:"assignments"`
	IsMember    bool           `json:"isMember"`
	Role        Role           `json:"role,omitempty"`
}

// Listing groups a user's teams by role.
type Listing struct {
	EditingTeams []*Team `json:"editingTeams"`
	StudentTeams []*Team `json:"studentTeams"`
}

// CreateInput holds the fields accepted when creating a team.
type CreateInput struct {
	Name        string `json:"name" validate:"notblank"`
	Description string `json:"description"`
}

// MemberInput identifies a member by id or email for add/remove.
type MemberInput struct {
	TeamID string `json:"teamId" validate:"required,uuid"`
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   Role   `json:"role" validate:"required,oneof=editor student"`
}
