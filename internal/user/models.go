package user

import "time"

// User is a registered account. Team roles are not stored on the user; they
// come from team membership records.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	BirthDate    time.Time `json:"birthDate"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary is the public name/email projection shown to other team members.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Summary returns the public projection of u.
func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Refs lists everything that points at a user. It is computed from the
// assignment and membership tables on every read.
type Refs struct {
	Assignments   []string `json:"assignments"`
	TAAssignments []string `json:"taAssignments"`
	EditingTeams  []string `json:"editingTeams"`
	StudentTeams  []string `json:"studentTeams"`
}

// Profile is a user together with its reference lists.
type Profile struct {
	*User
	Refs
}

// SignupInput holds the fields accepted at registration.
type SignupInput struct {
	Name      string `json:"name" validate:"notblank"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=7"`
	BirthDate string `json:"birthDate" validate:"required"`
}

// Session represents an active user session.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
