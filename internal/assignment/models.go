package assignment

import (
	"time"

	"github.com/samely/samely/internal/quran"
	"github.com/samely/samely/internal/user"
)

// Type is the kind of work an assignment asks for.
type Type string

const (
	TypeMemorization Type = "Memorization"
	TypeRecitation   Type = "Recitation"
)

// Status is an assignment's position in its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusGraded     Status = "graded"
)

// Assignment is a content range assigned to one student within a team.
type Assignment struct {
	ID         string        `json:"id"`
	TeamID     string        `json:"teamId"`
	AssignedTo string        `json:"assignedTo"`
	TA         *string       `json:"ta"`
	CreatedBy  string        `json:"createdBy"`
	Start      quran.Locator `json:"start"`
	End        quran.Locator `json:"end"`
	Type       Type          `json:"type"`
	Status     Status        `json:"status"`
	Grade      *int          `json:"grade"`
	Notes      string        `json:"notes"`
	StartTime  time.Time     `json:"startTime"`
	EndTime    time.Time     `json:"endTime"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	GradedBy   *string       `json:"gradedBy,omitempty"`
	GradedAt   *time.Time    `json:"gradedAt,omitempty"`
	Version    int           `json:"version"`
}

// HasTA reports whether a supervisor is set.
func (a *Assignment) HasTA() bool {
	return a.TA != nil && *a.TA != ""
}

// IsTA reports whether userID supervises a.
func (a *Assignment) IsTA(userID string) bool {
	return a.HasTA() && *a.TA == userID
}

// View is an assignment joined with its counterpart summaries.
type View struct {
	*Assignment
	Student *user.Summary `json:"student,omitempty"`
	TAInfo  *user.Summary `json:"taInfo,omitempty"`
}

// Input holds the fields accepted when creating an assignment.
type Input struct {
	AssignedTo string         `json:"assignedTo" validate:"required,uuid"`
	TA         *string        `json:"ta"`
	Start      *quran.Locator `json:"start" validate:"required"`
	End        *quran.Locator `json:"end" validate:"required"`
	StartTime  *time.Time     `json:"startTime" validate:"required"`
	EndTime    *time.Time     `json:"endTime" validate:"required"`
	Status     Status         `json:"status" validate:"required,oneof=pending in-progress completed graded"`
	Grade      *int           `json:"grade" validate:"omitempty,min=0,max=100"`
	Notes      string         `json:"notes"`
	Type       Type           `json:"type" validate:"omitempty,oneof=Memorization Recitation"`
}

// UpdateInput replaces the mutable fields of an existing assignment. A nil
// TA clears the supervisor. Version, when sent, must match the stored one.
type UpdateInput struct {
	AssignmentID string `json:"assignmentId" validate:"required,uuid"`
	Version      *int   `json:"version"`
	Input
}

// GradeInput records a grade. Notes default to the stored notes.
type GradeInput struct {
	AssignmentID string  `json:"assignmentId" validate:"required,uuid"`
	Version      *int    `json:"version"`
	Grade        *int    `json:"grade" validate:"required,min=0,max=100"`
	Status       Status  `json:"status" validate:"required,oneof=pending in-progress completed graded"`
	Notes        *string `json:"notes"`
}
