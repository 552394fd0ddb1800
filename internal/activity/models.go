package activity

import "time"

// Actions recorded in the activity log.
const (
	TeamCreated       = "team.created"
	MemberAdded       = "member.added"
	MemberRemoved     = "member.removed"
	MemberJoined      = "member.joined"
	AssignmentCreated = "assignment.created"
	AssignmentUpdated = "assignment.updated"
	AssignmentGraded  = "assignment.graded"
	AssignmentDeleted = "assignment.deleted"
)

// Entry is one row of a team's activity log.
type Entry struct {
	ID           string    `json:"id"`
	TeamID       string    `json:"teamId"`
	AssignmentID string    `json:"assignmentId,omitempty"`
	ActorID      string    `json:"actorId"`
	Action       string    `json:"action"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Query selects a page of a team's activity, newest first.
type Query struct {
	TeamID string
	Cursor string
	Limit  int
}

// Recorder accepts entries for asynchronous persistence.
type Recorder interface {
	Record(e Entry)
}

// Discard is a Recorder that drops every entry.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Entry) {}
