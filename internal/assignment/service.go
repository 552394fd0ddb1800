package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/samely/samely/internal/activity"
	"github.com/samely/samely/internal/db"
	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/user"
	"github.com/samely/samely/internal/validate"
)

// TeamLookup resolves teams and the caller's role in them.
type TeamLookup interface {
	Lookup(ctx context.Context, id string) (*team.Team, error)
	RoleOf(ctx context.Context, teamID, userID string) (team.Role, error)
}

// UserLookup resolves users referenced by an assignment.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// EventKind names the lifecycle step a notification reports.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventGraded  EventKind = "graded"
	EventDeleted EventKind = "deleted"
)

// Event describes a completed lifecycle step. TA is nil when the assignment
// has no supervisor.
type Event struct {
	Kind       EventKind
	Assignment *Assignment
	Team       *team.Team
	Actor      *user.User
	Student    *user.User
	TA         *user.User
}

// Notifier delivers lifecycle notifications. Delivery is best-effort:
// implementations log their own failures.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

// Service implements the assignment lifecycle.
type Service struct {
	repo     Repository
	teams    TeamLookup
	users    UserLookup
	tx       db.TxRunner
	notifier Notifier
	activity activity.Recorder
	now      func() time.Time
}

// NewService creates an assignment service. notifier and rec may be nil.
func NewService(repo Repository, teams TeamLookup, users UserLookup, tx db.TxRunner, notifier Notifier, rec activity.Recorder) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if rec == nil {
		rec = activity.Discard
	}
	return &Service{
		repo:     repo,
		teams:    teams,
		users:    users,
		tx:       tx,
		notifier: notifier,
		activity: rec,
		now:      time.Now,
	}
}

// SetClock replaces the time source used for audit timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create validates in and stores a new assignment in teamID.
func (s *Service) Create(ctx context.Context, callerID, teamID string, in Input) (*Assignment, error) {
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if err := in.check(); err != nil {
		return nil, err
	}

	t, err := s.teams.Lookup(ctx, teamID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	a := &Assignment{
		TeamID:    t.ID,
		CreatedBy: callerID,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	in.apply(a)
	if in.Grade != nil {
		g := *in.Grade
		a.Grade = &g
	}

	isEditor, err := s.isEditor(ctx, t.ID, callerID)
	if err != nil {
		return nil, err
	}
	if _, err := Authorize(callerID, isEditor, OpCreate, a); err != nil {
		return nil, err
	}
	if err := s.checkParticipants(ctx, t.ID, a); err != nil {
		return nil, err
	}

	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, a)
	}); err != nil {
		return nil, err
	}

	s.record(a, callerID, activity.AssignmentCreated, string(a.Status))
	s.notify(ctx, EventCreated, a, t, callerID)
	return a, nil
}

// Get returns one assignment of teamID to an editor, its TA or its assignee.
func (s *Service) Get(ctx context.Context, callerID, teamID, assignmentID string) (*View, error) {
	if err := validate.Field("assignmentId", assignmentID, "required,uuid"); err != nil {
		return nil, err
	}
	t, err := s.teams.Lookup(ctx, teamID)
	if err != nil {
		return nil, err
	}
	v, err := s.repo.GetView(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if v.TeamID != t.ID {
		return nil, ErrNotFound
	}
	isEditor, err := s.isEditor(ctx, t.ID, callerID)
	if err != nil {
		return nil, err
	}
	if _, err := Authorize(callerID, isEditor, OpRead, v.Assignment); err != nil {
		return nil, err
	}
	return v, nil
}

// Update replaces the mutable fields of an assignment. The grade and grading
// stamps are kept.
func (s *Service) Update(ctx context.Context, callerID, teamID string, in UpdateInput) (*Assignment, error) {
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if err := in.check(); err != nil {
		return nil, err
	}

	t, current, err := s.loadForWrite(ctx, callerID, teamID, in.AssignmentID, OpUpdate, in.Version)
	if err != nil {
		return nil, err
	}

	next := *current
	in.apply(&next)
	next.UpdatedAt = s.now()
	if err := s.checkParticipants(ctx, t.ID, &next); err != nil {
		return nil, err
	}

	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.repo.Update(ctx, &next)
	}); err != nil {
		return nil, err
	}

	s.record(&next, callerID, activity.AssignmentUpdated, string(next.Status))
	s.notify(ctx, EventUpdated, &next, t, callerID)
	return &next, nil
}

// Grade records a grade and stamps the grader.
func (s *Service) Grade(ctx context.Context, callerID, teamID string, in GradeInput) (*Assignment, error) {
	in.AssignmentID = strings.TrimSpace(in.AssignmentID)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	t, current, err := s.loadForWrite(ctx, callerID, teamID, in.AssignmentID, OpGrade, in.Version)
	if err != nil {
		return nil, err
	}

	now := s.now()
	grader := callerID
	grade := *in.Grade
	next := *current
	next.Grade = &grade
	next.Status = in.Status
	if in.Notes != nil {
		next.Notes = *in.Notes
	}
	next.GradedBy = &grader
	next.GradedAt = &now
	next.UpdatedAt = now

	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.repo.Update(ctx, &next)
	}); err != nil {
		return nil, err
	}

	s.record(&next, callerID, activity.AssignmentGraded, strconv.Itoa(grade))
	s.notify(ctx, EventGraded, &next, t, callerID)
	return &next, nil
}

// Delete removes an assignment. version, when not nil, must match the
// stored version.
func (s *Service) Delete(ctx context.Context, callerID, teamID, assignmentID string, version *int) (*Assignment, error) {
	assignmentID = strings.TrimSpace(assignmentID)
	if err := validate.Field("assignmentId", assignmentID, "required,uuid"); err != nil {
		return nil, err
	}

	t, snapshot, err := s.loadForWrite(ctx, callerID, teamID, assignmentID, OpDelete, version)
	if err != nil {
		return nil, err
	}

	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.repo.Delete(ctx, snapshot.ID, snapshot.Version)
	}); err != nil {
		return nil, err
	}

	s.record(snapshot, callerID, activity.AssignmentDeleted, "")
	s.notify(ctx, EventDeleted, snapshot, t, callerID)
	return snapshot, nil
}

// ListMine returns the caller's own assignments, optionally limited to one
// team.
func (s *Service) ListMine(ctx context.Context, callerID, teamID string) ([]*View, error) {
	if teamID != "" {
		if _, err := s.teams.Lookup(ctx, teamID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListByAssignee(ctx, callerID, teamID)
}

// ListSupervised returns assignments in every team the caller edits plus
// those the caller supervises as TA.
func (s *Service) ListSupervised(ctx context.Context, callerID string) ([]*View, error) {
	return s.repo.ListSupervised(ctx, callerID)
}

// ListTeamSupervised returns the team's assignments for an editor, or the
// ones the caller supervises otherwise. An unknown team yields an empty list.
func (s *Service) ListTeamSupervised(ctx context.Context, callerID, teamID string) ([]*View, error) {
	t, err := s.teams.Lookup(ctx, teamID)
	if err != nil {
		if errors.Is(err, team.ErrNotFound) {
			return []*View{}, nil
		}
		return nil, err
	}
	isEditor, err := s.isEditor(ctx, t.ID, callerID)
	if err != nil {
		return nil, err
	}
	if isEditor {
		return s.repo.ListByTeam(ctx, t.ID)
	}
	return s.repo.ListByTA(ctx, callerID, t.ID)
}

// loadForWrite resolves the team and assignment and authorizes op.
func (s *Service) loadForWrite(ctx context.Context, callerID, teamID, assignmentID string, op Op, version *int) (*team.Team, *Assignment, error) {
	t, err := s.teams.Lookup(ctx, teamID)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.repo.Get(ctx, assignmentID)
	if err != nil {
		return nil, nil, err
	}
	if a.TeamID != t.ID {
		return nil, nil, ErrNotFound
	}
	isEditor, err := s.isEditor(ctx, t.ID, callerID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := Authorize(callerID, isEditor, op, a); err != nil {
		return nil, nil, err
	}
	if version != nil && *version != a.Version {
		return nil, nil, ErrConflict
	}
	return t, a, nil
}

func (s *Service) isEditor(ctx context.Context, teamID, userID string) (bool, error) {
	role, err := s.teams.RoleOf(ctx, teamID, userID)
	if err != nil {
		return false, err
	}
	return role == team.RoleEditor, nil
}

// checkParticipants requires the assignee to belong to the team and the TA,
// when set, to exist.
func (s *Service) checkParticipants(ctx context.Context, teamID string, a *Assignment) error {
	role, err := s.teams.RoleOf(ctx, teamID, a.AssignedTo)
	if err != nil {
		return err
	}
	if role == team.RoleNone {
		return validate.Errors{"assignedTo": "assignedTo must be a member of the team"}
	}
	if a.HasTA() {
		if _, err := s.users.GetByID(ctx, *a.TA); err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return validate.Errors{"ta": "ta must be an existing user"}
			}
			return err
		}
	}
	return nil
}

func (s *Service) record(a *Assignment, actorID, action, detail string) {
	s.activity.Record(activity.Entry{
		TeamID:       a.TeamID,
		AssignmentID: a.ID,
		ActorID:      actorID,
		Action:       action,
		Detail:       detail,
	})
}

// notify resolves the people involved and hands the event to the notifier.
// Lookup failures only skip the notification.
func (s *Service) notify(ctx context.Context, kind EventKind, a *Assignment, t *team.Team, actorID string) {
	ev := Event{Kind: kind, Assignment: a, Team: t}
	var err error
	if ev.Actor, err = s.users.GetByID(ctx, actorID); err != nil {
		slog.Error("notification skipped", "assignment_id", a.ID, "event", kind, "error", fmt.Errorf("loading actor: %w", err))
		return
	}
	if ev.Student, err = s.users.GetByID(ctx, a.AssignedTo); err != nil {
		slog.Error("notification skipped", "assignment_id", a.ID, "event", kind, "error", fmt.Errorf("loading assignee: %w", err))
		return
	}
	if a.HasTA() {
		if ev.TA, err = s.users.GetByID(ctx, *a.TA); err != nil {
			slog.Warn("notifying without ta", "assignment_id", a.ID, "event", kind, "error", err)
			ev.TA = nil
		}
	}
	s.notifier.Notify(ctx, ev)
}

func (in *Input) normalize() {
	in.AssignedTo = strings.TrimSpace(in.AssignedTo)
	if in.TA != nil {
		ta := strings.TrimSpace(*in.TA)
		if ta == "" {
			in.TA = nil
		} else {
			in.TA = &ta
		}
	}
	if in.Type == "" {
		in.Type = TypeMemorization
	}
}

func (in *UpdateInput) normalize() {
	in.AssignmentID = strings.TrimSpace(in.AssignmentID)
	in.Input.normalize()
}

// check applies the rules struct tags cannot express. It expects the tags to
// have passed already.
func (in *Input) check() error {
	errs := validate.Errors{}
	if in.TA != nil {
		if err := validate.Field("ta", *in.TA, "uuid"); err != nil {
			errs["ta"] = err.Error()
		}
	}
	if err := in.Start.Validate(); err != nil {
		errs["start"] = "start: " + err.Error()
	}
	if err := in.End.Validate(); err != nil {
		errs["end"] = "end: " + err.Error()
	}
	if !in.EndTime.After(*in.StartTime) {
		errs["endTime"] = "endTime must be after startTime"
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// apply copies the editable fields onto a.
func (in *Input) apply(a *Assignment) {
	a.AssignedTo = in.AssignedTo
	a.TA = nil
	if in.TA != nil {
		ta := *in.TA
		a.TA = &ta
	}
	a.Start = *in.Start
	a.End = *in.End
	a.StartTime = *in.StartTime
	a.EndTime = *in.EndTime
	a.Status = in.Status
	a.Notes = in.Notes
	a.Type = in.Type
}
