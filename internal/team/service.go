package team

import (
	"context"
	"errors"
	"strings"

	"github.com/samely/samely/internal/activity"
	"github.com/samely/samely/internal/db"
	"github.com/samely/samely/internal/user"
	"github.com/samely/samely/internal/validate"
)

var (
	ErrForbidden     = errors.New("only team editors can manage members")
	ErrNoActivity    = errors.New("only team editors can view activity")
	ErrAlreadyMember = errors.New("already a member of this team")
	ErrLastEditor    = errors.New("cannot remove the last editor of a team")
)

// UserLookup resolves member references given by id or email.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// Service implements team and membership operations.
// ActivityLog reads back a team's recorded activity.
type ActivityLog interface {
	List(ctx context.Context, q activity.Query) ([]*activity.Entry, string, error)
}

type Service struct {
	repo     Repository
	users    UserLookup
	tx       db.TxRunner
	activity activity.Recorder
	log      ActivityLog
}

// NewService creates a team service. rec may be nil.
func NewService(repo Repository, users UserLookup, tx db.TxRunner, rec activity.Recorder, log ActivityLog) *Service {
	if rec == nil {
		rec = activity.Discard
	}
	return &Service{repo: repo, users: users, tx: tx, activity: rec, log: log}
}

// Create makes a new team with the caller as its only editor.
func (s *Service) Create(ctx context.Context, callerID string, in CreateInput) (*Team, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	t := &Team{
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   callerID,
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, t); err != nil {
			return err
		}
		return s.repo.SetMember(ctx, t.ID, callerID, RoleEditor)
	})
	if err != nil {
		return nil, err
	}

	s.activity.Record(activity.Entry{TeamID: t.ID, ActorID: callerID, Action: activity.TeamCreated, Detail: t.Name})
	return t, nil
}

// Lookup returns the team with the given id.
func (s *Service) Lookup(ctx context.Context, id string) (*Team, error) {
	return s.repo.Get(ctx, id)
}

// RoleOf returns the user's role in the team, or RoleNone.
func (s *Service) RoleOf(ctx context.Context, teamID, userID string) (Role, error) {
	return s.repo.Role(ctx, teamID, userID)
}

// Get returns the team as seen by the caller. Non-members only see the
// team's name and description.
func (s *Service) Get(ctx context.Context, callerID, teamID string) (*Detail, error) {
	t, err := s.repo.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	d := &Detail{
		Team:        t,
		Editors:     []user.Summary{},
		Students:    []user.Summary{},
		Assignments: []string{},
	}

	role, err := s.repo.Role(ctx, teamID, callerID)
	if err != nil {
		return nil, err
	}
	if role == RoleNone {
		return d, nil
	}
	d.IsMember = true
	d.Role = role

	members, err := s.repo.Members(ctx, teamID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.Role == RoleEditor {
			d.Editors = append(d.Editors, m.Summary)
		} else {
			d.Students = append(d.Students, m.Summary)
		}
	}

	ids, err := s.repo.AssignmentIDs(ctx, teamID)
	if err != nil {
		return nil, err
	}
	d.Assignments = ids
	return d, nil
}

// List returns the caller's teams grouped by role. A team appears in at most
// one group.
func (s *Service) List(ctx context.Context, callerID string) (*Listing, error) {
	return s.repo.ListForUser(ctx, callerID)
}

// AddMember grants a role to a user. Adding is idempotent. Granting editor
// to a student promotes them; granting student to an editor changes nothing.
// It reports whether the membership changed.
func (s *Service) AddMember(ctx context.Context, callerID string, in MemberInput) (*user.User, bool, error) {
	target, err := s.prepareMemberChange(ctx, callerID, in)
	if err != nil {
		return nil, false, err
	}

	changed := false
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.Role(ctx, in.TeamID, target.ID)
		if err != nil {
			return err
		}
		if current == in.Role || (current == RoleEditor && in.Role == RoleStudent) {
			return nil
		}
		changed = true
		return s.repo.SetMember(ctx, in.TeamID, target.ID, in.Role)
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		s.activity.Record(activity.Entry{
			TeamID:  in.TeamID,
			ActorID: callerID,
			Action:  activity.MemberAdded,
			Detail:  target.ID + " as " + string(in.Role),
		})
	}
	return target, changed, nil
}

// RemoveMember revokes a role from a user. Nothing happens when the user does
// not hold that role. The team's last editor cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, callerID string, in MemberInput) (*user.User, bool, error) {
	target, err := s.prepareMemberChange(ctx, callerID, in)
	if err != nil {
		return nil, false, err
	}

	changed := false
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.Role(ctx, in.TeamID, target.ID)
		if err != nil {
			return err
		}
		if current != in.Role {
			return nil
		}
		if current == RoleEditor {
			n, err := s.repo.CountEditors(ctx, in.TeamID)
			if err != nil {
				return err
			}
			if n <= 1 {
				return ErrLastEditor
			}
		}
		changed = true
		return s.repo.RemoveMember(ctx, in.TeamID, target.ID)
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		s.activity.Record(activity.Entry{
			TeamID:  in.TeamID,
			ActorID: callerID,
			Action:  activity.MemberRemoved,
			Detail:  target.ID + " as " + string(in.Role),
		})
	}
	return target, changed, nil
}

// Join adds the caller to the team as a student.
func (s *Service) Join(ctx context.Context, callerID, teamID string) (*Team, error) {
	if err := validate.Field("teamId", teamID, "required,uuid"); err != nil {
		return nil, err
	}
	t, err := s.repo.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}

	added, err := s.repo.AddMember(ctx, teamID, callerID, RoleStudent)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, ErrAlreadyMember
	}

	s.activity.Record(activity.Entry{TeamID: teamID, ActorID: callerID, Action: activity.MemberJoined})
	return t, nil
}

// ListActivity returns a page of the team's activity, newest first. Only
// editors may read it.
func (s *Service) ListActivity(ctx context.Context, callerID string, q activity.Query) ([]*activity.Entry, string, error) {
	if _, err := s.repo.Get(ctx, q.TeamID); err != nil {
		return nil, "", err
	}
	role, err := s.repo.Role(ctx, q.TeamID, callerID)
	if err != nil {
		return nil, "", err
	}
	if role != RoleEditor {
		return nil, "", ErrNoActivity
	}
	if s.log == nil {
		return nil, "", nil
	}
	return s.log.List(ctx, q)
}

// prepareMemberChange validates in, checks that the caller edits the team and
// resolves the target user.
func (s *Service) prepareMemberChange(ctx context.Context, callerID string, in MemberInput) (*user.User, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	in.Email = strings.TrimSpace(in.Email)
	if in.UserID == "" && in.Email == "" {
		return nil, validate.Errors{"userId": "email or userId is required"}
	}
	if in.UserID != "" {
		if err := validate.Field("userId", in.UserID, "uuid"); err != nil {
			return nil, err
		}
	}

	if _, err := s.repo.Get(ctx, in.TeamID); err != nil {
		return nil, err
	}
	role, err := s.repo.Role(ctx, in.TeamID, callerID)
	if err != nil {
		return nil, err
	}
	if role != RoleEditor {
		return nil, ErrForbidden
	}

	if in.UserID != "" {
		return s.users.GetByID(ctx, in.UserID)
	}
	return s.users.GetByEmail(ctx, in.Email)
}
