package assignment

import "errors"

var ErrForbidden = errors.New("not permitted to perform this action on the assignment")

// Op is an operation on an assignment.
type Op string

const (
	OpCreate Op = "create"
	OpRead   Op = "read"
	OpUpdate Op = "update"
	OpGrade  Op = "grade"
	OpDelete Op = "delete"
)

// Outcome is the capacity in which a caller is allowed to act.
type Outcome int

const (
	None Outcome = iota
	Editor
	AssignedTA
	SelfAssignee
	Reader
)

func (o Outcome) String() string {
	switch o {
	case Editor:
		return "editor"
	case AssignedTA:
		return "ta"
	case SelfAssignee:
		return "self-assignee"
	case Reader:
		return "reader"
	default:
		return "none"
	}
}

// Evaluate decides how callerID may perform op on a. For OpCreate, a is the
// assignment about to be inserted. isEditor reports whether the caller edits
// a's team.
func Evaluate(callerID string, isEditor bool, op Op, a *Assignment) Outcome {
	if isEditor {
		return Editor
	}
	if callerID == "" || a == nil {
		return None
	}
	switch op {
	case OpCreate:
		if a.AssignedTo == callerID {
			return SelfAssignee
		}
	case OpUpdate, OpGrade, OpDelete:
		if a.IsTA(callerID) {
			return AssignedTA
		}
	case OpRead:
		if a.IsTA(callerID) {
			return AssignedTA
		}
		if a.AssignedTo == callerID {
			return Reader
		}
	}
	return None
}

// Authorize is Evaluate with None mapped to ErrForbidden.
func Authorize(callerID string, isEditor bool, op Op, a *Assignment) (Outcome, error) {
	o := Evaluate(callerID, isEditor, op, a)
	if o == None {
		return None, ErrForbidden
	}
	return o, nil
}
