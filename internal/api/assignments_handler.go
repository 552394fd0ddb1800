package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/samely/samely/internal/assignment"
	"github.com/samely/samely/internal/auth"
	"github.com/samely/samely/internal/validate"
)

// assignmentsHandler groups assignment HTTP handlers.
type assignmentsHandler struct {
	svc     *assignment.Service
	metrics MetricsRecorder
}

func newAssignmentsHandler(svc *assignment.Service, rec MetricsRecorder) *assignmentsHandler {
	return &assignmentsHandler{svc: svc, metrics: rec}
}

func (h *assignmentsHandler) observe(op assignment.Op, err error) {
	h.metrics.IncAssignmentOp(string(op), errorCode(err))
}

// writeViews writes a list, never null.
func writeViews(w http.ResponseWriter, views []*assignment.View) {
	if views == nil {
		views = []*assignment.View{}
	}
	writeJSON(w, http.StatusOK, views)
}

// ListMine handles GET /api/v1/assignments/my[?team=].
func (h *assignmentsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	teamID := strings.TrimSpace(r.URL.Query().Get("team"))
	if teamID != "" {
		if err := validate.Field("team", teamID, "uuid"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_team_id", "invalid team id format")
			return
		}
	}

	u := auth.UserFromContext(r.Context())
	views, err := h.svc.ListMine(r.Context(), u.ID, teamID)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch assignments")
		return
	}
	writeViews(w, views)
}

// ListSupervised handles GET /api/v1/assignments/ta.
func (h *assignmentsHandler) ListSupervised(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	views, err := h.svc.ListSupervised(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch assignments")
		return
	}
	writeViews(w, views)
}

// ListTeam handles GET /api/v1/teams/{team}/assignments: the caller's own
// assignments in the team.
func (h *assignmentsHandler) ListTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamParam(w, r)
	if !ok {
		return
	}

	u := auth.UserFromContext(r.Context())
	views, err := h.svc.ListMine(r.Context(), u.ID, teamID)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch assignments")
		return
	}
	writeViews(w, views)
}

// ListTeamSupervised handles GET /api/v1/teams/{team}/ta.
func (h *assignmentsHandler) ListTeamSupervised(w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamParam(w, r)
	if !ok {
		return
	}

	u := auth.UserFromContext(r.Context())
	views, err := h.svc.ListTeamSupervised(r.Context(), u.ID, teamID)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch assignments")
		return
	}
	writeViews(w, views)
}

// Get handles GET /api/v1/teams/{team}/assignments/{assignmentID}.
func (h *assignmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamParam(w, r)
	if !ok {
		return
	}

	u := auth.UserFromContext(r.Context())
	v, err := h.svc.Get(r.Context(), u.ID, teamID, chi.URLParam(r, "assignmentID"))
	h.observe(assignment.OpRead, err)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch assignment")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Create handles POST /api/v1/teams/{team}/assignments.
func (h *assignmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamParam(w, r)
	if !ok {
		return
	}

	var req assignment.Input
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u := auth.UserFromContext(r.Context())
	a, err := h.svc.Create(r.Context(), u.ID, teamID, req)
	h.observe(assignment.OpCreate, err)
	if err != nil {
		writeServiceError(w, r, err, "failed to create assignment")
		return
	}

	auditLog(r, resourceAssignment, "create", a.ID, "assigned_to", a.AssignedTo)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":      true,
		"assignmentId": a.ID,
		"version":      a.Version,
	})
}

// Update handles PUT /api/v1/teams/{team}/assignments.
func (h *assignmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamParam(w, r)
	if !ok {
		return
	}

	var req assignment.UpdateInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u := auth.UserFromContext(r.Context())
	a, err := h.svc.Update(r.Context(), u.ID, teamID, req)
	h.observe(assignment.OpUpdate, err)
	if err != nil {
		writeServiceError(w, r, err, "failed to update assignment")
		return
	}

	auditLog(r, resourceAssignment, "update", a.ID, "status", string(a.Status), "version", a.Version)
	writeSuccess(w, "Assignment updated successfully", "version", a.Version)
}

// Grade handles PATCH /api/v1/teams/{team}/assignments.
func (h *assignmentsHandler) Grade(w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamParam(w, r)
	if !ok {
		return
	}

	var req assignment.GradeInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u := auth.UserFromContext(r.Context())
	a, err := h.svc.Grade(r.Context(), u.ID, teamID, req)
	h.observe(assignment.OpGrade, err)
	if err != nil {
		writeServiceError(w, r, err, "failed to grade assignment")
		return
	}

	auditLog(r, resourceAssignment, "grade", a.ID, "grade", *a.Grade)
	writeSuccess(w, "Assignment graded successfully", "version", a.Version)
}

// Delete handles DELETE /api/v1/teams/{team}/assignments?assignmentId=&version=.
func (h *assignmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	assignmentID := strings.TrimSpace(q.Get("assignmentId"))
	if assignmentID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Assignment ID is required")
		return
	}
	var version *int
	if v := q.Get("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_version", "version must be an integer")
			return
		}
		version = &n
	}

	u := auth.UserFromContext(r.Context())
	a, err := h.svc.Delete(r.Context(), u.ID, teamID, assignmentID, version)
	h.observe(assignment.OpDelete, err)
	if err != nil {
		writeServiceError(w, r, err, "failed to delete assignment")
		return
	}

	auditLog(r, resourceAssignment, "delete", a.ID)
	writeSuccess(w, "Assignment deleted successfully")
}
