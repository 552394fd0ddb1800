package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/samely/samely/internal/activity"
	"github.com/samely/samely/internal/auth"
	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/validate"
)

// teamsHandler groups team and membership HTTP handlers.
type teamsHandler struct {
	teams *team.Service
}

func newTeamsHandler(teams *team.Service) *teamsHandler {
	return &teamsHandler{teams: teams}
}

// teamParam returns the {team} URL parameter, writing a 400 when it is not a
// valid id.
func teamParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "team")
	if err := validate.Field("team", id, "required,uuid"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_team_id", "invalid team id format")
		return "", false
	}
	return id, true
}

// List handles GET /api/v1/teams.
func (h *teamsHandler) List(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	listing, err := h.teams.List(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch teams")
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Create handles POST /api/v1/teams.
func (h *teamsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req team.CreateInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u := auth.UserFromContext(r.Context())
	t, err := h.teams.Create(r.Context(), u.ID, req)
	if err != nil {
		writeServiceError(w, r, err, "failed to create team")
		return
	}

	auditLog(r, resourceTeam, "create", t.ID, "name", t.Name)
	writeJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/v1/teams/{team}. Non-members get the team without its
// member and assignment lists.
func (h *teamsHandler) Get(w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamParam(w, r)
	if !ok {
		return
	}

	u := auth.UserFromContext(r.Context())
	detail, err := h.teams.Get(r.Context(), u.ID, teamID)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch team details")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Join handles POST /api/v1/teams/join.
func (h *teamsHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamID string `json:"teamId"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u := auth.UserFromContext(r.Context())
	t, err := h.teams.Join(r.Context(), u.ID, req.TeamID)
	if err != nil {
		writeServiceError(w, r, err, "failed to join team")
		return
	}

	auditLog(r, resourceTeam, "join", t.ID)
	writeSuccess(w, "Successfully joined team", "team", t)
}

// AddMember handles POST /api/v1/teams/members.
func (h *teamsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req team.MemberInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u := auth.UserFromContext(r.Context())
	target, changed, err := h.teams.AddMember(r.Context(), u.ID, req)
	if err != nil {
		writeServiceError(w, r, err, "failed to add member")
		return
	}

	if changed {
		auditLog(r, resourceTeam, "add_member", req.TeamID, "member_id", target.ID, "role", string(req.Role))
	}
	writeSuccess(w, "Member added successfully", "changed", changed)
}

// RemoveMember handles DELETE /api/v1/teams/members.
func (h *teamsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	var req team.MemberInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u := auth.UserFromContext(r.Context())
	target, changed, err := h.teams.RemoveMember(r.Context(), u.ID, req)
	if err != nil {
		writeServiceError(w, r, err, "failed to remove member")
		return
	}

	if changed {
		auditLog(r, resourceTeam, "remove_member", req.TeamID, "member_id", target.ID, "role", string(req.Role))
	}
	writeSuccess(w, "Member removed successfully", "changed", changed)
}

// Activity handles GET /api/v1/teams/{team}/activity. Editors only.
func (h *teamsHandler) Activity(w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamParam(w, r)
	if !ok {
		return
	}

	q := activity.Query{
		TeamID: teamID,
		Cursor: r.URL.Query().Get("cursor"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		q.Limit = l
	}

	u := auth.UserFromContext(r.Context())
	entries, next, err := h.teams.ListActivity(r.Context(), u.ID, q)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch activity")
		return
	}
	if entries == nil {
		entries = []*activity.Entry{}
	}

	resp := map[string]interface{}{
		"activity": entries,
	}
	if next != "" {
		resp["next_cursor"] = next
	}
	writeJSON(w, http.StatusOK, resp)
}
