package api

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/samely/samely/internal/auth"
)

// Audited resources.
const (
	resourceUser       = "user"
	resourceTeam       = "team"
	resourceAssignment = "assignment"
)

// auditLog writes one mutation to the log as "<resource>.<action>". Requests
// routed under /teams/{team} are tagged with the team they touched.
func auditLog(r *http.Request, resource, action, id string, detail ...any) {
	attrs := []any{
		"action", resource + "." + action,
		"resource_id", id,
		"request_id", RequestIDFromContext(r.Context()),
		"remote_addr", remoteHost(r),
	}
	if teamID := chi.URLParam(r, "team"); teamID != "" && resource != resourceTeam {
		attrs = append(attrs, "team_id", teamID)
	}
	if u := auth.UserFromContext(r.Context()); u != nil {
		attrs = append(attrs, "actor_id", u.ID)
	}

	attrs = append(attrs, detail...)
	slog.InfoContext(r.Context(), "audit", attrs...)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
