package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/samely/samely/internal/activity"
	"github.com/samely/samely/internal/assignment"
	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/user"
	"github.com/samely/samely/internal/validate"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeValidationError reports field failures with the given status code.
func writeValidationError(w http.ResponseWriter, statusCode int, errs validate.Errors) {
	writeJSON(w, statusCode, errorEnvelope{
		Error: errorDetail{
			Code:    "validation_error",
			Message: errs.Error(),
			Fields:  errs,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// writeSuccess writes the {success, message} acknowledgement used by
// mutations that return no resource.
func writeSuccess(w http.ResponseWriter, message string, extra ...any) {
	body := map[string]interface{}{"success": true, "message": message}
	for i := 0; i+1 < len(extra); i += 2 {
		if k, ok := extra[i].(string); ok {
			body[k] = extra[i+1]
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// writeServiceError maps a domain error to its HTTP status. Anything it does
// not recognise is logged and reported as a generic 500 with fallback.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verrs validate.Errors
	switch {
	case errors.As(err, &verrs):
		writeValidationError(w, http.StatusBadRequest, verrs)
	case errors.Is(err, team.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "team not found")
	case errors.Is(err, assignment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "assignment not found")
	case errors.Is(err, user.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, assignment.ErrForbidden), errors.Is(err, team.ErrForbidden), errors.Is(err, team.ErrNoActivity):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, team.ErrAlreadyMember):
		writeError(w, http.StatusBadRequest, "already_member", err.Error())
	case errors.Is(err, team.ErrLastEditor):
		writeError(w, http.StatusConflict, "last_editor", err.Error())
	case errors.Is(err, assignment.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, activity.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "invalid_cursor", "invalid cursor")
	default:
		slog.Error(fallback,
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", fallback)
	}
}

// errorCode classifies err the same way writeServiceError does, for metrics.
func errorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case validate.Is(err):
		return "invalid"
	case errors.Is(err, team.ErrNotFound), errors.Is(err, assignment.ErrNotFound), errors.Is(err, user.ErrNotFound):
		return "not_found"
	case errors.Is(err, assignment.ErrForbidden):
		return "forbidden"
	case errors.Is(err, assignment.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
