package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/samely/samely/internal/activity"
	"github.com/samely/samely/internal/assignment"
	"github.com/samely/samely/internal/memstore"
	"github.com/samely/samely/internal/metrics"
	"github.com/samely/samely/internal/ratelimit"
	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/user"
)

// ---------------------------------------------------------------------------
// Test harness
// ---------------------------------------------------------------------------

type fakeNotifier struct {
	mu     sync.Mutex
	events []assignment.Event
}

func (f *fakeNotifier) Notify(_ context.Context, ev assignment.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeNotifier) kinds() []assignment.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]assignment.EventKind, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Kind
	}
	return out
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

type testEnv struct {
	handler  http.Handler
	notifier *fakeNotifier
	metrics  *metrics.Metrics
}

type account struct {
	id    string
	token string
}

func newTestEnv(t *testing.T, mutate ...func(*RouterDeps)) *testEnv {
	t.Helper()

	st := memstore.New()
	users := user.NewService(st.Users(), user.Options{})
	// A batch size of one makes every record visible immediately.
	collector := activity.NewCollector(st.Activity(), 1, time.Hour)
	teams := team.NewService(st.Teams(), users, st, collector, st.Activity())
	notifier := &fakeNotifier{}
	assignments := assignment.NewService(st.Assignments(), teams, users, st, notifier, collector)
	m := metrics.New()

	deps := RouterDeps{
		Users:          users,
		Teams:          teams,
		Assignments:    assignments,
		Sessions:       user.NewAuthAdapter(users),
		Metrics:        m,
		AllowedOrigins: []string{"*"},
		Version:        "test",
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	return &testEnv{handler: NewRouter(deps), notifier: notifier, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v (body %q)", err, rec.Body.String())
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func (e *testEnv) register(t *testing.T, name string) account {
	t.Helper()
	email := strings.ToLower(name) + "@example.com"
	rec := e.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"name":      name,
		"email":     email,
		"password":  "secret123",
		"birthDate": "2001-04-12",
	})
	expectStatus(t, rec, http.StatusCreated)
	var created struct {
		UserID string `json:"userId"`
	}
	decode(t, rec, &created)

	rec = e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": "secret123",
	})
	expectStatus(t, rec, http.StatusOK)
	var session struct {
		Token string     `json:"token"`
		User  *user.User `json:"user"`
	}
	decode(t, rec, &session)
	if session.User == nil || session.User.ID != created.UserID {
		t.Fatalf("login returned user %+v, want id %s", session.User, created.UserID)
	}
	return account{id: created.UserID, token: session.Token}
}

func (e *testEnv) createTeam(t *testing.T, owner account, name string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/teams", owner.token, map[string]string{"name": name})
	expectStatus(t, rec, http.StatusCreated)
	var tm team.Team
	decode(t, rec, &tm)
	return tm.ID
}

func (e *testEnv) join(t *testing.T, who account, teamID string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/teams/join", who.token, map[string]string{"teamId": teamID})
	expectStatus(t, rec, http.StatusOK)
}

func assignmentBody(assignee, ta string) map[string]interface{} {
	b := map[string]interface{}{
		"assignedTo": assignee,
		"start":      map[string]interface{}{"surah": 1, "verse": 1},
		"end":        map[string]interface{}{"surah": "1", "verse": 7},
		"startTime":  "2026-03-01T09:00:00Z",
		"endTime":    "2026-03-08T09:00:00Z",
		"status":     "pending",
	}
	if ta != "" {
		b["ta"] = ta
	}
	return b
}

func (e *testEnv) createAssignment(t *testing.T, caller account, teamID string, body map[string]interface{}) (string, int) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/teams/"+teamID+"/assignments", caller.token, body)
	expectStatus(t, rec, http.StatusCreated)
	var out struct {
		Success      bool   `json:"success"`
		AssignmentID string `json:"assignmentId"`
		Version      int    `json:"version"`
	}
	decode(t, rec, &out)
	if !out.Success || out.AssignmentID == "" {
		t.Fatalf("unexpected create response: %+v", out)
	}
	return out.AssignmentID, out.Version
}

func (e *testEnv) profile(t *testing.T, who account) user.Profile {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/v1/auth/me", who.token, nil)
	expectStatus(t, rec, http.StatusOK)
	var p user.Profile
	decode(t, rec, &p)
	return p
}

func (e *testEnv) views(t *testing.T, who account, path string) []assignment.View {
	t.Helper()
	rec := e.do(t, http.MethodGet, path, who.token, nil)
	expectStatus(t, rec, http.StatusOK)
	var vs []assignment.View
	decode(t, rec, &vs)
	return vs
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Operational routes
// ---------------------------------------------------------------------------

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		pool       Pinger
		wantStatus int
		wantDB     string
	}{
		{"no pool", nil, http.StatusOK, "connected"},
		{"pool up", &fakePinger{}, http.StatusOK, "connected"},
		{"pool down", &fakePinger{err: errors.New("refused")}, http.StatusServiceUnavailable, "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRouter(RouterDeps{DBPool: tt.pool})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			expectStatus(t, rec, tt.wantStatus)
			var body map[string]string
			decode(t, rec, &body)
			if body["database"] != tt.wantDB {
				t.Errorf("database = %q, want %q", body["database"], tt.wantDB)
			}
		})
	}
}

func TestWellKnownHandler_ViaRouter(t *testing.T) {
	handler := NewRouter(RouterDeps{Version: "1.2.3"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/samely.json", nil))

	expectStatus(t, rec, http.StatusOK)
	var m manifest
	decode(t, rec, &m)
	if m.APIBase != "/api/v1" || m.Version != "1.2.3" || m.Auth["type"] != "bearer" {
		t.Errorf("unexpected manifest: %+v", m)
	}
}

func TestSurahCatalogue_Public(t *testing.T) {
	handler := NewRouter(RouterDeps{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/surahs", nil))

	expectStatus(t, rec, http.StatusOK)
	var body struct {
		Surahs []struct {
			Number int    `json:"number"`
			Name   string `json:"name"`
			Verses int    `json:"verses"`
		} `json:"surahs"`
	}
	decode(t, rec, &body)
	if len(body.Surahs) != 114 {
		t.Fatalf("expected 114 surahs, got %d", len(body.Surahs))
	}
	if s := body.Surahs[1]; s.Number != 2 || s.Verses != 286 {
		t.Errorf("unexpected second surah: %+v", s)
	}
}

func TestRouter_NotFound(t *testing.T) {
	handler := NewRouter(RouterDeps{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nonexistent-path", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestRouter_PreflightAtAnyPath(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/teams", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for OPTIONS preflight, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on router responses")
	}
}

func TestMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "Alice")
	env.createTeam(t, alice, "Halaqa")

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "samely_http_requests_total") {
		t.Error("prometheus output missing samely_http_requests_total")
	}

	rec = env.do(t, http.MethodGet, "/api/v1/metrics/summary", "", nil)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(t, http.MethodGet, "/api/v1/metrics/summary", alice.token, nil)
	expectStatus(t, rec, http.StatusOK)
}

// ---------------------------------------------------------------------------
// Accounts and sessions
// ---------------------------------------------------------------------------

func TestUnauthenticated(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/teams"},
		{http.MethodGet, "/api/v1/assignments/my"},
		{http.MethodGet, "/api/v1/assignments/ta"},
		{http.MethodPost, "/api/v1/teams/join"},
		{http.MethodDelete, "/api/v1/teams/" + uuid.NewString() + "/assignments"},
	}
	for _, p := range paths {
		if rec := env.do(t, p.method, p.path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status %d", p.method, p.path, rec.Code)
		}
		if rec := env.do(t, p.method, p.path, "bogus", nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s with bogus token: status %d", p.method, p.path, rec.Code)
		}
	}
}

func TestSignupRejections(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "Taken")

	tests := []struct {
		name string
		body map[string]string
	}{
		{"short password", map[string]string{"name": "A", "email": "a@example.com", "password": "123456", "birthDate": "2000-01-01"}},
		{"bad email", map[string]string{"name": "A", "email": "not-an-email", "password": "secret123", "birthDate": "2000-01-01"}},
		{"blank name", map[string]string{"name": "  ", "email": "b@example.com", "password": "secret123", "birthDate": "2000-01-01"}},
		{"bad birth date", map[string]string{"name": "A", "email": "c@example.com", "password": "secret123", "birthDate": "yesterday"}},
		{"duplicate email", map[string]string{"name": "A", "email": "TAKEN@example.com", "password": "secret123", "birthDate": "2000-01-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/auth/signup", "", tt.body)
			expectStatus(t, rec, http.StatusUnprocessableEntity)
		})
	}
}

func TestLoginLogout(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "Alice")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/logout", alice.token, nil)
	expectStatus(t, rec, http.StatusNoContent)

	rec = env.do(t, http.MethodGet, "/api/v1/auth/me", alice.token, nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestAuthRateLimit(t *testing.T) {
	env := newTestEnv(t, func(d *RouterDeps) {
		d.AuthLimiter = ratelimit.New(2, time.Minute)
	})

	creds := map[string]string{"email": "nobody@example.com", "password": "whatever1"}
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", creds)
		expectStatus(t, rec, http.StatusUnauthorized)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", creds)
	expectStatus(t, rec, http.StatusTooManyRequests)
}

// ---------------------------------------------------------------------------
// Teams and membership
// ---------------------------------------------------------------------------

func TestTeamLifecycle(t *testing.T) {
	env := newTestEnv(t)
	editor := env.register(t, "Editor")
	student := env.register(t, "Student")

	rec := env.do(t, http.MethodPost, "/api/v1/teams", editor.token, map[string]string{"name": "   "})
	expectStatus(t, rec, http.StatusBadRequest)

	teamID := env.createTeam(t, editor, "  Halaqa  ")

	// Non-members see the team without its lists.
	rec = env.do(t, http.MethodGet, "/api/v1/teams/"+teamID, student.token, nil)
	expectStatus(t, rec, http.StatusOK)
	var detail team.Detail
	decode(t, rec, &detail)
	if detail.Name != "Halaqa" || detail.IsMember || len(detail.Editors) != 0 {
		t.Fatalf("non-member view = %+v", detail)
	}

	env.join(t, student, teamID)
	rec = env.do(t, http.MethodPost, "/api/v1/teams/join", student.token, map[string]string{"teamId": teamID})
	expectStatus(t, rec, http.StatusBadRequest)
	rec = env.do(t, http.MethodPost, "/api/v1/teams/join", editor.token, map[string]string{"teamId": teamID})
	expectStatus(t, rec, http.StatusBadRequest)
	rec = env.do(t, http.MethodPost, "/api/v1/teams/join", student.token, map[string]string{"teamId": uuid.NewString()})
	expectStatus(t, rec, http.StatusNotFound)
	rec = env.do(t, http.MethodPost, "/api/v1/teams/join", student.token, map[string]string{})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodGet, "/api/v1/teams/"+teamID, editor.token, nil)
	expectStatus(t, rec, http.StatusOK)
	detail = team.Detail{}
	decode(t, rec, &detail)
	if len(detail.Editors) != 1 || detail.Editors[0].ID != editor.id {
		t.Errorf("editors = %+v", detail.Editors)
	}
	if len(detail.Students) != 1 || detail.Students[0].ID != student.id {
		t.Errorf("students = %+v", detail.Students)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/teams", student.token, nil)
	expectStatus(t, rec, http.StatusOK)
	var listing team.Listing
	decode(t, rec, &listing)
	if len(listing.StudentTeams) != 1 || len(listing.EditingTeams) != 0 {
		t.Errorf("student listing = %+v", listing)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/teams/not-a-uuid", editor.token, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	rec = env.do(t, http.MethodGet, "/api/v1/teams/"+uuid.NewString(), editor.token, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestMembershipManagement(t *testing.T) {
	env := newTestEnv(t)
	editor := env.register(t, "Editor")
	other := env.register(t, "Other")
	student := env.register(t, "Student")
	teamID := env.createTeam(t, editor, "Halaqa")
	env.join(t, student, teamID)

	add := func(caller account, body map[string]string) *httptest.ResponseRecorder {
		return env.do(t, http.MethodPost, "/api/v1/teams/members", caller.token, body)
	}

	rec := add(student, map[string]string{"teamId": teamID, "email": "other@example.com", "role": "editor"})
	expectStatus(t, rec, http.StatusForbidden)
	rec = add(editor, map[string]string{"teamId": teamID, "email": "ghost@example.com", "role": "editor"})
	expectStatus(t, rec, http.StatusNotFound)
	rec = add(editor, map[string]string{"teamId": teamID, "email": "other@example.com", "role": "owner"})
	expectStatus(t, rec, http.StatusBadRequest)
	rec = add(editor, map[string]string{"teamId": teamID, "role": "editor"})
	expectStatus(t, rec, http.StatusBadRequest)

	// Adding the same editor twice leaves one entry.
	for i := 0; i < 2; i++ {
		rec = add(editor, map[string]string{"teamId": teamID, "userId": other.id, "role": "editor"})
		expectStatus(t, rec, http.StatusOK)
	}
	if p := env.profile(t, other); len(p.EditingTeams) != 1 || p.EditingTeams[0] != teamID {
		t.Fatalf("editingTeams = %v", p.EditingTeams)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/teams/"+teamID, editor.token, nil)
	var detail team.Detail
	decode(t, rec, &detail)
	if len(detail.Editors) != 2 {
		t.Fatalf("editors = %d, want 2", len(detail.Editors))
	}

	remove := func(caller account, body map[string]string) *httptest.ResponseRecorder {
		return env.do(t, http.MethodDelete, "/api/v1/teams/members", caller.token, body)
	}
	rec = remove(editor, map[string]string{"teamId": teamID, "userId": other.id, "role": "editor"})
	expectStatus(t, rec, http.StatusOK)
	rec = remove(editor, map[string]string{"teamId": teamID, "userId": editor.id, "role": "editor"})
	expectStatus(t, rec, http.StatusConflict)
}

func TestTeamActivity(t *testing.T) {
	env := newTestEnv(t)
	editor := env.register(t, "Editor")
	student := env.register(t, "Student")
	teamID := env.createTeam(t, editor, "Halaqa")
	env.join(t, student, teamID)
	env.createAssignment(t, editor, teamID, assignmentBody(student.id, ""))

	rec := env.do(t, http.MethodGet, "/api/v1/teams/"+teamID+"/activity", student.token, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = env.do(t, http.MethodGet, "/api/v1/teams/"+teamID+"/activity?limit=2", editor.token, nil)
	expectStatus(t, rec, http.StatusOK)
	var page struct {
		Activity   []activity.Entry `json:"activity"`
		NextCursor string           `json:"next_cursor"`
	}
	decode(t, rec, &page)
	if len(page.Activity) != 2 || page.NextCursor == "" {
		t.Fatalf("first page = %d entries, cursor %q", len(page.Activity), page.NextCursor)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/teams/"+teamID+"/activity?limit=2&cursor="+page.NextCursor, editor.token, nil)
	expectStatus(t, rec, http.StatusOK)
	var rest struct {
		Activity []activity.Entry `json:"activity"`
	}
	decode(t, rec, &rest)
	if len(rest.Activity) != 1 {
		t.Fatalf("second page = %d entries, want 1", len(rest.Activity))
	}

	rec = env.do(t, http.MethodGet, "/api/v1/teams/"+teamID+"/activity?cursor=bad!cursor", editor.token, nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

// ---------------------------------------------------------------------------
// Assignments
// ---------------------------------------------------------------------------

func TestAssignmentGradingScenario(t *testing.T) {
	env := newTestEnv(t)
	editor := env.register(t, "Editor")
	student := env.register(t, "Student")
	teamID := env.createTeam(t, editor, "Halaqa")
	env.join(t, student, teamID)

	id, version := env.createAssignment(t, editor, teamID, assignmentBody(student.id, ""))

	grade := map[string]interface{}{"assignmentId": id, "grade": 85, "status": "graded"}
	rec := env.do(t, http.MethodPatch, "/api/v1/teams/"+teamID+"/assignments", student.token, grade)
	expectStatus(t, rec, http.StatusForbidden)

	grade["version"] = version
	rec = env.do(t, http.MethodPatch, "/api/v1/teams/"+teamID+"/assignments", editor.token, grade)
	expectStatus(t, rec, http.StatusOK)

	mine := env.views(t, student, "/api/v1/teams/"+teamID+"/assignments")
	if len(mine) != 1 {
		t.Fatalf("student sees %d assignments, want 1", len(mine))
	}
	a := mine[0]
	if a.Grade == nil || *a.Grade != 85 || a.Status != assignment.StatusGraded {
		t.Errorf("grade = %v status = %s", a.Grade, a.Status)
	}
	if a.GradedBy == nil || *a.GradedBy != editor.id {
		t.Errorf("gradedBy = %v, want %s", a.GradedBy, editor.id)
	}
	if a.TAInfo != nil {
		t.Errorf("taInfo = %+v, want absent", a.TAInfo)
	}
	if a.Type != assignment.TypeMemorization || a.Notes != "" {
		t.Errorf("defaults: type %q notes %q", a.Type, a.Notes)
	}
	if a.End.Surah != 1 || a.End.Verse != 7 {
		t.Errorf("end = %+v", a.End)
	}

	kinds := env.notifier.kinds()
	if len(kinds) != 2 || kinds[0] != assignment.EventCreated || kinds[1] != assignment.EventGraded {
		t.Errorf("notifications = %v", kinds)
	}
}

func TestAssignmentCreateRejections(t *testing.T) {
	env := newTestEnv(t)
	editor := env.register(t, "Editor")
	student := env.register(t, "Student")
	outsider := env.register(t, "Outsider")
	teamID := env.createTeam(t, editor, "Halaqa")
	env.join(t, student, teamID)

	path := "/api/v1/teams/" + teamID + "/assignments"
	for _, field := range []string{"assignedTo", "start", "end", "status", "startTime", "endTime"} {
		body := assignmentBody(student.id, "")
		delete(body, field)
		rec := env.do(t, http.MethodPost, path, editor.token, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("missing %s: status %d, want 400", field, rec.Code)
		}
	}

	body := assignmentBody(student.id, "")
	body["endTime"] = body["startTime"]
	expectStatus(t, env.do(t, http.MethodPost, path, editor.token, body), http.StatusBadRequest)

	body = assignmentBody(student.id, "")
	body["end"] = map[string]interface{}{"surah": 1, "verse": 8}
	expectStatus(t, env.do(t, http.MethodPost, path, editor.token, body), http.StatusBadRequest)

	body = assignmentBody(student.id, "")
	body["status"] = "archived"
	expectStatus(t, env.do(t, http.MethodPost, path, editor.token, body), http.StatusBadRequest)

	// Assignee outside the team.
	expectStatus(t, env.do(t, http.MethodPost, path, editor.token, assignmentBody(outsider.id, "")), http.StatusBadRequest)
	// Unknown TA.
	expectStatus(t, env.do(t, http.MethodPost, path, editor.token, assignmentBody(student.id, uuid.NewString())), http.StatusBadRequest)
	// A student may only assign themselves.
	expectStatus(t, env.do(t, http.MethodPost, path, outsider.token, assignmentBody(student.id, "")), http.StatusForbidden)
	// Unknown team.
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/teams/"+uuid.NewString()+"/assignments", editor.token, assignmentBody(student.id, "")), http.StatusNotFound)

	if vs := env.views(t, editor, "/api/v1/teams/"+teamID+"/ta"); len(vs) != 0 {
		t.Fatalf("rejected requests persisted %d assignments", len(vs))
	}

	id, _ := env.createAssignment(t, student, teamID, assignmentBody(student.id, ""))
	if vs := env.views(t, student, "/api/v1/assignments/my?team="+teamID); len(vs) != 1 || vs[0].ID != id {
		t.Fatalf("self-assigned list = %+v", vs)
	}
}

func TestAssignmentTASupervision(t *testing.T) {
	env := newTestEnv(t)
	editor := env.register(t, "Editor")
	student := env.register(t, "Student")
	taA := env.register(t, "TaA")
	taB := env.register(t, "TaB")
	stranger := env.register(t, "Stranger")
	teamID := env.createTeam(t, editor, "Halaqa")
	env.join(t, student, teamID)
	env.join(t, stranger, teamID)

	id, _ := env.createAssignment(t, editor, teamID, assignmentBody(student.id, taA.id))
	if p := env.profile(t, taA); !contains(p.TAAssignments, id) {
		t.Fatalf("taA refs = %v", p.TAAssignments)
	}

	// The TA may update the status; another student may not.
	update := assignmentBody(student.id, taA.id)
	update["assignmentId"] = id
	update["status"] = "completed"
	path := "/api/v1/teams/" + teamID + "/assignments"
	expectStatus(t, env.do(t, http.MethodPut, path, stranger.token, update), http.StatusForbidden)
	expectStatus(t, env.do(t, http.MethodPut, path, taA.token, update), http.StatusOK)

	// Reassign the TA.
	update["ta"] = taB.id
	expectStatus(t, env.do(t, http.MethodPut, path, editor.token, update), http.StatusOK)
	if p := env.profile(t, taA); contains(p.TAAssignments, id) {
		t.Errorf("taA still references %s", id)
	}
	if p := env.profile(t, taB); !contains(p.TAAssignments, id) {
		t.Errorf("taB does not reference %s", id)
	}

	supervised := env.views(t, taB, "/api/v1/assignments/ta")
	if len(supervised) != 1 || supervised[0].Student == nil || supervised[0].Student.ID != student.id {
		t.Fatalf("taB supervised = %+v", supervised)
	}
	if vs := env.views(t, taB, "/api/v1/teams/"+teamID+"/ta"); len(vs) != 1 {
		t.Errorf("taB team view = %d assignments", len(vs))
	}
	if vs := env.views(t, stranger, "/api/v1/teams/"+teamID+"/ta"); len(vs) != 0 {
		t.Errorf("stranger team view = %d assignments", len(vs))
	}
	if vs := env.views(t, stranger, "/api/v1/teams/"+uuid.NewString()+"/ta"); len(vs) != 0 {
		t.Errorf("unknown team view = %d assignments", len(vs))
	}

	// Single fetch.
	rec := env.do(t, http.MethodGet, path+"/"+id, taB.token, nil)
	expectStatus(t, rec, http.StatusOK)
	var v assignment.View
	decode(t, rec, &v)
	if v.Status != assignment.StatusCompleted || v.TAInfo == nil || v.TAInfo.ID != taB.id || v.Version != 3 {
		t.Errorf("view = %+v", v)
	}
	expectStatus(t, env.do(t, http.MethodGet, path+"/"+id, stranger.token, nil), http.StatusForbidden)
	expectStatus(t, env.do(t, http.MethodGet, path+"/not-a-uuid", editor.token, nil), http.StatusBadRequest)

	// Delete: missing id, stale version, then the TA deletes.
	expectStatus(t, env.do(t, http.MethodDelete, path, taB.token, nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodDelete, path+"?assignmentId="+id+"&version=1", taB.token, nil), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodDelete, path+"?assignmentId="+id, stranger.token, nil), http.StatusForbidden)
	expectStatus(t, env.do(t, http.MethodDelete, path+"?assignmentId="+id+"&version=3", taB.token, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodDelete, path+"?assignmentId="+id, editor.token, nil), http.StatusNotFound)

	if p := env.profile(t, student); contains(p.Assignments, id) {
		t.Error("student still references deleted assignment")
	}
	if p := env.profile(t, taB); contains(p.TAAssignments, id) {
		t.Error("ta still references deleted assignment")
	}
	rec = env.do(t, http.MethodGet, "/api/v1/teams/"+teamID, editor.token, nil)
	var detail team.Detail
	decode(t, rec, &detail)
	if contains(detail.Assignments, id) {
		t.Error("team still references deleted assignment")
	}

	kinds := env.notifier.kinds()
	if last := kinds[len(kinds)-1]; last != assignment.EventDeleted {
		t.Errorf("last notification = %s, want deleted", last)
	}
}
