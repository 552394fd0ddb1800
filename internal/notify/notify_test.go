package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samely/samely/internal/assignment"
	"github.com/samely/samely/internal/quran"
	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/user"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (s *captureSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func testEvent(kind assignment.EventKind, withTA bool) assignment.Event {
	taID := "ta-1"
	grade := 85
	a := &assignment.Assignment{
		ID:         "a-1",
		TeamID:     "team-1",
		AssignedTo: "student-1",
		Start:      quran.Locator{Surah: 2, Verse: 255},
		End:        quran.Locator{Surah: 2, Verse: 257},
		Type:       assignment.TypeMemorization,
		Status:     assignment.StatusPending,
		Grade:      &grade,
		Notes:      "tajweed focus",
		StartTime:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC),
	}
	ev := assignment.Event{
		Kind:       kind,
		Assignment: a,
		Team:       &team.Team{ID: "team-1", Name: "Hifz Circle"},
		Actor:      &user.User{ID: "editor-1", Name: "Ustadh Ali", Email: "ali@example.com"},
		Student:    &user.User{ID: "student-1", Name: "Maryam", Email: "maryam@example.com"},
	}
	if withTA {
		a.TA = &taID
		ev.TA = &user.User{ID: taID, Name: "Yusuf", Email: "yusuf@example.com"}
	}
	return ev
}

func newTestDispatcher(t *testing.T, sender Sender) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(sender, "Same'ly", "https://samely.test/")
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

func TestNotify_FanOut(t *testing.T) {
	tests := []struct {
		kind     assignment.EventKind
		withTA   bool
		subjects []string
		to       []string
	}{
		{assignment.EventCreated, true, []string{"New Assignment in Hifz Circle", "New Assignment to Supervise in Hifz Circle"}, []string{"maryam@example.com", "yusuf@example.com"}},
		{assignment.EventCreated, false, []string{"New Assignment in Hifz Circle"}, []string{"maryam@example.com"}},
		{assignment.EventUpdated, true, []string{"Assignment Updated in Hifz Circle", "Assignment Updated in Hifz Circle"}, []string{"maryam@example.com", "yusuf@example.com"}},
		{assignment.EventGraded, true, []string{"Assignment Graded in Hifz Circle"}, []string{"maryam@example.com"}},
		{assignment.EventDeleted, true, []string{"Assignment Deleted in Hifz Circle", "Assignment Deleted in Hifz Circle"}, []string{"maryam@example.com", "yusuf@example.com"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			sender := &captureSender{}
			d := newTestDispatcher(t, sender)
			d.Notify(context.Background(), testEvent(tt.kind, tt.withTA))

			if len(sender.msgs) != len(tt.subjects) {
				t.Fatalf("expected %d messages, got %d", len(tt.subjects), len(sender.msgs))
			}
			for i, msg := range sender.msgs {
				if msg.Subject != tt.subjects[i] {
					t.Errorf("message %d: subject %q, want %q", i, msg.Subject, tt.subjects[i])
				}
				if msg.To.Address != tt.to[i] {
					t.Errorf("message %d: to %q, want %q", i, msg.To.Address, tt.to[i])
				}
			}
		})
	}
}

func TestRender_Content(t *testing.T) {
	d := newTestDispatcher(t, NopSender{})

	msgs, audiences, err := d.Render(testEvent(assignment.EventCreated, true))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(msgs) != 2 || audiences[0] != Student || audiences[1] != TA {
		t.Fatalf("unexpected render result: %d %v", len(msgs), audiences)
	}

	student := msgs[0].HTML
	for _, want := range []string{
		"Hello Maryam,",
		"Hifz Circle",
		"Surah 2. Al-Baqarah (البقرة): Verse 255",
		"tajweed focus",
		"created by Ustadh Ali",
		"https://samely.test/teams/team-1/myassignments/a-1",
	} {
		if !strings.Contains(student, want) {
			t.Errorf("student email missing %q", want)
		}
	}
	if strings.Contains(student, "<strong>Student:</strong>") {
		t.Error("student email should not carry the student line")
	}

	ta := msgs[1].HTML
	for _, want := range []string{
		"Hello Yusuf,",
		"Maryam (maryam@example.com)",
		"https://samely.test/teams/team-1/myta/a-1",
	} {
		if !strings.Contains(ta, want) {
			t.Errorf("ta email missing %q", want)
		}
	}
}

func TestRender_Graded(t *testing.T) {
	d := newTestDispatcher(t, NopSender{})

	ev := testEvent(assignment.EventGraded, true)
	msgs, _, err := d.Render(ev)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(msgs[0].HTML, "85%") || !strings.Contains(msgs[0].HTML, "#4caf50") {
		t.Errorf("expected passing grade styling in %s", msgs[0].HTML)
	}

	low := 40
	ev.Assignment.Grade = &low
	msgs, _, _ = d.Render(ev)
	if !strings.Contains(msgs[0].HTML, "#f44336") {
		t.Error("expected failing grade colour")
	}
}

func TestRender_DeletedLinksToLists(t *testing.T) {
	d := newTestDispatcher(t, NopSender{})

	msgs, _, err := d.Render(testEvent(assignment.EventDeleted, true))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(msgs[0].HTML, `href="https://samely.test/teams/team-1/myassignments"`) {
		t.Error("student deletion email should link the assignment list")
	}
	if !strings.Contains(msgs[1].HTML, `href="https://samely.test/teams/team-1/myta"`) {
		t.Error("ta deletion email should link the supervision list")
	}
	if strings.Contains(msgs[0].HTML, "Start Time") {
		t.Error("deletion email should not include the schedule")
	}
}

func TestNotify_FailuresAreReported(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	d := newTestDispatcher(t, sender)

	var failed []string
	d.OnResult(func(_ assignment.EventKind, audience string, err error) {
		if err != nil {
			failed = append(failed, audience)
		}
	})
	d.Notify(context.Background(), testEvent(assignment.EventCreated, true))

	if len(failed) != 2 || failed[0] != Student || failed[1] != TA {
		t.Fatalf("expected both deliveries reported as failed, got %v", failed)
	}
}

func TestSendGridSender(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender("sg-key", "Same'ly", "no-reply@samely.test").WithHost(srv.URL)
	msg := Message{Subject: "hi", HTML: "<p>hi</p>"}
	msg.To.Address = "maryam@example.com"
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAuth != "Bearer sg-key" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotPath != "/v3/mail/send" {
		t.Errorf("unexpected path %q", gotPath)
	}
}

func TestSendGridSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	s := NewSendGridSender("bad", "Same'ly", "no-reply@samely.test").WithHost(srv.URL)
	err := s.Send(context.Background(), Message{Subject: "hi", HTML: "x"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSendGridSender_CancelledContext(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSendGridSender("sg-key", "Same'ly", "no-reply@samely.test").WithHost(srv.URL)
	if err := s.Send(ctx, Message{Subject: "hi", HTML: "x"}); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
	if hit {
		t.Error("request reached the server after cancellation")
	}
}
