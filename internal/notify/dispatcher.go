// Package notify renders assignment lifecycle emails and hands them to a
// Sender.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/mail"
	"path"
	"strings"
	"time"

	"github.com/samely/samely/internal/assignment"
	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/user"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

const layout = "layout.gohtml"

// Audiences of a notification.
const (
	Student = "student"
	TA      = "ta"
)

// ResultFunc observes the outcome of each delivery attempt.
type ResultFunc func(event assignment.EventKind, audience string, err error)

// Dispatcher turns assignment events into emails.
type Dispatcher struct {
	sender   Sender
	appName  string
	baseURL  string
	pages    map[string]*template.Template
	onResult ResultFunc
}

// NewDispatcher parses the embedded templates. baseURL prefixes the links
// back into the application.
func NewDispatcher(sender Sender, appName, baseURL string) (*Dispatcher, error) {
	pages, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		sender:  sender,
		appName: appName,
		baseURL: strings.TrimRight(baseURL, "/"),
		pages:   pages,
	}, nil
}

// OnResult registers fn to be called after every delivery attempt.
func (d *Dispatcher) OnResult(fn ResultFunc) {
	d.onResult = fn
}

var funcs = template.FuncMap{
	"datetime": func(t time.Time) string {
		return t.UTC().Format("Mon, Jan 2, 2006 3:04 PM MST")
	},
	"gradeColor": func(grade int) string {
		if grade >= 70 {
			return "#4caf50"
		}
		return "#f44336"
	},
}

func parseTemplates() (map[string]*template.Template, error) {
	base, err := template.New(layout).Funcs(funcs).ParseFS(templateFS, "templates/"+layout)
	if err != nil {
		return nil, fmt.Errorf("parsing email layout: %w", err)
	}
	files, err := fs.Glob(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, err
	}

	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		name := path.Base(f)
		if name == layout {
			continue
		}
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, f); err != nil {
			return nil, fmt.Errorf("parsing email template %s: %w", name, err)
		}
		pages[strings.TrimSuffix(name, ".gohtml")] = t
	}
	return pages, nil
}

type pageData struct {
	AppName      string
	Recipient    *user.User
	Student      *user.User
	Actor        *user.User
	Team         *team.Team
	Assignment   *assignment.Assignment
	Grade        int
	Link         string
	Heading      string
	ShowStudent  bool
	ShowSchedule bool
}

type delivery struct {
	audience string
	to       *user.User
	page     string
	subject  string
	link     string
}

// plan lists the emails an event produces.
func (d *Dispatcher) plan(ev assignment.Event) []delivery {
	teamURL := d.baseURL + "/teams/" + ev.Team.ID
	studentLink := teamURL + "/myassignments/" + ev.Assignment.ID
	taLink := teamURL + "/myta/" + ev.Assignment.ID
	name := ev.Team.Name

	var out []delivery
	switch ev.Kind {
	case assignment.EventCreated:
		out = append(out, delivery{Student, ev.Student, "student_created", "New Assignment in " + name, studentLink})
		if ev.TA != nil {
			out = append(out, delivery{TA, ev.TA, "ta_created", "New Assignment to Supervise in " + name, taLink})
		}
	case assignment.EventUpdated:
		out = append(out, delivery{Student, ev.Student, "student_updated", "Assignment Updated in " + name, studentLink})
		if ev.TA != nil {
			out = append(out, delivery{TA, ev.TA, "ta_updated", "Assignment Updated in " + name, taLink})
		}
	case assignment.EventGraded:
		out = append(out, delivery{Student, ev.Student, "student_graded", "Assignment Graded in " + name, studentLink})
	case assignment.EventDeleted:
		out = append(out, delivery{Student, ev.Student, "student_deleted", "Assignment Deleted in " + name, teamURL + "/myassignments"})
		if ev.TA != nil {
			out = append(out, delivery{TA, ev.TA, "ta_deleted", "Assignment Deleted in " + name, teamURL + "/myta"})
		}
	}
	return out
}

func heading(kind assignment.EventKind) string {
	switch kind {
	case assignment.EventUpdated:
		return "Updated Assignment Details:"
	case assignment.EventDeleted:
		return "Deleted Assignment Details:"
	default:
		return "Assignment Details:"
	}
}

// Render builds the messages for ev without sending them.
func (d *Dispatcher) Render(ev assignment.Event) ([]Message, []string, error) {
	var msgs []Message
	var audiences []string
	for _, del := range d.plan(ev) {
		if del.to == nil || del.to.Email == "" {
			continue
		}
		t, ok := d.pages[del.page]
		if !ok {
			return nil, nil, fmt.Errorf("unknown email template %q", del.page)
		}
		data := pageData{
			AppName:      d.appName,
			Recipient:    del.to,
			Student:      ev.Student,
			Actor:        ev.Actor,
			Team:         ev.Team,
			Assignment:   ev.Assignment,
			Link:         del.link,
			Heading:      heading(ev.Kind),
			ShowStudent:  del.audience == TA,
			ShowSchedule: ev.Kind != assignment.EventDeleted,
		}
		if ev.Assignment.Grade != nil {
			data.Grade = *ev.Assignment.Grade
		}

		var buf bytes.Buffer
		if err := t.ExecuteTemplate(&buf, layout, data); err != nil {
			return nil, nil, fmt.Errorf("rendering %s: %w", del.page, err)
		}
		msgs = append(msgs, Message{
			To:      mail.Address{Name: del.to.Name, Address: del.to.Email},
			Subject: del.subject,
			HTML:    buf.String(),
		})
		audiences = append(audiences, del.audience)
	}
	return msgs, audiences, nil
}

// Notify renders and sends the emails for ev. Failures are logged and
// reported to the result hook, never returned.
func (d *Dispatcher) Notify(ctx context.Context, ev assignment.Event) {
	msgs, audiences, err := d.Render(ev)
	if err != nil {
		slog.Error("rendering notification", "event", ev.Kind, "assignment_id", ev.Assignment.ID, "error", err)
		d.report(ev.Kind, Student, err)
		return
	}
	for i, msg := range msgs {
		err := d.sender.Send(ctx, msg)
		if err != nil {
			slog.Error("sending notification",
				"event", ev.Kind,
				"audience", audiences[i],
				"assignment_id", ev.Assignment.ID,
				"to", msg.To.Address,
				"error", err,
			)
		}
		d.report(ev.Kind, audiences[i], err)
	}
}

func (d *Dispatcher) report(kind assignment.EventKind, audience string, err error) {
	if d.onResult != nil {
		d.onResult(kind, audience, err)
	}
}

var _ assignment.Notifier = (*Dispatcher)(nil)
