// Package mailer sends the submissions report of an assignment by e-mail.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"sakaibot/internal/assert"
	"sakaibot/internal/sakai/model"
	"sakaibot/internal/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("sakaibot/internal/mailer")

const report_mailer_send = "send"

type SmtpConfig struct {
	Server   string   `json:"server"`
	Port     int      `json:"port"`
	Address  string   `json:"address"`
	Password string   `json:"password"`
	To       []string `json:"to"`
}

type Mailer struct {
	config SmtpConfig
	tel    telemetry.API
}

func New(config SmtpConfig, tel telemetry.API) Mailer {
	assert.NotEmptyStr(config.Server, "smtp server")
	assert.NotEmptyStr(config.Address, "sender address")
	assert.NotNil(tel, "telemetry")

	return Mailer{
		config: config,
		tel:    telemetry.NewScopedAPI("mailer", tel),
	}
}

// Change is a difference in a student's record between two snapshots.
type Change struct {
	StudentID string
	Name      string
	What      string
}

// Report is the state of the submissions of one assignment.
type Report struct {
	Worksite   string
	Assignment string
	TakenAt    time.Time
	Records    []model.StudentInfo
	Changes    []Change
}

// Diff lists what changed from prev to cur: students that appeared, new
// submissions, new files and new grades.
func Diff(prev, cur []model.StudentInfo) []Change {
	before := make(map[string]model.StudentInfo, len(prev))
	for _, r := range prev {
		before[r.ID] = r
	}

	var changes []Change
	for _, r := range cur {
		old, ok := before[r.ID]
		if !ok {
			changes = append(changes, Change{r.ID, r.Name, "new student"})
			continue
		}
		if r.Submitted != "" && r.Submitted != old.Submitted {
			changes = append(changes, Change{r.ID, r.Name, "submitted " + r.Submitted})
		}
		known := map[string]bool{}
		for _, f := range old.Files {
			known[f.Name] = true
		}
		for _, f := range r.Files {
			if !known[f.Name] {
				changes = append(changes, Change{r.ID, r.Name, "new file " + f.Name})
			}
		}
		if r.Grade != old.Grade {
			changes = append(changes, Change{r.ID, r.Name, fmt.Sprintf("grade %q -> %q", old.Grade, r.Grade)})
		}
	}
	return changes
}

func (r Report) table() table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"ID", "Name", "Status", "Submitted", "Grade", "Files"})
	for _, s := range r.Records {
		files := make([]string, len(s.Files))
		for i, f := range s.Files {
			files[i] = f.Canonical()
		}
		tw.AppendRow(table.Row{s.ID, s.Name, s.Status, s.Submitted, s.Grade, strings.Join(files, "\n")})
	}
	return tw
}

func (r Report) Subject() string {
	subject := fmt.Sprintf("%s: %s", r.Worksite, r.Assignment)
	if len(r.Changes) > 0 {
		subject += fmt.Sprintf(" (%d changes)", len(r.Changes))
	}
	return subject
}

// Text renders the report as plain text.
func (r Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Submissions of %s in %s as of %s.\n\n", r.Assignment, r.Worksite, r.TakenAt.Format(time.DateTime))
	if len(r.Changes) > 0 {
		b.WriteString("Changes:\n")
		for _, c := range r.Changes {
			fmt.Fprintf(&b, "  %s (%s): %s\n", c.Name, c.StudentID, c.What)
		}
		b.WriteString("\n")
	}
	b.WriteString(r.table().Render())
	b.WriteString("\n")
	return b.String()
}

// HTML renders the report as an html fragment.
func (r Report) HTML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Submissions of <b>%s</b> in %s as of %s.</p>\n", r.Assignment, r.Worksite, r.TakenAt.Format(time.DateTime))
	if len(r.Changes) > 0 {
		b.WriteString("<ul>\n")
		for _, c := range r.Changes {
			fmt.Fprintf(&b, "<li>%s (%s): %s</li>\n", c.Name, c.StudentID, c.What)
		}
		b.WriteString("</ul>\n")
	}
	b.WriteString(r.table().RenderHTML())
	return b.String()
}

func (m Mailer) build(r Report) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("sakaibot <%s>", m.config.Address)
	mail.To = m.config.To
	mail.Subject = r.Subject()
	mail.Text = []byte(r.Text())
	mail.HTML = []byte(r.HTML())
	return mail
}

// Send mails the report to every configured recipient. Servers without AUTH
// are retried unauthenticated.
func (m Mailer) Send(ctx context.Context, r Report) error {
	_, span := tracer.Start(ctx, "Send")
	defer span.End()
	span.SetAttributes(
		attribute.String("assignment", r.Assignment),
		attribute.Int("changes", len(r.Changes)),
	)

	if len(m.config.To) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	mail := m.build(r)
	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", m.config.Address, m.config.Password, m.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		m.tel.ReportBroken(report_mailer_send, err, r.Assignment)
		return err
	}
	m.tel.ReportDebug("sent report", r.Assignment, len(m.config.To))
	return nil
}
