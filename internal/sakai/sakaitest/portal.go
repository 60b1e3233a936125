// Package sakaitest serves a small portal from the fixture render source and
// starts engines against it, for the tests of the packages above the engine.
package sakaitest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sakaibot/internal/chrono"
	"sakaibot/internal/sakai/engine"
	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/render/fixture"
	"sakaibot/internal/telemetry"
)

const (
	BaseURL  = "https://sakai.test"
	Username = "teacher"
	Password = "secret"
	Worksite = "Physics 101"
)

// Delays keep the engine's waits short, the fixture answers synchronously.
var Delays = engine.Delays{
	Poll:       5 * time.Millisecond,
	Settle:     10 * time.Millisecond,
	Submit:     10 * time.Millisecond,
	Navigation: 5 * time.Second,
	MaxPolls:   5,
}

// Portal is a worksite with two assignments, the first of which has two
// students: jdoe, who submitted a file, and jroe, who did not.
type Portal struct {
	Source *fixture.Source

	mutex    sync.Mutex
	grades   map[string]string
	comments map[string]string
}

func NewPortal() *Portal {
	p := &Portal{
		Source:   fixture.New(),
		grades:   map[string]string{},
		comments: map[string]string{"1": "Old comment"},
	}
	p.routes()
	return p
}

// Grade returns the last grade saved for a student.
func (p *Portal) Grade(id string) string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.grades[id]
}

func page(title, body string) string {
	return "<html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
}

func (p *Portal) handle(path string, handler fixture.Handler) {
	p.Source.Handle(BaseURL+path, handler)
}

func (p *Portal) static(path, title, body string) {
	p.handle(path, fixture.Static(page(title, body)))
}

func assignmentRow(title, status, id string) string {
	return fmt.Sprintf(`<tr>
		<td headers="title"><a href="#">%s</a></td>
		<td headers="status">%s</td>
		<td headers="openDate">Jan 1, 2021 8:00 am</td>
		<td headers="dueDate">Jan 8, 2021 8:00 am</td>
		<td headers="num_submissions"><a href="#" onclick="window.location = '/tool/list?assignmentId=%s'; return false;">1/2</a></td>
		<td headers="maxgrade">10</td>
	</tr>`, title, status, id)
}

var students = map[string]string{"1": "jdoe", "2": "jroe"}

func (p *Portal) routes() {
	login := `<form id="loginForm" method="post" action="/portal/xlogin">
		<input id="eid" name="eid"><input id="pw" name="pw" type="password">
		<input type="submit" name="submit" value="Log in">
	</form>`
	p.static("/portal", "Portal", login)
	p.handle("/portal/xlogin", func(req fixture.Request) string {
		if req.Form.Get("eid") != Username || req.Form.Get("pw") != Password {
			return page("Portal", `<div class="alertMessage">Invalid login</div>`+login)
		}
		return page("Home", `<a class="icon-sakai-membership" href="/portal/site/~teacher/page/membership">Membership</a>
			<a id="loginLink1" href="/portal/logout">Log Out</a>`)
	})
	p.static("/portal/logout", "Logged out", login)
	p.static("/portal/site/~teacher/page/membership", "Membership", `<table id="currentSites">
		<tr><td headers="worksite"><a href="/portal/site/phys">Physics 101</a></td></tr>
		<tr><td headers="worksite"><a href="/portal/site/!admin">Administration Workspace</a></td></tr>
	</table>`)
	p.static("/portal/site/phys", Worksite, `<ul>
		<li><a class="icon-sakai-assignment-grades" href="/portal/site/phys/page/asn">Assignments</a></li>
		<li><a class="icon-sakai-samigo" href="/portal/site/phys/page/tests">Tests</a></li>
	</ul>`)
	p.static("/portal/site/phys/page/asn", "Assignments", `<form id="listAssignmentsForm"><table class="listHier lines nolines">`+
		assignmentRow("Lab 1", "Open", "a1")+
		assignmentRow("Lab 2", "Draft", "a2")+
		`</table></form>`)
	p.handle("/tool/list?assignmentId=a1", func(fixture.Request) string {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		return page("Submissions", `<form id="listSubmissionsForm">
		<table class="listHier lines nolines">
			<tr>
				<td headers="studentname"><a href="/tool/grade?s=1">Doe, John (jdoe)</a></td>
				<td headers="submitted">Jan 7, 2021 <img src="/library/image/attachments.gif"></td>
				<td headers="status">Submitted</td>
				<td headers="grade">`+p.grades["jdoe"]+`</td>
			</tr>
			<tr>
				<td headers="studentname"><a href="/tool/grade?s=2">Roe, Jane (jroe)</a></td>
				<td headers="submitted"></td>
				<td headers="status">No Submission</td>
				<td headers="grade">`+p.grades["jroe"]+`</td>
			</tr>
		</table>
	</form>`)
	})
	for s, files := range map[string]string{
		"1": `<ul class="attachList indnt1"><li><a href="/access/essay.pdf">essay.pdf</a> (1 MB; 2021-01-07)</li></ul>`,
		"2": ``,
	} {
		s, files := s, files
		p.handle("/tool/grade?s="+s, func(fixture.Request) string {
			p.mutex.Lock()
			comment := p.comments[s]
			p.mutex.Unlock()
			return page("Grade", `<form id="gradeForm" method="post" action="/tool/grade/save?s=`+s+`">`+files+`
				<textarea id="grade_submission_feedback_comment" name="feedback">`+comment+`</textarea>
				<input id="grade" name="grade" value="">
				<input type="submit" name="eventSubmit_doSave_grade_submission" value="Save">
			</form>`)
		})
		p.handle("/tool/grade/save?s="+s, func(req fixture.Request) string {
			grade := strings.TrimSpace(req.Form.Get("grade"))
			if grade == "A+" {
				return page("Grade", `<div class="alertMessage">Alert: invalid grade</div>`)
			}
			p.mutex.Lock()
			if grade != "" {
				p.grades[students[s]] = grade
			}
			p.comments[s] = req.Form.Get("feedback")
			p.mutex.Unlock()
			return page("Grade", `<div class="success">Saved</div>`)
		})
	}

	p.static("/portal/site/phys/page/tests", "Tests", `<table id="authorIndexForm:publishedAssessments">
		<tr><td headers="title">Quiz 1</td><td><a class="settingsLink" href="/samigo/settings?id=1">Settings</a></td></tr>
	</table>`)
}

// StartEngine runs an engine against source until the test ends.
func StartEngine(t testing.TB, source *fixture.Source, tel telemetry.API) (*engine.Engine, *events.Notifier) {
	t.Helper()
	notifier := events.NewNotifier()
	e := engine.New(source, chrono.NewStandardTime(), tel, notifier, engine.Options{
		BaseURL:  BaseURL,
		Username: Username,
		Password: Password,
		Delays:   Delays,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-e.Stopped()
	})
	return e, notifier
}
