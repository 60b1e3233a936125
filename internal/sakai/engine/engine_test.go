package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"sakaibot/internal/chrono"
	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/pages"
	"sakaibot/internal/sakai/render"
	"sakaibot/internal/sakai/render/fixture"
	"sakaibot/internal/sakai/session"
	"sakaibot/internal/telemetry"
	"sakaibot/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const base = "https://sakai.test"

var testDelays = Delays{
	Poll:     55 * time.Millisecond,
	Settle:   500 * time.Millisecond,
	Submit:   time.Second,
	MaxPolls: 2,
}

type harness struct {
	t        *testing.T
	source   *fixture.Source
	clock    *chrono.ManualTime
	tel      *telemetry.Recorder
	notifier *events.Notifier
	engine   *Engine
	events   chan events.Event
	runErr   chan error

	// rows of the assignments listing
	rows []string
	// participants removed through the update form
	removed map[string]bool
	// groups shown by the groups editor
	groups []model.Group
	// groups ticked on the delete form
	deleting []string
}

func page(title, body string) string {
	return "<html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
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

// newHarness starts an engine against a fixture portal. When subscribe is
// false nobody listens to the engine's events.
func newHarness(t *testing.T, delays Delays, subscribe bool) *harness {
	h := &harness{
		t:        t,
		source:   fixture.New(),
		clock:    chrono.NewManualTime(time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)),
		tel:      &telemetry.Recorder{},
		notifier: events.NewNotifier(),
		events:   make(chan events.Event, 256),
		runErr:   make(chan error, 1),
		rows: []string{
			assignmentRow("Lab 1", "Open", "a1"),
			assignmentRow("Lab 2", model.StatusDraft, "a2"),
		},
		removed: map[string]bool{},
		groups:  []model.Group{{Name: "Group A", ID: "ga"}, {Name: "Group B", ID: "gb"}},
	}
	h.routes()
	if subscribe {
		h.notifier.Subscribe(func(e events.Event) { h.events <- e })
	}

	h.engine = New(h.source, h.clock, h.tel, h.notifier, Options{
		BaseURL:  base,
		Username: "teacher",
		Password: "secret",
		Delays:   delays,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.runErr <- h.engine.Run(ctx) }()
	t.Cleanup(cancel)
	return h
}

func (h *harness) handle(path string, handler fixture.Handler) {
	h.source.Handle(base+path, handler)
}

func (h *harness) static(path, title, body string) {
	h.handle(path, fixture.Static(page(title, body)))
}

func (h *harness) routes() {
	login := `<form id="loginForm" method="post" action="/portal/xlogin">
		<input id="eid" name="eid"><input id="pw" name="pw" type="password">
		<input type="submit" name="submit" value="Log in">
	</form>`
	h.static("/portal", "Portal", login)
	h.handle("/portal/xlogin", func(req fixture.Request) string {
		if req.Form.Get("eid") != "teacher" || req.Form.Get("pw") != "secret" {
			return page("Portal", `<div class="alertMessage">Invalid login</div>`+login)
		}
		return page("Home", `<a class="icon-sakai-membership" href="/portal/site/~teacher/page/membership">Membership</a>
			<a id="loginLink1" href="/portal/logout">Log Out</a>`)
	})
	h.static("/portal/logout", "Logged out", login)
	h.static("/portal/site/~teacher/page/membership", "Membership", `<table id="currentSites">
		<tr><td headers="worksite"><a href="/portal/site/phys">Physics 101</a></td></tr>
		<tr><td headers="worksite"><a href="/portal/site/empty">Empty Site</a></td></tr>
		<tr><td headers="worksite"><a href="/portal/site/!admin">Administration Workspace</a></td></tr>
	</table>`)
	h.static("/portal/site/empty", "Empty Site", `<p>loading</p>`)
	h.static("/portal/site/phys", "Physics 101", `<ul>
		<li><a class="icon-sakai-assignment-grades" href="/portal/site/phys/page/asn">Assignments</a></li>
		<li><a class="icon-sakai-siteinfo" href="/portal/site/phys/page/info">Site Info</a></li>
		<li><a class="icon-sakai-samigo" href="/portal/site/phys/page/tests">Tests</a></li>
	</ul>`)

	h.handle("/portal/site/phys/page/asn", func(fixture.Request) string {
		return page("Assignments", h.assignments())
	})
	h.handle("/tool/list?assignmentId=a1", fixture.Static(page("Submissions", `<form id="listSubmissionsForm">
		<table class="listHier lines nolines">
			<tr>
				<td headers="studentname"><a href="/tool/grade?s=1">Doe, John (jdoe)</a></td>
				<td headers="submitted">Jan 7, 2021 <img src="/library/image/attachments.gif"></td>
				<td headers="status">Submitted</td>
				<td headers="grade"></td>
			</tr>
			<tr>
				<td headers="studentname"><a href="/tool/grade?s=2">Roe, Jane (jroe)</a></td>
				<td headers="submitted"></td>
				<td headers="status">No Submission</td>
				<td headers="grade"></td>
			</tr>
		</table>
	</form>`)))
	for s, files := range map[string]string{
		"1": `<ul class="attachList indnt1"><li><a href="/access/essay.pdf">essay.pdf</a> (1 MB; 2021-01-07)</li></ul>`,
		"2": ``,
	} {
		h.static("/tool/grade?s="+s, "Grade", `<form id="gradeForm" method="post" action="/tool/grade/save?s=`+s+`">`+files+`
			<textarea id="grade_submission_feedback_comment" name="feedback">Old comment</textarea>
			<input id="grade" name="grade" value="">
			<input type="submit" name="eventSubmit_doSave_grade_submission" value="Save">
		</form>`)
		h.handle("/tool/grade/save?s="+s, func(req fixture.Request) string {
			if req.Form.Get("grade") == "A+" {
				return page("Grade", `<div class="alertMessage">Alert: invalid grade</div>`)
			}
			return page("Grade", `<div class="success">Saved</div>`)
		})
	}

	h.handle("/portal/site/phys/page/info", func(fixture.Request) string { return h.participants() })
	h.handle("/tool/participants/update", func(req fixture.Request) string {
		for _, id := range req.Form["selectedUsers"] {
			h.removed[id] = true
		}
		return h.participants()
	})
	h.handle("/tool/groups", func(fixture.Request) string { return h.groupEditor() })
	h.handle("/tool/groups/delete", func(req fixture.Request) string {
		h.deleting = req.Form["removeGroups"]
		return page("Groups", `<form method="post" action="/tool/groups/confirm">
			<input type="submit" id="delete-groups-confirm" name="confirm" value="Delete">
		</form>`)
	})
	h.handle("/tool/groups/confirm", func(fixture.Request) string {
		var kept []model.Group
		for _, g := range h.groups {
			deleted := false
			for _, id := range h.deleting {
				deleted = deleted || id == g.ID
			}
			if !deleted {
				kept = append(kept, g)
			}
		}
		h.groups = kept
		return h.groupEditor()
	})

	h.static("/portal/site/phys/page/tests", "Tests", `<table id="authorIndexForm:publishedAssessments">
		<tr><td headers="title">Quiz 1</td><td><a class="settingsLink" href="/samigo/settings?id=1">Settings</a></td></tr>
	</table>`)
	h.static("/samigo/settings?id=1", "Settings", `<form id="assessmentSettingsAction" method="post" action="/samigo/save">
		<input id="assessmentSettingsAction:endDate" name="endDate" value="03/01/2021 09:00:00 AM">
		<input type="submit" id="assessmentSettingsAction:saveAndPublish" name="save" value="Save">
	</form>`)
	h.static("/samigo/save", "Tests", `<div class="success">Settings saved</div>`)

	users := `<form id="search_form" method="post" action="/admin/users/search">
		<input id="search" name="search"><input type="submit" id="search_submit" name="go" value="Search">
	</form>
	<a title="New User" href="/admin/users/new">New User</a>
	<table class="listHier lines nolines">
		<tr><td headers="eid"><a href="/admin/users/edit?id=jdoe">jdoe</a></td></tr>
	</table>`
	userForm := func(alert string, withID bool) string {
		id := ""
		if withID {
			id = `<input id="eid" name="eid">`
		}
		return page("User", alert+`<form id="user-form" method="post" action="/admin/users/save">`+id+`
			<input id="first-name" name="first"><input id="last-name" name="last">
			<input id="email" name="email"><input id="pw" name="pw"><input id="pw0" name="pw0">
			<input type="submit" name="eventSubmit_doSave" value="Save">
		</form>`)
	}
	h.static("/portal/site/!admin", "Administration Workspace", `<a class="icon-sakai-users" href="/portal/site/!admin/page/users">Users</a>`)
	h.static("/portal/site/!admin/page/users", "Users", users)
	h.static("/admin/users/search", "Users", users)
	h.handle("/admin/users/new", fixture.Static(userForm("", true)))
	h.handle("/admin/users/edit?id=jdoe", fixture.Static(userForm("", false)))
	h.handle("/admin/users/save", func(req fixture.Request) string {
		if req.Form.Get("first") == "" {
			return userForm(`<div class="alertMessage">Alert: first name is required</div>`, true)
		}
		return page("Users", users)
	})

	selects := ""
	for _, prefix := range []string{"open", "due", "close"} {
		for _, name := range []string{"month", "day", "year", "hour", "min", "ampm"} {
			selects += `<select id="new_assignment_` + prefix + name + `" name="` + prefix + name + `"></select>`
		}
	}
	h.static("/tool/new", "New assignment", `<form id="newAssignmentForm" method="post" action="/tool/new/post">
		<input id="new_assignment_title" name="title">`+selects+`
		<iframe src="/tool/editor"></iframe>
		<input type="submit" name="post" value="Post">
	</form>`)
	h.handle("/tool/editor", fixture.Static(`<html><body class="cke_editable"></body></html>`))
	h.handle("/tool/new/post", func(req fixture.Request) string {
		h.rows = append(h.rows, assignmentRow(req.Form.Get("title"), "Open", "a3"))
		return page("Assignments", `<div class="success">Assignment posted</div>`+h.assignments())
	})
}

func (h *harness) assignments() string {
	return `<a title="Add" href="/tool/new">Add</a>
		<form id="listAssignmentsForm"><table class="listHier lines nolines">` +
		strings.Join(h.rows, "") + `</table></form>`
}

func (h *harness) participants() string {
	rows := ""
	for _, p := range []model.UserInfo{
		{ID: "jdoe", LastName: "Doe", FirstName: "John", CourseRole: "Student"},
		{ID: "jroe", LastName: "Roe", FirstName: "Jane", CourseRole: "Student"},
		{ID: "prof", LastName: "Teacher", CourseRole: "Instructor"},
	} {
		if h.removed[p.ID] {
			continue
		}
		rows += fmt.Sprintf(`<tr>
			<td headers="name">%s, %s</td><td headers="id">%s</td><td headers="role">%s</td>
			<td headers="status">Active</td>
			<td headers="remove"><input type="checkbox" name="selectedUsers" value="%s"></td>
		</tr>`, p.LastName, p.FirstName, p.ID, p.CourseRole, p.ID)
	}
	return page("Site Info", `<a title="Manage Groups" href="/tool/groups">Manage Groups</a>
		<form id="participantForm" method="post" action="/tool/participants/update">
			<table class="listHier lines nolines">`+rows+`</table>
			<input type="submit" name="eventSubmit_doUpdate_participant" value="Update">
		</form>`)
}

func (h *harness) groupEditor() string {
	rows := ""
	for _, g := range h.groups {
		rows += `<tr><td headers="title">` + g.Name + `</td><td><input type="checkbox" name="removeGroups" value="` + g.ID + `"></td></tr>`
	}
	return page("Groups", `<form id="groupsForm" method="post" action="/tool/groups/delete">
		<table id="groupList">`+rows+`</table>
		<input type="submit" id="delete-groups" name="delete" value="Delete">
	</form>`)
}

// next waits for the next event of type T, skipping others. A failure
// that was not asked for ends the test.
func next[T events.Event](t *testing.T, h *harness) T {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-h.events:
			if got, ok := e.(T); ok {
				return got
			}
			if raised, ok := e.(events.ExceptionRaised); ok {
				t.Fatalf("unexpected failure %s: %s", raised.Kind, raised.Message)
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
		}
	}
}

// state returns the engine state once every task posted so far has run.
func (h *harness) state() State {
	var state State
	require.NoError(h.t, h.engine.Inspect(context.Background(), func(s State, _ *session.State) {
		state = s
	}))
	return state
}

func (h *harness) session(fn func(s *session.State)) {
	require.NoError(h.t, h.engine.Inspect(context.Background(), func(_ State, s *session.State) {
		fn(s)
	}))
}

func (h *harness) login(t *testing.T) {
	_, err := h.engine.Initialize(context.Background(), "Physics 101")
	require.NoError(t, err)
	selected := next[events.WorksiteSelected](t, h)
	require.Equal(t, "Physics 101", selected.Name)
}

func TestInitializeListsWorksites(t *testing.T) {
	h := newHarness(t, testDelays, true)
	id, err := h.engine.Initialize(context.Background(), "")
	require.NoError(t, err)

	ready := next[events.WorksitesReady](t, h)
	require.Equal(t, id, ready.Operation())
	require.Equal(t, []string{"Physics 101", "Empty Site", "Administration Workspace"}, ready.Names)
	require.Equal(t, Idle, h.state())
}

func TestInitializeWrongPassword(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.engine.opts.Password = "wrong"

	_, err := h.engine.Initialize(context.Background(), "")
	require.NoError(t, err)
	raised := next[events.ExceptionRaised](t, h)
	require.Equal(t, failure.IncorrectLoginOrPassword, raised.Kind)
	require.Equal(t, Idle, h.state())
}

func TestSelectUnknownWorksiteSuggests(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	_, err := h.engine.SelectWorksite(context.Background(), "Physics 11")
	require.NoError(t, err)
	raised := next[events.ExceptionRaised](t, h)
	require.Equal(t, failure.WorksiteNotFound, raised.Kind)
	require.Contains(t, raised.Message, `did you mean "Physics 101"`)
}

func TestFailFastWithoutSubscriber(t *testing.T) {
	h := newHarness(t, testDelays, false)

	_, err := h.engine.SelectWorksite(context.Background(), "Physics 101")
	require.Error(t, err)
	require.Equal(t, failure.WorksiteNotFound, failure.KindOf(err))

	// a failure past the first step has no caller left and stops the loop
	h.engine.opts.Password = "wrong"
	_, err = h.engine.Initialize(context.Background(), "")
	require.NoError(t, err)
	select {
	case err := <-h.runErr:
		require.Equal(t, failure.IncorrectLoginOrPassword, failure.KindOf(err))
	case <-time.After(5 * time.Second):
		t.Fatal("loop kept running")
	}
	_, err = h.engine.ReadWorksites(context.Background())
	require.ErrorIs(t, err, ErrLoopStopped)
}

func TestParseAssignmentItems(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	_, err := h.engine.ParseAssignmentItems(context.Background())
	require.NoError(t, err)
	ready := next[events.AssignmentItemsReady](t, h)
	require.Equal(t, []string{"Lab 1", "Lab 2"}, ready.Names)
	require.Equal(t, []bool{false, true}, ready.Drafts)
}

func TestDuplicateAssignmentKeepsFirst(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.rows = append(h.rows, assignmentRow("Lab 1", "Closed", "a9"))
	h.login(t)

	_, err := h.engine.ParseAssignmentItems(context.Background())
	require.NoError(t, err)
	raised := next[events.ExceptionRaised](t, h)
	require.Equal(t, failure.TwoAssignmentsWithTheSameName, raised.Kind)

	h.session(func(s *session.State) {
		a, ok := s.Assignment("Lab 1")
		require.True(t, ok)
		require.Equal(t, base+"/tool/list?assignmentId=a1", a.Link)
	})
}

func TestParseStudentsAtAssignmentIsRepeatable(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	for i := 0; i < 2; i++ {
		_, err := h.engine.ParseStudentsAtAssignment(context.Background(), " Lab 1 ")
		require.NoError(t, err)
		ready := next[events.StudentsInformationReady](t, h)
		require.Equal(t, []string{"jdoe", "jroe"}, ready.IDs)

		h.session(func(s *session.State) {
			records := s.Submissions("Lab 1")
			require.Len(t, records, 2)
			require.Len(t, records[0].Files, 1)
			require.Equal(t, "essay.pdf", records[0].Files[0].Name)
			require.Equal(t, "Old comment", records[0].TutorComment)
			require.Empty(t, records[1].Files)
		})
	}
}

func TestGradeStudent(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)
	_, err := h.engine.ParseAssignmentItems(context.Background())
	require.NoError(t, err)
	next[events.AssignmentItemsReady](t, h)

	_, err = h.engine.GradeStudent(context.Background(), "Lab 1", "jdoe", "9")
	require.NoError(t, err)
	graded := next[events.StudentGraded](t, h)
	require.True(t, graded.Success)
	require.Equal(t, "jdoe", graded.StudentID)
	require.Equal(t, Idle, h.state())

	h.session(func(s *session.State) {
		info, ok := s.Student("Lab 1", "jdoe")
		require.True(t, ok)
		require.Equal(t, "9", info.Grade)
	})
}

func TestGradeAlertDoesNotStopTheQueue(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)
	_, err := h.engine.ParseAssignmentItems(context.Background())
	require.NoError(t, err)
	next[events.AssignmentItemsReady](t, h)

	_, err = h.engine.GradeStudents(context.Background(), "Lab 1", map[string]string{
		"jdoe":  "A+",
		"jroe":  "7",
		"ghost": "5",
	})
	require.NoError(t, err)

	// ids are graded in ascending order
	ghost := next[events.StudentGraded](t, h)
	require.Equal(t, "ghost", ghost.StudentID)
	require.False(t, ghost.Success)

	rejected := next[events.StudentGraded](t, h)
	require.Equal(t, "jdoe", rejected.StudentID)
	require.False(t, rejected.Success)
	require.Equal(t, "Alert: invalid grade", rejected.Message)

	accepted := next[events.StudentGraded](t, h)
	require.Equal(t, "jroe", accepted.StudentID)
	require.True(t, accepted.Success)

	idle, err := h.engine.IsIdle(context.Background())
	require.NoError(t, err)
	require.True(t, idle)
	require.NotEmpty(t, h.tel.Find("warning", "engine:"+report_engine_grade))
}

func TestGradeRereadsTheListing(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)
	_, err := h.engine.ParseAssignmentItems(context.Background())
	require.NoError(t, err)
	next[events.AssignmentItemsReady](t, h)

	_, err = h.engine.GradeStudent(context.Background(), "Lab 1", "jroe", "7")
	require.NoError(t, err)
	require.True(t, next[events.StudentGraded](t, h).Success)

	// jroe leaves the course before the second pass
	h.handle("/tool/list?assignmentId=a1", fixture.Static(page("Submissions", `<form id="listSubmissionsForm">
		<table class="listHier lines nolines">
			<tr>
				<td headers="studentname"><a href="/tool/grade?s=1">Doe, John (jdoe)</a></td>
				<td headers="submitted">Jan 7, 2021</td>
				<td headers="status">Submitted</td>
				<td headers="grade"></td>
			</tr>
		</table>
	</form>`)))

	_, err = h.engine.GradeStudent(context.Background(), "Lab 1", "jroe", "8")
	require.NoError(t, err)
	graded := next[events.StudentGraded](t, h)
	require.Equal(t, "jroe", graded.StudentID)
	require.False(t, graded.Success)
	require.Contains(t, graded.Message, string(failure.StudentNotFound))
	require.Equal(t, Idle, h.state())

	h.session(func(s *session.State) {
		_, ok := s.Student("Lab 1", "jroe")
		require.False(t, ok)
		_, ok = s.Student("Lab 1", "jdoe")
		require.True(t, ok)
	})
}

func TestWriteSubmissions(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)
	_, err := h.engine.ParseAssignmentItems(context.Background())
	require.NoError(t, err)
	next[events.AssignmentItemsReady](t, h)

	_, err = h.engine.WriteSubmissions(context.Background(), "Lab 1", map[string]string{"jroe": "Well done"})
	require.NoError(t, err)
	ready := next[events.SubmissionsReady](t, h)
	require.Equal(t, "Lab 1", ready.Assignment)
	require.Len(t, ready.Records, 2)
	require.Equal(t, "Well done", ready.Records[1].TutorComment)

	var posted url.Values
	for _, req := range h.source.Requests() {
		if req.URL == base+"/tool/grade/save?s=2" {
			posted = req.Form
		}
	}
	require.Equal(t, "Well done", posted.Get("feedback"))
}

func TestReadSubmissionsOfOneStudent(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)
	_, err := h.engine.ParseAssignmentItems(context.Background())
	require.NoError(t, err)
	next[events.AssignmentItemsReady](t, h)

	_, err = h.engine.ReadSubmissions(context.Background(), "Lab 1", "jdoe", false)
	require.NoError(t, err)
	ready := next[events.SubmissionsReady](t, h)
	expect := []model.SubmittedFile{{
		Name: "essay.pdf",
		Link: base + "/access/essay.pdf",
		Size: "1 MB",
		Date: time.Date(2021, time.January, 7, 0, 0, 0, 0, timezone.Location()),
	}}
	if diff := cmp.Diff(expect, ready.Records[0].Files); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	_, err = h.engine.ReadSubmissions(context.Background(), "Lab 1", "nobody", false)
	require.NoError(t, err)
	raised := next[events.ExceptionRaised](t, h)
	require.Equal(t, failure.StudentNotFound, raised.Kind)
}

func TestParticipants(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	_, err := h.engine.ParseUsersAtWorksite(context.Background())
	require.NoError(t, err)
	users := next[events.UsersInformationReady](t, h)
	require.Len(t, users.Participants, 3)
	h.session(func(s *session.State) {
		require.Equal(t, []string{"jdoe", "jroe"}, s.StudentIDs())
	})

	_, err = h.engine.RemoveParticipants(context.Background(), []string{"jroe", "ghost"})
	require.NoError(t, err)
	removed := next[events.ParticipantsRemoved](t, h)
	require.Equal(t, []string{"jroe"}, removed.IDs)
	require.True(t, h.removed["jroe"])
}

func TestGroups(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	_, err := h.engine.ParseGroupList(context.Background())
	require.NoError(t, err)
	list := next[events.GroupListReady](t, h)
	require.Equal(t, []string{"Group A", "Group B"}, list.Names)

	_, err = h.engine.DeleteGroup(context.Background(), "Group B")
	require.NoError(t, err)
	deleted := next[events.GroupDeleted](t, h)
	require.Equal(t, "Group B", deleted.Name)
	require.Equal(t, []model.Group{{Name: "Group A", ID: "ga"}}, h.groups)

	_, err = h.engine.DeleteGroup(context.Background(), "Group C")
	require.NoError(t, err)
	raised := next[events.ExceptionRaised](t, h)
	require.Equal(t, failure.GroupNotFound, raised.Kind)
}

func TestSetDelayOfTestDueDate(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	_, err := h.engine.ParseTestsAndQuizzesItems(context.Background())
	require.NoError(t, err)
	tests := next[events.TestsAndQuizzesReady](t, h)
	require.Equal(t, []string{"Quiz 1"}, tests.Names)

	_, err = h.engine.SetDelayOfTestDueDate(context.Background(), "Quiz 1", 30)
	require.NoError(t, err)
	assigned := next[events.DelayOfTestAssigned](t, h)
	require.Equal(t, "Quiz 1", assigned.Name)
	require.Equal(t, 30*time.Minute, assigned.Delay)
	require.True(t, assigned.Due.Equal(h.clock.Now().Add(30*time.Minute)))

	var posted url.Values
	for _, req := range h.source.Requests() {
		if req.URL == base+"/samigo/save" {
			posted = req.Form
		}
	}
	require.Equal(t, assigned.Due.Format(pages.TestDateLayout), posted.Get("endDate"))

	_, err = h.engine.SetDelayOfTestDueDate(context.Background(), "Quiz 9", 30)
	require.NoError(t, err)
	raised := next[events.ExceptionRaised](t, h)
	require.Equal(t, failure.TestNotFound, raised.Kind)
}

func TestSetDelayOfTestDueDateReadsTheListing(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	_, err := h.engine.SetDelayOfTestDueDate(context.Background(), "Quiz 1", 15)
	require.NoError(t, err)
	assigned := next[events.DelayOfTestAssigned](t, h)
	require.Equal(t, "Quiz 1", assigned.Name)
	require.Equal(t, 15*time.Minute, assigned.Delay)
	require.Equal(t, Idle, h.state())

	h.session(func(s *session.State) {
		require.Equal(t, []string{"Quiz 1"}, s.TestNames())
	})
}

func TestCreateUser(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	_, err := h.engine.CreateUser(context.Background(), model.UserInfo{ID: "new1", FirstName: "New", LastName: "User"})
	require.NoError(t, err)
	created := next[events.UserCreated](t, h)
	require.Equal(t, "new1", created.ID)
	require.Len(t, created.Password, generatedPasswordLength)

	_, err = h.engine.CreateUser(context.Background(), model.UserInfo{ID: "new2"})
	require.NoError(t, err)
	raised := next[events.ExceptionRaised](t, h)
	require.Equal(t, failure.UserNotSaved, raised.Kind)
}

func TestRenameUser(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	_, err := h.engine.RenameUser(context.Background(), "jdoe", "Johnny", "Doe")
	require.NoError(t, err)
	renamed := next[events.UserRenamed](t, h)
	require.Equal(t, "jdoe", renamed.ID)

	_, err = h.engine.RenameUser(context.Background(), "nobody", "A", "B")
	require.NoError(t, err)
	raised := next[events.ExceptionRaised](t, h)
	require.Equal(t, failure.StudentNotFound, raised.Kind)
}

func TestAddAssignmentItem(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	_, err := h.engine.AddAssignmentItem(context.Background(), model.NewAssignmentItem{
		Title:       "Essay",
		Description: "<p>Write it</p>",
		Open:        model.DateParts{Year: 2021, Month: 3, Day: 1, Hour: 8},
		Due:         model.DateParts{Year: 2021, Month: 3, Day: 8, Hour: 8},
		Close:       model.DateParts{Year: 2021, Month: 3, Day: 9, Hour: 8},
	})
	require.NoError(t, err)
	result := next[events.AddNewAssignmentItem](t, h)
	require.True(t, result.Success)
	require.Equal(t, "Assignment posted", result.Message)

	var editor []render.Action
	for _, performed := range h.source.Actions() {
		if len(performed.Frame) == 1 {
			editor = append(editor, performed.Action)
		}
	}
	require.Equal(t, []render.Action{render.SetHTML{Selector: "body.cke_editable", HTML: "<p>Write it</p>"}}, editor)
}

func TestLogOut(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	_, err := h.engine.LogOut(context.Background())
	require.NoError(t, err)
	next[events.LoggedOut](t, h)
	h.session(func(s *session.State) {
		require.Empty(t, s.WorksiteNames())
		_, selected := s.Selected()
		require.False(t, selected)
	})
}

func TestCommandRejectedWhileBusy(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.source.Hold()

	_, err := h.engine.Initialize(context.Background(), "")
	require.NoError(t, err)
	idle, err := h.engine.IsIdle(context.Background())
	require.NoError(t, err)
	require.False(t, idle)

	_, err = h.engine.ReadWorksites(context.Background())
	require.ErrorIs(t, err, ErrNotIdle)
	require.Equal(t, failure.OperationRejected, failure.KindOf(err))
}

func TestSpuriousCompletionsAreIgnored(t *testing.T) {
	h := newHarness(t, testDelays, true)

	// nothing in flight
	h.source.Emit(render.Completion{URL: base + "/portal", Title: "Portal"})
	require.Equal(t, Idle, h.state())

	h.source.Hold()
	_, err := h.engine.Initialize(context.Background(), "")
	require.NoError(t, err)

	h.source.Emit(render.Completion{URL: base + "/elsewhere", Title: "Elsewhere"})
	// a document that has not rendered its title yet
	h.source.Emit(render.Completion{URL: base + "/portal", Title: ""})
	require.Equal(t, LogIn, h.state())
	require.Len(t, h.tel.Find("debug", "engine: "+report_engine_ignored), 3)
}

func TestAdmissionAdvancesOnce(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.source.Hold()

	_, err := h.engine.Initialize(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, LogIn, h.state())

	h.source.Release()
	h.source.Emit(render.Completion{URL: base + "/portal", Title: "Portal"})
	next[events.WorksitesReady](t, h)

	// a late duplicate of the same signal finds nothing in flight
	h.source.Emit(render.Completion{URL: base + "/portal", Title: "Portal"})
	require.Equal(t, Idle, h.state())
}

func TestStopSwallowsOutstandingNavigation(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.source.Hold()

	id, err := h.engine.Initialize(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, h.engine.Stop(context.Background()))
	stopped := next[events.Stopped](t, h)
	require.Equal(t, id, stopped.Operation())
	require.Equal(t, Busy, h.state())

	idle, err := h.engine.IsIdle(context.Background())
	require.NoError(t, err)
	require.True(t, idle)

	h.source.Emit(render.Completion{URL: base + "/elsewhere", Title: "Elsewhere"})
	require.Equal(t, Busy, h.state())
	h.source.Emit(render.Completion{URL: base + "/portal", Title: "Portal"})
	require.Equal(t, Stop, h.state())
	h.session(func(s *session.State) {
		require.Empty(t, s.WorksiteNames())
	})
}

func TestStopInvalidatesContinuation(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	_, err := h.engine.SelectWorksite(context.Background(), "Empty Site")
	require.NoError(t, err)
	require.Equal(t, Waiting, h.state())
	require.Equal(t, 1, h.clock.Pending())

	var tools model.SiteTools
	var selected model.Worksite
	h.session(func(s *session.State) {
		tools = s.Tools()
		selected, _ = s.Selected()
	})
	requests := len(h.source.Requests())

	require.NoError(t, h.engine.Stop(context.Background()))
	next[events.Stopped](t, h)
	h.clock.FireAll()
	require.Equal(t, Stop, h.state())

	// the cancelled poll neither reloads the page nor touches the session
	require.Len(t, h.source.Requests(), requests)
	h.session(func(s *session.State) {
		require.Equal(t, tools, s.Tools())
		got, _ := s.Selected()
		require.Equal(t, selected, got)
	})

	// the stopped engine takes new commands
	_, err = h.engine.SelectWorksite(context.Background(), "Physics 101")
	require.NoError(t, err)
	next[events.WorksiteSelected](t, h)
}

func TestPollingGivesUp(t *testing.T) {
	h := newHarness(t, testDelays, true)
	h.login(t)

	_, err := h.engine.SelectWorksite(context.Background(), "Empty Site")
	require.NoError(t, err)
	for i := 0; i < testDelays.MaxPolls; i++ {
		require.Equal(t, Waiting, h.state())
		h.clock.Advance(testDelays.Poll)
	}
	raised := next[events.ExceptionRaised](t, h)
	require.Equal(t, failure.UnableToFindToolLink, raised.Kind)
	require.Len(t, h.tel.Find("debug", "engine: "+report_engine_poll), testDelays.MaxPolls)
}

func TestNavigationTimeout(t *testing.T) {
	delays := testDelays
	delays.Navigation = time.Minute
	h := newHarness(t, delays, true)
	h.source.Hold()

	_, err := h.engine.Initialize(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, LogIn, h.state())
	h.clock.Advance(time.Minute)

	raised := next[events.ExceptionRaised](t, h)
	require.Equal(t, failure.IncorrectSakaiURL, raised.Kind)
	require.Equal(t, Idle, h.state())
}
