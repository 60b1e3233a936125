package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/render"
	"sakaibot/internal/sakai/session"

	"github.com/google/uuid"
)

// ErrNotIdle rejects a command issued while another operation is in flight.
var ErrNotIdle = failure.New(failure.OperationRejected, "another operation is in flight")

// begin starts an operation on the loop. A failure of the first step is
// raised like any other, so the returned error is non-nil only when nobody
// subscribed to exceptions or when the command was rejected.
func (e *Engine) begin(ctx context.Context, command string, step func(ctx context.Context, op *operation) error) (uuid.UUID, error) {
	var id uuid.UUID
	err := e.mailbox.Call(ctx, func(ctx context.Context) error {
		if !e.idle() {
			return ErrNotIdle
		}
		e.reset(Idle)
		op := newOperation(command)
		e.op = op
		id = op.id
		if err := step(ctx, op); err != nil {
			return e.fail(ctx, err)
		}
		return nil
	})
	return id, err
}

// IsIdle reports whether a new command would be accepted.
func (e *Engine) IsIdle(ctx context.Context) (bool, error) {
	idle := false
	err := e.mailbox.Call(ctx, func(context.Context) error {
		idle = e.idle()
		return nil
	})
	return idle, err
}

// Inspect runs fn on the loop with the current state and session. fn must
// not keep the session.
func (e *Engine) Inspect(ctx context.Context, fn func(state State, s *session.State)) error {
	return e.mailbox.Call(ctx, func(context.Context) error {
		fn(e.state, e.session)
		return nil
	})
}

// Stop cancels the operation in flight. Its pending continuation is
// invalidated. When a navigation is still outstanding its completion is
// swallowed when it arrives.
func (e *Engine) Stop(ctx context.Context) error {
	return e.mailbox.Call(ctx, func(context.Context) error {
		if e.op == nil {
			return nil
		}
		id := e.op.id
		awaiting := e.state != Waiting && e.state != Busy && e.awaiting
		e.sched.Cancel()
		e.op = nil
		if awaiting {
			e.skipNext(Stop)
		} else {
			e.sync.Reset()
			e.state = Stop
		}
		e.notifier.Publish(events.Stopped{Op: events.Op{ID: id}})
		return nil
	})
}

// Initialize logs in and lists the worksites. When worksite is given it is
// selected afterwards.
func (e *Engine) Initialize(ctx context.Context, worksite string) (uuid.UUID, error) {
	return e.begin(ctx, "Initialize", func(ctx context.Context, op *operation) error {
		op.worksite = strings.TrimSpace(worksite)
		return e.navigate(ctx, LogIn, render.Top, e.portalURL())
	})
}

func (e *Engine) ReadWorksites(ctx context.Context) (uuid.UUID, error) {
	return e.begin(ctx, "ReadWorksites", func(ctx context.Context, op *operation) error {
		if e.membership == "" {
			return e.navigate(ctx, GetMembershipLink, render.Top, e.portalURL())
		}
		e.session.ClearWorksites()
		return e.navigate(ctx, ParseWorksites, render.Top, e.membership)
	})
}

func (e *Engine) SelectWorksite(ctx context.Context, name string) (uuid.UUID, error) {
	return e.begin(ctx, "SelectWorksite", func(ctx context.Context, op *operation) error {
		return e.selectWorksite(ctx, name)
	})
}

func (e *Engine) ParseAssignmentItems(ctx context.Context) (uuid.UUID, error) {
	return e.begin(ctx, "ParseAssignmentItems", func(ctx context.Context, op *operation) error {
		return e.openAssignments(ctx, ParseAssignments)
	})
}

// ParseStudentsAtAssignment loads the submissions listing of title, or of
// every assignment when title is empty, then the attachments of every
// student that has some.
func (e *Engine) ParseStudentsAtAssignment(ctx context.Context, title string) (uuid.UUID, error) {
	return e.begin(ctx, "ParseStudentsAtAssignment", func(ctx context.Context, op *operation) error {
		op.assignment = strings.TrimSpace(title)
		if len(e.session.Assignments()) == 0 {
			return e.openAssignments(ctx, ParseAssignments)
		}
		return e.startRosters(ctx, ReloadStudents, render.Top)
	})
}

// ReadSubmissions visits the grading page of every student of assignment
// and reads their attachments and tutor comment. filter is a group or
// section name when isGroup is set, a student id otherwise; empty reads
// everyone.
func (e *Engine) ReadSubmissions(ctx context.Context, assignment, filter string, isGroup bool) (uuid.UUID, error) {
	return e.begin(ctx, "ReadSubmissions", func(ctx context.Context, op *operation) error {
		op.filter = strings.TrimSpace(filter)
		op.isGroup = isGroup
		return e.openSubmissions(ctx, assignment)
	})
}

// WriteSubmissions replaces the tutor comment of each student in comments.
func (e *Engine) WriteSubmissions(ctx context.Context, assignment string, comments map[string]string) (uuid.UUID, error) {
	return e.begin(ctx, "WriteSubmissions", func(ctx context.Context, op *operation) error {
		op.comments = comments
		return e.openSubmissions(ctx, assignment)
	})
}

func (e *Engine) GradeStudent(ctx context.Context, assignment, studentID, mark string) (uuid.UUID, error) {
	return e.GradeStudents(ctx, assignment, map[string]string{studentID: mark})
}

// GradeStudents grades every student of marks in ascending id order. A
// student whose grade is rejected does not stop the others.
func (e *Engine) GradeStudents(ctx context.Context, assignment string, marks map[string]string) (uuid.UUID, error) {
	return e.begin(ctx, "GradeStudent", func(ctx context.Context, op *operation) error {
		if len(marks) == 0 {
			return failure.New(failure.OperationRejected, "no students to grade")
		}
		a, err := e.assignment(assignment)
		if err != nil {
			return err
		}
		op.assignment = a.Title
		op.marks = marks
		op.queue = sortedKeys(marks)
		op.total = len(op.queue)
		return e.navigate(ctx, SelectStudentToGrade, render.Top, a.Link)
	})
}

func (e *Engine) CreateNewGroup(ctx context.Context, name string, studentIDs []string) (uuid.UUID, error) {
	return e.begin(ctx, "CreateNewGroup", func(ctx context.Context, op *operation) error {
		op.group = strings.TrimSpace(name)
		op.ids = studentIDs
		op.mode = groupCreate
		return e.openSiteInfo(ctx, OpenManageGroupsSection)
	})
}

func (e *Engine) DeleteGroup(ctx context.Context, name string) (uuid.UUID, error) {
	return e.begin(ctx, "DeleteGroup", func(ctx context.Context, op *operation) error {
		op.group = strings.TrimSpace(name)
		op.mode = groupDelete
		return e.openSiteInfo(ctx, OpenManageGroupsSection)
	})
}

func (e *Engine) ParseGroupList(ctx context.Context) (uuid.UUID, error) {
	return e.begin(ctx, "ParseGroupList", func(ctx context.Context, op *operation) error {
		op.mode = groupList
		return e.openSiteInfo(ctx, OpenManageGroupsSection)
	})
}

func (e *Engine) RemoveParticipants(ctx context.Context, ids []string) (uuid.UUID, error) {
	return e.begin(ctx, "RemoveParticipants", func(ctx context.Context, op *operation) error {
		op.ids = ids
		return e.openSiteInfo(ctx, RemovingParticipants)
	})
}

func (e *Engine) ParseUsersAtWorksite(ctx context.Context) (uuid.UUID, error) {
	return e.begin(ctx, "ParseUsersAtWorksite", func(ctx context.Context, op *operation) error {
		return e.openSiteInfo(ctx, GetParticipants)
	})
}

// RenameUser changes the first and last name of an account through the
// administration workspace.
func (e *Engine) RenameUser(ctx context.Context, id, first, last string) (uuid.UUID, error) {
	return e.begin(ctx, "RenameUser", func(ctx context.Context, op *operation) error {
		op.user = model.UserInfo{ID: strings.TrimSpace(id)}
		op.first = first
		op.last = last
		return e.openAdministration(ctx)
	})
}

// CreateUser creates an account, a password is generated when info carries
// none.
func (e *Engine) CreateUser(ctx context.Context, info model.UserInfo) (uuid.UUID, error) {
	return e.begin(ctx, "CreateUser", func(ctx context.Context, op *operation) error {
		op.user = info
		return e.openAdministration(ctx)
	})
}

func (e *Engine) ParseTestsAndQuizzesItems(ctx context.Context) (uuid.UUID, error) {
	return e.begin(ctx, "ParseTestsAndQuizzesItems", func(ctx context.Context, op *operation) error {
		return e.openTests(ctx)
	})
}

// SetDelayOfTestDueDate moves the due date of a published test to now plus
// minutes. The tests listing is read first when the session has none.
func (e *Engine) SetDelayOfTestDueDate(ctx context.Context, testName string, minutes int) (uuid.UUID, error) {
	return e.begin(ctx, "SetDelayOfTestDueDate", func(ctx context.Context, op *operation) error {
		op.delay = time.Duration(minutes) * time.Minute
		if len(e.session.TestNames()) == 0 {
			op.testName = testName
			return e.openTests(ctx)
		}
		return e.openTestSettings(ctx, testName)
	})
}

func (e *Engine) AddAssignmentItem(ctx context.Context, item model.NewAssignmentItem) (uuid.UUID, error) {
	return e.begin(ctx, "AddAssignmentItem", func(ctx context.Context, op *operation) error {
		op.item = item
		return e.openAssignments(ctx, AddAssignmentItems)
	})
}

func (e *Engine) LogOut(ctx context.Context) (uuid.UUID, error) {
	return e.begin(ctx, "LogOut", func(ctx context.Context, op *operation) error {
		return e.logOut(ctx)
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
