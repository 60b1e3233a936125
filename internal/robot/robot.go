// Package robot drives the engine one command at a time: every method
// issues a command and blocks until the operation's terminal event.
package robot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"sakaibot/internal/assert"
	"sakaibot/internal/sakai/engine"
	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/session"
	"sakaibot/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("sakaibot/internal/robot")

const report_robot_command = "command"

// ErrStopped is returned by a command that was cancelled with Stop.
var ErrStopped = errors.New("operation stopped")

// ErrEngineStopped is returned when the engine loop exits while a command
// waits for its outcome.
var ErrEngineStopped = errors.New("engine loop exited")

type Robot struct {
	engine   *engine.Engine
	notifier *events.Notifier
	tel      telemetry.API

	// serializes commands, the engine takes one operation at a time
	mutex    sync.Mutex
	progress func(events.ProgressReport)
}

type Option func(r *Robot)

// WithProgress registers a callback for the progress reports of every
// command. It runs on the goroutine of the waiting command, after the
// report left the engine loop, so a slow callback only delays that command.
func WithProgress(fn func(events.ProgressReport)) Option {
	return func(r *Robot) {
		r.progress = fn
	}
}

func New(e *engine.Engine, notifier *events.Notifier, tel telemetry.API, options ...Option) *Robot {
	assert.NotNil(e, "engine")
	assert.NotNil(notifier, "notifier")
	assert.NotNil(tel, "telemetry")

	r := &Robot{
		engine:   e,
		notifier: notifier,
		tel:      telemetry.NewScopedAPI("robot", tel),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// inbox buffers the events published while a command runs. The notifier
// delivers on the engine loop, so the handler only appends.
type inbox struct {
	mutex  sync.Mutex
	queue  []events.Event
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

func (b *inbox) push(e events.Event) {
	b.mutex.Lock()
	b.queue = append(b.queue, e)
	b.mutex.Unlock()
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *inbox) pending() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.queue) > 0
}

func (b *inbox) drain() []events.Event {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	out := b.queue
	b.queue = nil
	return out
}

// terminal inspects an event of the operation and reports whether the
// operation is over.
type terminal func(e events.Event) (done bool, err error)

// run issues a command and feeds the events of its operation to until.
// Events published before start returns are kept, the first step of a
// command may already finish it.
func (r *Robot) run(ctx context.Context, name string, start func(ctx context.Context) (uuid.UUID, error), until terminal) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ctx, span := tracer.Start(ctx, "robot:"+name)
	defer span.End()

	box := newInbox()
	unsubscribe := r.notifier.Subscribe(box.push)
	defer unsubscribe()

	id, err := start(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.tel.ReportWarning(report_robot_command, name, err)
		return err
	}
	span.SetAttributes(attribute.String("operation", id.String()))

	for {
		for _, e := range box.drain() {
			if e.Operation() != id {
				continue
			}
			done, err := r.dispatch(e, until)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				r.tel.ReportWarning(report_robot_command, name, err)
				return err
			}
			if done {
				return nil
			}
		}

		select {
		case <-box.signal:
		case <-r.engine.Stopped():
			// the loop may have delivered the outcome right before exiting
			if box.pending() {
				continue
			}
			return ErrEngineStopped
		case <-ctx.Done():
			if err := r.engine.Stop(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, engine.ErrLoopStopped) {
				r.tel.ReportWarning(report_robot_command, name, fmt.Errorf("stop: %w", err))
			}
			return ctx.Err()
		}
	}
}

func (r *Robot) dispatch(e events.Event, until terminal) (bool, error) {
	switch e := e.(type) {
	case events.ExceptionRaised:
		if e.Err != nil {
			return true, e.Err
		}
		return true, errors.New(e.Message)
	case events.Stopped:
		return true, ErrStopped
	case events.ProgressReport:
		r.tel.ReportDebug("progress", e.Value, e.Max, e.Message)
		if r.progress != nil {
			r.progress(e)
		}
		return false, nil
	}
	return until(e)
}

// expect finishes the operation on the first event of type T.
func expect[T events.Event](out *T) terminal {
	return func(e events.Event) (bool, error) {
		v, ok := e.(T)
		if !ok {
			return false, nil
		}
		*out = v
		return true, nil
	}
}

// Initialize logs in. With a worksite it is selected too, otherwise the
// listed worksite names are returned.
func (r *Robot) Initialize(ctx context.Context, worksite string) ([]string, error) {
	var names []string
	err := r.run(ctx, "Initialize", func(ctx context.Context) (uuid.UUID, error) {
		return r.engine.Initialize(ctx, worksite)
	}, func(e events.Event) (bool, error) {
		switch e := e.(type) {
		case events.WorksitesReady:
			names = e.Names
			return true, nil
		case events.WorksiteSelected:
			names = []string{e.Name}
			return true, nil
		}
		return false, nil
	})
	return names, err
}

func (r *Robot) Worksites(ctx context.Context) ([]string, error) {
	var out events.WorksitesReady
	err := r.run(ctx, "ReadWorksites", r.engine.ReadWorksites, expect(&out))
	return out.Names, err
}

func (r *Robot) SelectWorksite(ctx context.Context, name string) error {
	var out events.WorksiteSelected
	return r.run(ctx, "SelectWorksite", func(ctx context.Context) (uuid.UUID, error) {
		return r.engine.SelectWorksite(ctx, name)
	}, expect(&out))
}

func (r *Robot) Assignments(ctx context.Context) (events.AssignmentItemsReady, error) {
	var out events.AssignmentItemsReady
	err := r.run(ctx, "ParseAssignmentItems", r.engine.ParseAssignmentItems, expect(&out))
	return out, err
}

// Roster is a copy of an assignment with its student records.
type Roster struct {
	Title    string
	Status   string
	Open     string
	Due      string
	InNew    string
	Scale    string
	Students []model.StudentInfo
}

func rosterOf(a *model.Assignment) Roster {
	records := a.Records()
	for i := range records {
		records[i].Files = slices.Clone(records[i].Files)
	}
	return Roster{
		Title:    a.Title,
		Status:   a.Status,
		Open:     a.Open,
		Due:      a.Due,
		InNew:    a.InNew,
		Scale:    a.Scale,
		Students: records,
	}
}

// Students loads the students of title, or of every assignment when title is
// empty, and returns copies of the loaded rosters.
func (r *Robot) Students(ctx context.Context, title string) ([]Roster, error) {
	var out events.StudentsInformationReady
	err := r.run(ctx, "ParseStudentsAtAssignment", func(ctx context.Context) (uuid.UUID, error) {
		return r.engine.ParseStudentsAtAssignment(ctx, title)
	}, expect(&out))
	if err != nil {
		return nil, err
	}
	return r.Rosters(ctx, title)
}

// Rosters copies what the session knows of title, or of every assignment.
func (r *Robot) Rosters(ctx context.Context, title string) ([]Roster, error) {
	var rosters []Roster
	err := r.engine.Inspect(ctx, func(_ engine.State, s *session.State) {
		for _, a := range s.Assignments() {
			if title != "" && a.Title != title {
				continue
			}
			rosters = append(rosters, rosterOf(a))
		}
	})
	return rosters, err
}

func (r *Robot) Submissions(ctx context.Context, assignment, filter string, isGroup bool) (events.SubmissionsReady, error) {
	var out events.SubmissionsReady
	err := r.run(ctx, "ReadSubmissions", func(ctx context.Context) (uuid.UUID, error) {
		return r.engine.ReadSubmissions(ctx, assignment, filter, isGroup)
	}, expect(&out))
	return out, err
}

func (r *Robot) WriteSubmissions(ctx context.Context, assignment string, comments map[string]string) (events.SubmissionsReady, error) {
	var out events.SubmissionsReady
	err := r.run(ctx, "WriteSubmissions", func(ctx context.Context) (uuid.UUID, error) {
		return r.engine.WriteSubmissions(ctx, assignment, comments)
	}, expect(&out))
	return out, err
}

// Grade grades every student of marks and returns one outcome per student.
// A student that could not be graded is not an error of the command.
func (r *Robot) Grade(ctx context.Context, assignment string, marks map[string]string) ([]events.StudentGraded, error) {
	var graded []events.StudentGraded
	err := r.run(ctx, "GradeStudents", func(ctx context.Context) (uuid.UUID, error) {
		if len(marks) == 1 {
			for id, mark := range marks {
				return r.engine.GradeStudent(ctx, assignment, id, mark)
			}
		}
		return r.engine.GradeStudents(ctx, assignment, marks)
	}, func(e events.Event) (bool, error) {
		g, ok := e.(events.StudentGraded)
		if !ok {
			return false, nil
		}
		graded = append(graded, g)
		return len(graded) >= len(marks), nil
	})
	return graded, err
}

func (r *Robot) CreateGroup(ctx context.Context, name string, studentIDs []string) error {
	var out events.NewGroupCreated
	return r.run(ctx, "CreateNewGroup", func(ctx context.Context) (uuid.UUID, error) {
		return r.engine.CreateNewGroup(ctx, name, studentIDs)
	}, expect(&out))
}

func (r *Robot) DeleteGroup(ctx context.Context, name string) error {
	var out events.GroupDeleted
	return r.run(ctx, "DeleteGroup", func(ctx context.Context) (uuid.UUID, error) {
		return r.engine.DeleteGroup(ctx, name)
	}, expect(&out))
}

func (r *Robot) Groups(ctx context.Context) ([]string, error) {
	var out events.GroupListReady
	err := r.run(ctx, "ParseGroupList", r.engine.ParseGroupList, expect(&out))
	return out.Names, err
}

func (r *Robot) Participants(ctx context.Context) ([]model.UserInfo, error) {
	var out events.UsersInformationReady
	err := r.run(ctx, "ParseUsersAtWorksite", r.engine.ParseUsersAtWorksite, expect(&out))
	return out.Participants, err
}

// RemoveParticipants returns the ids that were actually removed.
func (r *Robot) RemoveParticipants(ctx context.Context, ids []string) ([]string, error) {
	var out events.ParticipantsRemoved
	err := r.run(ctx, "RemoveParticipants", func(ctx context.Context) (uuid.UUID, error) {
		return r.engine.RemoveParticipants(ctx, ids)
	}, expect(&out))
	return out.IDs, err
}

func (r *Robot) RenameUser(ctx context.Context, id, first, last string) error {
	var out events.UserRenamed
	return r.run(ctx, "RenameUser", func(ctx context.Context) (uuid.UUID, error) {
		return r.engine.RenameUser(ctx, id, first, last)
	}, expect(&out))
}

// CreateUser returns the password the account was created with.
func (r *Robot) CreateUser(ctx context.Context, info model.UserInfo) (string, error) {
	var out events.UserCreated
	err := r.run(ctx, "CreateUser", func(ctx context.Context) (uuid.UUID, error) {
		return r.engine.CreateUser(ctx, info)
	}, expect(&out))
	return out.Password, err
}

func (r *Robot) Tests(ctx context.Context) ([]string, error) {
	var out events.TestsAndQuizzesReady
	err := r.run(ctx, "ParseTestsAndQuizzesItems", r.engine.ParseTestsAndQuizzesItems, expect(&out))
	return out.Names, err
}

func (r *Robot) SetTestDelay(ctx context.Context, name string, minutes int) (events.DelayOfTestAssigned, error) {
	var out events.DelayOfTestAssigned
	err := r.run(ctx, "SetDelayOfTestDueDate", func(ctx context.Context) (uuid.UUID, error) {
		return r.engine.SetDelayOfTestDueDate(ctx, name, minutes)
	}, expect(&out))
	return out, err
}

// AddAssignment posts a new assignment. A post the portal refused is
// returned as an unsuccessful result, not as an error.
func (r *Robot) AddAssignment(ctx context.Context, item model.NewAssignmentItem) (events.AddNewAssignmentItem, error) {
	var out events.AddNewAssignmentItem
	err := r.run(ctx, "AddAssignmentItem", func(ctx context.Context) (uuid.UUID, error) {
		return r.engine.AddAssignmentItem(ctx, item)
	}, expect(&out))
	return out, err
}

func (r *Robot) LogOut(ctx context.Context) error {
	var out events.LoggedOut
	return r.run(ctx, "LogOut", r.engine.LogOut, expect(&out))
}

// Stop cancels the command in flight, its caller gets ErrStopped.
func (r *Robot) Stop(ctx context.Context) error {
	return r.engine.Stop(ctx)
}
