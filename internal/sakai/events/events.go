// Package events carries the engine's results to whoever subscribed.
package events

import (
	"time"

	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/model"

	"github.com/google/uuid"
)

// Event is published once per finished operation, plus progress and
// exception events while it runs. Op identifies the operation.
type Event interface {
	Operation() uuid.UUID
	event()
}

// Op is embedded by every event.
type Op struct {
	ID uuid.UUID
}

func (o Op) Operation() uuid.UUID { return o.ID }
func (Op) event()                 {}

type WorksitesReady struct {
	Op
	Names []string
}

type WorksiteSelected struct {
	Op
	Name string
}

// AssignmentItemsReady lists assignments in listing order, Drafts is
// parallel to Names.
type AssignmentItemsReady struct {
	Op
	Names  []string
	Drafts []bool
}

type StudentsInformationReady struct {
	Op
	IDs []string
}

type UsersInformationReady struct {
	Op
	Participants []model.UserInfo
}

type TestsAndQuizzesReady struct {
	Op
	Names []string
}

// StudentGraded is published once per student of a grading operation.
type StudentGraded struct {
	Op
	StudentID string
	Success   bool
	Message   string
}

type SubmissionsReady struct {
	Op
	Assignment string
	Records    []model.StudentInfo
}

type NewGroupCreated struct {
	Op
	Name string
}

type GroupDeleted struct {
	Op
	Name string
}

type GroupListReady struct {
	Op
	Names []string
}

type ParticipantsRemoved struct {
	Op
	IDs []string
}

type AddNewAssignmentItem struct {
	Op
	Success bool
	Message string
}

type DelayOfTestAssigned struct {
	Op
	Name  string
	Delay time.Duration
	Due   time.Time
}

type UserRenamed struct {
	Op
	ID string
}

// UserCreated carries the password the account was created with, which is
// generated when none was given.
type UserCreated struct {
	Op
	ID       string
	Password string
}

type LoggedOut struct {
	Op
}

// Stopped is published when Stop cancels an operation in flight.
type Stopped struct {
	Op
}

type ProgressReport struct {
	Op
	Value   int
	Max     int
	Message string
}

type ExceptionRaised struct {
	Op
	Kind    failure.Kind
	Message string
	Err     error
}
