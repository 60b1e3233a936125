package engine

import (
	"time"

	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/render"

	"github.com/google/uuid"
)

type groupMode int

const (
	groupCreate groupMode = iota
	groupDelete
	groupDeleted
	groupList
)

type attachmentTarget struct {
	assignment string
	student    string
}

// operation is the command in flight together with everything its states
// need to carry from one page to the next.
type operation struct {
	id      uuid.UUID
	command string

	// Initialize
	worksite string

	assignment string
	// ParseStudentsAtAssignment walks these assignments
	titles []string
	// remaining student ids of submission, grading and attachment loops
	queue   []string
	current string
	// attachments left to read after the rosters are loaded
	attachments []attachmentTarget
	target      attachmentTarget

	// ReadSubmissions
	filter  string
	isGroup bool
	// WriteSubmissions
	comments map[string]string
	// GradeStudent(s)
	marks map[string]string

	// groups and participants
	group string
	ids   []string
	mode  groupMode
	// ids the add participants helper is asked to enrol
	pending    []string
	wizardRan  bool
	wizardDone bool
	// screens of the helper seen so far
	steps int

	user  model.UserInfo
	first string
	last  string

	test  int
	delay time.Duration
	due   time.Time
	// SetDelayOfTestDueDate continues with this test once the listing is read
	testName string

	item model.NewAssignmentItem

	// frame of the listing the loop started from
	frame render.FramePath
	// re-entries of the current state
	polls int
	// pages of the worksite listing read so far
	pages int
	// the reset filter control was already used
	filtered bool
	// the form of the current state was already submitted
	submitted bool

	done  int
	total int
}

func newOperation(command string) *operation {
	return &operation{
		id:      uuid.New(),
		command: command,
	}
}

// next pops the head of the student queue into current.
func (o *operation) next() bool {
	if len(o.queue) == 0 {
		o.current = ""
		return false
	}
	o.current = o.queue[0]
	o.queue = o.queue[1:]
	o.done++
	return true
}
