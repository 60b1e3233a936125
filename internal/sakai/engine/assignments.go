package engine

import (
	"context"
	"errors"

	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/pages"
	"sakaibot/internal/sakai/render"
)

func (e *Engine) openAssignments(ctx context.Context, state State) error {
	link, err := e.tool(e.session.Tools().Assignments, "assignments")
	if err != nil {
		return err
	}
	return e.navigate(ctx, state, render.Top, link)
}

// handleAssignments reads the assignment listing. A filtered listing is
// reset first so that every assignment shows up.
func (e *Engine) handleAssignments(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	list, err := pages.ParseAssignments(page)
	if err != nil {
		return e.retry(ParseAssignments, e.delays.Poll, err, failure.UnableToFindToolLink)
	}
	if list.ResetFilter != "" && !e.op.filtered {
		e.op.filtered = true
		return e.perform(ctx, ParseAssignments, list.Frame, render.Click{Selector: list.ResetFilter})
	}

	e.session.ClearAssignments()
	var duplicate error
	for _, a := range list.Items {
		if err := e.session.AddAssignment(a); err != nil {
			duplicate = errors.Join(duplicate, err)
		}
	}
	if duplicate != nil {
		return duplicate
	}

	if e.op.command == "ParseStudentsAtAssignment" {
		return e.startRosters(ctx, LoadStudents, list.Frame)
	}
	return e.finish(events.AssignmentItemsReady{
		Op:     e.opRef(),
		Names:  e.session.AssignmentNames(),
		Drafts: e.session.AssignmentDrafts(),
	})
}

// startRosters queues the assignments whose submissions listing is read in
// state, one after the other.
func (e *Engine) startRosters(ctx context.Context, state State, frame render.FramePath) error {
	op := e.op
	if op.assignment != "" {
		a, err := e.assignment(op.assignment)
		if err != nil {
			return err
		}
		op.titles = []string{a.Title}
	} else {
		op.titles = e.session.AssignmentNames()
	}
	op.frame = frame
	op.total = len(op.titles)
	op.done = 0
	op.attachments = nil
	return e.nextRoster(ctx, state)
}

func (e *Engine) nextRoster(ctx context.Context, state State) error {
	op := e.op
	if len(op.titles) == 0 {
		return e.nextAttachments(ctx)
	}
	op.assignment = op.titles[0]
	op.titles = op.titles[1:]
	op.done++

	a, err := e.assignment(op.assignment)
	if err != nil {
		return err
	}
	e.session.ResetStudents(a.Title)
	return e.navigate(ctx, state, op.frame, a.Link)
}

// handleRoster stores the students of one submissions listing and remembers
// those that handed in files.
func (e *Engine) handleRoster(ctx context.Context) error {
	state := e.state
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	list, err := pages.ParseSubmissions(page)
	if err != nil {
		return e.retry(state, e.delays.Poll, err, failure.UnableToFindToolLink)
	}

	op := e.op
	for _, info := range list.Students {
		if !e.session.PutStudent(op.assignment, info) {
			continue
		}
		if info.FilesAttached && info.GradeLink != "" {
			op.attachments = append(op.attachments, attachmentTarget{
				assignment: op.assignment,
				student:    info.ID,
			})
		}
	}
	e.progress(op.done, op.total, "read %d students of %q", len(list.Students), op.assignment)
	return e.nextRoster(ctx, state)
}

// nextAttachments visits the grading page of the next student that handed
// in files, the operation finishes once every one of them was read.
func (e *Engine) nextAttachments(ctx context.Context) error {
	op := e.op
	for len(op.attachments) > 0 {
		op.target = op.attachments[0]
		op.attachments = op.attachments[1:]
		info, ok := e.session.Student(op.target.assignment, op.target.student)
		if !ok || info.GradeLink == "" {
			continue
		}
		return e.navigate(ctx, LoadStudentAttachments, op.frame, info.GradeLink)
	}
	return e.finish(events.StudentsInformationReady{
		Op:  e.opRef(),
		IDs: e.session.StudentIDs(),
	})
}

func (e *Engine) handleAttachments(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	grade, err := pages.ParseGradePage(page)
	if err != nil {
		return e.retry(LoadStudentAttachments, e.delays.Poll, err, failure.GradeFrameWasntFound)
	}
	if info, ok := e.session.Student(e.op.target.assignment, e.op.target.student); ok {
		info.Files = grade.Files
		info.TutorComment = grade.Comment
	}
	return e.nextAttachments(ctx)
}
