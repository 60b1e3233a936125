package engine

import (
	"context"
	"strings"

	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/pages"
	"sakaibot/internal/sakai/render"
	"sakaibot/lib/textutil"
)

func (e *Engine) openSubmissions(ctx context.Context, assignment string) error {
	a, err := e.assignment(assignment)
	if err != nil {
		return err
	}
	e.op.assignment = a.Title
	e.session.ResetStudents(a.Title)
	return e.navigate(ctx, ChoiceGroupAtAssignment, render.Top, a.Link)
}

// handleChoiceGroup narrows the submissions listing to the requested group
// or section before it is read.
func (e *Engine) handleChoiceGroup(ctx context.Context) error {
	op := e.op
	if !op.isGroup || op.filter == "" {
		return e.enter(ctx, ReadStudentSubmissions)
	}

	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	filter, ok := pages.FindGroupFilter(page)
	if !ok {
		return e.retry(
			ChoiceGroupAtAssignment,
			e.delays.Poll,
			failure.New(failure.GroupNotFound, "assignment %q has no group filter", op.assignment),
			"",
		)
	}

	value, found := "", false
	for label, v := range filter.Options {
		if strings.TrimSpace(label) == op.filter || textutil.SameName(label, op.filter) {
			value, found = v, true
			break
		}
	}
	if !found {
		return failure.New(failure.GroupNotFound, "group %q is not offered at %q", op.filter, op.assignment)
	}
	if value == filter.Selected {
		return e.enter(ctx, ReadStudentSubmissions)
	}
	return e.perform(ctx, ReadStudentSubmissions, filter.Frame,
		render.Select{Selector: filter.Selector, Values: []string{value}},
		render.Submit{Selector: filter.Form},
	)
}

// handleStudentSubmissions reads the listing and queues the students whose
// grading page is visited.
func (e *Engine) handleStudentSubmissions(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	list, err := pages.ParseSubmissions(page)
	if err != nil {
		return e.retry(ReadStudentSubmissions, e.delays.Poll, err, failure.UnableToFindToolLink)
	}

	op := e.op
	e.session.ResetStudents(op.assignment)
	for _, info := range list.Students {
		e.session.PutStudent(op.assignment, info)
	}

	op.queue = nil
	switch {
	case op.comments != nil:
		for _, id := range sortedKeys(op.comments) {
			info, ok := e.session.Student(op.assignment, id)
			if !ok || info.GradeLink == "" {
				e.tel.ReportWarning(report_engine_missing, op.assignment, id)
				continue
			}
			op.queue = append(op.queue, id)
		}
	case !op.isGroup && op.filter != "":
		info, ok := e.session.Student(op.assignment, op.filter)
		if !ok || info.GradeLink == "" {
			return failure.New(failure.StudentNotFound, "student %q has no submission at %q", op.filter, op.assignment)
		}
		op.queue = []string{op.filter}
	default:
		for _, record := range e.session.Submissions(op.assignment) {
			if record.GradeLink != "" {
				op.queue = append(op.queue, record.ID)
			}
		}
	}
	op.total = len(op.queue)
	op.done = 0
	return e.enter(ctx, ReadIndividualSubmission)
}

// handleIndividualSubmission moves on to the next queued student. When the
// previous student's comment was saved, the outcome is checked first.
func (e *Engine) handleIndividualSubmission(ctx context.Context) error {
	op := e.op
	if op.submitted {
		op.submitted = false
		page, err := e.snapshot(ctx)
		if err != nil {
			return err
		}
		if banner, ok := pages.ResultBanner(page); ok && !banner.Success {
			e.tel.ReportWarning(report_engine_grade, op.assignment, op.current, banner.Text)
		}
	}

	if !op.next() {
		return e.finish(events.SubmissionsReady{
			Op:         e.opRef(),
			Assignment: op.assignment,
			Records:    e.session.Submissions(op.assignment),
		})
	}
	info, _ := e.session.Student(op.assignment, op.current)
	e.progress(op.done, op.total, "reading %s", info.Label())
	return e.navigate(ctx, WaitIndividualSubmission, render.Top, info.GradeLink)
}

func (e *Engine) handleWaitSubmission(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	if _, err := pages.ParseGradePage(page); err != nil {
		return e.retry(WaitIndividualSubmission, e.delays.Poll, err, failure.GradeFrameWasntFound)
	}
	return e.enter(ctx, ReadSubmission)
}

// handleSubmission records the files and comment of the current student and
// replaces the comment when one was given for them.
func (e *Engine) handleSubmission(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	grade, err := pages.ParseGradePage(page)
	if err != nil {
		return failure.Wrap(failure.GradeFrameWasntFound, err, "%s", e.op.current)
	}

	op := e.op
	info, ok := e.session.Student(op.assignment, op.current)
	if ok {
		info.Files = grade.Files
		info.TutorComment = grade.Comment
	}

	comment, write := op.comments[op.current]
	if !write {
		return e.enter(ctx, ReadIndividualSubmission)
	}
	if grade.CommentField == "" || grade.Save == "" {
		return failure.New(failure.GradeFrameWasntFound, "no feedback form for %q", op.current)
	}
	if ok {
		info.TutorComment = comment
	}
	op.submitted = true
	return e.perform(ctx, ReadIndividualSubmission, grade.Frame,
		render.SetValue{Selector: grade.CommentField, Value: comment},
		render.Click{Selector: grade.Save},
	)
}
