package engine

import (
	"context"
	"strings"

	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/pages"
	"sakaibot/internal/sakai/render"
)

// handleSelectStudent reads the submissions listing of the graded
// assignment and opens the grading page of the next queued student.
func (e *Engine) handleSelectStudent(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	list, err := pages.ParseSubmissions(page)
	if err != nil {
		return e.retry(SelectStudentToGrade, e.delays.Poll, err, failure.UnableToFindToolLink)
	}
	op := e.op
	e.session.ResetStudents(op.assignment)
	for _, info := range list.Students {
		e.session.PutStudent(op.assignment, info)
	}
	return e.gradeNext(ctx)
}

func (e *Engine) gradeNext(ctx context.Context) error {
	op := e.op
	for op.next() {
		if strings.TrimSpace(op.marks[op.current]) == "" {
			e.graded(false, "empty grade")
			continue
		}
		info, ok := e.session.Student(op.assignment, op.current)
		if !ok || info.GradeLink == "" {
			e.tel.ReportWarning(report_engine_missing, op.assignment, op.current)
			e.graded(false, failure.New(failure.StudentNotFound, "student %q is not listed at %q", op.current, op.assignment).Error())
			continue
		}
		e.progress(op.done, op.total, "grading %s", info.Label())
		return e.navigate(ctx, GradeStudent, render.Top, info.GradeLink)
	}
	e.reset(Idle)
	return nil
}

// graded publishes the outcome of the current student. The operation ends
// with the outcome of the last one.
func (e *Engine) graded(success bool, message string) {
	op := e.op
	event := events.StudentGraded{
		Op:        e.opRef(),
		StudentID: op.current,
		Success:   success,
		Message:   message,
	}
	if len(op.queue) == 0 {
		e.reset(Idle)
	}
	e.notifier.Publish(event)
}

func (e *Engine) handleGradeStudent(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	grade, err := pages.ParseGradePage(page)
	if err != nil {
		return e.retry(GradeStudent, e.delays.Poll, err, failure.GradeFrameWasntFound)
	}
	if grade.GradeField == "" || grade.Save == "" {
		return failure.New(failure.GradeFrameWasntFound, "no grade form for %q", e.op.current)
	}

	mark := strings.TrimSpace(e.op.marks[e.op.current])
	var set render.Action = render.SetValue{Selector: grade.GradeField, Value: mark}
	if grade.IsSelect(page) {
		set = render.Select{Selector: grade.GradeField, Values: []string{mark}}
	}
	return e.perform(ctx, GradeResultMessage, grade.Frame, set, render.Click{Selector: grade.Save})
}

// handleGradeResult reads the banner the grade submission produced. An
// alert is reported for the student and grading goes on with the next one.
func (e *Engine) handleGradeResult(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	banner, ok := pages.ResultBanner(page)
	if !ok {
		return e.retry(
			GradeResultMessage,
			e.delays.Submit,
			failure.New(failure.GradeMessageWasntFound, "no outcome for %q", e.op.current),
			"",
		)
	}

	op := e.op
	if banner.Success {
		if info, ok := e.session.Student(op.assignment, op.current); ok {
			info.Grade = strings.TrimSpace(op.marks[op.current])
		}
	} else {
		e.tel.ReportWarning(report_engine_grade, failure.GradeUnsuccessful, op.assignment, op.current, banner.Text)
	}
	last := len(op.queue) == 0
	e.graded(banner.Success, banner.Text)
	if last {
		return nil
	}

	a, err := e.assignment(op.assignment)
	if err != nil {
		return err
	}
	return e.navigate(ctx, SelectStudentToGrade, render.Top, a.Link)
}
