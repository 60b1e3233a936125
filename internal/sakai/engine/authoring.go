package engine

import (
	"context"
	"strings"

	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/pages"
	"sakaibot/internal/sakai/render"
)

func (e *Engine) handleAddAssignment(ctx context.Context) error {
	if strings.TrimSpace(e.op.item.Title) == "" {
		return failure.New(failure.OperationRejected, "new assignment without a title")
	}
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	list, err := pages.ParseAssignments(page)
	if err != nil {
		return e.retry(AddAssignmentItems, e.delays.Poll, err, failure.UnableToFindToolLink)
	}
	if list.Add == "" {
		return failure.New(failure.UnableToFindToolLink, "assignments tool offers no add control")
	}
	return e.perform(ctx, ContinueAddAssignmentItems, list.Frame, render.Click{Selector: list.Add})
}

// handleAssignmentForm fills the new assignment form. The instructions
// editor renders in a nested frame some time after the form itself, it is
// polled for before the form is posted without it.
func (e *Engine) handleAssignmentForm(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	form, err := pages.ParseAssignmentForm(page)
	if err != nil {
		return e.retry(ContinueAddAssignmentItems, e.delays.Poll, err, failure.StructuralDrift)
	}
	if !form.EditorReady() && e.op.polls < e.delays.MaxPolls {
		return e.retry(ContinueAddAssignmentItems, e.delays.Poll, failure.New(failure.StructuralDrift, "editor not rendered"), "")
	}

	item := e.op.item
	if err := e.apply(ctx, form.Frame, form.FillAssignment(item)...); err != nil {
		return err
	}
	if form.EditorReady() {
		if err := e.apply(ctx, form.Editor, form.FillEditor(item)); err != nil {
			return err
		}
	}
	return e.perform(ctx, AddAssignmentItemsResultMessage, form.Frame, render.Click{Selector: form.Post})
}

// handleAssignmentPosted reports the outcome of the post. Without a banner
// the new title showing up in the listing counts as success.
func (e *Engine) handleAssignmentPosted(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	title := strings.TrimSpace(e.op.item.Title)
	if banner, ok := pages.ResultBanner(page); ok {
		return e.finish(events.AddNewAssignmentItem{
			Op:      e.opRef(),
			Success: banner.Success,
			Message: banner.Text,
		})
	}
	if list, err := pages.ParseAssignments(page); err == nil {
		for _, a := range list.Items {
			if strings.TrimSpace(a.Title) == title {
				return e.finish(events.AddNewAssignmentItem{
					Op:      e.opRef(),
					Success: true,
					Message: "assignment " + title + " posted",
				})
			}
		}
	}
	return e.retry(
		AddAssignmentItemsResultMessage,
		e.delays.Settle,
		failure.New(failure.SubmissionRejected, "no outcome for assignment %q", title),
		"",
	)
}
