package engine

import (
	"context"

	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/pages"
	"sakaibot/internal/sakai/render"
	"sakaibot/lib/textutil"
	"sakaibot/lib/timezone"
)

func (e *Engine) openTests(ctx context.Context) error {
	link, err := e.tool(e.session.Tools().Tests, "tests and quizzes")
	if err != nil {
		return err
	}
	return e.navigate(ctx, ParseTestsAndQuizzes, render.Top, link)
}

func (e *Engine) handleTests(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	list, err := pages.ParseTests(page)
	if err != nil {
		return e.retry(ParseTestsAndQuizzes, e.delays.Poll, err, failure.UnableToFindToolLink)
	}
	e.session.ClearTests()
	for _, item := range list.Items {
		e.session.AddTest(item)
	}
	if name := e.op.testName; name != "" {
		return e.openTestSettings(ctx, name)
	}
	return e.finish(events.TestsAndQuizzesReady{
		Op:    e.opRef(),
		Names: e.session.TestNames(),
	})
}

// openTestSettings opens the settings of the first published test named
// name among the tests listed in the session.
func (e *Engine) openTestSettings(ctx context.Context, name string) error {
	idx, ok := e.session.FindTest(name)
	if !ok {
		msg := "test " + name + " not found"
		if suggestion := textutil.Suggest(name, e.session.TestNames()); suggestion != "" {
			msg += ", did you mean " + suggestion + "?"
		}
		return failure.New(failure.TestNotFound, "%s", msg)
	}
	item, _ := e.session.Test(idx)
	if item.SettingsLink == "" {
		return failure.New(failure.TestNotFound, "test %q has no settings link", item.Title)
	}
	e.op.test = idx
	return e.navigate(ctx, OpenTestAndQuizzesSettings, render.Top, item.SettingsLink)
}

// handleTestSettings moves the due date to now plus the requested delay, in
// the portal's time zone.
func (e *Engine) handleTestSettings(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	settings, err := pages.ParseTestSettings(page, timezone.Location())
	if err != nil {
		return e.retry(OpenTestAndQuizzesSettings, e.delays.Poll, err, failure.StructuralDrift)
	}

	op := e.op
	op.due = timezone.In(e.clock.Now()).Add(op.delay)
	return e.perform(ctx, SetTestAndQuizzesDueDate, settings.Frame,
		render.SetValue{Selector: settings.EndDate, Value: op.due.Format(pages.TestDateLayout)},
		render.Click{Selector: settings.Save},
	)
}

func (e *Engine) handleTestDueDate(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	item, _ := e.session.Test(e.op.test)
	if banner, ok := pages.ResultBanner(page); ok && !banner.Success {
		return failure.New(failure.SubmissionRejected, "test %q: %s", item.Title, banner.Text)
	}
	return e.finish(events.DelayOfTestAssigned{
		Op:    e.opRef(),
		Name:  item.Title,
		Delay: e.op.delay,
		Due:   e.op.due,
	})
}
