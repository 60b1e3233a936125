package engine

import (
	"context"
	"fmt"

	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/pages"
	"sakaibot/internal/sakai/render"

	"github.com/mazen160/go-random"
)

const generatedPasswordLength = 12

// openAdministration opens the administration workspace, through its
// worksite link when the listing showed it.
func (e *Engine) openAdministration(ctx context.Context) error {
	link := e.opts.BaseURL + "/portal/site/!admin"
	if w, ok := e.session.Worksite(e.opts.AdminSite); ok && w.Link != "" {
		link = w.Link
	}
	return e.navigate(ctx, GoToAdministrationWorkspaceUsersTab, render.Top, link)
}

func (e *Engine) handleUsersTab(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	link, err := pages.UsersLink(page)
	if err != nil {
		return e.retry(GoToAdministrationWorkspaceUsersTab, e.delays.Poll, err, failure.UnableToFindLinkToUsersTab)
	}
	if e.op.command == "CreateUser" {
		return e.navigate(ctx, CreateUser, render.Top, link)
	}
	return e.navigate(ctx, RenameStudent, render.Top, link)
}

func (e *Engine) handleCreateUser(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	list, err := pages.ParseUserList(page)
	if err != nil {
		return e.retry(CreateUser, e.delays.Poll, err, failure.UnableToFindLinkToUsersTab)
	}
	if list.New == "" {
		return failure.New(failure.UnableToFindLinkToUsersTab, "users tool offers no new user link")
	}
	return e.navigate(ctx, SetNewUserInfo, list.Frame, list.New)
}

func (e *Engine) handleNewUserInfo(ctx context.Context) error {
	op := e.op
	if op.submitted {
		if err := e.userSaved(ctx, op.user.ID); err != nil {
			return err
		}
		return e.finish(events.UserCreated{
			Op:       e.opRef(),
			ID:       op.user.ID,
			Password: op.user.Password,
		})
	}

	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	form, err := pages.ParseUserForm(page)
	if err != nil {
		return e.retry(SetNewUserInfo, e.delays.Poll, err, failure.StructuralDrift)
	}
	if form.ID == "" {
		return failure.New(failure.StructuralDrift, "new user form has no id field")
	}
	if op.user.Password == "" {
		password, err := random.String(generatedPasswordLength)
		if err != nil {
			return fmt.Errorf("generate password: %w", err)
		}
		op.user.Password = password
	}
	op.submitted = true
	actions := append(form.FillUser(op.user), render.Click{Selector: form.Save})
	return e.perform(ctx, SetNewUserInfo, form.Frame, actions...)
}

// userSaved checks the page the user editor answered a save with. The
// editor shows up again, with an alert, when the save was refused.
func (e *Engine) userSaved(ctx context.Context, id string) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	if banner, ok := pages.ResultBanner(page); ok && !banner.Success {
		return failure.New(failure.UserNotSaved, "user %q: %s", id, banner.Text)
	}
	if _, err := pages.ParseUserForm(page); err == nil {
		return failure.New(failure.UserNotSaved, "user %q: the editor is still open", id)
	}
	return nil
}

// handleRenameStudent searches the users tool for the account.
func (e *Engine) handleRenameStudent(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	list, err := pages.ParseUserList(page)
	if err != nil {
		return e.retry(RenameStudent, e.delays.Poll, err, failure.UnableToFindLinkToUsersTab)
	}
	return e.perform(ctx, ContinueStudentRenaming, list.Frame,
		render.SetValue{Selector: list.Search, Value: e.op.user.ID},
		render.Click{Selector: list.Submit},
	)
}

func (e *Engine) handleContinueRenaming(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	list, err := pages.ParseUserList(page)
	if err != nil {
		return e.retry(ContinueStudentRenaming, e.delays.Poll, err, failure.UnableToFindLinkToUsersTab)
	}
	link, ok := list.Users[e.op.user.ID]
	if !ok {
		return failure.New(failure.StudentNotFound, "no account %q", e.op.user.ID)
	}
	return e.navigate(ctx, SetNewFirstNameAndLastName, list.Frame, link)
}

func (e *Engine) handleNewName(ctx context.Context) error {
	op := e.op
	if op.submitted {
		if err := e.userSaved(ctx, op.user.ID); err != nil {
			return err
		}
		return e.finish(events.UserRenamed{
			Op: e.opRef(),
			ID: op.user.ID,
		})
	}

	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	form, err := pages.ParseUserForm(page)
	if err != nil {
		return e.retry(SetNewFirstNameAndLastName, e.delays.Poll, err, failure.StructuralDrift)
	}
	op.submitted = true
	return e.perform(ctx, SetNewFirstNameAndLastName, form.Frame,
		render.SetValue{Selector: form.FirstName, Value: op.first},
		render.SetValue{Selector: form.LastName, Value: op.last},
		render.Click{Selector: form.Save},
	)
}
