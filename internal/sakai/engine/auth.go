package engine

import (
	"context"
	"fmt"

	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/pages"
	"sakaibot/internal/sakai/render"
	"sakaibot/internal/sakai/session"
	"sakaibot/lib/textutil"
)

// upper bound of listing pages, a next control that never disables would
// otherwise loop forever
const maxWorksitePages = 100

func (e *Engine) handleLogIn(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	form, err := pages.FindLoginForm(page)
	if err != nil {
		// a session that is still authenticated lands on the portal
		if _, linkErr := pages.MembershipLink(page); linkErr == nil {
			return e.enter(ctx, GetMembershipLink)
		}
		return e.retry(LogIn, e.delays.Poll, err, failure.IncorrectSakaiURL)
	}
	return e.perform(ctx, GetMembershipLink, form.Frame,
		render.SetValue{Selector: form.Username, Value: e.opts.Username},
		render.SetValue{Selector: form.Password, Value: e.opts.Password},
		render.Submit{Selector: form.Form},
	)
}

func (e *Engine) handleMembershipLink(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	if pages.LoginRejected(page) {
		return failure.New(failure.IncorrectLoginOrPassword, "the portal rejected the login of %q", e.opts.Username)
	}
	link, err := pages.MembershipLink(page)
	if err != nil {
		// the login form posts inside a frame, the portal itself has to be
		// reloaded once to show the authenticated menu
		if !e.op.submitted {
			e.op.submitted = true
			return e.navigate(ctx, GetMembershipLink, render.Top, e.portalURL())
		}
		if _, loginErr := pages.FindLoginForm(page); loginErr == nil {
			return failure.New(failure.IncorrectLoginOrPassword, "still on the login form as %q", e.opts.Username)
		}
		return e.retry(GetMembershipLink, e.delays.Poll, err, failure.UnableToFindMembership)
	}

	e.membership = link
	e.session.ClearWorksites()
	e.op.pages = 0
	return e.navigate(ctx, ParseWorksites, render.Top, link)
}

func (e *Engine) handleWorksites(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	list, err := pages.ParseWorksites(page)
	if err != nil {
		return e.retry(ParseWorksites, e.delays.Poll, err, failure.UnableToFindMembership)
	}

	op := e.op
	op.pages++
	added := 0
	for _, w := range list.Worksites {
		if e.session.AddWorksite(w) {
			added++
			continue
		}
		e.tel.ReportWarning(report_engine_duplicate, failure.WorksiteNameAlreadyExist, w.Name)
	}
	e.progress(op.pages, 0, "read %d worksites", len(e.session.WorksiteNames()))

	if list.Next != "" && added > 0 && op.pages < maxWorksitePages {
		return e.perform(ctx, ParseWorksites, list.Frame, render.Click{Selector: list.Next})
	}
	if op.worksite != "" {
		return e.selectWorksite(ctx, op.worksite)
	}
	return e.finish(events.WorksitesReady{
		Op:    e.opRef(),
		Names: e.session.WorksiteNames(),
	})
}

func (e *Engine) selectWorksite(ctx context.Context, name string) error {
	w, ok := e.session.Worksite(name)
	if !ok {
		msg := fmt.Sprintf("worksite %q not found", name)
		if suggestion := textutil.Suggest(name, e.session.WorksiteNames()); suggestion != "" {
			msg += fmt.Sprintf(", did you mean %q?", suggestion)
		}
		return failure.New(failure.WorksiteNotFound, "%s", msg)
	}
	e.session.Select(w)
	return e.navigate(ctx, ParseSelectedWorksite, render.Top, w.Link)
}

// handleSelectedWorksite waits for the tool menu of the worksite. The
// administration workspace carries no course tools and is accepted as is.
func (e *Engine) handleSelectedWorksite(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	w, _ := e.session.Selected()
	tools := pages.SiteTools(page)
	admin := textutil.SameName(w.Name, e.opts.AdminSite)
	if !admin && tools.Assignments == "" && tools.SiteInfo == "" && tools.Tests == "" {
		return e.retry(
			ParseSelectedWorksite,
			e.delays.Poll,
			failure.New(failure.UnableToFindToolLink, "worksite %q shows no tools", w.Name),
			"",
		)
	}
	e.session.SetTools(tools)
	return e.finish(events.WorksiteSelected{
		Op:   e.opRef(),
		Name: w.Name,
	})
}

func (e *Engine) logOut(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	link, ok := pages.LogoutLink(page)
	if !ok {
		link = e.portalURL() + "/logout"
	}
	return e.navigate(ctx, LogOut, render.Top, link)
}

func (e *Engine) handleLogOut(ctx context.Context) error {
	e.membership = ""
	e.session = session.New()
	return e.finish(events.LoggedOut{Op: e.opRef()})
}
