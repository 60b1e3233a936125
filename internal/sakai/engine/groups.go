package engine

import (
	"context"
	"strings"

	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/pages"
	"sakaibot/internal/sakai/render"
	"sakaibot/lib/textutil"
)

// screens of the add participants helper before it is considered stuck
const maxWizardSteps = 8

func (e *Engine) openSiteInfo(ctx context.Context, state State) error {
	link, err := e.tool(e.session.Tools().SiteInfo, "site info")
	if err != nil {
		return err
	}
	return e.navigate(ctx, state, render.Top, link)
}

// readParticipants replaces the participant list of the session with the
// listing on page.
func (e *Engine) readParticipants(page *render.Page) (pages.ParticipantList, error) {
	list, err := pages.ParseParticipants(page)
	if err != nil {
		return list, err
	}
	e.session.ResetParticipants()
	for _, p := range list.Participants {
		e.session.AddParticipant(p)
	}
	return list, nil
}

func (e *Engine) handleManageGroups(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	list, err := e.readParticipants(page)
	if err != nil {
		return e.retry(OpenManageGroupsSection, e.delays.Poll, err, failure.UnableToFindToolLink)
	}

	op := e.op
	if op.mode == groupCreate {
		missing := e.missingParticipants(op.ids)
		switch {
		case len(missing) > 0 && !op.wizardRan:
			if list.AddParticipants == "" {
				return failure.New(failure.StudentNotFound, "%s not enrolled and participants cannot be added", strings.Join(missing, ", "))
			}
			op.pending = missing
			op.wizardRan = true
			return e.navigate(ctx, AddParticipantUsernames, render.Top, list.AddParticipants)
		case len(missing) > 0:
			e.tel.ReportWarning(report_engine_missing, op.group, strings.Join(missing, ","))
		}
	}

	if list.ManageGroups == "" {
		return failure.New(failure.UnableToFindToolLink, "site info offers no manage groups link")
	}
	return e.navigate(ctx, LoadGroupsEditor, render.Top, list.ManageGroups)
}

func (e *Engine) missingParticipants(ids []string) []string {
	known := map[string]struct{}{}
	for _, p := range e.session.Participants() {
		known[p.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// handleParticipantWizard walks the add participants helper. Once it is
// finished the participant listing is read again.
func (e *Engine) handleParticipantWizard(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	op := e.op
	op.steps++
	if op.steps > maxWizardSteps {
		return failure.New(failure.StructuralDrift, "add participants helper did not finish after %d screens", maxWizardSteps)
	}

	wizard := pages.ParseParticipantWizard(page)
	switch wizard.Step {
	case pages.WizardUsernames:
		return e.perform(ctx, AddParticipantUsernames, wizard.Frame,
			render.SetValue{Selector: wizard.Usernames, Value: strings.Join(op.pending, "\n")},
			render.Click{Selector: wizard.Continue},
		)
	case pages.WizardRole:
		return e.perform(ctx, AddParticipantUsernames, wizard.Frame,
			render.SetChecked{Selector: wizard.Role, Checked: true},
			render.Click{Selector: wizard.Continue},
		)
	case pages.WizardContinue:
		return e.perform(ctx, AddParticipantUsernames, wizard.Frame, render.Click{Selector: wizard.Continue})
	case pages.WizardFinish:
		op.wizardDone = true
		return e.perform(ctx, AddParticipantUsernames, wizard.Frame, render.Click{Selector: wizard.Finish})
	}

	if op.wizardDone {
		return e.openSiteInfo(ctx, OpenManageGroupsSection)
	}
	op.steps--
	return e.retry(
		AddParticipantUsernames,
		e.delays.Poll,
		failure.New(failure.StructuralDrift, "add participants helper not recognized"),
		"",
	)
}

func (e *Engine) findGroup(name string) (model.Group, bool) {
	for _, g := range e.session.Groups() {
		if strings.TrimSpace(g.Name) == name || textutil.SameName(g.Name, name) {
			return g, true
		}
	}
	return model.Group{}, false
}

func (e *Engine) handleGroupsEditor(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	editor, err := pages.ParseGroupEditor(page)
	if err != nil {
		return e.retry(LoadGroupsEditor, e.delays.Poll, err, failure.UnableToFindToolLink)
	}
	e.session.SetGroups(editor.Groups)

	op := e.op
	switch op.mode {
	case groupList:
		return e.finish(events.GroupListReady{
			Op:    e.opRef(),
			Names: e.session.GroupNames(),
		})

	case groupCreate:
		if _, exists := e.findGroup(op.group); exists {
			return failure.New(failure.SubmissionRejected, "group %q already exists", op.group)
		}
		if editor.Create == "" {
			return failure.New(failure.UnableToFindToolLink, "groups editor offers no create control")
		}
		return e.perform(ctx, AddNewGroup, editor.Frame, render.Click{Selector: editor.Create})

	case groupDelete:
		g, ok := e.findGroup(op.group)
		if !ok {
			msg := "group " + op.group + " not found"
			if suggestion := textutil.Suggest(op.group, e.session.GroupNames()); suggestion != "" {
				msg += ", did you mean " + suggestion + "?"
			}
			return failure.New(failure.GroupNotFound, "%s", msg)
		}
		if editor.Delete == "" || g.ID == "" {
			return failure.New(failure.UnableToFindToolLink, "group %q cannot be selected for deletion", g.Name)
		}
		op.mode = groupDeleted
		return e.perform(ctx, ConfirmGroupDeletion, editor.Frame,
			render.SetChecked{Selector: pages.GroupCheckbox(g.ID), Checked: true},
			render.Click{Selector: editor.Delete},
		)

	case groupDeleted:
		if _, still := e.findGroup(op.group); still {
			return failure.New(failure.SubmissionRejected, "group %q is still listed after deletion", op.group)
		}
		return e.finish(events.GroupDeleted{
			Op:   e.opRef(),
			Name: op.group,
		})
	}
	return nil
}

// handleNewGroup fills the new group form. Only ids the member picker
// offers are selected.
func (e *Engine) handleNewGroup(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	form, err := pages.ParseGroupForm(page)
	if err != nil {
		return e.retry(AddNewGroup, e.delays.Poll, err, failure.StructuralDrift)
	}

	op := e.op
	offered := map[string]struct{}{}
	for _, id := range form.MemberIDs {
		offered[id] = struct{}{}
	}
	var members []string
	for _, id := range op.ids {
		if _, ok := offered[id]; ok {
			members = append(members, id)
			continue
		}
		e.tel.ReportWarning(report_engine_missing, op.group, id)
	}

	actions := []render.Action{render.SetValue{Selector: form.Title, Value: op.group}}
	if form.Description != "" {
		actions = append(actions, render.SetValue{Selector: form.Description, Value: op.group})
	}
	actions = append(actions,
		render.Select{Selector: form.Members, Values: members},
		render.Click{Selector: form.Save},
	)
	return e.perform(ctx, NewGroupAdded, form.Frame, actions...)
}

func (e *Engine) handleGroupAdded(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	if banner, ok := pages.ResultBanner(page); ok && !banner.Success {
		return failure.New(failure.SubmissionRejected, "group %q: %s", e.op.group, banner.Text)
	}
	editor, err := pages.ParseGroupEditor(page)
	if err != nil {
		return e.retry(NewGroupAdded, e.delays.Submit, err, failure.StructuralDrift)
	}
	e.session.SetGroups(editor.Groups)
	g, ok := e.findGroup(e.op.group)
	if !ok {
		return failure.New(failure.SubmissionRejected, "group %q is not listed after saving", e.op.group)
	}
	return e.finish(events.NewGroupCreated{
		Op:   e.opRef(),
		Name: g.Name,
	})
}

func (e *Engine) handleGroupDeletion(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	frame, confirm, ok := pages.GroupDeleteConfirmation(page)
	if !ok {
		return e.retry(
			ConfirmGroupDeletion,
			e.delays.Poll,
			failure.New(failure.StructuralDrift, "no confirmation for deleting %q", e.op.group),
			"",
		)
	}
	return e.perform(ctx, LoadGroupsEditor, frame, render.Click{Selector: confirm})
}
