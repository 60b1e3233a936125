package engine

import (
	"context"

	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/pages"
	"sakaibot/internal/sakai/render"
)

func (e *Engine) handleParticipants(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	if _, err := e.readParticipants(page); err != nil {
		return e.retry(GetParticipants, e.delays.Poll, err, failure.UnableToFindToolLink)
	}
	return e.finish(events.UsersInformationReady{
		Op:           e.opRef(),
		Participants: e.session.Participants(),
	})
}

// handleRemoveParticipants ticks the removal box of every requested id the
// listing shows and saves the listing.
func (e *Engine) handleRemoveParticipants(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	list, err := e.readParticipants(page)
	if err != nil {
		return e.retry(RemovingParticipants, e.delays.Poll, err, failure.UnableToFindToolLink)
	}

	op := e.op
	missing := map[string]struct{}{}
	for _, id := range e.missingParticipants(op.ids) {
		missing[id] = struct{}{}
		e.tel.ReportWarning(report_engine_missing, "participant", id)
	}
	var actions []render.Action
	for _, id := range op.ids {
		if _, ok := missing[id]; ok {
			continue
		}
		op.pending = append(op.pending, id)
		actions = append(actions, render.SetChecked{Selector: pages.RemoveSelector(id), Checked: true})
	}
	if len(actions) == 0 {
		return e.finish(events.ParticipantsRemoved{Op: e.opRef()})
	}
	if list.Update == "" {
		return failure.New(failure.UnableToFindToolLink, "participant listing offers no update control")
	}
	actions = append(actions, render.Click{Selector: list.Update})
	return e.perform(ctx, RemovedParticipants, list.Frame, actions...)
}

// handleRemovedParticipants reports the ids that are gone from the listing.
func (e *Engine) handleRemovedParticipants(ctx context.Context) error {
	page, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	if banner, ok := pages.ResultBanner(page); ok && !banner.Success {
		return failure.New(failure.SubmissionRejected, "removing participants: %s", banner.Text)
	}
	if _, err := e.readParticipants(page); err != nil {
		return e.retry(RemovedParticipants, e.delays.Submit, err, failure.UnableToFindToolLink)
	}

	still := map[string]struct{}{}
	for _, p := range e.session.Participants() {
		still[p.ID] = struct{}{}
	}
	var removed []string
	for _, id := range e.op.pending {
		if _, ok := still[id]; !ok {
			removed = append(removed, id)
		}
	}
	return e.finish(events.ParticipantsRemoved{
		Op:  e.opRef(),
		IDs: removed,
	})
}
