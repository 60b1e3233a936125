// Package engine is the workflow that drives the portal.
//
// Every command starts one operation. The engine navigates the render source
// and waits for the completion that admission lets through, then the handler
// of the current state reads the page, updates the session and either
// finishes the operation with an event or advances to the next state.
//
// All of it runs on a single loop (Run): completion callbacks, expired
// continuations and commands are posted there as tasks, so the session is
// only ever touched by one goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sakaibot/internal/assert"
	"sakaibot/internal/chrono"
	"sakaibot/internal/sakai/admission"
	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/pages"
	"sakaibot/internal/sakai/render"
	"sakaibot/internal/sakai/scheduler"
	"sakaibot/internal/sakai/session"
	"sakaibot/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("sakaibot/internal/sakai/engine")

const (
	report_engine_dispatch  = "dispatch"
	report_engine_failure   = "failure"
	report_engine_ignored   = "ignored-completion"
	report_engine_duplicate = "duplicate-worksite"
	report_engine_grade     = "grade-unsuccessful"
	report_engine_missing   = "missing"
	report_engine_poll      = "poll"
)

// Delays are the waits of the workflow.
type Delays struct {
	// Poll is the interval at which a not yet rendered frame is looked for.
	Poll time.Duration
	// Settle is the wait for client side updates that follow an action.
	Settle time.Duration
	// Submit is the wait for the outcome of a form submission.
	Submit time.Duration
	// Navigation bounds the wait for any completion, zero waits forever.
	Navigation time.Duration
	// MaxPolls bounds consecutive re-entries of one state.
	MaxPolls int
}

func DefaultDelays() Delays {
	return Delays{
		Poll:       55 * time.Millisecond,
		Settle:     500 * time.Millisecond,
		Submit:     1000 * time.Millisecond,
		Navigation: time.Minute,
		MaxPolls:   40,
	}
}

type Options struct {
	// BaseURL is the root of the portal, e.g. https://sakai.example.edu.
	BaseURL  string
	Username string
	Password string
	Delays   Delays
	// AdminSite is the worksite that carries no course tools.
	AdminSite string
}

const defaultAdminSite = "Administration Workspace"

type Engine struct {
	source   render.Source
	clock    chrono.TimeAPI
	tel      telemetry.API
	notifier *events.Notifier

	opts     Options
	delays   Delays
	session  *session.State
	sync     *admission.Synchronizer
	sched    *scheduler.Scheduler
	mailbox  *mailbox
	handlers map[State]func(ctx context.Context) error

	state  State
	resume State
	op     *operation

	// a navigation or submission is outstanding
	awaiting bool

	// link of the membership tool, known after the first login
	membership string
}

func New(source render.Source, clock chrono.TimeAPI, tel telemetry.API, notifier *events.Notifier, opts Options) *Engine {
	assert.NotNil(source, "source")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "telemetry")
	assert.NotNil(notifier, "notifier")
	assert.NotEmptyStr(opts.BaseURL, "base url")

	if opts.Delays == (Delays{}) {
		opts.Delays = DefaultDelays()
	}
	if opts.AdminSite == "" {
		opts.AdminSite = defaultAdminSite
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	e := &Engine{
		source:   source,
		clock:    clock,
		tel:      telemetry.NewScopedAPI("engine", tel),
		notifier: notifier,
		opts:     opts,
		delays:   opts.Delays,
		session:  session.New(),
		sync:     admission.New(),
		mailbox:  newMailbox(),
	}
	e.sched = scheduler.New(clock, func(task scheduler.Task) {
		e.mailbox.Post(Task(task))
	})
	e.handlers = e.buildHandlers()

	source.OnCompleted(func(c render.Completion) {
		e.mailbox.Post(func(ctx context.Context) error {
			return e.handleCompletion(ctx, c)
		})
	})
	return e
}

// Run processes completions, continuations and commands until ctx is done.
// It returns early with the error of a failure nobody subscribed to.
func (e *Engine) Run(ctx context.Context) error {
	return e.mailbox.Run(ctx)
}

// Stopped is closed once Run has returned.
func (e *Engine) Stopped() <-chan struct{} {
	return e.mailbox.Stopped()
}

func (e *Engine) portalURL() string {
	return e.opts.BaseURL + "/portal"
}

func (e *Engine) idle() bool {
	return e.state.idle() || (e.state == Busy && e.resume.idle())
}

// handleCompletion is the entry point of every completion signal.
func (e *Engine) handleCompletion(ctx context.Context, c render.Completion) error {
	switch e.state {
	case Idle, Stop, Waiting:
		e.tel.ReportDebug(report_engine_ignored, e.state.String(), c.URL)
		return nil
	}
	if !e.sync.Admit(c) {
		e.tel.ReportDebug(report_engine_ignored, e.state.String(), c.URL, c.Frame.String())
		return nil
	}
	e.sched.Cancel()
	e.awaiting = false

	if e.state == Busy {
		e.state = e.resume
		return nil
	}
	if c.Err != nil {
		return e.fail(ctx, failure.Wrap(failure.IncorrectSakaiURL, c.Err, "%s", c.Requested))
	}
	return e.dispatch(ctx)
}

// dispatch runs the handler of the current state.
func (e *Engine) dispatch(ctx context.Context) error {
	handler, ok := e.handlers[e.state]
	if !ok || e.op == nil {
		return nil
	}

	ctx, span := tracer.Start(ctx, "engine:"+e.state.String())
	defer span.End()
	span.SetAttributes(
		attribute.String("operation", e.op.id.String()),
		attribute.String("command", e.op.command),
	)
	e.tel.ReportDebug(report_engine_dispatch, e.state.String(), e.op.command)

	err := handler(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return e.fail(ctx, err)
	}
	return nil
}

// enter moves to state and runs its handler right away, for steps that
// continue on the page already loaded.
func (e *Engine) enter(ctx context.Context, state State) error {
	e.state = state
	e.op.polls = 0
	handler := e.handlers[state]
	return handler(ctx)
}

// navigate loads target into frame and waits for it in state.
func (e *Engine) navigate(ctx context.Context, state State, frame render.FramePath, target string) error {
	if target == "" {
		return failure.New(failure.IncorrectSakaiURL, "empty navigation target in %s", state)
	}
	e.state = state
	e.op.polls = 0
	e.sched.Cancel()
	e.sync.Disarm()
	e.sync.Expect(target)
	e.awaiting = true
	e.armTimeout(state)
	if err := e.source.Navigate(ctx, frame, target); err != nil {
		return failure.Wrap(failure.IncorrectSakaiURL, err, "%s", target)
	}
	return nil
}

// perform runs actions on the document at frame and waits in state for the
// completion of the navigation the last action causes.
func (e *Engine) perform(ctx context.Context, state State, frame render.FramePath, actions ...render.Action) error {
	if err := e.apply(ctx, frame, actions[:len(actions)-1]...); err != nil {
		return err
	}
	e.state = state
	e.op.polls = 0
	e.sched.Cancel()
	e.sync.ExpectAny()
	e.awaiting = true
	e.armTimeout(state)
	last := actions[len(actions)-1]
	if err := e.source.Execute(ctx, frame, last); err != nil {
		e.sync.Disarm()
		e.awaiting = false
		return e.actionFailed(last, err)
	}
	return nil
}

// apply runs actions that cause no navigation.
func (e *Engine) apply(ctx context.Context, frame render.FramePath, actions ...render.Action) error {
	for _, action := range actions {
		if err := e.source.Execute(ctx, frame, action); err != nil {
			return e.actionFailed(action, err)
		}
	}
	return nil
}

func (e *Engine) actionFailed(action render.Action, err error) error {
	if errors.Is(err, render.ErrElementNotFound) || errors.Is(err, render.ErrFrameNotFound) {
		return failure.Wrap(failure.StructuralDrift, err, "%s", action)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// armTimeout bounds the wait for the completion of state.
func (e *Engine) armTimeout(state State) {
	if e.delays.Navigation <= 0 {
		return
	}
	e.sched.After(e.delays.Navigation, "timeout:"+state.String(), func(ctx context.Context) error {
		e.sync.Disarm()
		if e.op == nil || e.state != state {
			return nil
		}
		return e.fail(ctx, failure.New(failure.IncorrectSakaiURL, "no response in %s after %s", state, e.delays.Navigation))
	})
}

// after re-enters state once delay has elapsed. Completions are not admitted
// meanwhile.
func (e *Engine) after(delay time.Duration, state State) {
	e.state = Waiting
	e.resume = state
	e.sched.After(delay, state.String(), func(ctx context.Context) error {
		e.sync.Disarm()
		if e.op == nil || e.state != Waiting {
			return nil
		}
		e.state = state
		return e.dispatch(ctx)
	})
}

// retry polls state again when cause is a page that has not rendered yet.
// Once the polls are exhausted cause is returned, mapped to kind when it is
// drift and kind is set.
func (e *Engine) retry(state State, delay time.Duration, cause error, kind failure.Kind) error {
	if e.op.polls >= e.delays.MaxPolls {
		if kind != "" && errors.Is(cause, pages.ErrStructuralDrift) {
			return failure.Wrap(kind, cause, "%s", state)
		}
		return cause
	}
	polls := e.op.polls + 1
	e.tel.ReportDebug(report_engine_poll, state.String(), polls)
	e.after(delay, state)
	e.op.polls = polls
	return nil
}

// skipNext swallows the next admitted completion and then moves to resume.
func (e *Engine) skipNext(resume State) {
	e.state = Busy
	e.resume = resume
}

func (e *Engine) snapshot(ctx context.Context) (*render.Page, error) {
	page, err := e.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return page, nil
}

func (e *Engine) progress(value, max int, format string, args ...any) {
	e.notifier.Publish(events.ProgressReport{
		Op:      e.opRef(),
		Value:   value,
		Max:     max,
		Message: fmt.Sprintf(format, args...),
	})
}

func (e *Engine) opRef() events.Op {
	if e.op == nil {
		return events.Op{}
	}
	return events.Op{ID: e.op.id}
}

// finish ends the operation with event.
func (e *Engine) finish(event events.Event) error {
	e.reset(Idle)
	e.notifier.Publish(event)
	return nil
}

func (e *Engine) reset(state State) {
	e.sched.Cancel()
	e.sync.Reset()
	e.awaiting = false
	e.state = state
	e.resume = Idle
	e.op = nil
}

// fail ends the operation and raises err. The returned error is non-nil only
// when nobody subscribed to exceptions.
func (e *Engine) fail(ctx context.Context, err error) error {
	if failure.KindOf(err) == "" {
		err = failure.Wrap(failure.StructuralDrift, err, "%s", e.state)
	}

	var id uuid.UUID
	command := ""
	if e.op != nil {
		id = e.op.id
		command = e.op.command
	}
	e.tel.ReportWarning(report_engine_failure, command, e.state.String(), err)
	e.reset(Idle)
	return e.notifier.Raise(id, err)
}
