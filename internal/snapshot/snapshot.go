// Package snapshot periodically records the submissions of assignments and
// mails what changed since the previous record.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sakaibot/internal/assert"
	"sakaibot/internal/chrono"
	"sakaibot/internal/mailer"
	"sakaibot/internal/robot"
	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/model"
	"sakaibot/internal/store"
	"sakaibot/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("sakaibot/internal/snapshot")

const (
	report_snapshot_assignment = "assignment"
	report_snapshot_store      = "store"
	report_snapshot_mail       = "mail"
)

// Robot is the part of the robot a snapshot pass drives.
type Robot interface {
	Assignments(ctx context.Context) (events.AssignmentItemsReady, error)
	Rosters(ctx context.Context, title string) ([]robot.Roster, error)
	Submissions(ctx context.Context, assignment, filter string, isGroup bool) (events.SubmissionsReady, error)
}

type Store interface {
	SaveWorksites(ctx context.Context, worksites []model.Worksite) error
	SaveAssignments(ctx context.Context, worksite string, assignments []store.Assignment) error
	MakeSnapshot(ctx context.Context, worksite, assignment string, records []model.StudentInfo) (int64, error)
	Latest(ctx context.Context, worksite, assignment string, n int) ([]store.Snapshot, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

type Mailer interface {
	Send(ctx context.Context, r mailer.Report) error
}

type Options struct {
	Worksite string
	// Assignments to snapshot, every published assignment when empty.
	Assignments []string
	// Retain prunes older snapshots, zero keeps everything.
	Retain time.Duration
	// Mailer is optional.
	Mailer Mailer
}

type Snapshotter struct {
	robot   Robot
	store   Store
	time    chrono.TimeAPI
	tel     telemetry.API
	options Options
}

func New(robot Robot, store Store, time chrono.TimeAPI, tel telemetry.API, options Options) Snapshotter {
	assert.NotNil(robot, "robot")
	assert.NotNil(store, "store")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "telemetry")
	assert.NotEmptyStr(options.Worksite, "worksite")

	return Snapshotter{
		robot:   robot,
		store:   store,
		time:    time,
		tel:     telemetry.NewScopedAPI("snapshot", tel),
		options: options,
	}
}

// Schedule runs a pass on every tick of spec until ctx is done. Passes that
// fail are reported and do not stop the schedule.
func (s Snapshotter) Schedule(ctx context.Context, cron chrono.CronAPI, spec string) error {
	return cron.Cron(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.Run(ctx); err != nil {
			s.tel.ReportWarning(report_snapshot_assignment, err)
		}
	})
}

func (s Snapshotter) targets(listing events.AssignmentItemsReady) []string {
	if len(s.options.Assignments) > 0 {
		return s.options.Assignments
	}
	var out []string
	for i, name := range listing.Names {
		if i < len(listing.Drafts) && listing.Drafts[i] {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Run lists the assignments of the worksite, stores the listing and takes a
// snapshot of each target assignment. It returns the joined errors of the
// assignments that could not be snapshotted.
func (s Snapshotter) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	listing, err := s.robot.Assignments(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list assignments")
		return fmt.Errorf("list assignments: %w", err)
	}
	if err := s.saveListing(ctx); err != nil {
		s.tel.ReportBroken(report_snapshot_store, err, s.options.Worksite)
	}

	var errs []error
	for _, title := range s.targets(listing) {
		if err := s.snapshot(ctx, title); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", title, err))
		}
	}

	if s.options.Retain > 0 {
		pruned, err := s.store.Prune(ctx, s.time.Now().Add(-s.options.Retain))
		if err != nil {
			errs = append(errs, fmt.Errorf("prune: %w", err))
		} else if pruned > 0 {
			s.tel.ReportDebug("pruned snapshots", pruned)
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot pass incomplete")
	}
	return err
}

func (s Snapshotter) saveListing(ctx context.Context) error {
	rosters, err := s.robot.Rosters(ctx, "")
	if err != nil {
		return err
	}
	if err := s.store.SaveWorksites(ctx, []model.Worksite{{Name: s.options.Worksite}}); err != nil {
		return err
	}
	assignments := make([]store.Assignment, len(rosters))
	for i, r := range rosters {
		assignments[i] = store.Assignment{
			Worksite: s.options.Worksite,
			Title:    r.Title,
			Status:   r.Status,
			Open:     r.Open,
			Due:      r.Due,
			InNew:    r.InNew,
			Scale:    r.Scale,
		}
	}
	return s.store.SaveAssignments(ctx, s.options.Worksite, assignments)
}

func (s Snapshotter) snapshot(ctx context.Context, title string) error {
	ctx, span := tracer.Start(ctx, "snapshot")
	defer span.End()
	span.SetAttributes(attribute.String("assignment", title))

	submissions, err := s.robot.Submissions(ctx, title, "", false)
	if err != nil {
		s.tel.ReportWarning(report_snapshot_assignment, err, title)
		return err
	}
	if _, err := s.store.MakeSnapshot(ctx, s.options.Worksite, title, submissions.Records); err != nil {
		return err
	}

	latest, err := s.store.Latest(ctx, s.options.Worksite, title, 2)
	if err != nil {
		return err
	}
	// the first snapshot has nothing to compare against
	if len(latest) < 2 || s.options.Mailer == nil {
		return nil
	}
	changes := mailer.Diff(latest[1].Records, latest[0].Records)
	if len(changes) == 0 {
		return nil
	}

	s.tel.ReportCount("changes", int64(len(changes)))
	err = s.options.Mailer.Send(ctx, mailer.Report{
		Worksite:   s.options.Worksite,
		Assignment: title,
		TakenAt:    latest[0].TakenAt,
		Records:    latest[0].Records,
		Changes:    changes,
	})
	if err != nil {
		s.tel.ReportBroken(report_snapshot_mail, err, title)
		return err
	}
	return nil
}
