package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sakaibot/internal/chrono"
	"sakaibot/internal/mailer"
	"sakaibot/internal/robot"
	"sakaibot/internal/sakai/sakaitest"
	"sakaibot/internal/store"
	"sakaibot/internal/telemetry"

	"github.com/stretchr/testify/require"
)

type outbox struct {
	mutex   sync.Mutex
	reports []mailer.Report
	err     error
}

func (o *outbox) Send(ctx context.Context, r mailer.Report) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.err != nil {
		return o.err
	}
	o.reports = append(o.reports, r)
	return nil
}

type fixture struct {
	robot  *robot.Robot
	portal *sakaitest.Portal
	store  store.Store
	clock  *chrono.ManualTime
	tel    *telemetry.Recorder
}

func setup(t *testing.T) fixture {
	portal := sakaitest.NewPortal()
	tel := &telemetry.Recorder{}
	e, notifier := sakaitest.StartEngine(t, portal.Source, tel)
	r := robot.New(e, notifier, tel)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.Initialize(ctx, sakaitest.Worksite)
	require.NoError(t, err)

	db, err := store.Open(store.Config{File: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := chrono.NewManualTime(time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC))
	return fixture{
		robot:  r,
		portal: portal,
		store:  store.New(db, clock, tel),
		clock:  clock,
		tel:    tel,
	}
}

func TestRunMailsChanges(t *testing.T) {
	f := setup(t)
	mail := &outbox{}
	s := New(f.robot, f.store, f.clock, f.tel, Options{
		Worksite: sakaitest.Worksite,
		Mailer:   mail,
	})
	ctx := context.Background()

	require.NoError(t, s.Run(ctx))
	require.Empty(t, mail.reports)

	assignments, err := f.store.Assignments(ctx, sakaitest.Worksite)
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	// drafts are skipped
	_, err = f.store.Latest(ctx, sakaitest.Worksite, "Lab 2", 1)
	require.ErrorIs(t, err, store.ErrNoSnapshot)

	_, err = f.robot.Grade(ctx, "Lab 1", map[string]string{"jroe": "8"})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.NoError(t, s.Run(ctx))
	require.Len(t, mail.reports, 1)
	report := mail.reports[0]
	require.Equal(t, "Lab 1", report.Assignment)
	require.Equal(t, []mailer.Change{{StudentID: "jroe", Name: "Roe, Jane", What: `grade "" -> "8"`}}, report.Changes)

	// nothing changed since
	f.clock.Advance(time.Hour)
	require.NoError(t, s.Run(ctx))
	require.Len(t, mail.reports, 1)

	latest, err := f.store.Latest(ctx, sakaitest.Worksite, "Lab 1", 10)
	require.NoError(t, err)
	require.Len(t, latest, 3)
}

func TestRunReportsFailures(t *testing.T) {
	f := setup(t)
	mail := &outbox{err: errors.New("smtp down")}
	s := New(f.robot, f.store, f.clock, f.tel, Options{
		Worksite:    sakaitest.Worksite,
		Assignments: []string{"Lab 1", "Lab 9"},
		Retain:      24 * time.Hour,
		Mailer:      mail,
	})
	ctx := context.Background()

	err := s.Run(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Lab 9")
	require.NotContains(t, err.Error(), "Lab 1:")

	_, err = f.store.Latest(ctx, sakaitest.Worksite, "Lab 1", 1)
	require.NoError(t, err)

	// a day later the first snapshot is pruned
	f.clock.Advance(48 * time.Hour)
	_, err = f.robot.Grade(ctx, "Lab 1", map[string]string{"jdoe": "9"})
	require.NoError(t, err)
	err = s.Run(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "smtp down")
	require.NotEmpty(t, f.tel.Find("broken", "snapshot:"+report_snapshot_mail))

	latest, err := f.store.Latest(ctx, sakaitest.Worksite, "Lab 1", 10)
	require.NoError(t, err)
	require.Len(t, latest, 1)
}
