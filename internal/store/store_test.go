package store

import (
	"context"
	"testing"
	"time"

	"sakaibot/internal/chrono"
	"sakaibot/internal/sakai/model"
	"sakaibot/internal/telemetry"
	"sakaibot/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (Store, *chrono.ManualTime) {
	db := testutil.SetupDB(t, testutil.DBParams{
		Name:   "internal/store",
		Schema: Schema,
	})
	clock := chrono.NewManualTime(time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC))
	return New(db, clock, &telemetry.Recorder{}), clock
}

func TestWorksites(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWorksites(ctx, []model.Worksite{
		{Name: "Physics 101", Link: "https://sakai.test/portal/site/phys"},
		{Name: "Chemistry", Link: "https://sakai.test/portal/site/chem"},
	}))
	require.NoError(t, s.SaveWorksites(ctx, []model.Worksite{
		{Name: "Physics 101", Link: "https://sakai.test/portal/site/phys2"},
	}))

	worksites, err := s.Worksites(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.Worksite{
		{Name: "Chemistry", Link: "https://sakai.test/portal/site/chem"},
		{Name: "Physics 101", Link: "https://sakai.test/portal/site/phys2"},
	}, worksites)
}

func TestAssignmentsAreReplaced(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAssignments(ctx, "Physics 101", []Assignment{
		{Title: "Lab 1", Status: "Open"},
		{Title: "Lab 2", Status: "Draft"},
	}))
	require.NoError(t, s.SaveAssignments(ctx, "Physics 101", []Assignment{
		{Title: "Lab 1", Status: "Closed", InNew: "2/2"},
	}))
	require.NoError(t, s.SaveAssignments(ctx, "Chemistry", []Assignment{{Title: "Lab 1"}}))

	assignments, err := s.Assignments(ctx, "Physics 101")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Equal(t, "Closed", assignments[0].Status)
	require.Equal(t, "2/2", assignments[0].InNew)
}

func TestSnapshots(t *testing.T) {
	s, clock := setup(t)
	ctx := context.Background()

	_, err := s.Latest(ctx, "Physics 101", "Lab 1", 2)
	require.ErrorIs(t, err, ErrNoSnapshot)

	first := []model.StudentInfo{
		{ID: "jroe", Name: "Roe, Jane", Status: model.StatusNoSubmission},
	}
	_, err = s.MakeSnapshot(ctx, "Physics 101", "Lab 1", first)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second := []model.StudentInfo{
		{
			ID:            "jdoe",
			Name:          "Doe, John",
			Submitted:     "Jan 7, 2021",
			Status:        "Submitted",
			Grade:         "9",
			Released:      true,
			FilesAttached: true,
			TutorComment:  "Good",
			Files: []model.SubmittedFile{
				{Name: "essay.pdf", Link: "https://sakai.test/access/essay.pdf", Size: "1 MB", Date: time.Date(2021, time.January, 7, 0, 0, 0, 0, time.UTC)},
				{Name: "notes.txt", Link: "https://sakai.test/access/notes.txt"},
			},
		},
		{ID: "jroe", Name: "Roe, Jane", Status: model.StatusNoSubmission},
	}
	_, err = s.MakeSnapshot(ctx, "Physics 101", "Lab 1", second)
	require.NoError(t, err)

	snapshots, err := s.Latest(ctx, "Physics 101", "Lab 1", 2)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	require.True(t, snapshots[0].TakenAt.After(snapshots[1].TakenAt))

	opts := cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
	if diff := cmp.Diff(second, snapshots[0].Records, opts); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, snapshots[1].Records, opts); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestPrune(t *testing.T) {
	s, clock := setup(t)
	ctx := context.Background()

	records := []model.StudentInfo{{
		ID:    "jdoe",
		Name:  "Doe, John",
		Files: []model.SubmittedFile{{Name: "essay.pdf"}},
	}}
	_, err := s.MakeSnapshot(ctx, "Physics 101", "Lab 1", records)
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)
	_, err = s.MakeSnapshot(ctx, "Physics 101", "Lab 1", records)
	require.NoError(t, err)

	n, err := s.Prune(ctx, clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	snapshots, err := s.Latest(ctx, "Physics 101", "Lab 1", 5)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.Len(t, snapshots[0].Records[0].Files, 1)
}

func TestOpenMemory(t *testing.T) {
	db, err := Open(Config{File: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	_, err = Open(Config{})
	require.Error(t, err)
}
