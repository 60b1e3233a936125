package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"sakaibot/internal/chrono"

	"github.com/stretchr/testify/require"
)

// queue collects posted tasks so the test decides when the loop runs them.
type queue struct {
	tasks []Task
	errs  []error
}

func (q *queue) post(task Task) { q.tasks = append(q.tasks, task) }

func (q *queue) drain() {
	for len(q.tasks) > 0 {
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		if err := task(context.Background()); err != nil {
			q.errs = append(q.errs, err)
		}
	}
}

// run adapts a plain callback to a Task.
func run(f func()) Task {
	return func(context.Context) error {
		f()
		return nil
	}
}

func TestFiresThroughLoop(t *testing.T) {
	clock := chrono.NewManualTime(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	q := &queue{}
	s := New(clock, q.post)

	fired := 0
	s.After(500*time.Millisecond, "settle", run(func() { fired++ }))
	label, ok := s.Pending()
	require.True(t, ok)
	require.Equal(t, "settle", label)

	clock.Advance(499 * time.Millisecond)
	require.Empty(t, q.tasks)

	clock.Advance(time.Millisecond)
	require.Len(t, q.tasks, 1)
	require.Equal(t, 0, fired)

	q.drain()
	require.Equal(t, 1, fired)
	_, ok = s.Pending()
	require.False(t, ok)
}

func TestCancelSuppressesFiredTimer(t *testing.T) {
	clock := chrono.NewManualTime(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	q := &queue{}
	s := New(clock, q.post)

	fired := false
	s.After(time.Second, "poll", run(func() { fired = true }))
	require.True(t, s.Cancel())
	require.False(t, s.Cancel())

	// the stub clock fires stopped timers too
	clock.FireAll()
	q.drain()
	require.False(t, fired)
}

func TestCancelAfterExpiryBeforeLoop(t *testing.T) {
	clock := chrono.NewManualTime(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	q := &queue{}
	s := New(clock, q.post)

	fired := false
	s.After(time.Millisecond, "poll", run(func() { fired = true }))
	clock.Advance(time.Millisecond)
	require.Len(t, q.tasks, 1)

	s.Cancel()
	q.drain()
	require.False(t, fired)
}

func TestAfterReplaces(t *testing.T) {
	clock := chrono.NewManualTime(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	q := &queue{}
	s := New(clock, q.post)

	var order []string
	s.After(time.Second, "first", run(func() { order = append(order, "first") }))
	s.After(2*time.Second, "second", run(func() { order = append(order, "second") }))
	require.Equal(t, 1, clock.Pending())

	clock.FireAll()
	q.drain()
	require.Equal(t, []string{"second"}, order)
}

func TestContinuationMayReschedule(t *testing.T) {
	clock := chrono.NewManualTime(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	q := &queue{}
	s := New(clock, q.post)

	polls := 0
	var poll Task
	poll = func(context.Context) error {
		polls++
		if polls < 3 {
			s.After(55*time.Millisecond, "poll", poll)
		}
		return nil
	}
	s.After(55*time.Millisecond, "poll", poll)
	for i := 0; i < 5; i++ {
		clock.Advance(55 * time.Millisecond)
		q.drain()
	}
	require.Equal(t, 3, polls)
}

func TestContinuationErrorReachesLoop(t *testing.T) {
	clock := chrono.NewManualTime(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	q := &queue{}
	s := New(clock, q.post)

	boom := errors.New("boom")
	s.After(time.Second, "fail", func(context.Context) error { return boom })
	clock.Advance(time.Second)
	q.drain()
	require.Equal(t, []error{boom}, q.errs)
}
