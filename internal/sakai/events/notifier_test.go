package events

import (
	"errors"
	"testing"

	"sakaibot/internal/sakai/failure"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPublishOrder(t *testing.T) {
	n := NewNotifier()
	op := uuid.New()

	var got []string
	n.Subscribe(func(e Event) { got = append(got, "all") })
	On(n, func(e WorksitesReady) { got = append(got, "worksites") })
	On(n, func(e TestsAndQuizzesReady) { got = append(got, "tests") })

	n.Publish(WorksitesReady{Op: Op{ID: op}, Names: []string{"a"}})
	require.Equal(t, []string{"all", "worksites"}, got)
}

func TestUnsubscribe(t *testing.T) {
	n := NewNotifier()
	count := 0
	cancel := n.Subscribe(func(Event) { count++ })
	n.Publish(LoggedOut{})
	cancel()
	n.Publish(LoggedOut{})
	require.Equal(t, 1, count)
}

func TestRaiseWithoutSubscriberFails(t *testing.T) {
	n := NewNotifier()
	// a subscriber for other events does not count
	On(n, func(WorksitesReady) {})

	err := failure.New(failure.GradeUnsuccessful, "grade not saved")
	returned := n.Raise(uuid.New(), err)
	require.ErrorIs(t, returned, failure.GradeUnsuccessful)
}

func TestRaiseWithSubscriber(t *testing.T) {
	n := NewNotifier()
	op := uuid.New()

	var raised []ExceptionRaised
	On(n, func(e ExceptionRaised) { raised = append(raised, e) })

	err := failure.Wrap(failure.IncorrectSakaiURL, errors.New("no such host"), "https://nowhere")
	require.NoError(t, n.Raise(op, err))
	require.Len(t, raised, 1)
	require.Equal(t, op, raised[0].Operation())
	require.Equal(t, failure.IncorrectSakaiURL, raised[0].Kind)
	require.Equal(t, err.Error(), raised[0].Message)
}
