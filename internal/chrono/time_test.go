package chrono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualTime(t *testing.T) {
	start := time.Date(2021, time.February, 1, 9, 0, 0, 0, time.UTC)
	clock := NewManualTime(start)

	var fired []string
	clock.AfterFunc(time.Second, func() { fired = append(fired, "late") })
	clock.AfterFunc(55*time.Millisecond, func() { fired = append(fired, "early") })
	stopped := clock.AfterFunc(10*time.Millisecond, func() { fired = append(fired, "stopped") })

	require.True(t, stopped.Stop())
	require.False(t, stopped.Stop())
	require.Equal(t, 2, clock.Pending())

	clock.Advance(100 * time.Millisecond)
	require.Equal(t, []string{"early"}, fired)
	require.Equal(t, start.Add(100*time.Millisecond), clock.Now())

	clock.Advance(time.Second)
	require.Equal(t, []string{"early", "late"}, fired)
	require.Equal(t, 0, clock.Pending())
}

func TestManualTimeFireAll(t *testing.T) {
	clock := NewManualTime(time.Time{})
	count := 0
	timer := clock.AfterFunc(time.Hour, func() { count++ })
	timer.Stop()

	clock.FireAll()
	require.Equal(t, 1, count)
	require.False(t, timer.Stop())
}
