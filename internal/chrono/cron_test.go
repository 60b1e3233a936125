package chrono

import (
	"testing"
	"time"

	"sakaibot/internal/telemetry"

	"github.com/stretchr/testify/require"
)

func TestCronRecoversPanics(t *testing.T) {
	tel := &telemetry.Recorder{}
	c := NewStandardCron(tel)

	ran := make(chan struct{}, 4)
	require.NoError(t, c.Cron("@every 1s", func() {
		ran <- struct{}{}
		panic("boom")
	}))
	require.Error(t, c.Cron("every tuesday", func() {}))

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
	c.Stop()
	require.NotEmpty(t, tel.Find("broken", "cron:job"))
}
