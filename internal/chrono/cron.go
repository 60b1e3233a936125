package chrono

import (
	"fmt"

	"sakaibot/internal/telemetry"
	"sakaibot/lib/timezone"

	"github.com/robfig/cron/v3"
)

type CronAPI interface {
	Cron(spec string, callback func()) error
	Stop()
}

// StandardCron runs jobs in the portal's time zone. A job still running when
// its next tick comes is skipped for that tick.
type StandardCron struct {
	cron *cron.Cron
}

func NewStandardCron(tel telemetry.API) StandardCron {
	logger := cronLogger{tel: telemetry.NewScopedAPI("cron", tel)}
	cronner := cron.New(
		cron.WithLocation(timezone.Location()),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	cronner.Start()
	return StandardCron{cron: cronner}
}

func (s StandardCron) Cron(spec string, callback func()) error {
	_, err := s.cron.AddFunc(spec, callback)
	return err
}

// Stop waits for running jobs to return.
func (s StandardCron) Stop() {
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) params(keysAndValues []any) []any {
	out := make([]any, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, telemetry.KV{Key: fmt.Sprint(keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return out
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(msg, l.params(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken("job", append([]any{fmt.Errorf("%s: %w", msg, err)}, l.params(keysAndValues)...)...)
}
