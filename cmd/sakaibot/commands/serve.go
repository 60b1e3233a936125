package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sakaibot/internal/chrono"
	"sakaibot/internal/mailer"
	"sakaibot/internal/service"
	"sakaibot/internal/snapshot"
	"sakaibot/internal/store"
	libtelemetry "sakaibot/lib/telemetry"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the robot over rpc and snapshots submissions on a schedule.",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		return serve(cmd.Context(), s)
	}),
}

func serve(ctx context.Context, s *session) error {
	libtelemetry.InstrumentPerfStats(ctx)

	options := []service.Option{service.WithAccessToken(s.cfg.Server.AccessToken)}

	if s.cfg.Store.File != "" || s.cfg.Store.Url != "" {
		db, err := store.Open(s.cfg.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()

		clock := chrono.NewStandardTime()
		snapshots := store.New(db, clock, s.tel)
		options = append(options, service.WithSnapshots(snapshots))

		stopCron, err := scheduleSnapshots(ctx, s, snapshots, clock)
		if err != nil {
			return err
		}
		defer stopCron()
	}

	mux := http.NewServeMux()
	service.NewService(s.robot, s.tel, options...).Register(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", s.cfg.Server.Port),
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdown)
	}()

	slog.Info("listening to rpc...", "port", s.cfg.Server.Port)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func scheduleSnapshots(ctx context.Context, s *session, st store.Store, clock chrono.TimeAPI) (func(), error) {
	if s.cfg.Worksite == "" {
		slog.Warn("no worksite configured, submissions will not be snapshotted")
		return func() {}, nil
	}

	options := snapshot.Options{
		Worksite:    s.cfg.Worksite,
		Assignments: s.cfg.Snapshot.Assignments,
		Retain:      time.Duration(s.cfg.Snapshot.RetainDays) * 24 * time.Hour,
	}
	if s.cfg.Mail.Server != "" && len(s.cfg.Mail.To) > 0 {
		options.Mailer = mailer.New(s.cfg.Mail, s.tel)
	}

	cron := chrono.NewStandardCron(s.tel)
	err := snapshot.New(s.robot, st, clock, s.tel, options).Schedule(ctx, cron, s.cfg.Snapshot.Cron)
	if err != nil {
		cron.Stop()
		return nil, fmt.Errorf("snapshot schedule %q: %w", s.cfg.Snapshot.Cron, err)
	}
	return cron.Stop, nil
}
