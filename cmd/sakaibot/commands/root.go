package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"sakaibot/internal/chrono"
	"sakaibot/internal/robot"
	"sakaibot/internal/sakai/engine"
	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/render"
	"sakaibot/internal/sakai/render/chromesource"
	"sakaibot/internal/sakai/render/httpsource"
	"sakaibot/internal/telemetry"
	libtelemetry "sakaibot/lib/telemetry"
	"sakaibot/lib/timezone"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "sakaibot",
	Short:         "sakaibot automates a teacher's chores on a Sakai course portal.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		libtelemetry.InitSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "The configuration file.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
}

func ExecuteContext(ctx context.Context) {
	tel, err := libtelemetry.SetupFromEnv(ctx, "sakaibot")
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "setup telemetry:", err)
	}
	defer tel.Shutdown(context.Background())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is a logged in robot with what it runs on.
type session struct {
	cfg    Config
	tel    telemetry.API
	robot  *robot.Robot
	source render.Source
	stop   context.CancelFunc
}

func newSource(ctx context.Context, cfg Config) (render.Source, error) {
	if cfg.Renderer == "chrome" {
		headless := cfg.Chrome.Headless == nil || *cfg.Chrome.Headless
		return chromesource.New(ctx, chromesource.Options{
			RemoteURL: cfg.Chrome.RemoteURL,
			ExecPath:  cfg.Chrome.ExecPath,
			Headless:  headless,
		})
	}
	return httpsource.New(httpsource.Options{BaseURL: cfg.BaseURL, DumpDir: cfg.DumpDir})
}

// login reads the configuration, starts an engine and logs in. The worksite
// of the configuration, if any, is selected.
func login(ctx context.Context) (*session, error) {
	cfg, err := readConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Timezone != "" {
		if err := timezone.SetLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("timezone: %w", err)
		}
	}

	runCtx, stop := context.WithCancel(context.Background())
	source, err := newSource(runCtx, cfg)
	if err != nil {
		stop()
		return nil, fmt.Errorf("render source: %w", err)
	}

	tel := telemetry.SlogAPI{}
	notifier := events.NewNotifier()
	e := engine.New(source, chrono.NewStandardTime(), tel, notifier, engine.Options{
		BaseURL:  cfg.BaseURL,
		Username: cfg.Username,
		Password: cfg.Password,
		Delays:   cfg.Delays.engineDelays(),
	})
	go func() {
		if err := e.Run(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("engine stopped", "err", err)
		}
	}()

	s := &session{
		cfg:    cfg,
		tel:    tel,
		source: source,
		stop:   stop,
		robot: robot.New(e, notifier, tel, robot.WithProgress(func(p events.ProgressReport) {
			slog.Info("progress", "value", p.Value, "max", p.Max, "message", p.Message)
		})),
	}
	if _, err := s.robot.Initialize(ctx, cfg.Worksite); err != nil {
		s.release()
		return nil, err
	}
	return s, nil
}

// close logs out and releases the render source.
func (s *session) close(ctx context.Context) {
	if err := s.robot.LogOut(context.WithoutCancel(ctx)); err != nil {
		slog.Debug("log out", "err", err)
	}
	s.release()
}

func (s *session) release() {
	s.stop()
	if err := s.source.Close(); err != nil {
		slog.Warn("close render source", "err", err)
	}
}

// withSession runs fn against a logged in robot.
func withSession(fn func(cmd *cobra.Command, args []string, s *session) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := login(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close(cmd.Context())
		return fn(cmd, args, s)
	}
}
