package commands

import (
	"fmt"
	"time"

	"sakaibot/internal/mailer"
	"sakaibot/internal/sakai/engine"
	"sakaibot/internal/store"
	"sakaibot/lib/configutil"
)

type ChromeConfig struct {
	ExecPath  string `json:"exec_path"`
	RemoteURL string `json:"remote_url"`
	Headless  *bool  `json:"headless"`
}

type DelaysConfig struct {
	PollMs   int `json:"poll_ms"`
	SettleMs int `json:"settle_ms"`
	SubmitMs int `json:"submit_ms"`
	MaxPolls int `json:"max_polls"`
}

type ServerConfig struct {
	Port        int    `json:"port"`
	AccessToken string `json:"access_token"`
}

type SnapshotConfig struct {
	// Cron is a robfig/cron spec, e.g. "@every 1h".
	Cron        string   `json:"cron"`
	Assignments []string `json:"assignments"`
	// RetainDays prunes older snapshots, zero keeps everything.
	RetainDays int `json:"retain_days"`
}

type Config struct {
	BaseURL  string            `json:"base_url"`
	Username string            `json:"username"`
	Password string            `json:"password"`
	Worksite string            `json:"worksite"`
	// Renderer is "http" (default) or "chrome".
	Renderer string            `json:"renderer"`
	// DumpDir receives the http exchanges of the http renderer.
	DumpDir  string            `json:"dump_dir"`
	Chrome   ChromeConfig      `json:"chrome"`
	Timezone string            `json:"timezone"`
	Delays   DelaysConfig      `json:"delays"`
	Store    store.Config      `json:"store"`
	Mail     mailer.SmtpConfig `json:"mail"`
	Server   ServerConfig      `json:"server"`
	Snapshot SnapshotConfig    `json:"snapshot"`
}

var defaults = Config{
	Renderer: "http",
	Server:   ServerConfig{Port: 8000},
	Snapshot: SnapshotConfig{Cron: "@every 1h"},
}

func readConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfigWithDefaults(path, defaults)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if cfg.BaseURL == "" {
		return cfg, fmt.Errorf("config %s: base_url is required", path)
	}
	if cfg.Renderer != "http" && cfg.Renderer != "chrome" {
		return cfg, fmt.Errorf("config %s: unknown renderer %q", path, cfg.Renderer)
	}
	return cfg, nil
}

func millis(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}

func (c DelaysConfig) engineDelays() engine.Delays {
	d := engine.DefaultDelays()
	d.Poll = millis(c.PollMs, d.Poll)
	d.Settle = millis(c.SettleMs, d.Settle)
	d.Submit = millis(c.SubmitMs, d.Submit)
	if c.MaxPolls > 0 {
		d.MaxPolls = c.MaxPolls
	}
	return d
}
