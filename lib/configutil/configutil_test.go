package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Delays   struct {
		PollMs int `json:"poll_ms"`
	} `json:"delays"`
}

func writeFile(t testing.TB, path, contents string) {
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// comments are allowed
		base_url: "https://sakai.example/portal",
		username: "tutor",
		delays: { poll_ms: 55 },
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ username: "admin" }`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://sakai.example/portal", cfg.BaseUrl)
	require.Equal(t, "admin", cfg.Username)
	require.Equal(t, 55, cfg.Delays.PollMs)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestReadConfigWithDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{ username: "tutor" }`)

	defaults := testConfig{BaseUrl: "https://default.example"}
	defaults.Delays.PollMs = 100

	cfg, err := ReadConfigWithDefaults(filepath.Join(dir, "config.json5"), defaults)
	require.NoError(t, err)
	require.Equal(t, "tutor", cfg.Username)
	require.Equal(t, "https://default.example", cfg.BaseUrl)
	require.Equal(t, 100, cfg.Delays.PollMs)

	cfg, err = ReadConfigWithDefaults(filepath.Join(dir, "missing.json5"), defaults)
	require.NoError(t, err)
	require.Equal(t, defaults, cfg)
}
