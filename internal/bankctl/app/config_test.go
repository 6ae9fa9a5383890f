package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bankctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BANKCTL_CONFIG", "")
	t.Setenv("BANK_API_URL", "https://bank.example.com/api")
	t.Setenv("BANKCTL_DATABASE_FILE", filepath.Join(dir, "creds.db"))
	t.Setenv("BANKCTL_MASTER_KEY", "secret")
	t.Setenv("BANKCTL_RATELIMIT_REQUESTS", "30")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "https://bank.example.com/api", cfg.API.BaseURL)
	require.Equal(t, 10*time.Second, cfg.API.Timeout)
	require.Equal(t, 15*time.Second, cfg.API.RenewalTimeout)
	require.Equal(t, filepath.Join(dir, "creds.db"), cfg.Store.DatabaseFile)
	require.Equal(t, "secret", cfg.Store.MasterKey)
	require.Empty(t, cfg.Store.MasterKeyFile)
	require.Equal(t, 30, cfg.RateLimit.RequestsPerWindow)
	require.Equal(t, time.Minute, cfg.RateLimit.Window)
	require.Equal(t, "text", cfg.Output)
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("BANK_API_TIMEOUT", "3s")

	path := writeConfig(t, `
output: json
api:
  base_url: http://127.0.0.1:9000/api
store:
  database_file: /tmp/bankctl-test/creds.db
  master_key_file: /tmp/bankctl-test/master.key
capture:
  command: fswebcam
  args: ["-q", "--no-banner", "-"]
rate_limit:
  requests: 10
  window: 1s
  burst: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:9000/api", cfg.API.BaseURL)
	require.Equal(t, 3*time.Second, cfg.API.Timeout, "environment overrides the file")
	require.Equal(t, "json", cfg.Output)
	require.Equal(t, "fswebcam", cfg.Capture.Command)
	require.Equal(t, []string{"-q", "--no-banner", "-"}, cfg.Capture.Args)
	require.Equal(t, 10*time.Second, cfg.Capture.Timeout)
	require.Equal(t, 10, cfg.RateLimit.RequestsPerWindow)
	require.Equal(t, time.Second, cfg.RateLimit.Window)
	require.Equal(t, 2, cfg.RateLimit.Burst)
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: http://from-env-path/api\n")
	t.Setenv("BANKCTL_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://from-env-path/api", cfg.API.BaseURL)
}

func TestLoadDefaultsStorePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BANKCTL_CONFIG", "")
	t.Setenv("BANKCTL_DATABASE_FILE", "")
	t.Setenv("BANKCTL_MASTER_KEY", "")
	t.Setenv("BANKCTL_MASTER_KEY_FILE", "")
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	cfg, err := Load("")
	require.NoError(t, err)

	base, err := os.UserConfigDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "bankctl", "credentials.db"), cfg.Store.DatabaseFile)
	require.Equal(t, filepath.Join(base, "bankctl", "master.key"), cfg.Store.MasterKeyFile)
	require.Equal(t, "http://localhost:8000/api", cfg.API.BaseURL)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("BANKCTL_CONFIG", "")
	t.Setenv("BANKCTL_MASTER_KEY", "k")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "does not exist")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"relative url", "api:\n  base_url: localhost:8000\n", "base_url"},
		{"bad output", "output: xml\n", "output"},
		{"bad log format", "log_format: logfmt\n", "log_format"},
		{"negative rate", "rate_limit:\n  requests: -1\n", "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestMustLoadPanics(t *testing.T) {
	require.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}
