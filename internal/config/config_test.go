package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POOLWATCH_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("POOLWATCH_CONFIG", "")
	t.Setenv("WINDOW_SIZE", "")
	t.Setenv("ERROR_RATE_THRESHOLD", "")
	t.Setenv("ALERT_COOLDOWN_SEC", "")
	t.Setenv("MAINTENANCE_MODE", "")
	t.Setenv("POOLS", "")
	t.Setenv("APP_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Runtime.WindowSize)
	assert.Equal(t, 2.0, cfg.Runtime.ErrorRateThreshold)
	assert.Equal(t, 300, cfg.Runtime.AlertCooldownSec)
	assert.False(t, cfg.Runtime.MaintenanceMode)
	assert.Equal(t, []string{"blue", "green"}, cfg.Pools)
	assert.Equal(t, SourceFile, cfg.LogSource)
	assert.Equal(t, "127.0.0.1:9100", cfg.Addr)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := map[string]string{
		"WINDOW_SIZE":          "abc",
		"ERROR_RATE_THRESHOLD": "5%",
		"ALERT_COOLDOWN_SEC":   "5m",
		"MAINTENANCE_MODE":     "maybe",
		"NOTIFY_TIMEOUT":       "10",
		"APP_RETENTION_DAYS":   "two weeks",
		"LOG_FROM_START":       "yep",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("POOLWATCH_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
			t.Setenv("POOLWATCH_CONFIG", "")
			t.Setenv(key, val)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadReportsEveryMalformedValue(t *testing.T) {
	t.Setenv("POOLWATCH_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("POOLWATCH_CONFIG", "")
	t.Setenv("NOTIFY_TIMEOUT", "soon")
	t.Setenv("APP_RETENTION_DAYS", "-")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTIFY_TIMEOUT")
	assert.Contains(t, err.Error(), "APP_RETENTION_DAYS")
}

func TestLoadReadsDotenvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SLACK_WEBHOOK_URL=https://hooks.example/x\nWINDOW_SIZE=50\n"), 0o600))
	t.Setenv("POOLWATCH_ENV_FILE", envFile)
	t.Setenv("POOLWATCH_CONFIG", "")
	// godotenv never overrides variables already present, so clear them first.
	t.Setenv("SLACK_WEBHOOK_URL", "")
	t.Setenv("WINDOW_SIZE", "")
	os.Unsetenv("SLACK_WEBHOOK_URL")
	os.Unsetenv("WINDOW_SIZE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example/x", cfg.SlackWebhookURL)
	assert.Equal(t, 50, cfg.Runtime.WindowSize)
}

func TestLoadRuntimeOverlay(t *testing.T) {
	t.Setenv("WINDOW_SIZE", "100")
	t.Setenv("ERROR_RATE_THRESHOLD", "5")
	path := filepath.Join(t.TempDir(), "poolwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window_size: 20\nmaintenance_mode: true\n"), 0o600))

	rt, err := LoadRuntime(path)
	require.NoError(t, err)
	assert.Equal(t, 20, rt.WindowSize)
	assert.Equal(t, 5.0, rt.ErrorRateThreshold)
	assert.True(t, rt.MaintenanceMode)
}

func TestLoadRuntimeBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poolwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window_size: [oops"), 0o600))
	_, err := LoadRuntime(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{
		LogSource:       SourceFile,
		LogFile:         "/tmp/access.log",
		NotifyChannel:   ChannelSlack,
		SlackWebhookURL: "https://hooks.example/x",
		NotifyTimeout:   10 * time.Second,
		Pools:           []string{"blue", "green"},
		Runtime:         DefaultRuntime(),
	}
	require.NoError(t, base.Validate())

	noHook := base
	noHook.SlackWebhookURL = ""
	assert.ErrorIs(t, noHook.Validate(), ErrMissingWebhook)

	tg := base
	tg.NotifyChannel = ChannelTelegram
	assert.ErrorIs(t, tg.Validate(), ErrMissingTelegram)

	badPool := base
	badPool.ActivePool = "red"
	assert.Error(t, badPool.Validate())

	badWindow := base
	badWindow.Runtime.WindowSize = 0
	assert.Error(t, badWindow.Validate())

	badSource := base
	badSource.LogSource = "syslog"
	assert.Error(t, badSource.Validate())
}

func TestStoreReloadAndMaintenance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poolwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window_size: 10\n"), 0o600))
	t.Setenv("MAINTENANCE_MODE", "")

	s := NewStore(DefaultRuntime(), path)
	assert.Equal(t, 200, s.Snapshot().WindowSize)

	rt, err := s.Reload()
	require.NoError(t, err)
	assert.Equal(t, 10, rt.WindowSize)
	assert.Equal(t, 10, s.Snapshot().WindowSize)

	s.SetMaintenance(true)
	assert.True(t, s.Snapshot().MaintenanceMode)

	require.NoError(t, os.WriteFile(path, []byte("window_size: -1\n"), 0o600))
	_, err = s.Reload()
	require.Error(t, err)
	assert.Equal(t, 10, s.Snapshot().WindowSize)
}
