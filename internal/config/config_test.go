package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BELLHOP_CRM__BASE_URL", "https://crm.example.com")
	t.Setenv("BELLHOP_CRM__SESSION_TOKEN", "tok")
	t.Setenv("BELLHOP_REALTIME__ENDPOINT", "wss://crm.example.com/ws/notifications")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Realtime.HeartbeatInterval)
	assert.Equal(t, time.Second, cfg.Realtime.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Realtime.MaxBackoff)
	assert.Equal(t, 5, cfg.Realtime.MaxAttempts)
	assert.Equal(t, "127.0.0.1", cfg.Local.Host)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.History.Path)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
crm:
  base_url: https://crm.example.com
  session_token: file-token
realtime:
  endpoint: wss://crm.example.com/ws/notifications
  max_attempts: 3
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// Env wins over file.
	t.Setenv("BELLHOP_CRM__SESSION_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.CRM.SessionToken)
	assert.Equal(t, 3, cfg.Realtime.MaxAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvSectionSeparator(t *testing.T) {
	t.Setenv("BELLHOP_CRM__BASE_URL", "https://crm.example.com")
	t.Setenv("BELLHOP_CRM__SESSION_TOKEN", "tok")
	t.Setenv("BELLHOP_REALTIME__ENDPOINT", "wss://crm.example.com/ws/notifications")

	// A double underscore marks a section boundary, single underscores
	// stay part of the key.
	t.Setenv("BELLHOP_REALTIME__HEARTBEAT_INTERVAL", "45s")
	t.Setenv("BELLHOP_LOCAL__METRICS_PORT", "9999")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Realtime.HeartbeatInterval)
	assert.Equal(t, "9999", cfg.Local.MetricsPort)
}

func TestLoad_ValidationFailure(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing base url",
			env: map[string]string{
				"BELLHOP_CRM__SESSION_TOKEN": "tok",
				"BELLHOP_REALTIME__ENDPOINT": "wss://crm.example.com/ws",
			},
		},
		{
			name: "bad log level",
			env: map[string]string{
				"BELLHOP_CRM__BASE_URL":      "https://crm.example.com",
				"BELLHOP_CRM__SESSION_TOKEN": "tok",
				"BELLHOP_REALTIME__ENDPOINT": "wss://crm.example.com/ws",
				"BELLHOP_LOG__LEVEL":         "loud",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
