package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendPlaywright, cfg.Driver.Backend)
	assert.True(t, cfg.Driver.Headless)
	assert.Equal(t, 1920, cfg.Driver.ViewportWidth)
	assert.Equal(t, 1080, cfg.Driver.ViewportHeight)
	assert.Equal(t, 30*time.Second, cfg.Actions.NavigateTimeout)
	assert.Equal(t, time.Second, cfg.Actions.DefaultSettleDelay)
	assert.Equal(t, "0.0.0.0:8000", cfg.Address())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hammer.yaml")
	content := `
server:
  port: 9100
driver:
  backend: chromedp
  extra_args: ["--lang=en-US"]
sessions:
  max_sessions: 4
  idle_timeout: 5m
actions:
  default_settle_delay: 250ms
security:
  denied_urls: ["*://internal.*"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, BackendChromedp, cfg.Driver.Backend)
	assert.Equal(t, []string{"--lang=en-US"}, cfg.Driver.ExtraArgs)
	assert.Equal(t, 4, cfg.Sessions.MaxSessions)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Actions.DefaultSettleDelay)
	assert.Equal(t, []string{"*://internal.*"}, cfg.Security.DeniedURLs)

	// untouched fields keep their defaults
	assert.True(t, cfg.Driver.Stealth)
	assert.Equal(t, DefaultUserAgent, cfg.Driver.UserAgent)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"HAMMER_HOST":         "127.0.0.1",
		"HAMMER_PORT":         "8123",
		"HAMMER_DRIVER":       "CHROMEDP",
		"HAMMER_HEADLESS":     "false",
		"HAMMER_LOG_LEVEL":    "debug",
		"HAMMER_MAX_SESSIONS": "0",
		"HAMMER_IDLE_TIMEOUT": "90s",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8123", cfg.Address())
	assert.Equal(t, BackendChromedp, cfg.Driver.Backend)
	assert.False(t, cfg.Driver.Headless)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 0, cfg.Sessions.MaxSessions)
	assert.Equal(t, 90*time.Second, cfg.Sessions.IdleTimeout)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"HAMMER_PORT":         "eighty",
		"HAMMER_IDLE_TIMEOUT": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HAMMER_PORT")
	assert.Contains(t, err.Error(), "HAMMER_IDLE_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError string
	}{
		{
			name:        "port out of range",
			mutate:      func(c *Config) { c.Server.Port = 70000 },
			expectError: "invalid port",
		},
		{
			name:        "unknown gin mode",
			mutate:      func(c *Config) { c.Server.Mode = "prod" },
			expectError: "invalid server mode",
		},
		{
			name:        "unknown backend",
			mutate:      func(c *Config) { c.Driver.Backend = "selenium" },
			expectError: "invalid driver backend",
		},
		{
			name:        "zero viewport",
			mutate:      func(c *Config) { c.Driver.ViewportWidth = 0 },
			expectError: "viewport",
		},
		{
			name:        "negative max sessions",
			mutate:      func(c *Config) { c.Sessions.MaxSessions = -1 },
			expectError: "max_sessions",
		},
		{
			name: "idle timeout without reap interval",
			mutate: func(c *Config) {
				c.Sessions.IdleTimeout = time.Minute
				c.Sessions.ReapInterval = 0
			},
			expectError: "reap_interval",
		},
		{
			name:        "settle delay above max",
			mutate:      func(c *Config) { c.Actions.DefaultSettleDelay = time.Hour },
			expectError: "exceeds max_settle_delay",
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: "invalid logging level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidate_DefaultsEmptyLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.Driver.Backend = "netscape"
	cfg.Sessions.MaxSessions = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
	assert.Contains(t, err.Error(), "invalid driver backend")
	assert.Contains(t, err.Error(), "max_sessions cannot be negative")
}
