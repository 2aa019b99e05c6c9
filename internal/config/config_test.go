package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{"08:00", 8, 0, false},
		{" 21:30 ", 21, 30, false},
		{"0:05", 0, 5, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			h, m, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.h, h)
			assert.Equal(t, tt.m, m)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	base := `
server:
  port: "8080"
jwt:
  secret: ${JWT_SECRET:-dev-secret}
scheduler:
  timezone: Europe/Madrid
  jobs:
    - check: periodicity-check
      at: "08:00"
auth:
  require_service_role_for_checks: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(base), 0o600))
	t.Setenv("CONFIG_DIR", dir)
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("APP_TIMEZONE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "dev-secret", cfg.JWT.Secret)
	assert.True(t, cfg.Auth.RequireServiceRoleForChecks)
	require.Len(t, cfg.Scheduler.Jobs, 1)
	assert.Equal(t, CheckPeriodicity, cfg.Scheduler.Jobs[0].Check)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Madrid", loc.String())
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.JWT.Secret = "s"
	assert.NoError(t, cfg.Validate())

	cfg.Scheduler.Jobs = []JobConfig{{Check: "weekly-digest", At: "08:00"}}
	assert.Error(t, cfg.Validate())

	cfg.Scheduler.Jobs = []JobConfig{{Check: CheckStreakReminder, At: "8"}}
	assert.Error(t, cfg.Validate())

	cfg.Scheduler.Jobs = nil
	cfg.Scheduler.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())
}
