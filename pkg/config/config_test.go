package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "Asia/Ulaanbaatar", cfg.Calendar.Timezone)
	assert.Equal(t, 366, cfg.Calendar.MaxWindowDays)
	assert.Equal(t, 2*time.Minute, cfg.Calendar.CacheTTL)
	assert.Equal(t, "0 3 * * *", cfg.Calendar.AuditCron)
	assert.Equal(t, 2, cfg.Jobs.Workers)
}

func TestLoadReadsEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CALENDAR_CACHE_TTL=30s\n"), 0o600))
	t.Setenv("CALENDAR_MAX_WINDOW_DAYS", "31")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 31, cfg.Calendar.MaxWindowDays)
	assert.Equal(t, 30*time.Second, cfg.Calendar.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 5*time.Second, parseDuration("5s", time.Minute))
}
