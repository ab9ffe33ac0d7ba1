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
	t.Setenv("DAILY_DIGEST_CONFIG", "")
	t.Setenv("DAILY_DIGEST_LEDGER", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Load()

	assert.Equal(t, 5.0, cfg.Budget.Ceiling)
	assert.Equal(t, 6, cfg.Schedule.Hour)
	assert.Equal(t, "smtp", cfg.Delivery.Transport)
	require.NotEmpty(t, cfg.Routes.Write)
	assert.LessOrEqual(t, len(cfg.Routes.Write), 2, "one primary plus at most one fallback")
	require.NotEmpty(t, cfg.Sites)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
budget:
  ceiling: 2.5
schedule:
  hour: 9
  minute: 15
  utcOffsetMinutes: 120
routes:
  write:
    - provider: openai
      model: gpt-4o-mini
      outputPricePer1k: 0.0006
      maxTokens: 800
delivery:
  transport: api
  recipients: [a@example.com]
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	t.Setenv("DAILY_DIGEST_CONFIG", path)
	t.Setenv("DAILY_DIGEST_LEDGER", "/tmp/override.db")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg := Load()

	assert.Equal(t, 2.5, cfg.Budget.Ceiling)
	assert.Equal(t, 9, cfg.Schedule.Hour)
	assert.Equal(t, 15, cfg.Schedule.Minute)
	require.Len(t, cfg.Routes.Write, 1)
	assert.Equal(t, "openai", cfg.Routes.Write[0].Provider)
	assert.NotEmpty(t, cfg.Routes.Select, "unset sections keep defaults")
	assert.Equal(t, "api", cfg.Delivery.Transport)
	assert.Equal(t, []string{"a@example.com"}, cfg.Delivery.Recipients)
	assert.Equal(t, "/tmp/override.db", cfg.Ledger.Path)
	assert.Equal(t, "sk-test", cfg.Providers.Anthropic.APIKey)
}

func TestLoadBadFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))
	t.Setenv("DAILY_DIGEST_CONFIG", path)

	cfg := Load()
	assert.Equal(t, 5.0, cfg.Budget.Ceiling)
}

func TestScheduleLocation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.UTC, ScheduleConfig{}.Location())

	loc := ScheduleConfig{UTCOffsetMinutes: -300}.Location()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, loc)
	_, offset := at.Zone()
	assert.Equal(t, -300*60, offset)
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2*time.Second, PipelineConfig{RetryBaseDelay: "2s"}.RetryDelay())
	assert.Equal(t, 500*time.Millisecond, PipelineConfig{RetryBaseDelay: "bogus"}.RetryDelay())
	assert.Equal(t, 500*time.Millisecond, PipelineConfig{}.RetryDelay())
}
