package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimal = `
feeds:
  aggregate_url: http://feeds.local/ws/2328/{year}
  orders_url: http://feeds.local/ws/2307/{year}
kafka:
  brokers: ["localhost:9092"]
  topic: pauta
`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "pautabot.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, "kafka", cfg.Notifier.Driver)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 0.25, cfg.Retry.JitterFactor)
	assert.Equal(t, 10*time.Minute, cfg.Run.Timeout)
	assert.True(t, cfg.Matcher.ToleranceDecimal().Equal(decimal.NewFromInt(1)))
	assert.Contains(t, cfg.Feeds.DetailURL, "{order}")
}

func TestLoad_ExplicitZeroKeepsMeaning(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal+`
retry:
  max_retries: 0
  jitter_factor: 0.5
matcher:
  tolerance: "0"
`))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Retry.MaxRetries)
	assert.Equal(t, 0.5, cfg.Retry.JitterFactor)
	assert.True(t, cfg.Matcher.ToleranceDecimal().IsZero())
}

func TestLoad_RejectsNegativeTolerance(t *testing.T) {
	_, err := Load(writeConfig(t, minimal+`
matcher:
  tolerance: "-1"
`))
	assert.ErrorContains(t, err, "tolerance")
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "s3cret")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Storage.Postgres.Password)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "feeds: {}\n"))
	assert.ErrorContains(t, err, "aggregate_url")

	_, err = Load(writeConfig(t, minimal+"storage:\n  driver: mongo\n"))
	assert.ErrorContains(t, err, "storage.driver")

	_, err = Load(writeConfig(t, minimal+"matcher:\n  tolerance: abc\n"))
	assert.ErrorContains(t, err, "tolerance")
}

func TestFiscalYearAt(t *testing.T) {
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2026, Feeds{}.FiscalYearAt(now))
	assert.Equal(t, 2025, Feeds{FiscalYear: 2025}.FiscalYearAt(now))
}
