package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  name: daybot
  env: test
  metrics_addr: ":9100"
  log_level: debug
  timezone: America/New_York
stream:
  url: wss://stream.example.com/v1
  api_key: file-key
  mode: realtime
  symbols: [AAPL, MSFT]
  queue_size: 256
  subscription_cap: 25
  auth_timeout_secs: 8
  ping_interval_secs: 20
  backoff_base_ms: 500
  backoff_max_ms: 15000
  outbound_rate: 5
  outbound_burst: 2
gap:
  monitor_start: "09:00"
  decision_time: "09:30"
  gap_strength_pct: 0.02
  reference_prices:
    AAPL: 182.5
dip:
  active_start: "09:30"
  active_end: "15:00"
  lookback_bars: 5
risk:
  max_daily_trades: 3
  max_daily_loss: 750
  risk_per_trade: 120
  max_position_size: 400
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("DAYBOT_API_KEY", "")

	cfg, err := Load(writeSample(t))
	require.NoError(t, err)

	assert.Equal(t, "daybot", cfg.App.Name)
	assert.Equal(t, "America/New_York", cfg.App.Timezone)
	assert.Equal(t, "wss://stream.example.com/v1", cfg.Stream.URL)
	assert.Equal(t, "file-key", cfg.Stream.APIKey)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Stream.Symbols)
	assert.Equal(t, 256, cfg.Stream.QueueSize)
	assert.Equal(t, "09:30", cfg.Gap.DecisionTime)
	assert.Equal(t, 182.5, cfg.Gap.ReferencePrices["AAPL"])
	assert.Equal(t, 5, cfg.Dip.LookbackBars)
	assert.Equal(t, 3, cfg.Risk.MaxDailyTrades)
	assert.Equal(t, 750.0, cfg.Risk.MaxDailyLoss)
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("DAYBOT_API_KEY", "env-key")

	cfg, err := Load(writeSample(t))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Stream.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("DAYBOT_API_KEY", "")

	cfg, err := Load(writeSample(t))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, Save(path, cfg))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)

	assert.Error(t, Save(path, nil))
}

func TestStreamDurationHelpers(t *testing.T) {
	s := Stream{AuthTimeoutSec: 8, PingIntervalSec: 20, BackoffBaseMs: 500, BackoffMaxMs: 15000}
	assert.Equal(t, 8*time.Second, s.AuthTimeout())
	assert.Equal(t, 20*time.Second, s.PingInterval())
	assert.Equal(t, 500*time.Millisecond, s.BackoffBase())
	assert.Equal(t, 15*time.Second, s.BackoffMax())

	var zero Stream
	assert.Zero(t, zero.AuthTimeout())
	assert.Zero(t, zero.PingInterval())
}
