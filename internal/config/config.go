// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	Timezone    string `yaml:"timezone"`
}

// Stream describes the market-data venue connectivity parameters.
type Stream struct {
	URL             string   `yaml:"url"`
	APIKey          string   `yaml:"api_key"`
	Mode            string   `yaml:"mode"` // simulate | realtime
	Symbols         []string `yaml:"symbols"`
	QueueSize       int      `yaml:"queue_size"`
	SubscriptionCap int      `yaml:"subscription_cap"`
	AuthTimeoutSec  int      `yaml:"auth_timeout_secs"`
	PingIntervalSec int      `yaml:"ping_interval_secs"`
	BackoffBaseMs   int      `yaml:"backoff_base_ms"`
	BackoffMaxMs    int      `yaml:"backoff_max_ms"`
	MaxRetries      int      `yaml:"max_retries"` // 0 = unlimited
	OutboundRate    float64  `yaml:"outbound_rate"`
	OutboundBurst   int      `yaml:"outbound_burst"`
}

// Gap groups the pre-market gap strategy knobs. Window bounds are "HH:MM".
type Gap struct {
	MonitorStart       string             `yaml:"monitor_start"`
	DecisionTime       string             `yaml:"decision_time"`
	GapStrengthPct     float64            `yaml:"gap_strength_pct"`
	FakeoutPullbackPct float64            `yaml:"fakeout_pullback_pct"`
	StopLossPct        float64            `yaml:"stop_loss_pct"`
	ReferencePrices    map[string]float64 `yaml:"reference_prices"`
}

// Dip groups the intraday dip strategy knobs.
type Dip struct {
	ActiveStart           string  `yaml:"active_start"`
	ActiveEnd             string  `yaml:"active_end"`
	DipThresholdPct       float64 `yaml:"dip_threshold_pct"`
	VolumeSpikeMultiplier float64 `yaml:"volume_spike_multiplier"`
	LookbackBars          int     `yaml:"lookback_bars"`
	StopLossPct           float64 `yaml:"stop_loss_pct"`
}

// Risk encodes the daily guard-rails the gate enforces.
type Risk struct {
	MaxDailyTrades  int     `yaml:"max_daily_trades"`
	MaxDailyLoss    float64 `yaml:"max_daily_loss"`
	RiskPerTrade    float64 `yaml:"risk_per_trade"`
	MaxPositionSize int     `yaml:"max_position_size"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App    App    `yaml:"app"`
	Stream Stream `yaml:"stream"`
	Gap    Gap    `yaml:"gap"`
	Dip    Dip    `yaml:"dip"`
	Risk   Risk   `yaml:"risk"`
}

// Load reads a YAML file from disk and hydrates a Config struct. A
// DAYBOT_API_KEY environment variable (optionally from .env) overrides the
// file so credentials stay out of checked-in config.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if key := os.Getenv("DAYBOT_API_KEY"); key != "" {
		config.Stream.APIKey = key
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// AuthTimeout converts the seconds field, zero when unset.
func (s Stream) AuthTimeout() time.Duration { return time.Duration(s.AuthTimeoutSec) * time.Second }

// PingInterval converts the seconds field, zero when unset.
func (s Stream) PingInterval() time.Duration { return time.Duration(s.PingIntervalSec) * time.Second }

// BackoffBase converts the milliseconds field, zero when unset.
func (s Stream) BackoffBase() time.Duration { return time.Duration(s.BackoffBaseMs) * time.Millisecond }

// BackoffMax converts the milliseconds field, zero when unset.
func (s Stream) BackoffMax() time.Duration { return time.Duration(s.BackoffMaxMs) * time.Millisecond }
