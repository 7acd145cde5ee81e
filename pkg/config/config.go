// Package config loads process settings from environment variables
// overlaid on an optional YAML file. Env is the source of truth; the YAML
// file supplies defaults and the nested per-venue/threshold structure env
// vars don't cover well.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Thresholds holds the funding-magnitude trigger points from spec §6.
type Thresholds struct {
	Warning   float64 `yaml:"warning"`
	Critical  float64 `yaml:"critical"`
	Arbitrage float64 `yaml:"arbitrage"`
}

// RiskParams holds the hedge/risk tunables from spec §6.
type RiskParams struct {
	MaxExposure        float64 `yaml:"max_exposure"`
	RebalanceThreshold float64 `yaml:"rebalance_threshold"`
	StopLoss           float64 `yaml:"stop_loss"`
	TakeProfit         float64 `yaml:"take_profit"`
}

// VenueCredentials holds one venue's connection details.
type VenueCredentials struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Proxy     string `yaml:"proxy"`
}

// Notification holds alert delivery endpoints.
type Notification struct {
	Webhook string `yaml:"webhook"`
	Chat    string `yaml:"chat"`
}

// fileConfig is the shape of the optional YAML overlay.
type fileConfig struct {
	Thresholds   Thresholds                  `yaml:"thresholds"`
	Risk         RiskParams                  `yaml:"risk"`
	Venues       map[string]VenueCredentials `yaml:"venues"`
	Notification Notification                `yaml:"notification"`
	HistoryCap   int                         `yaml:"history_cap"`
}

// Config holds the fully resolved process configuration.
type Config struct {
	Port string

	Symbols []string

	PollingInterval time.Duration // default 30s
	MonitorInterval time.Duration // default 10s
	HistoryCap      int           // per-(venue,symbol) funding history cap, default 200

	Thresholds Thresholds
	Risk       RiskParams

	Venues       map[string]VenueCredentials
	Notification Notification

	AutoHedge  bool
	DryRun     bool
	TradeAsset string // env TRADE_ASSET, default "USDT"; not read from the YAML file

	// ClassifierAddr is the external market-state classifier worker's
	// gRPC address. Empty (default) disables the bridge entirely.
	ClassifierAddr string

	JWTSecret        string
	OperatorPassword string
	Language         string
}

// Load reads CONFIG_FILE (or ./config.yaml if present) as a base, then
// overlays environment variables, matching the teacher's "env is the
// source of truth, file is the base" precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	fc := fileConfig{
		Thresholds: Thresholds{Warning: 0.0005, Critical: 0.001, Arbitrage: 0.002},
		Risk:       RiskParams{MaxExposure: 0.10, RebalanceThreshold: 0.03, StopLoss: 0.05, TakeProfit: 0.10},
		Venues:     map[string]VenueCredentials{},
		HistoryCap: 200,
	}
	if path := getEnv("CONFIG_FILE", "./config.yaml"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return nil, err
			}
		}
	}

	overlayVenuesFromEnv(fc.Venues)

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Symbols:         splitAndTrim(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")),
		PollingInterval: getEnvDurationMs("POLLING_INTERVAL_MS", 30000),
		MonitorInterval: getEnvDurationMs("MONITOR_INTERVAL_MS", 10000),
		HistoryCap:      getEnvInt("HISTORY_CAP", fc.HistoryCap),
		Thresholds: Thresholds{
			Warning:   getEnvFloat("THRESHOLD_WARNING", fc.Thresholds.Warning),
			Critical:  getEnvFloat("THRESHOLD_CRITICAL", fc.Thresholds.Critical),
			Arbitrage: getEnvFloat("THRESHOLD_ARBITRAGE", fc.Thresholds.Arbitrage),
		},
		Risk: RiskParams{
			MaxExposure:        getEnvFloat("MAX_EXPOSURE", fc.Risk.MaxExposure),
			RebalanceThreshold: getEnvFloat("REBALANCE_THRESHOLD", fc.Risk.RebalanceThreshold),
			StopLoss:           getEnvFloat("STOP_LOSS", fc.Risk.StopLoss),
			TakeProfit:         getEnvFloat("TAKE_PROFIT", fc.Risk.TakeProfit),
		},
		Venues: fc.Venues,
		Notification: Notification{
			Webhook: getEnv("NOTIFY_WEBHOOK", fc.Notification.Webhook),
			Chat:    getEnv("NOTIFY_CHAT", fc.Notification.Chat),
		},
		AutoHedge:      getEnv("AUTO_HEDGE", "false") == "true",
		DryRun:         getEnv("DRY_RUN", "true") == "true",
		TradeAsset:     getEnv("TRADE_ASSET", "USDT"),
		ClassifierAddr: getEnv("CLASSIFIER_ADDR", ""),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret"),
		OperatorPassword: getEnv("OPERATOR_PASSWORD", "dev-operator"),
		Language:         getEnv("LANGUAGE", "en"),
	}

	return cfg, nil
}

// overlayVenuesFromEnv fills in/overrides venue credentials from
// VENUE_<NAME>_API_KEY / _API_SECRET / _PROXY, so deployments can avoid
// putting secrets in the YAML file.
func overlayVenuesFromEnv(venues map[string]VenueCredentials) {
	const prefix = "VENUE_"
	suffixes := []string{"_API_KEY", "_API_SECRET", "_PROXY"}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], prefix) {
			continue
		}
		key, value := parts[0], parts[1]
		for _, suffix := range suffixes {
			if !strings.HasSuffix(key, suffix) {
				continue
			}
			name := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix))
			if name == "" {
				continue
			}
			cred := venues[name]
			switch suffix {
			case "_API_KEY":
				cred.APIKey = value
			case "_API_SECRET":
				cred.APISecret = value
			case "_PROXY":
				cred.Proxy = value
			}
			venues[name] = cred
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDurationMs(key string, defMs int) time.Duration {
	ms := defMs
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			ms = i
		}
	}
	return time.Duration(ms) * time.Millisecond
}
