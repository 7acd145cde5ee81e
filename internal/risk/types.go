// Package risk implements the portfolio-wide Risk Engine: net exposure
// computation, a volatility EWMA, worst-PnL-first de-risk, and emergency
// shutdown. Unlike a per-order pre-trade gate, it runs on its own tick and
// acts on the whole book rather than one signal at a time.
package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the risk engine's tunables.
type Config struct {
	Interval    time.Duration   // default 10s
	MaxExposure decimal.Decimal // default 0.10, ratio of portfolio
	DeriskFloor decimal.Decimal // de-risk target floor, default 0.8 * MaxExposure
}

// DefaultConfig mirrors the spec defaults.
func DefaultConfig() Config {
	maxExposure := decimal.NewFromFloat(0.10)
	return Config{
		Interval:    10 * time.Second,
		MaxExposure: maxExposure,
		DeriskFloor: maxExposure.Mul(decimal.NewFromFloat(0.8)),
	}
}

// Metrics are cumulative counters exposed for status reporting, matching
// the teacher's recordCheck-style bookkeeping.
type Metrics struct {
	TicksTotal         uint64
	ExceededTotal      uint64
	DeriskActionsTotal uint64
	EmergencyShutdowns uint64
	ExtremeEventsTotal uint64
	LastExposure       decimal.Decimal
	LastObservedAt     time.Time
}
