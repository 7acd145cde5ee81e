// Package domain holds the core value types shared across the engine:
// market observations, hedge records, exposure snapshots and PnL.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is a position or order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the closing side for a position side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// FundingObservation is one venue's funding rate reading for a symbol.
// Immutable once created.
type FundingObservation struct {
	Venue           string
	Symbol          string
	Rate            decimal.Decimal
	NextFundingTime time.Time
	ObservedAt      time.Time
}

// MarketQuote is one venue's latest mark price for a symbol. Mutable;
// the latest reading replaces the previous one in the store. Volume is
// best-effort: zero when the underlying stream doesn't carry it (e.g. a
// mark-price-only stream), which simply leaves liquidity_drop detection
// inactive for that venue rather than fabricating a reading.
type MarketQuote struct {
	Venue      string
	Symbol     string
	MarkPrice  decimal.Decimal
	Volume     decimal.Decimal
	ObservedAt time.Time
}

// Position is a non-zero open position on a venue.
type Position struct {
	Venue         string
	Symbol        string
	Side          Side
	Size          decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	UnrealizedPnl decimal.Decimal
}

// SignedValue returns size*markPrice with the sign implied by Side
// (long = +1, short = -1), used by net exposure computation.
func (p Position) SignedValue() decimal.Decimal {
	v := p.Size.Mul(p.MarkPrice)
	if p.Side == SideSell {
		return v.Neg()
	}
	return v
}

// HedgeState is a state in the hedge lifecycle state machine.
type HedgeState string

const (
	HedgeOpening     HedgeState = "opening"
	HedgeActive      HedgeState = "active"
	HedgeClosing     HedgeState = "closing"
	HedgeClosed      HedgeState = "closed"
	HedgeFailed      HedgeState = "failed"
	HedgeCloseFailed HedgeState = "close_failed"
)

// Terminal reports whether no further transition is expected from this state.
func (s HedgeState) Terminal() bool {
	switch s {
	case HedgeClosed, HedgeFailed, HedgeCloseFailed:
		return true
	default:
		return false
	}
}

// FundingObservationPair is an arbitrage opportunity: two venues' latest
// funding rates for the same symbol, spread beyond the arbitrage threshold.
type FundingObservationPair struct {
	Symbol     string
	LongVenue  string
	ShortVenue string
	LongRate   decimal.Decimal
	ShortRate  decimal.Decimal
	Spread     decimal.Decimal
}

// HedgeKey builds the deterministic idempotency key for a hedge pair.
func HedgeKey(symbol, longVenue, shortVenue string) string {
	return fmt.Sprintf("%s|%s|%s", symbol, longVenue, shortVenue)
}

// OrderRef is the result of a successfully submitted order.
type OrderRef struct {
	OrderID     string
	Symbol      string
	Side        Side
	ExecutedQty decimal.Decimal
	AvgPrice    decimal.Decimal
}

// CloseReason records why an Active hedge transitioned to Closing.
type CloseReason string

const (
	CloseTakeProfit     CloseReason = "take_profit"
	CloseStopLoss       CloseReason = "stop_loss"
	CloseSpreadCollapse CloseReason = "spread_collapsed"
	CloseEmergency      CloseReason = "emergency"
	CloseOperator       CloseReason = "operator"
)

// Hedge is a delta-neutral long/short pair tracked by the lifecycle manager.
// Owned exclusively by the Hedge Lifecycle Manager (single writer per key).
type Hedge struct {
	Key         string
	Symbol      string
	LongVenue   string
	ShortVenue  string
	State       HedgeState
	Size        decimal.Decimal
	EntryLong   decimal.Decimal
	EntryShort  decimal.Decimal
	EntryRatio  decimal.Decimal
	LongOrder   string
	ShortOrder  string
	OpenedAt    time.Time
	ClosedAt    time.Time
	CloseReason CloseReason
	PartialFill bool
	RealizedPnl decimal.Decimal
}

// ExposureSnapshot is the risk engine's point-in-time portfolio view.
// Rebuilt every risk tick; never persisted.
type ExposureSnapshot struct {
	NetValue           decimal.Decimal
	TotalPortfolioValue decimal.Decimal
	Ratio              decimal.Decimal
	ObservedAt         time.Time
}

// RiskParams tracks the risk engine's rolling state.
type RiskParams struct {
	Volatility  decimal.Decimal
	Correlation map[string]decimal.Decimal
}

// UpdateVolatility applies the EWMA: v' = 0.9*v + 0.1*v_instant.
func (p *RiskParams) UpdateVolatility(instant decimal.Decimal) {
	p.Volatility = p.Volatility.Mul(decimal.NewFromFloat(0.9)).
		Add(instant.Mul(decimal.NewFromFloat(0.1)))
}

// Pnl tracks daily and cumulative realized profit.
type Pnl struct {
	Daily        decimal.Decimal
	Total        decimal.Decimal
	lastResetDay time.Time
}

// MaybeResetDaily resets Daily exactly once when wall-clock enters the
// first 10 minutes of a new local day. The lastResetDay latch prevents a
// double reset within that window. Returns the completed day's total and
// whether a reset actually happened, so callers can publish it.
func (p *Pnl) MaybeResetDaily(now time.Time) (decimal.Decimal, bool) {
	if now.Hour() != 0 || now.Minute() >= 10 {
		return decimal.Zero, false
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if p.lastResetDay.Equal(today) {
		return decimal.Zero, false
	}
	completed := p.Daily
	p.Daily = decimal.Zero
	p.lastResetDay = today
	return completed, true
}

// AddRealized folds a realized hedge PnL into daily and total totals.
func (p *Pnl) AddRealized(amount decimal.Decimal) {
	p.Daily = p.Daily.Add(amount)
	p.Total = p.Total.Add(amount)
}
