// Package detector evaluates threshold alerts and cross-venue arbitrage
// opportunities over funding observations written through the market
// store, plus extreme-event detection over mark-price series.
package detector

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/internal/events"
	"funding-hedge-core/internal/market"
	"funding-hedge-core/pkg/decimalutil"
)

// Thresholds holds the three configurable funding-rate magnitudes.
type Thresholds struct {
	Warning   decimal.Decimal
	Critical  decimal.Decimal
	Arbitrage decimal.Decimal
}

// DefaultThresholds mirrors the spec defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Warning:   decimal.NewFromFloat(0.0005),
		Critical:  decimal.NewFromFloat(0.001),
		Arbitrage: decimal.NewFromFloat(0.002),
	}
}

// OpportunityHandler is notified whenever an arbitrage opportunity clears
// the threshold. The hedge lifecycle manager implements this.
type OpportunityHandler interface {
	OnOpportunity(op domain.FundingObservationPair)
}

// Detector evaluates incoming observations against thresholds and scans
// for cross-venue arbitrage after each snapshot cycle.
type Detector struct {
	thresholds Thresholds
	bus        *events.Bus
	handler    OpportunityHandler

	mu       sync.Mutex
	counters map[string]int // "venue|symbol" -> consecutive above-warning count
	store    *market.Store  // set via SetStore; enables an early re-scan on critical readings
}

// New builds a Detector.
func New(thresholds Thresholds, bus *events.Bus, handler OpportunityHandler) *Detector {
	return &Detector{
		thresholds: thresholds,
		bus:        bus,
		handler:    handler,
		counters:   make(map[string]int),
	}
}

// SetStore wires the market store the detector reads from when a critical
// reading triggers an immediate re-scan, ahead of the next snapshot cycle.
func (d *Detector) SetStore(store *market.Store) {
	d.mu.Lock()
	d.store = store
	d.mu.Unlock()
}

// Observe evaluates one FundingObservation: emits warning/critical
// alerts and updates the AlertCounter for (venue,symbol). A critical
// reading additionally triggers an immediate arbitrage re-scan for that
// symbol rather than waiting for the next snapshot cycle.
func (d *Detector) Observe(obs domain.FundingObservation) {
	abs := decimalutil.Abs(obs.Rate)
	key := obs.Venue + "|" + obs.Symbol
	critical := abs.GreaterThan(d.thresholds.Critical)

	d.mu.Lock()
	switch {
	case critical:
		d.counters[key]++
	case abs.GreaterThan(d.thresholds.Warning):
		d.counters[key]++
	default:
		d.counters[key] = 0
	}
	store := d.store
	d.mu.Unlock()

	if critical && store != nil {
		if bySym := store.LatestBySymbol(obs.Symbol); len(bySym) >= 2 {
			d.scanSymbol(obs.Symbol, bySym)
		}
	}

	switch {
	case abs.GreaterThan(d.thresholds.Critical):
		d.publishAlert(events.AlertCritical, obs)
	case abs.GreaterThan(d.thresholds.Warning):
		d.publishAlert(events.AlertWarning, obs)
	}
}

func (d *Detector) publishAlert(level events.AlertLevel, obs domain.FundingObservation) {
	d.bus.Publish(events.EventAlert, events.Alert{
		Level:   level,
		Venue:   obs.Venue,
		Symbol:  obs.Symbol,
		Rate:    obs.Rate.String(),
		Message: string(level) + " funding rate on " + obs.Venue + " " + obs.Symbol + ": " + obs.Rate.String(),
		TS:      obs.ObservedAt.Unix(),
	})
}

// AlertCount returns the current AlertCounter value for (venue,symbol).
func (d *Detector) AlertCount(venueName, symbol string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counters[venueName+"|"+symbol]
}

// AfterSnapshotCycle runs the arbitrage scan described in §4.D, once per
// completed multi-venue snapshot cycle.
func (d *Detector) AfterSnapshotCycle(store *market.Store) {
	symbols, venueCount := store.CommonSymbols()
	if venueCount < 2 {
		return
	}

	for _, symbol := range symbols {
		bySym := store.LatestBySymbol(symbol)
		if len(bySym) < 2 {
			continue
		}
		d.scanSymbol(symbol, bySym)
	}
}

func (d *Detector) scanSymbol(symbol string, bySym map[string]domain.FundingObservation) {
	venues := make([]string, 0, len(bySym))
	for v := range bySym {
		venues = append(venues, v)
	}
	sort.Strings(venues)

	maxVenue, minVenue := venues[0], venues[0]
	maxRate, minRate := bySym[venues[0]].Rate, bySym[venues[0]].Rate
	for _, v := range venues[1:] {
		r := bySym[v].Rate
		if r.GreaterThan(maxRate) {
			maxRate, maxVenue = r, v
		}
		if r.LessThan(minRate) {
			minRate, minVenue = r, v
		}
	}

	spread := maxRate.Sub(minRate)
	if !spread.GreaterThan(d.thresholds.Arbitrage) {
		return
	}

	longVenue, shortVenue := minVenue, maxVenue // lower funding receives = long
	longRate, shortRate := minRate, maxRate

	d.bus.Publish(events.EventArbitrage, events.Arbitrage{
		Symbol:     symbol,
		LongVenue:  longVenue,
		ShortVenue: shortVenue,
		LongRate:   longRate.String(),
		ShortRate:  shortRate.String(),
		Spread:     spread.String(),
		TS:         time.Now().Unix(),
	})

	if d.handler != nil {
		d.handler.OnOpportunity(domain.FundingObservationPair{
			Symbol:     symbol,
			LongVenue:  longVenue,
			ShortVenue: shortVenue,
			LongRate:   longRate,
			ShortRate:  shortRate,
			Spread:     spread,
		})
	}
}
