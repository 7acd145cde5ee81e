// Package hedge implements the hedge lifecycle state machine: idempotent
// open, periodic monitoring with TP/SL/spread-collapse close, and
// emergency unwind. Exactly one Manager owns all Hedge records; within
// it, each key is serialized by its own per-key mutex.
package hedge

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/internal/events"
	"funding-hedge-core/pkg/venue"
)

// LegSizing selects how the two legs' quantities are derived from the
// shared USD notional.
type LegSizing string

const (
	LegSizingEqualNotional LegSizing = "equal_notional"
	LegSizingEqualQty      LegSizing = "equal_qty"
)

// Config holds the hedge manager's tunables.
type Config struct {
	AutoHedge        bool
	SizeFraction     decimal.Decimal // fraction of min(long_avail, short_avail) committed per hedge, default 0.5
	LegSizing        LegSizing
	TakeProfit       decimal.Decimal // default 0.10
	StopLoss         decimal.Decimal // default 0.05
	WarningThreshold decimal.Decimal // spread-collapse trigger, mirrors detector.Thresholds.Warning
	MonitorInterval  time.Duration   // default 10s
	MaxCloseRetries  int             // default 3
}

// DefaultConfig mirrors the spec defaults.
func DefaultConfig() Config {
	return Config{
		AutoHedge:        false,
		SizeFraction:     decimal.NewFromFloat(0.5),
		LegSizing:        LegSizingEqualNotional,
		TakeProfit:       decimal.NewFromFloat(0.10),
		StopLoss:         decimal.NewFromFloat(0.05),
		WarningThreshold: decimal.NewFromFloat(0.0005),
		MonitorInterval:  10 * time.Second,
		MaxCloseRetries:  3,
	}
}

// VenueLookup resolves a registered venue adapter by name.
type VenueLookup interface {
	Get(name string) (venue.Adapter, error)
}

// PnlRecorder receives a hedge's realized PnL when it closes. The risk
// engine implements this to fold hedge results into the daily/total tally.
type PnlRecorder interface {
	RecordRealized(amount decimal.Decimal)
}

// ExtremeGuard is an optional pre-open check against a latched extreme
// market event for a symbol (spec §4.D/§9: an extreme-event consumer "may
// gate new opens... but [does] not close existing hedges" — it never
// touches an already-Active hedge). The risk engine implements this.
type ExtremeGuard interface {
	ExtremeLatched(symbol string) bool
}

// Manager is the Hedge Lifecycle Manager: the single writer of Hedge
// records, keyed by the deterministic symbol|long_venue|short_venue key.
type Manager struct {
	cfg           Config
	venues        VenueLookup
	bus           *events.Bus
	emergencyStop atomic.Bool
	autoHedge     atomic.Bool

	pnlRecorder  PnlRecorder
	extremeGuard ExtremeGuard

	mu      sync.Mutex
	hedges  map[string]*domain.Hedge
	keyLock map[string]*sync.Mutex // per-key serialization for close/monitor
}

// SetPnlRecorder wires an optional collaborator notified of realized PnL
// on every hedge close. Nil by default; never required for correctness.
func (m *Manager) SetPnlRecorder(r PnlRecorder) { m.pnlRecorder = r }

// SetExtremeGuard wires an optional pre-open check. Nil (the default)
// disables it; every opportunity is evaluated purely on its own merits.
func (m *Manager) SetExtremeGuard(g ExtremeGuard) { m.extremeGuard = g }

// SetAutoHedge enables/disables opening new hedges on detected
// opportunities. Lets the operator surface's start_hedging/stop_hedging
// toggle this at runtime without touching emergency_stop.
func (m *Manager) SetAutoHedge(v bool) { m.autoHedge.Store(v) }

// AutoHedge reports whether new hedges are currently allowed to open.
func (m *Manager) AutoHedge() bool { return m.autoHedge.Load() }

// New builds a hedge Manager.
func New(cfg Config, venues VenueLookup, bus *events.Bus) *Manager {
	m := &Manager{
		cfg:     cfg,
		venues:  venues,
		bus:     bus,
		hedges:  make(map[string]*domain.Hedge),
		keyLock: make(map[string]*sync.Mutex),
	}
	m.autoHedge.Store(cfg.AutoHedge)
	return m
}

// EmergencyStop reports whether opens are currently disabled.
func (m *Manager) EmergencyStop() bool { return m.emergencyStop.Load() }

// SetEmergencyStop enables/disables the emergency_stop flag. Once set, no
// new hedge opens are submitted; in-flight partial-fill reconciliation is
// still allowed to finish closing its filled leg.
func (m *Manager) SetEmergencyStop(v bool) { m.emergencyStop.Store(v) }

// Get returns a copy of the current record for key, if any.
func (m *Manager) Get(key string) (domain.Hedge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hedges[key]
	if !ok {
		return domain.Hedge{}, false
	}
	return *h, true
}

// All returns a snapshot of every hedge record, including terminal ones.
func (m *Manager) All() []domain.Hedge {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Hedge, 0, len(m.hedges))
	for _, h := range m.hedges {
		out = append(out, *h)
	}
	return out
}

// ActiveHedges returns a snapshot of every Active hedge, for the monitor
// loop and the risk engine's exposure computation.
func (m *Manager) ActiveHedges() []domain.Hedge {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Hedge, 0, len(m.hedges))
	for _, h := range m.hedges {
		if h.State == domain.HedgeActive {
			out = append(out, *h)
		}
	}
	return out
}

// tryInsertOpening is the atomic compare-and-set on key absence that
// makes Open idempotent: at most one transition out of the empty state
// succeeds concurrently. A key that already has a record — active or
// terminal — is never reused; terminal records stay in the table for
// audit (spec: "Entries remain in the store for audit; not reused").
func (m *Manager) tryInsertOpening(key, symbol, longVenue, shortVenue string) (*domain.Hedge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.hedges[key]; ok {
		return existing, false
	}

	h := &domain.Hedge{
		Key:        key,
		Symbol:     symbol,
		LongVenue:  longVenue,
		ShortVenue: shortVenue,
		State:      domain.HedgeOpening,
		OpenedAt:   time.Now(),
	}
	m.hedges[key] = h
	if _, ok := m.keyLock[key]; !ok {
		m.keyLock[key] = &sync.Mutex{}
	}
	return h, true
}

func (m *Manager) setState(key string, mutate func(h *domain.Hedge)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.hedges[key]; ok {
		mutate(h)
	}
}

func (m *Manager) lockFor(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.keyLock[key]
	if !ok {
		l = &sync.Mutex{}
		m.keyLock[key] = l
	}
	return l
}

func (m *Manager) logf(format string, args ...any) {
	log.Printf("hedge: "+format, args...)
}
