package risk

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/internal/events"
	"funding-hedge-core/pkg/decimalutil"
	"funding-hedge-core/pkg/venue"
)

// VenueSource is the subset of the gateway registry the risk engine reads:
// every circuit-closed venue adapter.
type VenueSource interface {
	All() []venue.Adapter
}

// HedgeStopper lets the risk engine latch the hedge manager's open gate
// during an emergency shutdown without importing its full surface.
type HedgeStopper interface {
	SetEmergencyStop(bool)
}

// Engine is the portfolio-wide Risk Engine: a single periodic tick that
// rebuilds an ExposureSnapshot across every venue and, on breach, runs the
// de-risk procedure.
type Engine struct {
	cfg     Config
	venues  VenueSource
	bus     *events.Bus
	stopper HedgeStopper

	mu       sync.Mutex
	params   domain.RiskParams
	metrics  Metrics
	snapshot domain.ExposureSnapshot
	pnl      domain.Pnl
	latched  map[string]time.Time // symbol -> last extreme-event time
}

// New builds a risk Engine and subscribes it to extreme-event notifications
// (spec §4.D: "the Risk Engine may latch them").
func New(cfg Config, venues VenueSource, bus *events.Bus, stopper HedgeStopper) *Engine {
	e := &Engine{
		cfg:     cfg,
		venues:  venues,
		bus:     bus,
		stopper: stopper,
		params:  domain.RiskParams{Correlation: make(map[string]decimal.Decimal)},
		latched: make(map[string]time.Time),
	}
	if bus != nil {
		ch, _ := bus.Subscribe(events.EventExtremeEvent, 32)
		go e.consumeExtremeEvents(ch)
	}
	return e
}

func (e *Engine) consumeExtremeEvents(ch <-chan any) {
	for v := range ch {
		ev, ok := v.(events.ExtremeEvent)
		if !ok {
			continue
		}
		e.mu.Lock()
		e.latched[ev.Symbol] = time.Now()
		e.metrics.ExtremeEventsTotal++
		e.mu.Unlock()
	}
}

// extremeLatchTTL is how long a latched extreme event still counts as
// "recent" for ExtremeLatched below.
const extremeLatchTTL = 5 * time.Minute

// ExtremeLatched reports whether symbol had an extreme-event notification
// within the latch TTL — an optional guard other components (e.g. the
// hedge manager, before opening a new pair) may consult.
func (e *Engine) ExtremeLatched(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.latched[symbol]
	return ok && time.Since(t) < extremeLatchTTL
}

// Snapshot returns the most recently computed exposure view.
func (e *Engine) Snapshot() domain.ExposureSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// Metrics returns a copy of the cumulative counters.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// Pnl returns a copy of the realized daily/total PnL tracker.
func (e *Engine) Pnl() domain.Pnl {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pnl
}

// RecordRealized folds a hedge's realized PnL into the daily/total tally,
// called by the hedge manager whenever a hedge closes.
func (e *Engine) RecordRealized(amount decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pnl.AddRealized(amount)
}

// Run starts the periodic risk tick. It blocks until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

type flatPosition struct {
	venue string
	pos   domain.Position
}

// tick collects positions and balances from every venue concurrently,
// computes net exposure, updates the volatility EWMA, and triggers
// de-risk on breach.
func (e *Engine) tick(ctx context.Context) {
	venues := e.venues.All()
	if len(venues) == 0 {
		return
	}

	positions, totalValue := e.collect(ctx, venues)

	netValue := decimal.Zero
	for _, fp := range positions {
		netValue = netValue.Add(fp.pos.SignedValue())
	}

	ratio := decimal.Zero
	if !totalValue.IsZero() {
		ratio = netValue.Div(totalValue)
	}

	now := time.Now()
	e.mu.Lock()
	e.snapshot = domain.ExposureSnapshot{
		NetValue:            netValue,
		TotalPortfolioValue: totalValue,
		Ratio:               ratio,
		ObservedAt:          now,
	}
	instantVol := decimalutil.Abs(ratio)
	e.params.UpdateVolatility(instantVol)
	e.metrics.TicksTotal++
	e.metrics.LastExposure = ratio
	e.metrics.LastObservedAt = now
	completedDaily, reset := e.pnl.MaybeResetDaily(now)
	breached := ratio.Abs().GreaterThan(e.cfg.MaxExposure)
	if breached {
		e.metrics.ExceededTotal++
	}
	e.mu.Unlock()

	if reset {
		e.bus.Publish(events.EventDailyPnl, events.DailyPnl{
			Value: completedDaily.String(),
			TS:    now.Unix(),
		})
	}

	if !breached {
		return
	}

	e.bus.Publish(events.EventRiskExceeded, events.RiskExceeded{
		Exposure: ratio.String(),
		TS:       now.Unix(),
	})

	e.derisk(ctx, venues, positions, ratio, totalValue)
}

func (e *Engine) collect(ctx context.Context, venues []venue.Adapter) ([]flatPosition, decimal.Decimal) {
	type result struct {
		venue   string
		pos     map[string]domain.Position
		balance decimal.Decimal
	}

	results := make([]result, len(venues))
	var wg sync.WaitGroup
	for i, v := range venues {
		wg.Add(1)
		go func(i int, v venue.Adapter) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, e.cfg.Interval/2)
			defer cancel()

			pos, err := v.GetPositions(cctx)
			if err != nil {
				log.Printf("risk: get_positions %s failed: %v", v.Name(), err)
				pos = nil
			}
			bal, err := v.GetTotalBalance(cctx)
			if err != nil {
				log.Printf("risk: get_total_balance %s failed: %v", v.Name(), err)
				bal = decimal.Zero
			}
			results[i] = result{venue: v.Name(), pos: pos, balance: bal}
		}(i, v)
	}
	wg.Wait()

	var flat []flatPosition
	total := decimal.Zero
	for _, r := range results {
		total = total.Add(r.balance)
		for _, p := range r.pos {
			flat = append(flat, flatPosition{venue: r.venue, pos: p})
		}
	}
	return flat, total
}
