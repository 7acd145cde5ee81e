package hedge

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/internal/events"
	"funding-hedge-core/pkg/decimalutil"
	"funding-hedge-core/pkg/venue"
)

const openTimeout = 15 * time.Second

// OnOpportunity implements detector.OpportunityHandler. auto_hedge off or
// emergency_stop set means the opportunity is dropped silently with no
// side effects. Otherwise the key is atomically inserted as Opening; a
// key already present in any state, terminal ones included, makes this a
// no-op, which is what makes repeated opportunity notifications for the
// same pair safe.
func (m *Manager) OnOpportunity(op domain.FundingObservationPair) {
	if !m.AutoHedge() || m.EmergencyStop() {
		return
	}
	if m.extremeGuard != nil && m.extremeGuard.ExtremeLatched(op.Symbol) {
		m.logf("open %s skipped: extreme event latched for %s", op.Symbol, op.Symbol)
		return
	}

	key := domain.HedgeKey(op.Symbol, op.LongVenue, op.ShortVenue)
	h, inserted := m.tryInsertOpening(key, op.Symbol, op.LongVenue, op.ShortVenue)
	if !inserted {
		return
	}

	go m.open(key, h)
}

func (m *Manager) open(key string, h *domain.Hedge) {
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	longAdapter, err := m.venues.Get(h.LongVenue)
	if err != nil {
		m.failOpen(key, err)
		return
	}
	shortAdapter, err := m.venues.Get(h.ShortVenue)
	if err != nil {
		m.failOpen(key, err)
		return
	}

	longAvail, shortAvail, err := m.queryBalances(ctx, longAdapter, shortAdapter)
	if err != nil {
		m.failOpen(key, err)
		return
	}

	minAvail := longAvail
	if shortAvail.LessThan(minAvail) {
		minAvail = shortAvail
	}
	sizeUSD := minAvail.Mul(m.cfg.SizeFraction)

	if !sizeUSD.IsPositive() {
		m.failOpen(key, venue.New(venue.KindInsufficientFunds, "insufficient available balance on both legs"))
		return
	}

	longMark, shortMark, err := m.queryMarks(ctx, longAdapter, shortAdapter, h.Symbol)
	if err != nil {
		m.failOpen(key, err)
		return
	}

	longQty, shortQty := m.legQuantities(sizeUSD, longMark, shortMark)

	var longRef, shortRef domain.OrderRef
	var longErr, shortErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		longRef, longErr = longAdapter.CreateMarketOrder(ctx, h.Symbol, domain.SideBuy, longQty)
	}()
	go func() {
		defer wg.Done()
		shortRef, shortErr = shortAdapter.CreateMarketOrder(ctx, h.Symbol, domain.SideSell, shortQty)
	}()
	wg.Wait()

	switch {
	case longErr == nil && shortErr == nil:
		m.activateHedge(key, h, longRef, shortRef, longMark, shortMark)
	case longErr != nil && shortErr != nil:
		m.failOpen(key, longErr)
	case longErr != nil:
		// long leg failed, short leg filled (short_venue.sell): unwind it.
		m.reconcilePartial(ctx, key, shortAdapter, h.Symbol, domain.SideSell, shortRef.ExecutedQty)
	default:
		// short leg failed, long leg filled (long_venue.buy): unwind it.
		m.reconcilePartial(ctx, key, longAdapter, h.Symbol, domain.SideBuy, longRef.ExecutedQty)
	}
}

func (m *Manager) queryBalances(ctx context.Context, longAdapter, shortAdapter venue.Adapter) (decimal.Decimal, decimal.Decimal, error) {
	var longAvail, shortAvail decimal.Decimal
	var longErr, shortErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		longAvail, longErr = longAdapter.GetAvailableBalance(ctx)
	}()
	go func() {
		defer wg.Done()
		shortAvail, shortErr = shortAdapter.GetAvailableBalance(ctx)
	}()
	wg.Wait()
	if longErr != nil {
		return decimal.Zero, decimal.Zero, longErr
	}
	if shortErr != nil {
		return decimal.Zero, decimal.Zero, shortErr
	}
	return longAvail, shortAvail, nil
}

func (m *Manager) queryMarks(ctx context.Context, longAdapter, shortAdapter venue.Adapter, symbol string) (decimal.Decimal, decimal.Decimal, error) {
	var longMark, shortMark decimal.Decimal
	var longErr, shortErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		longMark, longErr = longAdapter.GetMarkPrice(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		shortMark, shortErr = shortAdapter.GetMarkPrice(ctx, symbol)
	}()
	wg.Wait()
	if longErr != nil {
		return decimal.Zero, decimal.Zero, longErr
	}
	if shortErr != nil {
		return decimal.Zero, decimal.Zero, shortErr
	}
	return longMark, shortMark, nil
}

// legQuantities derives per-leg quantities from the shared USD notional.
// equal_notional (default) sizes each leg to the same dollar exposure, so
// quantities differ when mark prices differ; equal_qty keeps both legs at
// the same contract size, priced off the average of both marks so it stays
// delta-neutral even when the legs' prices differ.
func (m *Manager) legQuantities(sizeUSD, longMark, shortMark decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	switch m.cfg.LegSizing {
	case LegSizingEqualQty:
		qty := decimalutil.TruncQty(decimalutil.SafeRatio(sizeUSD, longMark.Add(shortMark).Div(decimal.NewFromInt(2))))
		return qty, qty
	default:
		longQty := decimalutil.TruncQty(decimalutil.SafeRatio(sizeUSD, longMark))
		shortQty := decimalutil.TruncQty(decimalutil.SafeRatio(sizeUSD, shortMark))
		return longQty, shortQty
	}
}

func (m *Manager) activateHedge(key string, h *domain.Hedge, longRef, shortRef domain.OrderRef, longMark, shortMark decimal.Decimal) {
	ratio := spreadRatio(longMark, shortMark)

	m.setState(key, func(h *domain.Hedge) {
		h.State = domain.HedgeActive
		h.Size = longRef.ExecutedQty
		h.EntryLong = longMark
		h.EntryShort = shortMark
		h.EntryRatio = ratio
		h.LongOrder = longRef.OrderID
		h.ShortOrder = shortRef.OrderID
	})

	m.bus.Publish(events.EventHedgeOpened, events.HedgeOpened{
		Key:        key,
		Symbol:     h.Symbol,
		LongVenue:  h.LongVenue,
		ShortVenue: h.ShortVenue,
		Size:       longRef.ExecutedQty.String(),
		EntryLong:  longMark.String(),
		EntryShort: shortMark.String(),
		TS:         time.Now().Unix(),
	})
}

// reconcilePartial handles the case where exactly one leg filled: close
// the filled leg via an opposite-side market order, retrying up to
// cfg.MaxCloseRetries times, and mark the pair Failed either way.
// positionSide is the side the filled leg actually holds; ClosePosition
// submits the opposite order to flatten it.
func (m *Manager) reconcilePartial(ctx context.Context, key string, filledAdapter venue.Adapter, symbol string, positionSide domain.Side, qty decimal.Decimal) {
	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxCloseRetries; attempt++ {
		_, err := filledAdapter.ClosePosition(ctx, symbol, &positionSide, &qty)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		time.Sleep(time.Duration(attempt+1) * time.Second)
	}

	m.setState(key, func(h *domain.Hedge) {
		h.State = domain.HedgeFailed
		h.PartialFill = true
		h.ClosedAt = time.Now()
	})

	msg := "partial fill reconciled: filled leg closed"
	if lastErr != nil {
		msg = "partial fill reconciliation exhausted retries: " + lastErr.Error()
	}
	m.bus.Publish(events.EventHedgeFailed, events.HedgeFailed{
		Key:         key,
		Symbol:      symbol,
		Reason:      msg,
		PartialFill: true,
		TS:          time.Now().Unix(),
	})
}

// spreadRatio is (short_price - long_price) / long_price, the entry/current
// spread the monitor loop tracks for take-profit/stop-loss decisions.
func spreadRatio(longMark, shortMark decimal.Decimal) decimal.Decimal {
	return decimalutil.SafeRatio(shortMark.Sub(longMark), longMark)
}

func (m *Manager) failOpen(key string, err error) {
	m.setState(key, func(h *domain.Hedge) {
		h.State = domain.HedgeFailed
		h.ClosedAt = time.Now()
	})
	m.bus.Publish(events.EventHedgeFailed, events.HedgeFailed{
		Key:    key,
		Reason: err.Error(),
		TS:     time.Now().Unix(),
	})
	m.logf("open %s failed: %v", key, err)
}
