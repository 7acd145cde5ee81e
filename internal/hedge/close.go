package hedge

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/internal/events"
)

const closeRetryBackoff = 2 * time.Second

// Close transitions an Active hedge to Closing and unwinds both legs
// concurrently. Both close orders are always issued regardless of
// whichever leg's result arrives first (leg symmetry on close); a leg
// that fails is retried up to cfg.MaxCloseRetries times before the pair
// escalates to CloseFailed.
func (m *Manager) Close(ctx context.Context, key string, reason domain.CloseReason) {
	l := m.lockFor(key)
	l.Lock()
	defer l.Unlock()

	h, ok := m.Get(key)
	if !ok || h.State != domain.HedgeActive {
		return
	}
	m.setState(key, func(h *domain.Hedge) { h.State = domain.HedgeClosing })

	longAdapter, err := m.venues.Get(h.LongVenue)
	if err != nil {
		m.escalateCloseFailed(key, h, err)
		return
	}
	shortAdapter, err := m.venues.Get(h.ShortVenue)
	if err != nil {
		m.escalateCloseFailed(key, h, err)
		return
	}

	var wg sync.WaitGroup
	var longErr, shortErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		// long leg holds Buy; ClosePosition submits the opposite (sell).
		longErr = m.closeLegWithRetry(ctx, longAdapter, h.Symbol, domain.SideBuy, h.Size)
	}()
	go func() {
		defer wg.Done()
		// short leg holds Sell; ClosePosition submits the opposite (buy).
		shortErr = m.closeLegWithRetry(ctx, shortAdapter, h.Symbol, domain.SideSell, h.Size)
	}()
	wg.Wait()

	if longErr != nil || shortErr != nil {
		firstErr := longErr
		if firstErr == nil {
			firstErr = shortErr
		}
		m.escalateCloseFailed(key, h, firstErr)
		return
	}

	pnl := m.estimatePnl(ctx, longAdapter, shortAdapter, h)
	m.setState(key, func(h *domain.Hedge) {
		h.State = domain.HedgeClosed
		h.CloseReason = reason
		h.ClosedAt = time.Now()
		h.RealizedPnl = pnl
	})

	if m.pnlRecorder != nil {
		m.pnlRecorder.RecordRealized(pnl)
	}

	m.bus.Publish(events.EventHedgeClosed, events.HedgeClosed{
		Key:         key,
		Symbol:      h.Symbol,
		Reason:      string(reason),
		RealizedPnl: pnl.String(),
		TS:          time.Now().Unix(),
	})
}

// closeLegWithRetry closes a leg currently holding positionSide, retrying
// up to cfg.MaxCloseRetries times with backoff.
func (m *Manager) closeLegWithRetry(ctx context.Context, a interface {
	ClosePosition(ctx context.Context, symbol string, side *domain.Side, qty *decimal.Decimal) (domain.OrderRef, error)
}, symbol string, positionSide domain.Side, qty decimal.Decimal) error {
	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxCloseRetries; attempt++ {
		_, err := a.ClosePosition(ctx, symbol, &positionSide, &qty)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(time.Duration(attempt+1) * closeRetryBackoff)
	}
	return lastErr
}

func (m *Manager) escalateCloseFailed(key string, h domain.Hedge, err error) {
	m.setState(key, func(h *domain.Hedge) {
		h.State = domain.HedgeCloseFailed
		h.ClosedAt = time.Now()
	})
	m.bus.Publish(events.EventHedgeCloseFailed, events.HedgeCloseFailed{
		Key:    key,
		Symbol: h.Symbol,
		Reason: err.Error(),
		TS:     time.Now().Unix(),
	})
	m.logf("close %s escalated to close_failed: %v", key, err)
}

// estimatePnl reports the mark-price-based estimate: change in the
// long/short spread value since entry, scaled by position size. The
// funding-delta contribution (accrued funding over the hedge's lifetime)
// is reported separately via FundingPnl so operators can see how much of
// the realized result came from carry versus price convergence.
func (m *Manager) estimatePnl(ctx context.Context, longAdapter, shortAdapter interface {
	GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}, h domain.Hedge) decimal.Decimal {
	longMark, err := longAdapter.GetMarkPrice(ctx, h.Symbol)
	if err != nil {
		longMark = h.EntryLong
	}
	shortMark, err := shortAdapter.GetMarkPrice(ctx, h.Symbol)
	if err != nil {
		shortMark = h.EntryShort
	}

	longLegPnl := longMark.Sub(h.EntryLong).Mul(h.Size)
	shortLegPnl := h.EntryShort.Sub(shortMark).Mul(h.Size)
	return longLegPnl.Add(shortLegPnl)
}

// FundingPnl estimates the funding-carry contribution to a closed hedge:
// the average funding rate differential over its lifetime, applied to
// its notional. Reported as a distinct figure from RealizedPnl, which is
// mark-price based.
func (m *Manager) FundingPnl(ctx context.Context, h domain.Hedge) (decimal.Decimal, error) {
	longAdapter, err := m.venues.Get(h.LongVenue)
	if err != nil {
		return decimal.Zero, err
	}
	shortAdapter, err := m.venues.Get(h.ShortVenue)
	if err != nil {
		return decimal.Zero, err
	}

	since := h.OpenedAt
	longAvg, err := longAdapter.GetAvgFundingRate(ctx, h.Symbol, since)
	if err != nil {
		return decimal.Zero, err
	}
	shortAvg, err := shortAdapter.GetAvgFundingRate(ctx, h.Symbol, since)
	if err != nil {
		return decimal.Zero, err
	}

	notional := h.Size.Mul(h.EntryLong)
	return shortAvg.Sub(longAvg).Mul(notional), nil
}
