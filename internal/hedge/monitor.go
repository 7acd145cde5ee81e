package hedge

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
)

// Run starts the periodic monitor loop over Active hedges. It blocks
// until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.monitorTick(ctx)
		}
	}
}

func (m *Manager) monitorTick(ctx context.Context) {
	for _, h := range m.ActiveHedges() {
		h := h
		go m.evaluateHedge(ctx, h)
	}
}

// evaluateHedge recomputes the live spread ratio for one Active hedge and
// closes it on take-profit, stop-loss or spread-collapse:
// ratio_change = entry_ratio - current_ratio.
func (m *Manager) evaluateHedge(ctx context.Context, h domain.Hedge) {
	longAdapter, err := m.venues.Get(h.LongVenue)
	if err != nil {
		return
	}
	shortAdapter, err := m.venues.Get(h.ShortVenue)
	if err != nil {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	longMark, shortMark, err := m.queryMarks(cctx, longAdapter, shortAdapter, h.Symbol)
	if err != nil {
		return
	}

	currentRatio := spreadRatio(longMark, shortMark)
	ratioChange := h.EntryRatio.Sub(currentRatio)

	longFunding, shortFunding, spreadErr := m.queryFundingRates(cctx, longAdapter, shortAdapter, h.Symbol)
	spreadCollapsed := spreadErr == nil && longFunding.Sub(shortFunding).Abs().LessThan(m.cfg.WarningThreshold)

	takeProfitTrigger := m.cfg.TakeProfit.Mul(decimal.NewFromFloat(0.5))

	switch {
	case ratioChange.GreaterThanOrEqual(takeProfitTrigger):
		go m.Close(ctx, h.Key, domain.CloseTakeProfit)
	case ratioChange.LessThanOrEqual(m.cfg.StopLoss.Neg()):
		go m.Close(ctx, h.Key, domain.CloseStopLoss)
	case spreadCollapsed:
		go m.Close(ctx, h.Key, domain.CloseSpreadCollapse)
	}
}

func (m *Manager) queryFundingRates(ctx context.Context, longAdapter, shortAdapter interface {
	GetFundingRate(ctx context.Context, symbol string) (decimal.Decimal, error)
}, symbol string) (decimal.Decimal, decimal.Decimal, error) {
	longRate, err := longAdapter.GetFundingRate(ctx, symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	shortRate, err := shortAdapter.GetFundingRate(ctx, symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return longRate, shortRate, nil
}
