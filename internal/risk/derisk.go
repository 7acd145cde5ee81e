package risk

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/pkg/decimalutil"
	"funding-hedge-core/pkg/venue"
)

// derisk reduces the worst-offending positions until the excess exposure
// above DeriskFloor is closed out, sorted worst-unrealized-PnL-first.
func (e *Engine) derisk(ctx context.Context, venues []venue.Adapter, positions []flatPosition, ratio, totalValue decimal.Decimal) {
	if totalValue.IsZero() {
		return
	}

	target := decimalutil.Abs(ratio).Sub(e.cfg.DeriskFloor)
	if !target.IsPositive() {
		return
	}
	remaining := target.Mul(totalValue)

	sign := domain.SideBuy // ratio > 0 means net long; candidates are long positions
	if ratio.IsNegative() {
		sign = domain.SideSell
	}

	candidates := make([]flatPosition, 0, len(positions))
	for _, fp := range positions {
		if fp.pos.Side == sign {
			candidates = append(candidates, fp)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].pos.UnrealizedPnl.LessThan(candidates[j].pos.UnrealizedPnl)
	})

	adapters := make(map[string]venue.Adapter, len(venues))
	for _, v := range venues {
		adapters[v.Name()] = v
	}

	for _, fp := range candidates {
		if !remaining.IsPositive() {
			break
		}
		adapter, ok := adapters[fp.venue]
		if !ok || fp.pos.MarkPrice.IsZero() {
			continue
		}

		closeQty := fp.pos.Size
		byBudget := remaining.Div(fp.pos.MarkPrice)
		if byBudget.LessThan(closeQty) {
			closeQty = byBudget
		}
		if !closeQty.IsPositive() {
			continue
		}

		// ClosePosition takes the position's own side and submits the
		// opposite order itself.
		positionSide := fp.pos.Side
		cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		_, err := adapter.ClosePosition(cctx, fp.pos.Symbol, &positionSide, &closeQty)
		cancel()
		if err != nil {
			log.Printf("risk: de-risk close %s %s failed: %v", fp.venue, fp.pos.Symbol, err)
			continue
		}

		e.mu.Lock()
		e.metrics.DeriskActionsTotal++
		e.mu.Unlock()

		remaining = remaining.Sub(closeQty.Mul(fp.pos.MarkPrice))
	}
}
