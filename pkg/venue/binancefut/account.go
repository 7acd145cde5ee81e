package binancefut

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/pkg/venue"
)

// GetPositions returns only non-zero positions, keyed by symbol.
func (a *Adapter) GetPositions(ctx context.Context) (map[string]domain.Position, error) {
	body, err := a.signedGet(ctx, "/fapi/v2/positionRisk", nil)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		MarkPrice        string `json:"markPrice"`
		UnRealizedProfit string `json:"unRealizedProfit"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, venue.Wrap(venue.KindInternal, "decode positionRisk", err)
	}

	out := make(map[string]domain.Position)
	for _, r := range raw {
		amt := decStr(r.PositionAmt)
		if amt.IsZero() {
			continue
		}
		side := domain.SideBuy
		if amt.IsNegative() {
			side = domain.SideSell
			amt = amt.Neg()
		}
		out[r.Symbol] = domain.Position{
			Venue:         a.name,
			Symbol:        r.Symbol,
			Side:          side,
			Size:          amt,
			EntryPrice:    decStr(r.EntryPrice),
			MarkPrice:     decStr(r.MarkPrice),
			UnrealizedPnl: decStr(r.UnRealizedProfit),
		}
	}
	return out, nil
}

// GetTotalBalance returns the account's total wallet balance in the
// configured quote asset.
func (a *Adapter) GetTotalBalance(ctx context.Context) (decimal.Decimal, error) {
	return a.assetBalance(ctx, "balance")
}

// GetAvailableBalance returns the account's available (unlocked) balance
// in the configured quote asset.
func (a *Adapter) GetAvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	return a.assetBalance(ctx, "availableBalance")
}

func (a *Adapter) assetBalance(ctx context.Context, field string) (decimal.Decimal, error) {
	body, err := a.signedGet(ctx, "/fapi/v2/balance", nil)
	if err != nil {
		return decimal.Zero, err
	}
	var raw []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, venue.Wrap(venue.KindInternal, "decode balance", err)
	}
	for _, r := range raw {
		if r.Asset != a.cfg.QuoteAsset {
			continue
		}
		if field == "balance" {
			return decStr(r.Balance), nil
		}
		return decStr(r.AvailableBalance), nil
	}
	return decimal.Zero, nil
}
