package binancefut

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/pkg/venue"
)

// CreateMarketOrder submits a market order for qty of symbol.
func (a *Adapter) CreateMarketOrder(ctx context.Context, symbol string, side domain.Side, qty decimal.Decimal) (domain.OrderRef, error) {
	if qty.IsZero() || qty.IsNegative() {
		return domain.OrderRef{}, venue.New(venue.KindInternal, "qty must be positive")
	}
	params := url.Values{
		"symbol":   {symbol},
		"side":     {strings.ToUpper(string(side))},
		"type":     {"MARKET"},
		"quantity": {qty.String()},
	}
	return a.submit(ctx, symbol, side, params)
}

// ClosePosition closes symbol's position. If side/qty are nil, the full
// live position is closed; otherwise an opposite order of the given qty
// is submitted.
func (a *Adapter) ClosePosition(ctx context.Context, symbol string, side *domain.Side, qty *decimal.Decimal) (domain.OrderRef, error) {
	closeSide := domain.Side("")
	closeQty := decimal.Zero

	if side != nil && qty != nil {
		closeSide = side.Opposite()
		closeQty = *qty
	} else {
		positions, err := a.GetPositions(ctx)
		if err != nil {
			return domain.OrderRef{}, err
		}
		pos, ok := positions[symbol]
		if !ok {
			return domain.OrderRef{}, venue.New(venue.KindNotFound, "no open position for "+symbol)
		}
		closeSide = pos.Side.Opposite()
		closeQty = pos.Size
	}

	params := url.Values{
		"symbol":     {symbol},
		"side":       {strings.ToUpper(string(closeSide))},
		"type":       {"MARKET"},
		"quantity":   {closeQty.String()},
		"reduceOnly": {"true"},
	}
	return a.submit(ctx, symbol, closeSide, params)
}

func (a *Adapter) submit(ctx context.Context, symbol string, side domain.Side, params url.Values) (domain.OrderRef, error) {
	body, err := a.signedPost(ctx, "/fapi/v1/order", params)
	if err != nil {
		return domain.OrderRef{}, err
	}
	var raw struct {
		OrderID       int64  `json:"orderId"`
		ExecutedQty   string `json:"executedQty"`
		AvgPrice      string `json:"avgPrice"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.OrderRef{}, venue.Wrap(venue.KindInternal, "decode order response", err)
	}
	if raw.Status == "REJECTED" || raw.Status == "EXPIRED" {
		return domain.OrderRef{}, venue.Exchange(raw.Status, "order not accepted")
	}
	return domain.OrderRef{
		OrderID:     strconv.FormatInt(raw.OrderID, 10),
		Symbol:      symbol,
		Side:        side,
		ExecutedQty: decStr(raw.ExecutedQty),
		AvgPrice:    decStr(raw.AvgPrice),
	}, nil
}

// TransferTo moves amount of asset from this venue toward otherVenue's
// deposit address/account. Binance's futures wallet transfer API only
// moves funds between a single account's own wallets, so cross-venue
// transfer is unsupported by this adapter.
func (a *Adapter) TransferTo(ctx context.Context, otherVenue string, amount decimal.Decimal, asset string) error {
	return venue.New(venue.KindUnsupported, "cross-venue transfer not supported by binancefut")
}
