package binancefut

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/pkg/decimalutil"
	"funding-hedge-core/pkg/venue"
)

// FetchFundingRates returns the latest funding rate for every tradable
// perpetual symbol.
func (a *Adapter) FetchFundingRates(ctx context.Context) ([]domain.FundingObservation, error) {
	body, err := a.publicGet(ctx, "/fapi/v1/premiumIndex", nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Symbol          string `json:"symbol"`
		LastFundingRate string `json:"lastFundingRate"`
		NextFundingTime int64  `json:"nextFundingTime"`
		Time            int64  `json:"time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, venue.Wrap(venue.KindInternal, "decode premiumIndex", err)
	}

	now := time.Now()
	out := make([]domain.FundingObservation, 0, len(raw))
	for _, r := range raw {
		out = append(out, domain.FundingObservation{
			Venue:           a.name,
			Symbol:          r.Symbol,
			Rate:            decStr(r.LastFundingRate),
			NextFundingTime: time.UnixMilli(r.NextFundingTime),
			ObservedAt:      observedAt(r.Time, now),
		})
	}
	return out, nil
}

func observedAt(ms int64, fallback time.Time) time.Time {
	if ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms)
}

// GetFundingRate returns the current funding rate for one symbol.
func (a *Adapter) GetFundingRate(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{"symbol": {symbol}}
	body, err := a.publicGet(ctx, "/fapi/v1/premiumIndex", params)
	if err != nil {
		return decimal.Zero, err
	}
	var raw struct {
		LastFundingRate string `json:"lastFundingRate"`
		Symbol          string `json:"symbol"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, venue.Wrap(venue.KindInternal, "decode premiumIndex", err)
	}
	if raw.Symbol == "" {
		return decimal.Zero, venue.New(venue.KindBadSymbol, symbol)
	}
	return decStr(raw.LastFundingRate), nil
}

// GetAvgFundingRate is the arithmetic mean of historical funding rates at
// or after since; returns zero if the history window is empty.
func (a *Adapter) GetAvgFundingRate(ctx context.Context, symbol string, since time.Time) (decimal.Decimal, error) {
	params := url.Values{
		"symbol":    {symbol},
		"startTime": {strconv.FormatInt(since.UnixMilli(), 10)},
		"limit":     {"1000"},
	}
	body, err := a.publicGet(ctx, "/fapi/v1/fundingRate", params)
	if err != nil {
		return decimal.Zero, err
	}
	var raw []struct {
		FundingRate string `json:"fundingRate"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, venue.Wrap(venue.KindInternal, "decode fundingRate history", err)
	}
	rates := make([]decimal.Decimal, 0, len(raw))
	for _, r := range raw {
		rates = append(rates, decStr(r.FundingRate))
	}
	return decimalutil.Mean(rates), nil
}

// GetMarkPrice returns the latest mark price for symbol.
func (a *Adapter) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{"symbol": {symbol}}
	body, err := a.publicGet(ctx, "/fapi/v1/premiumIndex", params)
	if err != nil {
		return decimal.Zero, err
	}
	var raw struct {
		MarkPrice string `json:"markPrice"`
		Symbol    string `json:"symbol"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, venue.Wrap(venue.KindInternal, "decode premiumIndex", err)
	}
	if raw.Symbol == "" {
		return decimal.Zero, venue.New(venue.KindBadSymbol, symbol)
	}
	return decStr(raw.MarkPrice), nil
}
