// Package mock is a deterministic in-memory venue.Adapter used by the
// dry-run execution path and by tests. It simulates fills with a fixed fee
// rate and a seeded-random slippage instead of real exchange connectivity.
package mock

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/pkg/venue"
)

// SimConfig controls the fill simulation.
type SimConfig struct {
	FeeRate     decimal.Decimal // e.g. 0.0004 = 4 bps
	SlippageBps decimal.Decimal // upper bound of the random slippage applied against the mark price on fills
}

// DefaultSimConfig mirrors production-adjacent assumptions: 4bps taker fee,
// up to 2bps slippage.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		FeeRate:     decimal.NewFromFloat(0.0004),
		SlippageBps: decimal.NewFromFloat(2),
	}
}

// Adapter is a deterministic venue double: prices and funding rates are
// seeded by the caller and never move on their own, positions update only
// in response to CreateMarketOrder/ClosePosition.
type Adapter struct {
	name string
	cfg  SimConfig
	rng  *rand.Rand

	mu        sync.Mutex
	funding   map[string]domain.FundingObservation
	fundHist  map[string][]domain.FundingObservation
	marks     map[string]decimal.Decimal
	positions map[string]domain.Position
	balance   decimal.Decimal
	available decimal.Decimal
	fail      map[string]*venue.Error // symbol -> forced failure, for tests
}

// New builds a mock adapter seeded with initialBalance in the quote asset.
func New(name string, initialBalance decimal.Decimal, cfg SimConfig) *Adapter {
	return &Adapter{
		name:      name,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(1)),
		funding:   make(map[string]domain.FundingObservation),
		fundHist:  make(map[string][]domain.FundingObservation),
		marks:     make(map[string]decimal.Decimal),
		positions: make(map[string]domain.Position),
		balance:   initialBalance,
		available: initialBalance,
		fail:      make(map[string]*venue.Error),
	}
}

func (a *Adapter) Name() string { return a.name }

// SetMarkPrice seeds/overwrites the mark price used for fills and reads.
func (a *Adapter) SetMarkPrice(symbol string, price decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.marks[symbol] = price
}

// SetFundingRate seeds/overwrites the funding observation for a symbol.
func (a *Adapter) SetFundingRate(symbol string, rate decimal.Decimal, next time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	obs := domain.FundingObservation{Venue: a.name, Symbol: symbol, Rate: rate, NextFundingTime: next, ObservedAt: time.Now()}
	a.funding[symbol] = obs
	a.fundHist[symbol] = append(a.fundHist[symbol], obs)
}

// FailNext forces the next order on symbol to fail with err, consumed once.
func (a *Adapter) FailNext(symbol string, err *venue.Error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fail[symbol] = err
}

func (a *Adapter) FetchFundingRates(ctx context.Context) ([]domain.FundingObservation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.FundingObservation, 0, len(a.funding))
	for _, f := range a.funding {
		out = append(out, f)
	}
	return out, nil
}

func (a *Adapter) GetFundingRate(ctx context.Context, symbol string) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.funding[symbol]
	if !ok {
		return decimal.Zero, venue.New(venue.KindBadSymbol, symbol)
	}
	return f.Rate, nil
}

func (a *Adapter) GetAvgFundingRate(ctx context.Context, symbol string, since time.Time) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var rates []decimal.Decimal
	for _, f := range a.fundHist[symbol] {
		if !f.ObservedAt.Before(since) {
			rates = append(rates, f.Rate)
		}
	}
	if len(rates) == 0 {
		return decimal.Zero, nil
	}
	sum := decimal.Zero
	for _, r := range rates {
		sum = sum.Add(r)
	}
	return sum.Div(decimal.NewFromInt(int64(len(rates)))), nil
}

func (a *Adapter) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.marks[symbol]
	if !ok {
		return decimal.Zero, venue.New(venue.KindBadSymbol, symbol)
	}
	return p, nil
}

func (a *Adapter) GetPositions(ctx context.Context) (map[string]domain.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]domain.Position, len(a.positions))
	for k, v := range a.positions {
		out[k] = v
	}
	return out, nil
}

func (a *Adapter) GetTotalBalance(ctx context.Context) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance, nil
}

func (a *Adapter) GetAvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available, nil
}

func (a *Adapter) CreateMarketOrder(ctx context.Context, symbol string, side domain.Side, qty decimal.Decimal) (domain.OrderRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.fail[symbol]; err != nil {
		delete(a.fail, symbol)
		return domain.OrderRef{}, err
	}

	price, ok := a.marks[symbol]
	if !ok {
		return domain.OrderRef{}, venue.New(venue.KindBadSymbol, symbol)
	}
	fillPrice := a.slip(price, side)
	notional := qty.Mul(fillPrice)
	fee := notional.Mul(a.cfg.FeeRate)

	if notional.Add(fee).GreaterThan(a.available) {
		return domain.OrderRef{}, venue.New(venue.KindInsufficientFunds, "mock balance exhausted")
	}
	a.available = a.available.Sub(fee)
	a.applyFill(symbol, side, qty, fillPrice)

	return domain.OrderRef{
		OrderID:     uuid.NewString(),
		Symbol:      symbol,
		Side:        side,
		ExecutedQty: qty,
		AvgPrice:    fillPrice,
	}, nil
}

func (a *Adapter) ClosePosition(ctx context.Context, symbol string, side *domain.Side, qty *decimal.Decimal) (domain.OrderRef, error) {
	a.mu.Lock()
	closeSide := domain.Side("")
	closeQty := decimal.Zero
	if side != nil && qty != nil {
		closeSide = side.Opposite()
		closeQty = *qty
	} else {
		pos, ok := a.positions[symbol]
		if !ok {
			a.mu.Unlock()
			return domain.OrderRef{}, venue.New(venue.KindNotFound, "no open position for "+symbol)
		}
		closeSide = pos.Side.Opposite()
		closeQty = pos.Size
	}
	a.mu.Unlock()
	return a.CreateMarketOrder(ctx, symbol, closeSide, closeQty)
}

func (a *Adapter) TransferTo(ctx context.Context, otherVenue string, amount decimal.Decimal, asset string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount.GreaterThan(a.available) {
		return venue.New(venue.KindInsufficientFunds, "transfer exceeds available balance")
	}
	a.available = a.available.Sub(amount)
	a.balance = a.balance.Sub(amount)
	return nil
}

// SubscribeStream never pushes updates on its own; tests drive state
// directly via SetMarkPrice/SetFundingRate. Like the real adapter it
// returns at once, leaving a goroutine that exits when ctx is canceled.
func (a *Adapter) SubscribeStream(ctx context.Context, cb venue.StreamCallback) error {
	go func() {
		<-ctx.Done()
	}()
	return nil
}

func (a *Adapter) slip(price decimal.Decimal, side domain.Side) decimal.Decimal {
	frac := a.cfg.SlippageBps.Div(decimal.NewFromInt(10000))
	if frac.IsZero() {
		return price
	}
	noise := decimal.NewFromFloat(a.rng.Float64()).Mul(frac)
	if side == domain.SideBuy {
		return price.Mul(decimal.NewFromInt(1).Add(noise))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(noise))
}

func (a *Adapter) applyFill(symbol string, side domain.Side, qty, price decimal.Decimal) {
	pos, existed := a.positions[symbol]
	if !existed {
		a.positions[symbol] = domain.Position{
			Venue: a.name, Symbol: symbol, Side: side, Size: qty,
			EntryPrice: price, MarkPrice: price,
		}
		return
	}

	if pos.Side == side {
		totalQty := pos.Size.Add(qty)
		weighted := pos.EntryPrice.Mul(pos.Size).Add(price.Mul(qty)).Div(totalQty)
		pos.Size = totalQty
		pos.EntryPrice = weighted
		a.positions[symbol] = pos
		return
	}

	// Opposite side: reduces or flips the position.
	if qty.GreaterThanOrEqual(pos.Size) {
		remainder := qty.Sub(pos.Size)
		if remainder.IsZero() {
			delete(a.positions, symbol)
			return
		}
		a.positions[symbol] = domain.Position{
			Venue: a.name, Symbol: symbol, Side: side, Size: remainder,
			EntryPrice: price, MarkPrice: price,
		}
		return
	}
	pos.Size = pos.Size.Sub(qty)
	a.positions[symbol] = pos
}

var _ venue.Adapter = (*Adapter)(nil)
