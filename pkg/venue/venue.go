// Package venue defines the uniform adapter contract every exchange
// integration implements, plus the shared error taxonomy.
package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/internal/domain"
)

// StreamKind identifies the payload kind delivered to a stream callback.
type StreamKind string

const (
	StreamFunding  StreamKind = "funding"
	StreamTicker   StreamKind = "ticker"
	StreamPosition StreamKind = "position"
)

// StreamUpdate is a push-based update delivered sequentially per stream.
type StreamUpdate struct {
	Kind     StreamKind
	Symbol   string
	Funding  *domain.FundingObservation
	Quote    *domain.MarketQuote
	Position *domain.Position
}

// StreamCallback receives stream updates in source order.
type StreamCallback func(StreamUpdate)

// Adapter is the uniform capability set every venue integration provides.
// Implementations never panic the process; every failure is returned as
// an *Error of one of the kinds in this package.
type Adapter interface {
	Name() string

	FetchFundingRates(ctx context.Context) ([]domain.FundingObservation, error)
	GetFundingRate(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetAvgFundingRate(ctx context.Context, symbol string, since time.Time) (decimal.Decimal, error)
	GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	GetPositions(ctx context.Context) (map[string]domain.Position, error)
	GetTotalBalance(ctx context.Context) (decimal.Decimal, error)
	GetAvailableBalance(ctx context.Context) (decimal.Decimal, error)

	CreateMarketOrder(ctx context.Context, symbol string, side domain.Side, qty decimal.Decimal) (domain.OrderRef, error)
	ClosePosition(ctx context.Context, symbol string, side *domain.Side, qty *decimal.Decimal) (domain.OrderRef, error)
	TransferTo(ctx context.Context, otherVenue string, amount decimal.Decimal, asset string) error

	// SubscribeStream starts a background stream and delivers updates to cb
	// sequentially until ctx is canceled. The adapter owns reconnection with
	// bounded exponential backoff.
	SubscribeStream(ctx context.Context, cb StreamCallback) error
}
