package market

import (
	"context"
	"log"
	"sync"
	"time"

	"funding-hedge-core/internal/domain"
	"funding-hedge-core/internal/events"
	"funding-hedge-core/pkg/venue"
)

// defaultPollInterval matches the spec's default snapshot cadence.
const defaultPollInterval = 30 * time.Second

// VenueSource is the subset of the gateway registry the aggregator needs:
// the current, circuit-closed set of venue adapters.
type VenueSource interface {
	All() []venue.Adapter
	RecordFailure(name string)
	RecordSuccess(name string)
}

// Observer receives write-through notifications from the aggregator. The
// detector implements this; it lives in a separate package to avoid an
// import cycle.
type Observer interface {
	Observe(obs domain.FundingObservation)
	AfterSnapshotCycle(store *Store)
}

// QuoteObserver receives every mark-price quote written through the store,
// ahead of the extreme-event pipeline (§4.D). Optional: nil disables it.
type QuoteObserver interface {
	ObserveQuote(q domain.MarketQuote)
}

// HistoryLoader optionally preloads bounded history at startup. Its own
// failures are tolerated; the engine continues with empty history.
type HistoryLoader interface {
	LoadHistory(ctx context.Context) ([]domain.FundingObservation, error)
}

// Aggregator is the MarketStore's single writer: it merges a periodic
// REST snapshot across all venues with push-based stream updates.
type Aggregator struct {
	store         *Store
	source        VenueSource
	bus           *events.Bus
	observer      Observer
	quoteObserver QuoteObserver
	history       HistoryLoader

	pollInterval time.Duration

	mu      sync.Mutex
	started bool
}

// NewAggregator builds an Aggregator. pollInterval <= 0 uses the spec
// default of 30s.
func NewAggregator(store *Store, source VenueSource, bus *events.Bus, observer Observer, history HistoryLoader, pollInterval time.Duration) *Aggregator {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Aggregator{
		store:        store,
		source:       source,
		bus:          bus,
		observer:     observer,
		history:      history,
		pollInterval: pollInterval,
	}
}

// fanOutObserver dispatches one quote to several QuoteObservers in order.
type fanOutObserver struct {
	observers []QuoteObserver
}

func (f fanOutObserver) ObserveQuote(q domain.MarketQuote) {
	for _, o := range f.observers {
		if o != nil {
			o.ObserveQuote(q)
		}
	}
}

// FanOutObservers combines several QuoteObservers (nils allowed and
// skipped) into the single observer SetQuoteObserver accepts.
func FanOutObservers(observers ...QuoteObserver) QuoteObserver {
	return fanOutObserver{observers: observers}
}

// SetQuoteObserver wires the optional extreme-event pipeline onto every
// ingested mark-price quote. Nil (the default) disables it.
func (a *Aggregator) SetQuoteObserver(o QuoteObserver) {
	a.mu.Lock()
	a.quoteObserver = o
	a.mu.Unlock()
}

// Start preloads history (best-effort), subscribes to every venue's
// stream, and begins the periodic snapshot loop. Returns once the
// initial wiring is done; the loops run in background goroutines until
// ctx is canceled.
func (a *Aggregator) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	a.preloadHistory(ctx)

	for _, v := range a.source.All() {
		a.subscribeStream(ctx, v)
	}

	go a.pollLoop(ctx)
}

func (a *Aggregator) preloadHistory(ctx context.Context) {
	if a.history == nil {
		return
	}
	obs, err := a.history.LoadHistory(ctx)
	if err != nil {
		log.Printf("market: history preload failed, continuing with empty history: %v", err)
		return
	}
	for _, o := range obs {
		a.store.IngestFunding(o)
	}
}

func (a *Aggregator) subscribeStream(ctx context.Context, v venue.Adapter) {
	err := v.SubscribeStream(ctx, func(u venue.StreamUpdate) {
		switch u.Kind {
		case venue.StreamFunding:
			if u.Funding != nil {
				a.ingestFunding(*u.Funding)
			}
		case venue.StreamTicker:
			if u.Quote != nil {
				a.store.IngestQuote(*u.Quote)
				a.mu.Lock()
				qo := a.quoteObserver
				a.mu.Unlock()
				if qo != nil {
					qo.ObserveQuote(*u.Quote)
				}
			}
		}
	})
	if err != nil {
		log.Printf("market: subscribe stream %s failed: %v", v.Name(), err)
	}
}

func (a *Aggregator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

// pollOnce fetches funding rates from every venue concurrently using an
// all-settled strategy: a failing venue never blocks the others.
func (a *Aggregator) pollOnce(ctx context.Context) {
	venues := a.source.All()
	if len(venues) == 0 {
		return
	}

	timeout := a.pollInterval / 2
	var wg sync.WaitGroup
	for _, v := range venues {
		wg.Add(1)
		go func(v venue.Adapter) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			obs, err := v.FetchFundingRates(cctx)
			if err != nil {
				a.source.RecordFailure(v.Name())
				a.bus.Publish(events.EventFetchFailed, events.FetchFailed{
					Venue: v.Name(), Err: err.Error(), TS: time.Now().Unix(),
				})
				log.Printf("market: fetch_funding_rates %s failed: %v", v.Name(), err)
				return
			}
			a.source.RecordSuccess(v.Name())
			for _, o := range obs {
				a.ingestFunding(o)
			}
		}(v)
	}
	wg.Wait()

	if a.observer != nil {
		a.observer.AfterSnapshotCycle(a.store)
	}
}

func (a *Aggregator) ingestFunding(obs domain.FundingObservation) {
	a.store.IngestFunding(obs)
	if a.observer != nil {
		a.observer.Observe(obs)
	}
}
